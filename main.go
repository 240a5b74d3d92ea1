package main

import "github.com/evidentci/proofgate/cmd"

func main() {
	cmd.Execute()
}
