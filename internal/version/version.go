// Package version pins the build version string.
package version

const Value = "0.1.0"

// UserAgent identifies this build to external services.
func UserAgent() string { return "proofgate/" + Value }
