package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/evidentci/proofgate/internal/adapter"
	"github.com/evidentci/proofgate/internal/changeset"
	"github.com/evidentci/proofgate/internal/config"
	"github.com/evidentci/proofgate/internal/engine"
	"github.com/evidentci/proofgate/internal/journal"
	"github.com/evidentci/proofgate/internal/logging"
	"github.com/evidentci/proofgate/internal/obligation"
	"github.com/evidentci/proofgate/internal/output"
	appver "github.com/evidentci/proofgate/internal/version"
)

// Exit codes: 0 pass, 1 fail, 2 configuration or execution error.
const (
	exitPass  = 0
	exitFail  = 1
	exitError = 2
)

var (
	flagConfig     string
	flagTier       string
	flagDiff       string
	flagBase       string
	flagOldVersion string
	flagLogFile    string
	flagJSON       bool
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:     "proofgate",
	Short:   "proofgate runs configured verifiers over a code change, evaluates declared obligations and security gates, and seals the evidence in a tamper-evident journal.",
	Version: appver.Value,
}

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run the verifier suite over a change and decide the gate",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runGate(args))
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [artifact-dir]",
	Short: "Recompute the evidence Merkle root and check journal integrity",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := ".proof"
		if len(args) == 1 {
			dir = args[0]
		}
		if err := engine.VerifyArtifacts(dir); err != nil {
			fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
			os.Exit(exitFail)
		}
		fmt.Println("evidence verified: merkle root and journal chain intact")
		os.Exit(exitPass)
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile [path]",
	Short: "Compile the ambition section into a concrete obligations lock file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workDir := "."
		if len(args) == 1 {
			workDir = args[0]
		}
		doc, err := loadConfig(workDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitError)
		}
		specs := doc.AllObligations()
		lockPath := filepath.Join(workDir, "obligations.lock.json")
		if err := config.SaveObligationsLock(lockPath, specs); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", lockPath, err)
			os.Exit(exitError)
		}
		fmt.Printf("compiled %d obligation(s) to %s\n", len(specs), lockPath)
		os.Exit(exitPass)
	},
}

func runGate(args []string) int {
	workDir := "."
	if len(args) == 1 {
		workDir = args[0]
	}

	log := logging.New(flagVerbose)
	if flagLogFile != "" {
		fileLog, closer, err := logging.NewFile(flagVerbose, flagLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			return exitError
		}
		defer closer.Close()
		log = fileLog
	}

	doc, err := loadConfig(workDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	tier := adapter.Tier(flagTier)
	if !tier.Valid() {
		fmt.Fprintf(os.Stderr, "unknown tier %q (want fast or full)\n", flagTier)
		return exitError
	}

	change, err := buildChange(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "change set: %v\n", err)
		return exitError
	}

	adapters, err := adapter.Build(doc.VerifierSpecs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "verifier config: %v\n", err)
		return exitError
	}

	artifactDir := doc.Project.ArtifactDir
	if !filepath.IsAbs(artifactDir) {
		artifactDir = filepath.Join(workDir, artifactDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := engine.New(log).Run(ctx, engine.Request{
		Change:      change,
		Tier:        tier,
		Adapters:    adapters,
		Obligations: doc.AllObligations(),
		GateRules:   doc.Gate,
		WorkDir:     workDir,
		ArtifactDir: artifactDir,
		Journal:     journal.Open(filepath.Join(artifactDir, "journal.ndjson")),
		OldVersion:  oldVersion(),
		NewVersion:  doc.Project.Version,
		MaxParallel: doc.Project.MaxParallel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run aborted: %v\n", err)
		return exitError
	}

	output.PrintReport(os.Stdout, out)
	if flagJSON {
		path, err := output.SaveJSON(artifactDir, out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "save outcome: %v\n", err)
			return exitError
		}
		fmt.Printf("\noutcome written to %s\n", path)
	}

	switch out.Decision.Outcome {
	case obligation.OutcomePass:
		return exitPass
	case obligation.OutcomeFail:
		return exitFail
	default:
		return exitError
	}
}

func loadConfig(workDir string) (*config.Document, error) {
	path := flagConfig
	if path == "" {
		path = filepath.Join(workDir, config.DefaultPath)
	}
	doc, err := config.Load(path)
	if err != nil {
		var cfgErr *config.PolicyConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}
		return nil, err
	}
	return doc, nil
}

func buildChange(workDir string) (*changeset.Change, error) {
	switch {
	case flagDiff != "":
		f, err := os.Open(flagDiff)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return changeset.FromUnifiedDiff(f, workDir, flagBase)
	case flagBase != "":
		return changeset.FromDirs(flagBase, workDir)
	default:
		return nil, errors.New("no change source: pass --diff or --base")
	}
}

// oldVersion resolves the base-side declared version: the explicit flag wins,
// then the base tree's own policy document.
func oldVersion() string {
	if flagOldVersion != "" {
		return flagOldVersion
	}
	if flagBase == "" {
		return ""
	}
	var doc struct {
		Project struct {
			Version string `toml:"version"`
		} `toml:"project"`
	}
	if _, err := toml.DecodeFile(filepath.Join(flagBase, config.DefaultPath), &doc); err != nil {
		return ""
	}
	return doc.Project.Version
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitError)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, verifyCmd, compileCmd)

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Policy document path (default: <path>/proofgate.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().StringVar(&flagTier, "tier", "fast", "Verification tier: fast or full")
	runCmd.Flags().StringVar(&flagDiff, "diff", "", "Unified diff file describing the change")
	runCmd.Flags().StringVar(&flagBase, "base", "", "Base tree to diff the work tree against")
	runCmd.Flags().StringVar(&flagOldVersion, "old-version", "", "Declared version on the base side")
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "Also write the outcome as JSON into the artifact dir")
	runCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Append structured JSON logs to this file instead of stderr")

	rootCmd.Long = `proofgate turns a code change into an auditable gating decision.

It runs the configured verifier adapters (lint, typecheck, coverage, static
analysis, dependency vulnerabilities) over the change, classifies the public
API surface delta, evaluates declared obligations and path-scoped security
gate rules, and seals every piece of evidence under a Merkle root in an
append-only journal.

Example:
  proofgate run . --base /tmp/base --tier full
  proofgate run . --diff change.patch
  proofgate verify .proof
  proofgate compile

Exit codes: 0 gate passed, 1 gate failed, 2 configuration or execution error.`
}
