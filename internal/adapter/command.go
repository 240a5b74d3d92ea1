package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/evidentci/proofgate/internal/journal"
	"github.com/evidentci/proofgate/internal/report"
)

// ParseFunc turns one tool's raw output into findings. It is the only place
// tool-specific format knowledge lives.
type ParseFunc func(verifierID string, output []byte) ([]report.Finding, error)

// CommandAdapter invokes one external tool as a subprocess and normalizes
// exit status and output through a ParseFunc.
type CommandAdapter struct {
	VerifierID   string
	TierTag      Tier
	Argv         []string // "{target}" expands to the work dir
	Timeout      time.Duration
	Parse        ParseFunc
	ArtifactName string
}

func (a *CommandAdapter) ID() string { return a.VerifierID }

func (a *CommandAdapter) Tier() Tier { return a.TierTag }

func (a *CommandAdapter) Run(ctx context.Context, target Target) (Result, error) {
	if len(a.Argv) == 0 {
		return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrToolNotAvailable, Err: errors.New("no command configured")}
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := expandArgv(a.Argv, target.WorkDir)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = target.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitStatus := 0

	if err != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrTimeout,
				Err: fmt.Errorf("after %s: %w", timeout, err)}
		case errors.Is(err, exec.ErrNotFound):
			return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrToolNotAvailable, Err: err}
		default:
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrToolNotAvailable, Err: err}
			}
			// Non-zero exit is the normal way verifiers report findings.
			exitStatus = exitErr.ExitCode()
		}
	}

	result := Result{ExitStatus: exitStatus}
	if a.ArtifactName != "" {
		result.Artifacts = append(result.Artifacts, journal.NewArtifact(a.ArtifactName, stdout.Bytes()))
	}

	findings, parseErr := a.Parse(a.VerifierID, stdout.Bytes())
	switch {
	case parseErr == nil:
		result.Findings = findings
	case exitStatus != 0:
		// The tool failed and said nothing we can read: synthesize evidence
		// of the failure so requiring obligations evaluate as violated.
		result.Findings = []report.Finding{
			FailureFinding(a.VerifierID, exitStatus, firstLine(stderr.Bytes())),
		}
	default:
		return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrMalformedOutput, Err: parseErr}
	}

	return result, nil
}

func expandArgv(argv []string, workDir string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		if a == "{target}" {
			out[i] = workDir
			continue
		}
		out[i] = a
	}
	return out
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
