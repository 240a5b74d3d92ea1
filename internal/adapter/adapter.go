// Package adapter wraps external verifier tools behind a uniform contract
// and normalizes their output into findings.
package adapter

import (
	"context"
	"fmt"

	"github.com/evidentci/proofgate/internal/journal"
	"github.com/evidentci/proofgate/internal/report"
)

// Tier selects how much verification a run pays for.
type Tier string

const (
	TierFast Tier = "fast"
	TierFull Tier = "full"
)

func (t Tier) Valid() bool { return t == TierFast || t == TierFull }

// Target is the subject of one verifier invocation.
type Target struct {
	// WorkDir is the root of the tree under verification.
	WorkDir string
	// ChangedFiles scopes incremental tools; repo-relative forward-slash paths.
	ChangedFiles []string
}

// Result is the normalized outcome of one verifier invocation. Adapters are
// pure with respect to their declared inputs: same target and config, same
// findings.
type Result struct {
	ExitStatus int
	Findings   []report.Finding
	// Artifacts carries the tool's raw output into the evidence bundle.
	Artifacts []journal.EvidenceArtifact
}

type ErrKind string

const (
	ErrToolNotAvailable ErrKind = "tool_not_available"
	ErrTimeout          ErrKind = "timeout"
	ErrMalformedOutput  ErrKind = "malformed_output"
)

// Error is a verifier invocation failure. It degrades the obligations that
// required the verifier to error status; it never crashes the run.
type Error struct {
	Verifier string
	Kind     ErrKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("adapter %s: %s: %v", e.Verifier, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Adapter is the uniform invocation contract for one external check.
type Adapter interface {
	ID() string
	Tier() Tier
	Run(ctx context.Context, target Target) (Result, error)
}

// FailureFinding is the synthetic finding for a tool that exited non-zero
// without any parseable output, so an obligation that requires the verifier
// evaluates as violated rather than silently skipped.
func FailureFinding(verifierID string, exitStatus int, detail string) report.Finding {
	return report.Finding{
		VerifierID: verifierID,
		Severity:   report.SeverityHigh,
		Code:       report.CodeAdapterFailure,
		Message:    fmt.Sprintf("verifier exited with status %d and no parseable output: %s", exitStatus, detail),
	}
}
