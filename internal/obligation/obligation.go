// Package obligation maps verifier findings onto a declared obligation set.
package obligation

import (
	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/surface"
)

type Status string

const (
	StatusSatisfied Status = "satisfied"
	StatusViolated  Status = "violated"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

type RuleKind string

const (
	RuleMaxSeverity    RuleKind = "max_severity"
	RuleMinCoverage    RuleKind = "min_coverage"
	RuleMaxAPISeverity RuleKind = "max_api_severity"
	RuleFilesPresent   RuleKind = "files_present"
	RuleVersionBumped  RuleKind = "version_bumped"
	RuleChangelog      RuleKind = "changelog_entry"

	// RuleDeprecationCycle is declared by the ambition compiler but has no
	// evaluator yet. It always resolves to StatusError so a missing
	// capability can never read as a silent pass.
	RuleDeprecationCycle RuleKind = "deprecation_cycle"
)

// Rule is the pass rule attached to an obligation. Exactly the fields
// relevant to Kind are consulted.
type Rule struct {
	Kind RuleKind `toml:"kind" json:"kind" validate:"required"`

	// MaxSeverity is the highest finding severity still allowed (max_severity).
	MaxSeverity report.Severity `toml:"max_severity,omitempty" json:"max_severity,omitempty"`
	// Threshold is a minimum coverage percentage (min_coverage).
	Threshold float64 `toml:"threshold,omitempty" json:"threshold,omitempty" validate:"gte=0,lte=100"`
	// MaxAPISeverity is the highest compatibility impact allowed (max_api_severity).
	MaxAPISeverity surface.Severity `toml:"max_api_severity,omitempty" json:"max_api_severity,omitempty"`
	// Files lists paths that must exist in the work tree (files_present).
	Files []string `toml:"files,omitempty" json:"files,omitempty"`
	// Path names the changelog document (changelog_entry).
	Path string `toml:"path,omitempty" json:"path,omitempty"`
}

// Spec is one declared obligation, immutable for the duration of a run.
type Spec struct {
	ID                string   `toml:"id" json:"id" validate:"required"`
	Description       string   `toml:"description" json:"description"`
	AppliesTo         []string `toml:"applies_to" json:"applies_to"`
	RequiredVerifiers []string `toml:"required_verifiers" json:"required_verifiers"`
	Rule              Rule     `toml:"rule" json:"rule"`
}

// Result is the evaluated status of one obligation. Results are derived,
// recomputed each run, and never mutated once emitted.
type Result struct {
	ObligationID string   `json:"obligation_id"`
	Status       Status   `json:"status"`
	FindingIDs   []string `json:"contributing_finding_ids,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeError Outcome = "error"
)

// Decision is the terminal artifact of one run.
type Decision struct {
	Outcome             Outcome  `json:"outcome"`
	ViolatedObligations []string `json:"violated_obligations,omitempty"`
	Summary             string   `json:"summary"`
}
