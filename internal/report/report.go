package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric weight of a severity. Unknown severities rank
// below info so a malformed verifier payload can never trip a gate on its own.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Finding is one structured observation emitted by a verifier. Findings are
// immutable after creation and owned by the run that produced them.
type Finding struct {
	VerifierID string          `json:"verifier_id"`
	Severity   Severity        `json:"severity"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Location   Location        `json:"location"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// ID derives a stable identifier from the finding's content so obligation
// results and gate verdicts can cite findings across serialization boundaries.
func (f Finding) ID() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%d|%s",
		f.VerifierID, f.Code, f.Severity, f.Location.File, f.Location.Line, f.Location.Column, f.Message)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SortFindings orders findings deterministically, independent of the order
// the verifiers completed in.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.VerifierID != b.VerifierID {
			return a.VerifierID < b.VerifierID
		}
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
