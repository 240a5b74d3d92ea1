// Package secgate evaluates security findings against path-based and
// severity-based policy rules.
package secgate

import (
	"fmt"
	"sort"

	"github.com/evidentci/proofgate/internal/pathmatch"
	"github.com/evidentci/proofgate/internal/report"
)

// PathRule allows findings up to a severity ceiling within a path scope.
// A file may be covered by several rules; all of them must pass.
type PathRule struct {
	ID                 string          `toml:"id" json:"id"`
	PathGlob           string          `toml:"path_glob" json:"path_glob" validate:"required"`
	MaxAllowedSeverity report.Severity `toml:"max_allowed_severity" json:"max_allowed_severity" validate:"required"`
	AppliesToVerifiers []string        `toml:"applies_to_verifiers" json:"applies_to_verifiers"`
}

// RuleFailure cites the evidence that tripped one rule, not just a boolean.
type RuleFailure struct {
	Rule       PathRule `json:"rule"`
	FindingIDs []string `json:"offending_finding_ids"`
}

type Verdict struct {
	Pass     bool          `json:"pass"`
	Failures []RuleFailure `json:"failures,omitempty"`
}

// Evaluate checks every finding against every rule. Rules are evaluated
// independently and the verdict is insensitive to rule or finding order:
// failures are reported sorted by rule identity with sorted offender lists.
func Evaluate(findings []report.Finding, rules []PathRule) Verdict {
	verdict := Verdict{Pass: true}

	for _, rule := range rules {
		var offenders []string
		for _, f := range findings {
			if !ruleCovers(rule, f) {
				continue
			}
			if f.Severity.Rank() > rule.MaxAllowedSeverity.Rank() {
				offenders = append(offenders, f.ID())
			}
		}
		if len(offenders) > 0 {
			sort.Strings(offenders)
			verdict.Pass = false
			verdict.Failures = append(verdict.Failures, RuleFailure{Rule: rule, FindingIDs: offenders})
		}
	}

	sort.Slice(verdict.Failures, func(i, j int) bool {
		a, b := verdict.Failures[i].Rule, verdict.Failures[j].Rule
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.PathGlob < b.PathGlob
	})
	return verdict
}

func ruleCovers(rule PathRule, f report.Finding) bool {
	if f.Location.File == "" {
		return false
	}
	if len(rule.AppliesToVerifiers) > 0 {
		found := false
		for _, v := range rule.AppliesToVerifiers {
			if v == f.VerifierID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return pathmatch.Match(rule.PathGlob, f.Location.File)
}

// Summary renders a one-line description of the verdict for reports.
func Summary(v Verdict) string {
	if v.Pass {
		return "security gate: pass"
	}
	total := 0
	for _, f := range v.Failures {
		total += len(f.FindingIDs)
	}
	return fmt.Sprintf("security gate: fail (%d rule(s), %d finding(s))", len(v.Failures), total)
}
