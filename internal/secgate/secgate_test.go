package secgate

import (
	"testing"

	"github.com/evidentci/proofgate/internal/report"
)

func finding(verifier string, severity report.Severity, file string) report.Finding {
	return report.Finding{
		VerifierID: verifier,
		Severity:   severity,
		Code:       "X",
		Message:    "m",
		Location:   report.Location{File: file, Line: 1},
	}
}

func TestEvaluate(t *testing.T) {
	srcRule := PathRule{
		ID:                 "no-high-in-src",
		PathGlob:           "src/**",
		MaxAllowedSeverity: report.SeverityLow,
		AppliesToVerifiers: []string{"sast"},
	}

	tests := []struct {
		name     string
		findings []report.Finding
		rules    []PathRule
		wantPass bool
		wantRule int
	}{
		{
			name:     "critical finding in scope fails",
			findings: []report.Finding{finding("sast", report.SeverityCritical, "src/x.py")},
			rules:    []PathRule{srcRule},
			wantPass: false,
			wantRule: 1,
		},
		{
			name:     "low finding within ceiling passes",
			findings: []report.Finding{finding("sast", report.SeverityLow, "src/x.py")},
			rules:    []PathRule{srcRule},
			wantPass: true,
		},
		{
			name:     "out of path scope passes",
			findings: []report.Finding{finding("sast", report.SeverityCritical, "docs/x.md")},
			rules:    []PathRule{srcRule},
			wantPass: true,
		},
		{
			name:     "out of verifier scope passes",
			findings: []report.Finding{finding("lint", report.SeverityCritical, "src/x.py")},
			rules:    []PathRule{srcRule},
			wantPass: true,
		},
		{
			name:     "no rules passes",
			findings: []report.Finding{finding("sast", report.SeverityCritical, "src/x.py")},
			wantPass: true,
		},
		{
			name: "file covered by two rules fails both",
			findings: []report.Finding{
				finding("sast", report.SeverityHigh, "src/auth/token.py"),
			},
			rules: []PathRule{
				srcRule,
				{ID: "auth-lockdown", PathGlob: "src/auth/**", MaxAllowedSeverity: report.SeverityInfo, AppliesToVerifiers: []string{"sast"}},
			},
			wantPass: false,
			wantRule: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.findings, tt.rules)
			if v.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v", v.Pass, tt.wantPass)
			}
			if len(v.Failures) != tt.wantRule {
				t.Errorf("len(Failures) = %d, want %d", len(v.Failures), tt.wantRule)
			}
		})
	}
}

func TestEvaluateOrderInsensitive(t *testing.T) {
	f1 := finding("sast", report.SeverityHigh, "src/a.py")
	f2 := finding("sast", report.SeverityCritical, "src/b.py")
	r1 := PathRule{ID: "r1", PathGlob: "src/**", MaxAllowedSeverity: report.SeverityLow}
	r2 := PathRule{ID: "r2", PathGlob: "src/b*", MaxAllowedSeverity: report.SeverityLow}

	a := Evaluate([]report.Finding{f1, f2}, []PathRule{r1, r2})
	b := Evaluate([]report.Finding{f2, f1}, []PathRule{r2, r1})

	if len(a.Failures) != len(b.Failures) {
		t.Fatalf("failure counts differ: %d vs %d", len(a.Failures), len(b.Failures))
	}
	for i := range a.Failures {
		if a.Failures[i].Rule.ID != b.Failures[i].Rule.ID {
			t.Errorf("rule order differs at %d: %s vs %s", i, a.Failures[i].Rule.ID, b.Failures[i].Rule.ID)
		}
		if len(a.Failures[i].FindingIDs) != len(b.Failures[i].FindingIDs) {
			t.Errorf("offender counts differ for rule %s", a.Failures[i].Rule.ID)
		}
	}
}

func TestRuleIgnoresLocationlessFindings(t *testing.T) {
	rules := []PathRule{{ID: "r", PathGlob: "**/*", MaxAllowedSeverity: report.SeverityInfo}}
	v := Evaluate([]report.Finding{{VerifierID: "coverage", Severity: report.SeverityHigh}}, rules)
	if !v.Pass {
		t.Error("tool-level findings without a file must not trip path rules")
	}
}
