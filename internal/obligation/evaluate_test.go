package obligation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/surface"
)

func finding(verifier, code, file string, sev report.Severity) report.Finding {
	return report.Finding{
		VerifierID: verifier,
		Severity:   sev,
		Code:       code,
		Message:    code,
		Location:   report.Location{File: file, Line: 1},
	}
}

func coverageFinding(percent float64) report.Finding {
	payload, _ := json.Marshal(map[string]float64{"percent": percent})
	return report.Finding{
		VerifierID: "coverage",
		Severity:   report.SeverityInfo,
		Code:       report.CodeCoverageTotal,
		Message:    "total line coverage",
		RawPayload: payload,
	}
}

func ranAll() map[string]bool {
	return map[string]bool{"lint": true, "sast": true, "coverage": true, "vuln": true}
}

func TestEvaluateMaxSeverity(t *testing.T) {
	spec := Spec{
		ID:                "OBL-NO-HIGH",
		RequiredVerifiers: []string{"sast"},
		Rule:              Rule{Kind: RuleMaxSeverity, MaxSeverity: report.SeverityMedium},
	}

	tests := []struct {
		name     string
		findings []report.Finding
		want     Status
	}{
		{"clean", nil, StatusSatisfied},
		{"at ceiling", []report.Finding{finding("sast", "A", "src/a.go", report.SeverityMedium)}, StatusSatisfied},
		{"above ceiling", []report.Finding{finding("sast", "A", "src/a.go", report.SeverityHigh)}, StatusViolated},
		{"other verifier ignored", []report.Finding{finding("lint", "A", "src/a.go", report.SeverityCritical)}, StatusSatisfied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := Evaluate([]Spec{spec}, tt.findings, RunInfo{Ran: ranAll(), ChangedFiles: []string{"src/a.go"}})
			if results[0].Status != tt.want {
				t.Errorf("status = %s (%s), want %s", results[0].Status, results[0].Reason, tt.want)
			}
		})
	}
}

func TestEvaluateViolationCitesFindings(t *testing.T) {
	spec := Spec{ID: "OBL-NO-HIGH", Rule: Rule{Kind: RuleMaxSeverity, MaxSeverity: report.SeverityLow}}
	offender := finding("sast", "SAST_SQL_INJECTION", "src/db.go", report.SeverityCritical)

	results := Evaluate([]Spec{spec}, []report.Finding{offender}, RunInfo{ChangedFiles: []string{"src/db.go"}})
	if results[0].Status != StatusViolated {
		t.Fatalf("status = %s", results[0].Status)
	}
	if len(results[0].FindingIDs) != 1 || results[0].FindingIDs[0] != offender.ID() {
		t.Errorf("finding ids = %v, want [%s]", results[0].FindingIDs, offender.ID())
	}
}

func TestEvaluateScopeSkipping(t *testing.T) {
	spec := Spec{
		ID:        "OBL-DOCS-ONLY",
		AppliesTo: []string{"docs/**"},
		Rule:      Rule{Kind: RuleMaxSeverity, MaxSeverity: report.SeverityLow},
	}

	results := Evaluate([]Spec{spec}, nil, RunInfo{ChangedFiles: []string{"src/main.go"}})
	if results[0].Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", results[0].Status)
	}

	results = Evaluate([]Spec{spec}, nil, RunInfo{ChangedFiles: []string{"docs/guide.md"}})
	if results[0].Status != StatusSatisfied {
		t.Errorf("in-scope status = %s, want satisfied", results[0].Status)
	}
}

func TestEvaluateRequiredVerifierMissing(t *testing.T) {
	spec := Spec{
		ID:                "OBL-COVERAGE",
		RequiredVerifiers: []string{"coverage"},
		Rule:              Rule{Kind: RuleMinCoverage, Threshold: 80},
	}

	results := Evaluate([]Spec{spec}, nil, RunInfo{Ran: map[string]bool{"lint": true}, ChangedFiles: []string{"a.go"}})
	if results[0].Status != StatusError {
		t.Errorf("status = %s, want error when the verifier never ran", results[0].Status)
	}
}

func TestEvaluateMinCoverage(t *testing.T) {
	spec := Spec{
		ID:                "OBL-COVERAGE",
		RequiredVerifiers: []string{"coverage"},
		Rule:              Rule{Kind: RuleMinCoverage, Threshold: 80},
	}

	tests := []struct {
		name     string
		findings []report.Finding
		want     Status
	}{
		{"above threshold", []report.Finding{coverageFinding(85.5)}, StatusSatisfied},
		{"at threshold", []report.Finding{coverageFinding(80)}, StatusSatisfied},
		{"below threshold", []report.Finding{coverageFinding(61.2)}, StatusViolated},
		{"no evidence", nil, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := Evaluate([]Spec{spec}, tt.findings, RunInfo{Ran: ranAll(), ChangedFiles: []string{"a.go"}})
			if results[0].Status != tt.want {
				t.Errorf("status = %s (%s), want %s", results[0].Status, results[0].Reason, tt.want)
			}
		})
	}
}

func TestEvaluateMaxAPISeverity(t *testing.T) {
	spec := Spec{ID: "OBL-API", Rule: Rule{Kind: RuleMaxAPISeverity, MaxAPISeverity: surface.SeverityMinor}}

	tests := []struct {
		name      string
		aggregate surface.Severity
		want      Status
	}{
		{"no surface change", "", StatusSatisfied},
		{"patch", surface.SeverityPatch, StatusSatisfied},
		{"minor allowed", surface.SeverityMinor, StatusSatisfied},
		{"breaking rejected", surface.SeverityBreaking, StatusViolated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := Evaluate([]Spec{spec}, nil, RunInfo{ChangedFiles: []string{"a.go"}, APIAggregate: tt.aggregate})
			if results[0].Status != tt.want {
				t.Errorf("status = %s, want %s", results[0].Status, tt.want)
			}
		})
	}
}

func TestEvaluateFilesPresent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.sum"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run := RunInfo{ChangedFiles: []string{"a.go"}, WorkDir: dir}

	present := Spec{ID: "OBL-LOCK", Rule: Rule{Kind: RuleFilesPresent, Files: []string{"go.sum"}}}
	if got := Evaluate([]Spec{present}, nil, run)[0].Status; got != StatusSatisfied {
		t.Errorf("present file: status = %s", got)
	}

	missing := Spec{ID: "OBL-LOCK", Rule: Rule{Kind: RuleFilesPresent, Files: []string{"go.sum", "package-lock.json"}}}
	if got := Evaluate([]Spec{missing}, nil, run)[0].Status; got != StatusViolated {
		t.Errorf("missing file: status = %s", got)
	}
}

func TestEvaluateVersionBumped(t *testing.T) {
	spec := Spec{ID: "OBL-VER", Rule: Rule{Kind: RuleVersionBumped}}

	tests := []struct {
		name      string
		aggregate surface.Severity
		oldV, new string
		want      Status
	}{
		{"breaking with major bump", surface.SeverityBreaking, "v1.4.0", "v2.0.0", StatusSatisfied},
		{"breaking without major bump", surface.SeverityBreaking, "v1.4.0", "v1.5.0", StatusViolated},
		{"minor with minor bump", surface.SeverityMinor, "v1.4.0", "v1.5.0", StatusSatisfied},
		{"minor without bump", surface.SeverityMinor, "v1.4.0", "v1.4.1", StatusViolated},
		{"patch going backwards", surface.SeverityPatch, "v1.4.0", "v1.3.0", StatusViolated},
		{"versions unknown", surface.SeverityBreaking, "", "", StatusError},
		{"bare version accepted", surface.SeverityMinor, "1.4.0", "1.5.0", StatusSatisfied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := RunInfo{ChangedFiles: []string{"a.go"}, APIAggregate: tt.aggregate,
				OldVersion: tt.oldV, NewVersion: tt.new}
			got := Evaluate([]Spec{spec}, nil, run)[0]
			if got.Status != tt.want {
				t.Errorf("status = %s (%s), want %s", got.Status, got.Reason, tt.want)
			}
		})
	}
}

func TestEvaluateChangelogEntry(t *testing.T) {
	dir := t.TempDir()
	changelog := "# Changelog\n\n## [1.5.0] - 2026-08-30\n- added things\n\n## [1.4.0]\n- old\n"
	if err := os.WriteFile(filepath.Join(dir, "CHANGELOG.md"), []byte(changelog), 0o644); err != nil {
		t.Fatal(err)
	}
	spec := Spec{ID: "OBL-CL", Rule: Rule{Kind: RuleChangelog, Path: "CHANGELOG.md"}}

	run := RunInfo{ChangedFiles: []string{"a.go"}, WorkDir: dir, NewVersion: "v1.5.0"}
	if got := Evaluate([]Spec{spec}, nil, run)[0]; got.Status != StatusSatisfied {
		t.Errorf("status = %s (%s)", got.Status, got.Reason)
	}

	run.NewVersion = "v1.6.0"
	if got := Evaluate([]Spec{spec}, nil, run)[0]; got.Status != StatusViolated {
		t.Errorf("missing entry: status = %s", got.Status)
	}
}

func TestEvaluateUnsupportedRuleKind(t *testing.T) {
	spec := Spec{ID: "OBL-DEP", Rule: Rule{Kind: RuleDeprecationCycle}}

	got := Evaluate([]Spec{spec}, nil, RunInfo{ChangedFiles: []string{"a.go"}})[0]
	if got.Status != StatusError {
		t.Errorf("status = %s, want error for a rule this engine cannot evaluate", got.Status)
	}
	if got.Reason == "" {
		t.Error("error result should carry a reason")
	}
}

func TestEvaluateNeverShortCircuits(t *testing.T) {
	specs := []Spec{
		{ID: "OBL-B", Rule: Rule{Kind: RuleMaxSeverity, MaxSeverity: report.SeverityInfo}},
		{ID: "OBL-A", Rule: Rule{Kind: RuleMaxSeverity, MaxSeverity: report.SeverityInfo}},
		{ID: "OBL-C", Rule: Rule{Kind: RuleMaxSeverity, MaxSeverity: report.SeverityCritical}},
	}
	findings := []report.Finding{finding("sast", "X", "a.go", report.SeverityHigh)}

	results := Evaluate(specs, findings, RunInfo{ChangedFiles: []string{"a.go"}})
	if len(results) != 3 {
		t.Fatalf("got %d results, want all 3", len(results))
	}
	for i, want := range []string{"OBL-A", "OBL-B", "OBL-C"} {
		if results[i].ObligationID != want {
			t.Errorf("results[%d] = %s, want %s (sorted by id)", i, results[i].ObligationID, want)
		}
	}
	if results[0].Status != StatusViolated || results[1].Status != StatusViolated {
		t.Error("both strict obligations should be violated")
	}
	if results[2].Status != StatusSatisfied {
		t.Errorf("lenient obligation = %s", results[2].Status)
	}
}
