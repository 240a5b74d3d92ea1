package report

// severityOverrides downgrades codes that individual tools chronically
// over-report. The evidence bundle keeps the original payload; only the
// gating weight changes.
var severityOverrides = map[string]Severity{
	// Style-tier lint codes that some linters report as errors.
	"LINT_TODO_COMMENT":    SeverityInfo,
	"LINT_LINE_TOO_LONG":   SeverityInfo,
	"LINT_UNSORTED_IMPORT": SeverityInfo,

	// Test files tripping the hardcoded-secret pattern are the single
	// largest false-positive source in the SAST corpus.
	"SAST_SECRET_IN_TESTDATA": SeverityLow,

	// Informational vulnerability advisories without a fix version.
	"VULN_NO_FIX_AVAILABLE": SeverityLow,
}

// ApplySeverityOverride normalizes a finding's severity against the
// project-wide policy table. Unknown codes pass through unchanged.
func ApplySeverityOverride(f Finding) Finding {
	if s, ok := severityOverrides[f.Code]; ok {
		f.Severity = s
	}
	if !f.Severity.Valid() {
		// A verifier emitted a severity outside the contract; treat it
		// conservatively rather than letting it rank below info.
		f.Severity = SeverityHigh
	}
	return f
}
