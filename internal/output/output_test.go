package output

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/evidentci/proofgate/internal/engine"
	"github.com/evidentci/proofgate/internal/obligation"
	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/secgate"
	"github.com/evidentci/proofgate/internal/surface"
)

func sampleOutcome() *engine.Outcome {
	return &engine.Outcome{
		RunID:        "0b5a2f1c-8f43-4f1e-9a6e-2f8f0d6a1b2c",
		Tier:         "full",
		Phase:        engine.PhaseDecided,
		GateVerdict:  secgate.Verdict{Pass: true},
		APIAggregate: surface.SeverityBreaking,
		Deltas: []surface.Delta{
			{Symbol: "Fetch", Change: surface.ChangeRemoved, Severity: surface.SeverityBreaking},
		},
		ObligationResults: []obligation.Result{
			{ObligationID: "OBL-API-BREAK", Status: obligation.StatusViolated, Reason: "aggregate impact breaking exceeds minor"},
			{ObligationID: "OBL-COVERAGE-THRESHOLD", Status: obligation.StatusSatisfied},
		},
		Decision: obligation.Decision{
			Outcome:             obligation.OutcomeFail,
			ViolatedObligations: []string{"OBL-API-BREAK"},
			Summary:             "1 obligation(s) violated",
		},
		Findings: []report.Finding{{
			VerifierID: "api-diff", Severity: report.SeverityHigh,
			Code: report.CodeAPIBreaking, Message: "Fetch removed",
		}},
		MerkleRoot: "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
	}
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	PrintReport(&buf, sampleOutcome())
	got := buf.String()

	for _, want := range []string{
		"FAIL",
		"OBL-API-BREAK",
		"aggregate impact breaking exceeds minor",
		"satisfied",
		"Fetch",
		"evidence root ab12cd34ef56ab12",
		"1 finding(s), worst high: 1 high",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "security gate") {
		t.Errorf("gate section printed on a passing verdict:\n%s", got)
	}
}

func TestPrintReportGateFailure(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	out := sampleOutcome()
	out.GateVerdict = secgate.Verdict{
		Pass: false,
		Failures: []secgate.RuleFailure{{
			Rule:       secgate.PathRule{PathGlob: "internal/auth/**", MaxAllowedSeverity: report.SeverityLow},
			FindingIDs: []string{out.Findings[0].ID()},
		}},
	}

	PrintReport(&buf, out)
	got := buf.String()

	for _, want := range []string{
		"security gate: fail (1 rule(s), 1 finding(s))",
		"internal/auth/**",
		"max low",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestPrintReportPassQuiet(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	out := sampleOutcome()
	out.Deltas = nil
	out.APIAggregate = ""
	out.Findings = nil
	out.Decision = obligation.Decision{Outcome: obligation.OutcomePass, Summary: "all 2 obligations satisfied"}

	PrintReport(&buf, out)
	got := buf.String()
	if !strings.Contains(got, "PASS") {
		t.Errorf("missing PASS:\n%s", got)
	}
	if strings.Contains(got, "api surface") {
		t.Errorf("delta section printed with no deltas:\n%s", got)
	}
}

func TestSaveJSON(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveJSON(dir, sampleOutcome())
	if err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded engine.Outcome
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("outcome.json: %v", err)
	}
	if decoded.RunID != "0b5a2f1c-8f43-4f1e-9a6e-2f8f0d6a1b2c" {
		t.Errorf("run id = %q", decoded.RunID)
	}
	if decoded.Decision.Outcome != obligation.OutcomeFail {
		t.Errorf("outcome = %s", decoded.Decision.Outcome)
	}
}
