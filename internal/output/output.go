// Package output renders the decided run for humans and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/evidentci/proofgate/internal/engine"
	"github.com/evidentci/proofgate/internal/obligation"
	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/secgate"
	"github.com/evidentci/proofgate/internal/surface"
)

var (
	headerColor   = color.New(color.FgWhite, color.Bold)
	passColor     = color.New(color.FgGreen, color.Bold)
	failColor     = color.New(color.FgRed, color.Bold)
	errColor      = color.New(color.FgYellow, color.Bold)
	violatedColor = color.New(color.FgRed)
	skippedColor  = color.New(color.FgHiBlack)
	breakingColor = color.New(color.FgRed)
	minorColor    = color.New(color.FgYellow)
	dimColor      = color.New(color.FgHiBlack)
)

// PrintReport writes the human-readable run summary: decision, obligation
// table, gate offenders, API delta list, and the evidence fingerprint.
// Color is dropped automatically when w is not a terminal.
func PrintReport(w io.Writer, out *engine.Outcome) {
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}

	fmt.Fprintf(w, "\n%s\n", headerColor.Sprintf("proofgate run %s (%s tier)", shortID(out.RunID), out.Tier))
	fmt.Fprintf(w, "decision: %s\n", decisionLabel(out.Decision.Outcome))
	if out.Decision.Summary != "" {
		fmt.Fprintf(w, "  %s\n", out.Decision.Summary)
	}

	printObligations(w, out.ObligationResults)
	printGate(w, out)
	printDeltas(w, out)
	printFindingCounts(w, out.Findings)

	if out.MerkleRoot != "" {
		fmt.Fprintf(w, "\nevidence root %s\n", dimColor.Sprint(out.MerkleRoot[:16]))
	}
}

func printObligations(w io.Writer, results []obligation.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", headerColor.Sprint("obligations"))
	for _, r := range results {
		label := string(r.Status)
		switch r.Status {
		case obligation.StatusSatisfied:
			label = passColor.Sprint("satisfied")
		case obligation.StatusViolated:
			label = violatedColor.Sprint("violated ")
		case obligation.StatusSkipped:
			label = skippedColor.Sprint("skipped  ")
		case obligation.StatusError:
			label = errColor.Sprint("error    ")
		}
		fmt.Fprintf(w, "  [%s] %s", label, r.ObligationID)
		if r.Reason != "" {
			fmt.Fprintf(w, "  %s", dimColor.Sprint(r.Reason))
		}
		fmt.Fprintln(w)
	}
}

func printGate(w io.Writer, out *engine.Outcome) {
	if out.GateVerdict.Pass {
		return
	}
	fmt.Fprintf(w, "\n%s\n", headerColor.Sprint(secgate.Summary(out.GateVerdict)))
	for _, fail := range out.GateVerdict.Failures {
		fmt.Fprintf(w, "  %s %s (max %s): %d offending finding(s)\n",
			violatedColor.Sprint("FAIL"), fail.Rule.PathGlob,
			fail.Rule.MaxAllowedSeverity, len(fail.FindingIDs))
		offenders := lookupFindings(out.Findings, fail.FindingIDs)
		for _, f := range offenders {
			fmt.Fprintf(w, "    %s %s %s\n", f.Severity, location(f), f.Message)
		}
	}
}

func printDeltas(w io.Writer, out *engine.Outcome) {
	if len(out.Deltas) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s %s\n", headerColor.Sprint("api surface"),
		aggregateLabel(out.APIAggregate))
	for _, d := range out.Deltas {
		line := fmt.Sprintf("  %-8s %-18s %s", d.Severity, d.Change, d.Symbol)
		if d.Detail != "" {
			line += "  " + dimColor.Sprint(d.Detail)
		}
		switch d.Severity {
		case surface.SeverityBreaking:
			line = breakingColor.Sprint(line)
		case surface.SeverityMinor:
			line = minorColor.Sprint(line)
		}
		fmt.Fprintln(w, line)
	}
}

func printFindingCounts(w io.Writer, findings []report.Finding) {
	if len(findings) == 0 {
		return
	}
	counts := report.CountBySeverity(findings)
	order := []report.Severity{
		report.SeverityCritical, report.SeverityHigh, report.SeverityMedium,
		report.SeverityLow, report.SeverityInfo,
	}
	var parts []string
	worst := report.SeverityInfo
	for _, sev := range order {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
			worst = report.MaxSeverity(worst, sev)
		}
	}
	fmt.Fprintf(w, "\n%d finding(s), worst %s: %s\n", len(findings), worst, strings.Join(parts, ", "))
}

func decisionLabel(o obligation.Outcome) string {
	switch o {
	case obligation.OutcomePass:
		return passColor.Sprint("PASS")
	case obligation.OutcomeFail:
		return failColor.Sprint("FAIL")
	default:
		return errColor.Sprint("ERROR")
	}
}

func aggregateLabel(s surface.Severity) string {
	switch s {
	case surface.SeverityBreaking:
		return breakingColor.Sprint("breaking")
	case surface.SeverityMinor:
		return minorColor.Sprint("minor")
	case "":
		return dimColor.Sprint("unchanged")
	default:
		return string(s)
	}
}

func lookupFindings(findings []report.Finding, ids []string) []report.Finding {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []report.Finding
	for _, f := range findings {
		if want[f.ID()] {
			out = append(out, f)
		}
	}
	return out
}

func location(f report.Finding) string {
	if f.Location.File == "" {
		return "-"
	}
	if f.Location.Line > 0 {
		return fmt.Sprintf("%s:%d", f.Location.File, f.Location.Line)
	}
	return f.Location.File
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SaveJSON writes the full outcome record next to the sealed evidence and
// returns the file path.
func SaveJSON(dir string, out *engine.Outcome) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "outcome.json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return "", err
	}
	return path, nil
}
