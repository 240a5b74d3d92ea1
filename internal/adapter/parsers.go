package adapter

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/evidentci/proofgate/internal/report"
)

// ParseLintJSON reads the common lint report shape: a JSON array of
// diagnostics with file/line/column positions.
func ParseLintJSON(verifierID string, output []byte) ([]report.Finding, error) {
	if len(strings.TrimSpace(string(output))) == 0 {
		return nil, nil
	}
	var diags []struct {
		File     string `json:"file"`
		Line     int    `json:"line"`
		Column   int    `json:"column"`
		Code     string `json:"code"`
		Message  string `json:"message"`
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal(output, &diags); err != nil {
		return nil, fmt.Errorf("lint report: %w", err)
	}

	var findings []report.Finding
	for _, d := range diags {
		findings = append(findings, report.Finding{
			VerifierID: verifierID,
			Severity:   normalizeToolSeverity(d.Severity, report.SeverityLow),
			Code:       d.Code,
			Message:    d.Message,
			Location:   report.Location{File: d.File, Line: d.Line, Column: d.Column},
		})
	}
	return findings, nil
}

var typecheckLine = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?:\s*(.+)$`)

// ParseTypecheckText reads line-oriented "file:line[:col]: message" output,
// the de facto contract of type checkers and compilers.
func ParseTypecheckText(verifierID string, output []byte) ([]report.Finding, error) {
	var findings []report.Finding
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := typecheckLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col := 0
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		findings = append(findings, report.Finding{
			VerifierID: verifierID,
			Severity:   report.SeverityHigh,
			Code:       "TYPECHECK_ERROR",
			Message:    m[4],
			Location:   report.Location{File: m[1], Line: lineNo, Column: col},
		})
	}
	return findings, nil
}

// ParseCoverageXML reads a Cobertura-style coverage report and emits a single
// info finding carrying the total percentage, so coverage obligations consume
// the same finding stream as every other rule.
func ParseCoverageXML(verifierID string, output []byte) ([]report.Finding, error) {
	var doc struct {
		XMLName  xml.Name `xml:"coverage"`
		LineRate float64  `xml:"line-rate,attr"`
	}
	if err := xml.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("coverage report: %w", err)
	}
	percent := doc.LineRate * 100

	payload, err := json.Marshal(map[string]float64{"percent": percent})
	if err != nil {
		return nil, err
	}
	return []report.Finding{{
		VerifierID: verifierID,
		Severity:   report.SeverityInfo,
		Code:       report.CodeCoverageTotal,
		Message:    fmt.Sprintf("total line coverage %.1f%%", percent),
		RawPayload: payload,
	}}, nil
}

// ParseSASTJSON reads a static-analysis report: {"findings": [...]}.
func ParseSASTJSON(verifierID string, output []byte) ([]report.Finding, error) {
	if len(strings.TrimSpace(string(output))) == 0 {
		return nil, nil
	}
	var doc struct {
		Findings []struct {
			RuleID   string `json:"rule_id"`
			FilePath string `json:"file_path"`
			Line     int    `json:"line_number"`
			Column   int    `json:"column_number"`
			Severity string `json:"severity"`
			Message  string `json:"message"`
			Snippet  string `json:"code_snippet"`
		} `json:"findings"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("sast report: %w", err)
	}

	var findings []report.Finding
	for _, f := range doc.Findings {
		raw, _ := json.Marshal(map[string]string{"code_snippet": f.Snippet})
		findings = append(findings, report.Finding{
			VerifierID: verifierID,
			Severity:   normalizeToolSeverity(f.Severity, report.SeverityMedium),
			Code:       f.RuleID,
			Message:    f.Message,
			Location:   report.Location{File: f.FilePath, Line: f.Line, Column: f.Column},
			RawPayload: raw,
		})
	}
	return findings, nil
}

// normalizeToolSeverity maps the usual tool vocabularies onto the engine's
// five levels; unknown strings get the tool's fallback.
func normalizeToolSeverity(s string, fallback report.Severity) report.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "information", "note", "style", "convention":
		return report.SeverityInfo
	case "low", "minor", "refactor":
		return report.SeverityLow
	case "medium", "moderate", "warning", "warn":
		return report.SeverityMedium
	case "high", "error", "major":
		return report.SeverityHigh
	case "critical", "blocker", "fatal":
		return report.SeverityCritical
	default:
		return fallback
	}
}
