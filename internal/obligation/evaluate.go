package obligation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/evidentci/proofgate/internal/pathmatch"
	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/surface"
)

// RunInfo carries the per-run facts the evaluator needs beyond the findings
// themselves.
type RunInfo struct {
	// Ran records which verifiers completed successfully this run.
	Ran map[string]bool
	// ChangedFiles is the change set, repo-relative with forward slashes.
	ChangedFiles []string
	// APIAggregate is the aggregate compatibility severity of the API diff,
	// empty when no surface-affecting file changed.
	APIAggregate surface.Severity
	// OldVersion and NewVersion are the declared module versions on either
	// side of the change, when known.
	OldVersion string
	NewVersion string
	// WorkDir is the root of the work tree under verification.
	WorkDir string
}

// Evaluate derives one Result per obligation. It never short-circuits: every
// obligation is evaluated even after the first violation, so the report is
// complete in one pass. Results are ordered by obligation id and depend only
// on the declared obligations and finding content, never on input order.
func Evaluate(specs []Spec, findings []report.Finding, run RunInfo) []Result {
	sorted := make([]report.Finding, len(findings))
	copy(sorted, findings)
	report.SortFindings(sorted)

	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		results = append(results, evaluateOne(spec, sorted, run))
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ObligationID < results[j].ObligationID
	})
	return results
}

func evaluateOne(spec Spec, findings []report.Finding, run RunInfo) Result {
	res := Result{ObligationID: spec.ID}

	if !appliesToChange(spec.AppliesTo, run.ChangedFiles) {
		res.Status = StatusSkipped
		res.Reason = "no changed file in scope"
		return res
	}

	for _, v := range spec.RequiredVerifiers {
		if !run.Ran[v] {
			res.Status = StatusError
			res.Reason = fmt.Sprintf("required verifier %q did not run", v)
			return res
		}
	}

	scoped := scopeFindings(spec, findings)

	switch spec.Rule.Kind {
	case RuleMaxSeverity:
		return evalMaxSeverity(spec, scoped, res)
	case RuleMinCoverage:
		return evalMinCoverage(spec, scoped, res)
	case RuleMaxAPISeverity:
		return evalMaxAPISeverity(spec, run, res)
	case RuleFilesPresent:
		return evalFilesPresent(spec, run, res)
	case RuleVersionBumped:
		return evalVersionBumped(spec, run, res)
	case RuleChangelog:
		return evalChangelog(spec, run, res)
	default:
		res.Status = StatusError
		res.Reason = fmt.Sprintf("pass rule %q is not supported by this engine", spec.Rule.Kind)
		return res
	}
}

// appliesToChange reports whether the obligation's path scope intersects the
// change set. An empty scope or a bare "*" applies to every change.
func appliesToChange(globs []string, changed []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g == "*" {
			return true
		}
	}
	for _, f := range changed {
		if pathmatch.MatchAny(globs, f) {
			return true
		}
	}
	return false
}

// scopeFindings narrows findings to the obligation's verifiers and paths.
// Findings without a file location (tool-level observations) stay in scope.
func scopeFindings(spec Spec, findings []report.Finding) []report.Finding {
	var out []report.Finding
	for _, f := range findings {
		if len(spec.RequiredVerifiers) > 0 && !contains(spec.RequiredVerifiers, f.VerifierID) {
			continue
		}
		if len(spec.AppliesTo) > 0 && f.Location.File != "" && !hasStar(spec.AppliesTo) {
			if !pathmatch.MatchAny(spec.AppliesTo, f.Location.File) {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func evalMaxSeverity(spec Spec, scoped []report.Finding, res Result) Result {
	max := spec.Rule.MaxSeverity
	if !max.Valid() {
		res.Status = StatusError
		res.Reason = fmt.Sprintf("invalid max_severity %q", max)
		return res
	}
	for _, f := range scoped {
		if f.Severity.Rank() > max.Rank() {
			res.FindingIDs = append(res.FindingIDs, f.ID())
		}
	}
	if len(res.FindingIDs) > 0 {
		res.Status = StatusViolated
		res.Reason = fmt.Sprintf("%d finding(s) above %s", len(res.FindingIDs), max)
	} else {
		res.Status = StatusSatisfied
	}
	return res
}

func evalMinCoverage(spec Spec, scoped []report.Finding, res Result) Result {
	for _, f := range scoped {
		if f.Code != report.CodeCoverageTotal {
			continue
		}
		var payload struct {
			Percent float64 `json:"percent"`
		}
		if err := json.Unmarshal(f.RawPayload, &payload); err != nil {
			res.Status = StatusError
			res.Reason = "coverage payload unreadable"
			res.FindingIDs = []string{f.ID()}
			return res
		}
		res.FindingIDs = []string{f.ID()}
		if payload.Percent+1e-9 < spec.Rule.Threshold {
			res.Status = StatusViolated
			res.Reason = fmt.Sprintf("coverage %.1f%% below threshold %.1f%%", payload.Percent, spec.Rule.Threshold)
		} else {
			res.Status = StatusSatisfied
		}
		return res
	}
	// No evidence must never be indistinguishable from passed.
	res.Status = StatusError
	res.Reason = "no coverage evidence produced"
	return res
}

func evalMaxAPISeverity(spec Spec, run RunInfo, res Result) Result {
	if run.APIAggregate == "" {
		res.Status = StatusSatisfied
		res.Reason = "no API surface change"
		return res
	}
	allowed := spec.Rule.MaxAPISeverity
	if allowed == "" {
		allowed = surface.SeverityMinor
	}
	if run.APIAggregate.Rank() > allowed.Rank() {
		res.Status = StatusViolated
		res.Reason = fmt.Sprintf("aggregate API severity %s exceeds %s", run.APIAggregate, allowed)
	} else {
		res.Status = StatusSatisfied
	}
	return res
}

func evalFilesPresent(spec Spec, run RunInfo, res Result) Result {
	var missing []string
	for _, rel := range spec.Rule.Files {
		if _, err := os.Stat(filepath.Join(run.WorkDir, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		res.Status = StatusViolated
		res.Reason = "missing: " + strings.Join(missing, ", ")
	} else {
		res.Status = StatusSatisfied
	}
	return res
}

func evalVersionBumped(spec Spec, run RunInfo, res Result) Result {
	oldV, newV := canonicalVersion(run.OldVersion), canonicalVersion(run.NewVersion)
	if !semver.IsValid(oldV) || !semver.IsValid(newV) {
		res.Status = StatusError
		res.Reason = "module versions unavailable for comparison"
		return res
	}

	switch run.APIAggregate {
	case surface.SeverityBreaking:
		if semver.Major(newV) == semver.Major(oldV) {
			res.Status = StatusViolated
			res.Reason = fmt.Sprintf("breaking API change requires a major bump (%s -> %s)", run.OldVersion, run.NewVersion)
			return res
		}
	case surface.SeverityMinor:
		if semver.Compare(semver.MajorMinor(newV), semver.MajorMinor(oldV)) <= 0 {
			res.Status = StatusViolated
			res.Reason = fmt.Sprintf("minor API change requires at least a minor bump (%s -> %s)", run.OldVersion, run.NewVersion)
			return res
		}
	default:
		if semver.Compare(newV, oldV) < 0 {
			res.Status = StatusViolated
			res.Reason = fmt.Sprintf("version went backwards (%s -> %s)", run.OldVersion, run.NewVersion)
			return res
		}
	}
	res.Status = StatusSatisfied
	return res
}

func evalChangelog(spec Spec, run RunInfo, res Result) Result {
	if run.NewVersion == "" {
		res.Status = StatusError
		res.Reason = "new module version unknown"
		return res
	}
	path := spec.Rule.Path
	if path == "" {
		path = "CHANGELOG.md"
	}
	data, err := os.ReadFile(filepath.Join(run.WorkDir, path))
	if err != nil {
		res.Status = StatusViolated
		res.Reason = fmt.Sprintf("changelog %s not readable", path)
		return res
	}
	marker := "## [" + strings.TrimPrefix(run.NewVersion, "v") + "]"
	if !strings.Contains(string(data), marker) {
		res.Status = StatusViolated
		res.Reason = fmt.Sprintf("no changelog entry for version %s", run.NewVersion)
		return res
	}
	res.Status = StatusSatisfied
	return res
}

func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func hasStar(globs []string) bool {
	for _, g := range globs {
		if g == "*" {
			return true
		}
	}
	return false
}
