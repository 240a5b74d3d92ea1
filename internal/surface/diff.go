package surface

import (
	"fmt"
	"sort"

	"github.com/evidentci/proofgate/internal/report"
)

// Diff computes the classified deltas between two snapshots of the same
// module. Given the same snapshots the delta sequence is identical on every
// invocation and independent of symbol declaration order: deltas are sorted
// by symbol name before being returned.
func Diff(old, new *Snapshot) []Delta {
	oldByName := symbolIndex(old)
	newByName := symbolIndex(new)

	var deltas []Delta

	for name, o := range oldByName {
		n, exists := newByName[name]
		if !exists {
			severity := SeverityBreaking
			if o.Visibility == VisibilityPrivate {
				severity = SeverityPatch
			}
			deltas = append(deltas, Delta{Symbol: name, Change: ChangeRemoved, Severity: severity})
			continue
		}
		if d, changed := classifyPair(o, n); changed {
			deltas = append(deltas, d)
		}
	}

	for name, n := range newByName {
		if _, exists := oldByName[name]; exists {
			continue
		}
		severity := SeverityMinor
		if n.Visibility == VisibilityPrivate {
			severity = SeverityPatch
		}
		deltas = append(deltas, Delta{Symbol: name, Change: ChangeAdded, Severity: severity})
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Symbol != deltas[j].Symbol {
			return deltas[i].Symbol < deltas[j].Symbol
		}
		return deltas[i].Change < deltas[j].Change
	})
	return deltas
}

func classifyPair(o, n Symbol) (Delta, bool) {
	if o.Visibility != n.Visibility {
		d := Delta{Symbol: o.Name, Change: ChangeVisibilityChanged}
		if o.Visibility == VisibilityPublic {
			d.Severity = SeverityBreaking
			d.Detail = "public symbol became private"
		} else {
			d.Severity = SeverityMinor
			d.Detail = "private symbol became public"
		}
		return d, true
	}

	if o.SignatureHash == n.SignatureHash {
		return Delta{}, false
	}

	d := Delta{Symbol: o.Name, Change: ChangeSignatureChanged}
	switch {
	case o.Visibility == VisibilityPrivate:
		d.Severity = SeverityPatch
	case isAdditiveOptionalWidening(o, n):
		// The one narrow non-breaking signature change: every existing
		// parameter is untouched and every new one may be omitted.
		d.Severity = SeverityMinor
		d.Detail = "additive optional-parameter widening"
	default:
		d.Severity = SeverityBreaking
	}
	return d, true
}

// isAdditiveOptionalWidening reports whether n extends o's parameter list
// without disturbing it: o's parameters form an identical prefix of n's,
// every appended parameter is optional, and the results are unchanged.
func isAdditiveOptionalWidening(o, n Symbol) bool {
	if len(n.Params) <= len(o.Params) {
		return false
	}
	for i, p := range o.Params {
		q := n.Params[i]
		if p.Name != q.Name || p.Type != q.Type || p.Optional != q.Optional {
			return false
		}
	}
	for _, q := range n.Params[len(o.Params):] {
		if !q.Optional {
			return false
		}
	}
	if len(o.Results) != len(n.Results) {
		return false
	}
	for i := range o.Results {
		if o.Results[i] != n.Results[i] {
			return false
		}
	}
	return true
}

// UnparseableDelta is the conservative classification for a file whose API
// impact is unknown. Unknown must never read as safe.
func UnparseableDelta(path string) Delta {
	return Delta{
		Symbol:   path,
		Change:   ChangeSignatureChanged,
		Severity: SeverityBreaking,
		Detail:   "unparseable",
	}
}

// UnknownBaselineDelta covers a surviving file whose old content is
// unavailable, so the impact of the change cannot be computed. Same rule as
// a parse failure: unknown must never read as safe.
func UnknownBaselineDelta(path string) Delta {
	return Delta{
		Symbol:   path,
		Change:   ChangeSignatureChanged,
		Severity: SeverityBreaking,
		Detail:   "baseline unavailable",
	}
}

// Aggregate reduces a delta set to its maximum severity. An empty set is a
// patch-level change: nothing moved at the surface.
func Aggregate(deltas []Delta) Severity {
	agg := SeverityPatch
	for _, d := range deltas {
		if d.Severity.Rank() > agg.Rank() {
			agg = d.Severity
		}
	}
	return agg
}

// Findings converts deltas into verifier findings so obligations can cite
// API evidence in the same vocabulary as every other check.
func Findings(verifierID string, deltas []Delta) []report.Finding {
	var out []report.Finding
	for _, d := range deltas {
		f := report.Finding{
			VerifierID: verifierID,
			Message:    fmt.Sprintf("%s: %s (%s)", d.Symbol, d.Change, d.Severity),
		}
		switch {
		case d.Detail == "unparseable":
			f.Code = report.CodeUnparseableSource
			f.Severity = report.SeverityHigh
			f.Location = report.Location{File: d.Symbol}
		case d.Severity == SeverityBreaking:
			f.Code = report.CodeAPIBreaking
			f.Severity = report.SeverityHigh
		default:
			f.Code = report.CodeAPIMinor
			f.Severity = report.SeverityInfo
		}
		out = append(out, f)
	}
	return out
}

func symbolIndex(s *Snapshot) map[string]Symbol {
	if s == nil {
		return map[string]Symbol{}
	}
	idx := make(map[string]Symbol, len(s.Symbols))
	for _, sym := range s.Symbols {
		idx[sym.Name] = sym
	}
	return idx
}
