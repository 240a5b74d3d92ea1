// Package engine orchestrates one gating run: it fans verifiers out over the
// change set, evaluates policy, and seals the evidence.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evidentci/proofgate/internal/adapter"
	"github.com/evidentci/proofgate/internal/changeset"
	"github.com/evidentci/proofgate/internal/journal"
	"github.com/evidentci/proofgate/internal/obligation"
	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/secgate"
	"github.com/evidentci/proofgate/internal/surface"
)

// Phase tracks how far a run got. Transitions are strictly forward.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseEvaluating Phase = "evaluating"
	PhaseSealing    Phase = "sealing"
	PhaseDecided    Phase = "decided"
)

// APIDiffVerifierID names the builtin API surface classifier in finding
// streams and obligation scopes.
const APIDiffVerifierID = "api-diff"

// Request is everything one run needs. The engine never reaches outside it.
type Request struct {
	Change      *changeset.Change
	Tier        adapter.Tier
	Adapters    []adapter.Adapter
	Obligations []obligation.Spec
	GateRules   []secgate.PathRule

	WorkDir     string
	ArtifactDir string
	Journal     *journal.Journal

	// OldVersion and NewVersion feed the version-bump obligation when known.
	OldVersion string
	NewVersion string

	// MaxParallel bounds concurrent adapter invocations; zero means 4.
	MaxParallel int
}

// Outcome is the full record of one decided run.
type Outcome struct {
	RunID             string              `json:"run_id"`
	Phase             Phase               `json:"phase"`
	Tier              adapter.Tier        `json:"tier"`
	StartedAt         time.Time           `json:"started_at"`
	Findings          []report.Finding    `json:"findings"`
	AdapterErrors     map[string]string   `json:"adapter_errors,omitempty"`
	Deltas            []surface.Delta     `json:"api_deltas,omitempty"`
	APIAggregate      surface.Severity    `json:"api_aggregate,omitempty"`
	GateVerdict       secgate.Verdict     `json:"gate_verdict"`
	ObligationResults []obligation.Result `json:"obligation_results"`
	Decision          obligation.Decision `json:"decision"`
	MerkleRoot        string              `json:"merkle_root,omitempty"`
}

type Engine struct {
	Log *slog.Logger
}

func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Log: log}
}

// Run executes one full gating run. A cancelled run returns the context error
// and seals nothing; every other path produces a decided outcome, journaled.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{
		RunID:     uuid.NewString(),
		Tier:      req.Tier,
		StartedAt: time.Now().UTC(),
		Phase:     PhaseCollecting,
	}
	e.Log.Info("run started", "run_id", out.RunID, "tier", req.Tier,
		"changed_files", len(req.Change.Files))

	findings, rawArtifacts, adapterErrs, err := e.collect(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Findings = findings
	out.AdapterErrors = adapterErrs

	out.Phase = PhaseEvaluating
	e.evaluate(req, out)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out.Phase = PhaseSealing
	e.decide(req, out)
	if err := e.seal(req, out, rawArtifacts); err != nil {
		// The decision cannot claim pass when its evidence never landed.
		out.Decision = obligation.Decision{
			Outcome: obligation.OutcomeError,
			Summary: fmt.Sprintf("evidence sealing failed: %v", err),
		}
	}

	out.Phase = PhaseDecided
	e.Log.Info("run decided", "run_id", out.RunID, "outcome", out.Decision.Outcome,
		"findings", len(out.Findings))
	return out, nil
}

// collect runs every adapter for the tier over a bounded pool. Adapter
// failures are captured per verifier; they degrade obligations but never
// abort the run. Context cancellation does abort. The returned artifacts are
// exactly the raw outputs this run produced; stale files in the artifact dir
// never enter the evidence set.
func (e *Engine) collect(ctx context.Context, req Request) ([]report.Finding, []journal.EvidenceArtifact, map[string]string, error) {
	target := adapter.Target{WorkDir: req.WorkDir, ChangedFiles: req.Change.Paths()}
	adapters := adapter.ForTier(req.Adapters, req.Tier)

	limit := req.MaxParallel
	if limit <= 0 {
		limit = 4
	}

	var mu sync.Mutex
	var findings []report.Finding
	artifacts := make(map[string][]journal.EvidenceArtifact)
	adapterErrs := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			res, err := a.Run(gctx, target)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.Log.Warn("verifier failed", "verifier", a.ID(), "err", err)
				mu.Lock()
				adapterErrs[a.ID()] = err.Error()
				mu.Unlock()
				return nil
			}
			e.Log.Debug("verifier done", "verifier", a.ID(),
				"findings", len(res.Findings), "elapsed", time.Since(started))
			mu.Lock()
			findings = append(findings, normalize(res.Findings)...)
			artifacts[a.ID()] = res.Artifacts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	// Raw tool outputs go straight into the evidence bundle, in a stable
	// verifier order so the bundle is reproducible.
	var raw []journal.EvidenceArtifact
	verifiers := make([]string, 0, len(artifacts))
	for id := range artifacts {
		verifiers = append(verifiers, id)
	}
	sort.Strings(verifiers)
	for _, id := range verifiers {
		for _, a := range artifacts[id] {
			raw = append(raw, a)
			if err := e.writeArtifactFile(req, a.Name, a.Bytes); err != nil {
				e.Log.Warn("raw artifact not saved", "verifier", id, "name", a.Name, "err", err)
			}
		}
	}

	report.SortFindings(findings)
	return findings, raw, adapterErrs, nil
}

func normalize(findings []report.Finding) []report.Finding {
	out := make([]report.Finding, 0, len(findings))
	for _, f := range findings {
		out = append(out, report.SanitizeFinding(report.ApplySeverityOverride(f)))
	}
	return out
}

// evaluate runs the API surface diff, the security gate, and the obligation
// evaluator over the collected findings.
func (e *Engine) evaluate(req Request, out *Outcome) {
	deltas := e.apiDiff(req, req.Change)
	out.Deltas = deltas
	if len(deltas) > 0 || hasSurfaceChange(req.Change) {
		out.APIAggregate = surface.Aggregate(deltas)
	}
	out.Findings = append(out.Findings, surface.Findings(APIDiffVerifierID, deltas)...)
	report.SortFindings(out.Findings)

	out.GateVerdict = secgate.Evaluate(out.Findings, req.GateRules)

	ran := make(map[string]bool, len(req.Adapters))
	for _, a := range adapter.ForTier(req.Adapters, req.Tier) {
		if _, failed := out.AdapterErrors[a.ID()]; !failed {
			ran[a.ID()] = true
		}
	}
	ran[APIDiffVerifierID] = true

	out.ObligationResults = obligation.Evaluate(req.Obligations, out.Findings, obligation.RunInfo{
		Ran:          ran,
		ChangedFiles: req.Change.Paths(),
		APIAggregate: out.APIAggregate,
		OldVersion:   req.OldVersion,
		NewVersion:   req.NewVersion,
		WorkDir:      req.WorkDir,
	})
}

// apiDiff snapshots both sides of every changed Go source file and classifies
// the symbol-level differences. Unparseable sources become a breaking delta
// rather than a crash.
func (e *Engine) apiDiff(req Request, change *changeset.Change) []surface.Delta {
	cacheDir := ""
	if req.ArtifactDir != "" {
		cacheDir = filepath.Join(req.ArtifactDir, "cache", "ast")
	}
	cache := surface.NewCache(cacheDir)
	var deltas []surface.Delta

	for _, fc := range change.Files {
		if !isSurfaceFile(fc.Path) {
			continue
		}
		// A file that existed before the change but whose base content is
		// unavailable (diff-mode run without a base tree) cannot be diffed:
		// any surviving symbol would read as freshly added. Classify it
		// breaking instead of guessing.
		if fc.OldContent == nil && fc.Kind != changeset.KindAdded {
			deltas = append(deltas, surface.UnknownBaselineDelta(fc.Path))
			continue
		}
		oldSnap, err := snapshotSide(cache, fc.Path, fc.OldContent)
		if err != nil {
			deltas = append(deltas, surface.UnparseableDelta(fc.Path))
			continue
		}
		newSnap, err := snapshotSide(cache, fc.Path, fc.NewContent)
		if err != nil {
			deltas = append(deltas, surface.UnparseableDelta(fc.Path))
			continue
		}
		deltas = append(deltas, surface.Diff(oldSnap, newSnap)...)
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Symbol < deltas[j].Symbol })
	return deltas
}

func snapshotSide(cache *surface.Cache, path string, content []byte) (*surface.Snapshot, error) {
	if content == nil {
		return nil, nil
	}
	return cache.GetOrBuild(path, content)
}

func isSurfaceFile(path string) bool {
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}

func hasSurfaceChange(change *changeset.Change) bool {
	for _, fc := range change.Files {
		if isSurfaceFile(fc.Path) {
			return true
		}
	}
	return false
}

// decide synthesizes the terminal decision from the evaluated evidence.
// A required verifier that errored or timed out fails the gate like a
// violation would; the error outcome is reserved for faults in evaluation
// itself (missing rule capabilities, unreadable evidence, sealing failures).
func (e *Engine) decide(req Request, out *Outcome) {
	requires := make(map[string][]string, len(req.Obligations))
	for _, spec := range req.Obligations {
		requires[spec.ID] = spec.RequiredVerifiers
	}

	var violated, degraded []string
	erred := false
	for _, r := range out.ObligationResults {
		switch r.Status {
		case obligation.StatusViolated:
			violated = append(violated, r.ObligationID)
		case obligation.StatusError:
			if adapterCaused(requires[r.ObligationID], out.AdapterErrors) {
				degraded = append(degraded, r.ObligationID)
			} else {
				erred = true
			}
		}
	}
	sort.Strings(violated)
	sort.Strings(degraded)

	decision := obligation.Decision{ViolatedObligations: violated}
	switch {
	case erred:
		decision.Outcome = obligation.OutcomeError
		decision.Summary = "one or more obligations could not be evaluated"
	case len(violated) > 0 || len(degraded) > 0 || !out.GateVerdict.Pass:
		decision.Outcome = obligation.OutcomeFail
		decision.Summary = failSummary(violated, degraded, out.GateVerdict)
	default:
		decision.Outcome = obligation.OutcomePass
		decision.Summary = fmt.Sprintf("all %d obligations satisfied", len(out.ObligationResults))
	}
	out.Decision = decision
}

func adapterCaused(requiredVerifiers []string, adapterErrs map[string]string) bool {
	for _, v := range requiredVerifiers {
		if _, failed := adapterErrs[v]; failed {
			return true
		}
	}
	return false
}

func failSummary(violated, degraded []string, verdict secgate.Verdict) string {
	var parts []string
	if len(violated) > 0 {
		parts = append(parts, fmt.Sprintf("%d obligation(s) violated", len(violated)))
	}
	if len(degraded) > 0 {
		parts = append(parts, fmt.Sprintf("%d obligation(s) unmet because a required verifier failed", len(degraded)))
	}
	if !verdict.Pass {
		parts = append(parts, fmt.Sprintf("%d gate rule(s) failed", len(verdict.Failures)))
	}
	return strings.Join(parts, "; ")
}

// seal serializes the run's evidence into the artifact directory, computes
// the Merkle root over the bundle, and appends the journal entry. The bundle
// holds exactly what this run produced: derived evidence plus the raw
// artifacts handed over from collection.
func (e *Engine) seal(req Request, out *Outcome, raw []journal.EvidenceArtifact) error {
	artifacts, err := e.writeEvidence(req, out)
	if err != nil {
		return err
	}
	artifacts = append(artifacts, raw...)

	root, err := journal.MerkleRoot(artifacts)
	if err != nil {
		return err
	}
	out.MerkleRoot = root

	if err := e.writeMerkleManifest(req, out, artifacts); err != nil {
		return err
	}

	if req.Journal == nil {
		return nil
	}
	return req.Journal.Append(journal.Entry{
		RunID:             out.RunID,
		Timestamp:         out.StartedAt,
		MerkleRoot:        root,
		ObligationResults: out.ObligationResults,
		Decision:          out.Decision,
	})
}

func (e *Engine) writeEvidence(req Request, out *Outcome) ([]journal.EvidenceArtifact, error) {
	var artifacts []journal.EvidenceArtifact

	add := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		artifacts = append(artifacts, journal.NewArtifact(name, data))
		return e.writeArtifactFile(req, name, data)
	}

	if err := add("findings.json", out.Findings); err != nil {
		return nil, err
	}
	if err := add("api_diff.json", map[string]any{
		"aggregate": out.APIAggregate,
		"deltas":    out.Deltas,
	}); err != nil {
		return nil, err
	}
	if err := add("gate.json", out.GateVerdict); err != nil {
		return nil, err
	}
	if err := add("obligations.json", out.ObligationResults); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (e *Engine) writeArtifactFile(req Request, name string, data []byte) error {
	if req.ArtifactDir == "" {
		return nil
	}
	if err := os.MkdirAll(req.ArtifactDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(req.ArtifactDir, name), data, 0o644)
}

// writeMerkleManifest records the root and the per-artifact leaves so a later
// verify can recompute the tree without the journal.
func (e *Engine) writeMerkleManifest(req Request, out *Outcome, artifacts []journal.EvidenceArtifact) error {
	if req.ArtifactDir == "" {
		return nil
	}
	leaves := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		leaves[a.Name] = a.ContentHash
	}
	manifest := map[string]any{
		"run_id": out.RunID,
		"root":   out.MerkleRoot,
		"leaves": leaves,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return e.writeArtifactFile(req, "merkle.json", data)
}
