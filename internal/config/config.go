// Package config loads, validates, and compiles proofgate policy documents.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/evidentci/proofgate/internal/adapter"
	"github.com/evidentci/proofgate/internal/obligation"
	"github.com/evidentci/proofgate/internal/secgate"
)

// DefaultPath is where the policy document is looked up relative to the
// target tree.
const DefaultPath = "proofgate.toml"

// PolicyConfigError is a fatal document problem. It is raised before any
// verifier runs so a bad policy can never produce a half-evaluated decision.
type PolicyConfigError struct {
	Path string
	Err  error
}

func (e *PolicyConfigError) Error() string {
	return fmt.Sprintf("policy config %s: %v", e.Path, e.Err)
}

func (e *PolicyConfigError) Unwrap() error { return e.Err }

// Project carries document-wide settings.
type Project struct {
	Name        string `toml:"name" validate:"required"`
	Version     string `toml:"version"`
	ArtifactDir string `toml:"artifact_dir"`
	Changelog   string `toml:"changelog"`
	MaxParallel int    `toml:"max_parallel" validate:"gte=0,lte=64"`
}

// Verifier configures one adapter.
type Verifier struct {
	ID          string   `toml:"id" validate:"required"`
	Tier        string   `toml:"tier" validate:"oneof=fast full"`
	Command     []string `toml:"command"`
	Format      string   `toml:"format" validate:"required"`
	TimeoutSecs int      `toml:"timeout_secs" validate:"gte=0,lte=3600"`
	Retries     int      `toml:"retries" validate:"gte=0,lte=9"`
	Artifact    string   `toml:"artifact"`
	Lockfile    string   `toml:"lockfile"`
}

// Ambition is the high-level policy intent that CompileAmbition lowers into
// concrete obligations.
type Ambition struct {
	MinCoverage        float64  `toml:"min_coverage" validate:"gte=0,lte=100"`
	MaxAPISeverity     string   `toml:"max_api_severity" validate:"omitempty,oneof=patch minor breaking"`
	OSVMaxSeverity     string   `toml:"osv_max_severity" validate:"omitempty,oneof=info low medium high critical"`
	RequireLockfiles   []string `toml:"require_lockfiles"`
	RequireChangelog   bool     `toml:"require_changelog"`
	RequireVersionBump bool     `toml:"require_version_bump"`
	DeprecationCycle   bool     `toml:"deprecation_cycle"`
}

// Document is the full policy for one project.
type Document struct {
	Project     Project            `toml:"project"`
	Verifiers   []Verifier         `toml:"verifier" validate:"dive"`
	Obligations []obligation.Spec  `toml:"obligation"`
	Gate        []secgate.PathRule `toml:"gate" validate:"dive"`
	Ambition    Ambition           `toml:"ambition"`
}

var validate = validator.New()

// Load reads and validates the policy document at path. Any decode or
// validation failure surfaces as a *PolicyConfigError.
func Load(path string) (*Document, error) {
	var doc Document
	md, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return nil, &PolicyConfigError{Path: path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &PolicyConfigError{Path: path,
			Err: fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))}
	}

	doc.applyDefaults()

	if err := validate.Struct(&doc); err != nil {
		return nil, &PolicyConfigError{Path: path, Err: err}
	}
	if err := doc.checkObligations(); err != nil {
		return nil, &PolicyConfigError{Path: path, Err: err}
	}
	return &doc, nil
}

func (d *Document) applyDefaults() {
	if d.Project.ArtifactDir == "" {
		d.Project.ArtifactDir = ".proof"
	}
	if d.Project.Changelog == "" {
		d.Project.Changelog = "CHANGELOG.md"
	}
	if d.Project.MaxParallel == 0 {
		d.Project.MaxParallel = 4
	}
	for i := range d.Verifiers {
		if d.Verifiers[i].Tier == "" {
			d.Verifiers[i].Tier = string(adapter.TierFast)
		}
	}
}

func (d *Document) checkObligations() error {
	seen := make(map[string]bool, len(d.Obligations))
	for _, spec := range d.Obligations {
		if spec.ID == "" {
			return fmt.Errorf("obligation with empty id")
		}
		if seen[spec.ID] {
			return fmt.Errorf("duplicate obligation id %q", spec.ID)
		}
		seen[spec.ID] = true
		if spec.Rule.Kind == "" {
			return fmt.Errorf("obligation %s: missing rule kind", spec.ID)
		}
	}
	return nil
}

// VerifierSpecs maps the configured verifiers onto adapter wiring. The OSV
// cache lives under the artifact directory so evidence and cache travel
// together.
func (d *Document) VerifierSpecs() []adapter.VerifierSpec {
	specs := make([]adapter.VerifierSpec, 0, len(d.Verifiers))
	for _, v := range d.Verifiers {
		spec := adapter.VerifierSpec{
			ID:           v.ID,
			Tier:         adapter.Tier(v.Tier),
			Argv:         v.Command,
			Format:       v.Format,
			TimeoutSecs:  v.TimeoutSecs,
			Retries:      v.Retries,
			ArtifactName: v.Artifact,
			Lockfile:     v.Lockfile,
		}
		if v.Format == "osv" {
			spec.CachePath = d.Project.ArtifactDir + "/cache/osv.jsonl"
		}
		specs = append(specs, spec)
	}
	return specs
}

// AllObligations is the declared obligations plus the ones compiled from the
// ambition section.
func (d *Document) AllObligations() []obligation.Spec {
	return append(CompileAmbition(d.Ambition, d.Project), d.Obligations...)
}
