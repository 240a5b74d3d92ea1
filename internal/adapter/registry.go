package adapter

import (
	"fmt"
	"time"
)

// VerifierSpec is the wiring description for one configured verifier.
// It deliberately carries plain values so the policy loader can populate it
// without this package depending on the config format.
type VerifierSpec struct {
	ID           string
	Tier         Tier
	Argv         []string
	Format       string
	TimeoutSecs  int
	Retries      int
	ArtifactName string
	// Lockfile and CachePath apply to the builtin osv format only.
	Lockfile  string
	CachePath string
}

// parsersByFormat maps the output formats the engine understands to their
// parse functions. The osv format is handled separately because it is a
// builtin adapter rather than a subprocess.
var parsersByFormat = map[string]ParseFunc{
	"lint_json":      ParseLintJSON,
	"typecheck_text": ParseTypecheckText,
	"coverage_xml":   ParseCoverageXML,
	"sast_json":      ParseSASTJSON,
}

// Build turns verifier specs into runnable adapters. Specs with retries above
// one are wrapped so flaky tools settle on a majority result.
func Build(specs []VerifierSpec) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(specs))
	for _, spec := range specs {
		a, err := buildOne(spec)
		if err != nil {
			return nil, err
		}
		if spec.Retries > 1 {
			a = &Retrying{Inner: a, Attempts: spec.Retries}
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func buildOne(spec VerifierSpec) (Adapter, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("verifier with empty id")
	}
	if !spec.Tier.Valid() {
		return nil, fmt.Errorf("verifier %s: unknown tier %q", spec.ID, spec.Tier)
	}

	if spec.Format == "osv" {
		return &VulnAdapter{
			VerifierID: spec.ID,
			TierTag:    spec.Tier,
			Lockfile:   spec.Lockfile,
			CachePath:  spec.CachePath,
			Retries:    spec.Retries,
		}, nil
	}

	parse, ok := parsersByFormat[spec.Format]
	if !ok {
		return nil, fmt.Errorf("verifier %s: unknown output format %q", spec.ID, spec.Format)
	}
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("verifier %s: no command configured", spec.ID)
	}

	cmd := &CommandAdapter{
		VerifierID:   spec.ID,
		TierTag:      spec.Tier,
		Argv:         spec.Argv,
		Parse:        parse,
		ArtifactName: spec.ArtifactName,
	}
	if spec.TimeoutSecs > 0 {
		cmd.Timeout = time.Duration(spec.TimeoutSecs) * time.Second
	}
	return cmd, nil
}

// ForTier selects the adapters that run in the given tier. The full tier is a
// superset of the fast tier.
func ForTier(adapters []Adapter, tier Tier) []Adapter {
	selected := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if tier == TierFull || a.Tier() == TierFast {
			selected = append(selected, a)
		}
	}
	return selected
}
