package adapter

import (
	"testing"
)

func TestBuildWiring(t *testing.T) {
	specs := []VerifierSpec{
		{ID: "lint", Tier: TierFast, Argv: []string{"linter", "--json", "{target}"}, Format: "lint_json"},
		{ID: "vuln", Tier: TierFull, Format: "osv"},
		{ID: "flaky", Tier: TierFull, Argv: []string{"fuzz"}, Format: "sast_json", Retries: 3},
	}

	adapters, err := Build(specs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(adapters) != 3 {
		t.Fatalf("got %d adapters, want 3", len(adapters))
	}
	if _, ok := adapters[0].(*CommandAdapter); !ok {
		t.Errorf("lint built as %T, want *CommandAdapter", adapters[0])
	}
	if _, ok := adapters[1].(*VulnAdapter); !ok {
		t.Errorf("vuln built as %T, want *VulnAdapter", adapters[1])
	}
	retrying, ok := adapters[2].(*Retrying)
	if !ok {
		t.Fatalf("flaky built as %T, want *Retrying", adapters[2])
	}
	if retrying.Attempts != 3 {
		t.Errorf("retry attempts = %d, want 3", retrying.Attempts)
	}
	if retrying.ID() != "flaky" {
		t.Errorf("wrapped ID = %q", retrying.ID())
	}
}

func TestBuildRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec VerifierSpec
	}{
		{"empty id", VerifierSpec{Tier: TierFast, Argv: []string{"x"}, Format: "lint_json"}},
		{"bad tier", VerifierSpec{ID: "a", Tier: "turbo", Argv: []string{"x"}, Format: "lint_json"}},
		{"unknown format", VerifierSpec{ID: "a", Tier: TierFast, Argv: []string{"x"}, Format: "csv"}},
		{"no command", VerifierSpec{ID: "a", Tier: TierFast, Format: "lint_json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build([]VerifierSpec{tt.spec}); err == nil {
				t.Error("want error")
			}
		})
	}
}

func TestForTier(t *testing.T) {
	adapters, err := Build([]VerifierSpec{
		{ID: "lint", Tier: TierFast, Argv: []string{"x"}, Format: "lint_json"},
		{ID: "vuln", Tier: TierFull, Format: "osv"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fast := ForTier(adapters, TierFast)
	if len(fast) != 1 || fast[0].ID() != "lint" {
		t.Errorf("fast tier = %v, want just lint", ids(fast))
	}
	full := ForTier(adapters, TierFull)
	if len(full) != 2 {
		t.Errorf("full tier = %v, want both", ids(full))
	}
}

func ids(adapters []Adapter) []string {
	out := make([]string, len(adapters))
	for i, a := range adapters {
		out[i] = a.ID()
	}
	return out
}
