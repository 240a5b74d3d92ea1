package pathmatch

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*", "anything/at/all.py", true},
		{"**/*", "deep/nested/file.go", true},
		{"src/**", "src/core/api.py", true},
		{"src/**", "tests/api.py", false},
		{"src/**/*.py", "src/api.py", true},
		{"src/**/*.py", "src/core/deep/api.py", true},
		{"src/**/*.py", "src/core/api.go", false},
		{"*.go", "internal/engine/run.go", true},
		{"*.go", "internal/engine/run.py", false},
		{"cmd/*.go", "cmd/root.go", true},
		{"cmd/*.go", "cmd/sub/root.go", false},
		{"**/testdata/**", "pkg/testdata/fixture.json", true},
		{"**/testdata/**", "pkg/data/fixture.json", false},
		{"vendor/**", "vendor/modules.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.path, func(t *testing.T) {
			if got := Match(tt.pattern, tt.path); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"src/**", "pkg/**/*.go"}
	if !MatchAny(patterns, "src/x.py") {
		t.Error("expected src/x.py to match")
	}
	if MatchAny(patterns, "docs/readme.md") {
		t.Error("did not expect docs/readme.md to match")
	}
	if MatchAny(nil, "anything") {
		t.Error("empty pattern list must match nothing")
	}
}
