package report

import "testing"

func TestSeverityAtLeast(t *testing.T) {
	tests := []struct {
		name string
		s    Severity
		min  Severity
		want bool
	}{
		{name: "critical over high", s: SeverityCritical, min: SeverityHigh, want: true},
		{name: "equal", s: SeverityMedium, min: SeverityMedium, want: true},
		{name: "low under medium", s: SeverityLow, min: SeverityMedium, want: false},
		{name: "unknown never passes", s: Severity("weird"), min: SeverityInfo, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.AtLeast(tt.min); got != tt.want {
				t.Errorf("AtLeast(%q, %q) = %v, want %v", tt.s, tt.min, got, tt.want)
			}
		})
	}
}

func TestFindingIDStable(t *testing.T) {
	f := Finding{
		VerifierID: "lint",
		Severity:   SeverityHigh,
		Code:       "E501",
		Message:    "line too long",
		Location:   Location{File: "src/core/api.py", Line: 12},
	}
	if f.ID() != f.ID() {
		t.Fatal("ID is not stable across calls")
	}

	other := f
	other.Location.Line = 13
	if f.ID() == other.ID() {
		t.Error("findings at different locations share an ID")
	}
}

func TestSortFindingsDeterministic(t *testing.T) {
	a := Finding{VerifierID: "lint", Code: "A", Location: Location{File: "a.go", Line: 1}}
	b := Finding{VerifierID: "lint", Code: "B", Location: Location{File: "a.go", Line: 2}}
	c := Finding{VerifierID: "sast", Code: "A", Location: Location{File: "a.go", Line: 1}}

	in1 := []Finding{c, b, a}
	in2 := []Finding{b, a, c}
	SortFindings(in1)
	SortFindings(in2)

	for i := range in1 {
		if in1[i].ID() != in2[i].ID() {
			t.Fatalf("order differs at index %d: %s vs %s", i, in1[i].Code, in2[i].Code)
		}
	}
	if in1[0].Code != "A" || in1[2].VerifierID != "sast" {
		t.Errorf("unexpected order: %+v", in1)
	}
}

func TestApplySeverityOverride(t *testing.T) {
	tests := []struct {
		name string
		in   Finding
		want Severity
	}{
		{
			name: "override to info",
			in:   Finding{Code: "LINT_TODO_COMMENT", Severity: SeverityHigh},
			want: SeverityInfo,
		},
		{
			name: "override to low",
			in:   Finding{Code: "SAST_SECRET_IN_TESTDATA", Severity: SeverityHigh},
			want: SeverityLow,
		},
		{
			name: "no override keeps original",
			in:   Finding{Code: "UNKNOWN_CODE", Severity: SeverityMedium},
			want: SeverityMedium,
		},
		{
			name: "invalid severity normalized high",
			in:   Finding{Code: "UNKNOWN_CODE", Severity: Severity("blocker")},
			want: SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplySeverityOverride(tt.in)
			if got.Severity != tt.want {
				t.Errorf("ApplySeverityOverride(%q) severity = %q, want %q", tt.in.Code, got.Severity, tt.want)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bearer token",
			in:   "request used Bearer abc123def456",
			want: "request used Bearer <redacted>",
		},
		{
			name: "api key assignment",
			in:   "api_key=sk-deadbeef found in config",
			want: "api_key=<redacted> found in config",
		},
		{
			name: "control bytes stripped",
			in:   "bad\x00output\x1bhere",
			want: "badoutputhere",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
