package config

import (
	"encoding/json"
	"os"

	"github.com/evidentci/proofgate/internal/obligation"
	"github.com/evidentci/proofgate/internal/report"
	"github.com/evidentci/proofgate/internal/surface"
)

// CompileAmbition lowers the ambition section into concrete obligation specs.
// Compilation is pure and deterministic: the same ambition always yields the
// same specs in the same order, so the lock file diff stays readable.
func CompileAmbition(a Ambition, proj Project) []obligation.Spec {
	var specs []obligation.Spec

	if a.MaxAPISeverity != "" {
		specs = append(specs, obligation.Spec{
			ID:          "OBL-API-BREAK",
			Description: "public API compatibility impact stays within policy",
			Rule: obligation.Rule{
				Kind:           obligation.RuleMaxAPISeverity,
				MaxAPISeverity: surface.Severity(a.MaxAPISeverity),
			},
		})
	}

	if a.MinCoverage > 0 {
		specs = append(specs, obligation.Spec{
			ID:                "OBL-COVERAGE-THRESHOLD",
			Description:       "total line coverage meets the declared floor",
			RequiredVerifiers: []string{"coverage"},
			Rule: obligation.Rule{
				Kind:      obligation.RuleMinCoverage,
				Threshold: a.MinCoverage,
			},
		})
	}

	if a.OSVMaxSeverity != "" {
		specs = append(specs, obligation.Spec{
			ID:                "OBL-OSV-GATE",
			Description:       "no known dependency vulnerability above the allowed severity",
			RequiredVerifiers: []string{"vuln"},
			Rule: obligation.Rule{
				Kind:        obligation.RuleMaxSeverity,
				MaxSeverity: report.Severity(a.OSVMaxSeverity),
			},
		})
	}

	if len(a.RequireLockfiles) > 0 {
		specs = append(specs, obligation.Spec{
			ID:          "OBL-LOCKFILES-PRESENT",
			Description: "dependency lockfiles exist in the work tree",
			Rule: obligation.Rule{
				Kind:  obligation.RuleFilesPresent,
				Files: a.RequireLockfiles,
			},
		})
	}

	if a.RequireVersionBump {
		specs = append(specs, obligation.Spec{
			ID:          "OBL-VERSION-BUMP",
			Description: "declared version is bumped at least as far as the API delta requires",
			Rule:        obligation.Rule{Kind: obligation.RuleVersionBumped},
		})
	}

	if a.RequireChangelog {
		specs = append(specs, obligation.Spec{
			ID:          "OBL-CHANGELOG-ENTRY",
			Description: "changelog carries an entry for the new version",
			Rule: obligation.Rule{
				Kind: obligation.RuleChangelog,
				Path: proj.Changelog,
			},
		})
	}

	// The evaluator has no deprecation-cycle capability. Compiling the
	// obligation anyway makes the gap visible as an error status instead of
	// silently dropping declared policy.
	if a.DeprecationCycle {
		specs = append(specs, obligation.Spec{
			ID:          "OBL-DEPRECATION-CYCLE",
			Description: "removed public symbols went through a deprecation cycle",
			Rule:        obligation.Rule{Kind: obligation.RuleDeprecationCycle},
		})
	}

	return specs
}

// SaveObligationsLock writes the compiled obligation set as pretty JSON so
// the lock file reviews like source.
func SaveObligationsLock(path string, specs []obligation.Spec) error {
	data, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

