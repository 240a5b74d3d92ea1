package adapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/evidentci/proofgate/internal/journal"
	"github.com/evidentci/proofgate/internal/report"
	versionpkg "github.com/evidentci/proofgate/internal/version"
)

const defaultOSVEndpoint = "https://api.osv.dev/v1/query"

// VulnAdapter checks the module's declared dependencies against the OSV
// vulnerability database. It is the one adapter with network access; results
// are cached append-only per package@version so re-runs stay cheap and a
// sealed evidence bundle can be reproduced offline.
type VulnAdapter struct {
	VerifierID string
	TierTag    Tier
	// Lockfile is the dependency manifest, relative to the work dir.
	Lockfile string
	// CachePath is the JSONL response cache; empty disables caching.
	CachePath string
	Endpoint  string
	Client    *http.Client
	// Retries bounds transient-failure retries per package query.
	Retries int
}

func (a *VulnAdapter) ID() string { return a.VerifierID }

func (a *VulnAdapter) Tier() Tier { return a.TierTag }

type osvQuery struct {
	Version string `json:"version"`
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
}

type osvVuln struct {
	ID               string `json:"id"`
	Summary          string `json:"summary"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

type osvResponse struct {
	Vulns []osvVuln `json:"vulns"`
}

func (a *VulnAdapter) Run(ctx context.Context, target Target) (Result, error) {
	lockfile := a.Lockfile
	if lockfile == "" {
		lockfile = "go.mod"
	}
	data, err := os.ReadFile(filepath.Join(target.WorkDir, lockfile))
	if err != nil {
		return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrToolNotAvailable,
			Err: fmt.Errorf("lockfile %s: %w", lockfile, err)}
	}
	mf, err := modfile.Parse(lockfile, data, nil)
	if err != nil {
		return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrMalformedOutput, Err: err}
	}

	var findings []report.Finding
	raw := make(map[string][]osvVuln)

	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		vulns, err := a.query(ctx, req.Mod.Path, req.Mod.Version)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrTimeout, Err: ctx.Err()}
			}
			// One unreachable package must not hide the others; record the
			// degradation as evidence instead of failing the adapter.
			findings = append(findings, report.Finding{
				VerifierID: a.VerifierID,
				Severity:   report.SeverityLow,
				Code:       "VULN_QUERY_FAILED",
				Message:    fmt.Sprintf("%s@%s: %v", req.Mod.Path, req.Mod.Version, err),
				Location:   report.Location{File: lockfile},
			})
			continue
		}
		if len(vulns) > 0 {
			raw[req.Mod.Path+"@"+req.Mod.Version] = vulns
		}
		for _, v := range vulns {
			findings = append(findings, report.Finding{
				VerifierID: a.VerifierID,
				Severity:   normalizeToolSeverity(v.DatabaseSpecific.Severity, report.SeverityMedium),
				Code:       v.ID,
				Message:    fmt.Sprintf("%s@%s: %s", req.Mod.Path, req.Mod.Version, v.Summary),
				Location:   report.Location{File: lockfile},
			})
		}
	}

	artifact, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return Result{}, &Error{Verifier: a.VerifierID, Kind: ErrMalformedOutput, Err: err}
	}

	return Result{
		Findings:  findings,
		Artifacts: []journal.EvidenceArtifact{journal.NewArtifact("vulns.json", artifact)},
	}, nil
}

func (a *VulnAdapter) query(ctx context.Context, pkg, version string) ([]osvVuln, error) {
	key := cacheKey(pkg, version)
	if cached, ok := a.loadCache(key); ok {
		return cached, nil
	}

	endpoint := a.Endpoint
	if endpoint == "" {
		endpoint = defaultOSVEndpoint
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	retries := a.Retries
	if retries < 1 {
		retries = 3
	}

	var q osvQuery
	q.Version = version
	q.Package.Name = pkg
	q.Package.Ecosystem = "Go"
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 250 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", versionpkg.UserAgent())

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("osv: unexpected status %d", resp.StatusCode)
			continue
		}

		var parsed osvResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		a.saveCache(key, parsed.Vulns)
		return parsed.Vulns, nil
	}
	return nil, lastErr
}

type vulnCacheEntry struct {
	Key       string    `json:"cache_key"`
	Timestamp int64     `json:"timestamp"`
	Vulns     []osvVuln `json:"vulns"`
}

func (a *VulnAdapter) loadCache(key string) ([]osvVuln, bool) {
	if a.CachePath == "" {
		return nil, false
	}
	data, err := os.ReadFile(a.CachePath)
	if err != nil {
		return nil, false
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var entry vulnCacheEntry
		if json.Unmarshal(line, &entry) != nil {
			continue
		}
		if entry.Key == key {
			return entry.Vulns, true
		}
	}
	return nil, false
}

func (a *VulnAdapter) saveCache(key string, vulns []osvVuln) {
	if a.CachePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.CachePath), 0o755); err != nil {
		return
	}
	entry := vulnCacheEntry{Key: key, Timestamp: time.Now().Unix(), Vulns: vulns}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	f, err := os.OpenFile(a.CachePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

func cacheKey(pkg, version string) string {
	sum := sha256.Sum256([]byte(pkg + "@" + version))
	return hex.EncodeToString(sum[:])[:16]
}
