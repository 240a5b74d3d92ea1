package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Retrying wraps an adapter around an inherently non-deterministic tool
// (timing-based flaky tests, sampling profilers). It runs the tool up to
// Attempts times and reports the majority result, never a silent average.
type Retrying struct {
	Inner    Adapter
	Attempts int
}

func (r *Retrying) ID() string { return r.Inner.ID() }

func (r *Retrying) Tier() Tier { return r.Inner.Tier() }

func (r *Retrying) Run(ctx context.Context, target Target) (Result, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	counts := make(map[string]int)
	byFingerprint := make(map[string]Result)
	var lastErr error

	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		res, err := r.Inner.Run(ctx, target)
		if err != nil {
			lastErr = err
			continue
		}
		fp := fingerprint(res)
		counts[fp]++
		if _, seen := byFingerprint[fp]; !seen {
			byFingerprint[fp] = res
		}
		// A result seen in the strict majority of attempts cannot be
		// overtaken; stop paying for more invocations.
		if counts[fp]*2 > attempts {
			return res, nil
		}
	}

	if len(counts) == 0 {
		if lastErr != nil {
			return Result{}, lastErr
		}
		return Result{}, ctx.Err()
	}

	// Majority result; ties resolve by fingerprint so the choice is
	// deterministic across runs.
	fps := make([]string, 0, len(counts))
	for fp := range counts {
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool {
		if counts[fps[i]] != counts[fps[j]] {
			return counts[fps[i]] > counts[fps[j]]
		}
		return fps[i] < fps[j]
	})
	return byFingerprint[fps[0]], nil
}

func fingerprint(res Result) string {
	ids := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		ids = append(ids, f.ID())
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}
