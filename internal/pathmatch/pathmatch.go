// Package pathmatch implements the glob dialect used by obligation scopes
// and security gate rules.
//
// Patterns support:
//   - *  any run of non-separator characters
//   - ?  a single non-separator character
//   - [abc]  a character class
//   - ** any run of characters including separators
//
// Paths are normalized to forward slashes before matching.
package pathmatch

import (
	"path/filepath"
	"strings"
)

// Match reports whether path matches pattern. A bare "*" matches everything.
func Match(pattern, path string) bool {
	path = filepath.ToSlash(path)
	pattern = filepath.ToSlash(pattern)

	if pattern == "*" || pattern == "**" || pattern == "**/*" {
		return true
	}
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, path)
	}

	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	// A bare filename pattern like "*.go" applies at any depth.
	if !strings.Contains(pattern, "/") {
		ok, _ := filepath.Match(pattern, filepath.Base(path))
		return ok
	}
	return false
}

// MatchAny reports whether path matches at least one pattern.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Match(p, path) {
			return true
		}
	}
	return false
}

func matchDoublestar(pattern, path string) bool {
	parts := strings.Split(pattern, "**")

	// "prefix/**/suffix" is the common shape; handle it precisely.
	if len(parts) == 2 {
		prefix := strings.TrimSuffix(parts[0], "/")
		suffix := strings.TrimPrefix(parts[1], "/")

		if prefix != "" {
			if path != prefix && !strings.HasPrefix(path, prefix+"/") {
				return false
			}
			path = strings.TrimPrefix(path, prefix)
			path = strings.TrimPrefix(path, "/")
		}
		if suffix == "" {
			return true
		}
		return matchSuffix(suffix, path)
	}

	// Multiple ** segments: require the literal fragments to appear in order.
	rest := path
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx == -1 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return true
}

// matchSuffix matches the pattern against the tail segments of path so that
// "src/**/*.py" accepts both "src/a.py" and "src/a/b/c.py".
func matchSuffix(suffix, path string) bool {
	segments := strings.Split(path, "/")
	suffixSegs := len(strings.Split(suffix, "/"))
	for i := 0; i+suffixSegs <= len(segments); i++ {
		candidate := strings.Join(segments[i:], "/")
		if ok, _ := filepath.Match(suffix, candidate); ok {
			return true
		}
	}
	return false
}
