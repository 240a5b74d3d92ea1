// Package changeset describes the code change a run verifies: which files
// changed and, when available, their content on both sides.
package changeset

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

type ChangeKind string

const (
	KindAdded    ChangeKind = "added"
	KindModified ChangeKind = "modified"
	KindDeleted  ChangeKind = "deleted"
)

type FileChange struct {
	Path       string
	Kind       ChangeKind
	OldContent []byte // nil when the base side is unavailable
	NewContent []byte // nil for deletions
}

// Change is the full change set of one run, ordered by path.
type Change struct {
	Files []FileChange
}

// Paths lists the changed file paths, forward-slashed, in order.
func (c *Change) Paths() []string {
	out := make([]string, len(c.Files))
	for i, f := range c.Files {
		out[i] = f.Path
	}
	return out
}

// skipDirs are never part of a change set.
var skipDirs = map[string]bool{
	".git":         true,
	".proof":       true,
	"node_modules": true,
	"vendor":       true,
}

// FromDirs computes the change between two directory trees. Both contents are
// loaded, so every downstream consumer (including the API diff classifier)
// has full evidence.
func FromDirs(oldDir, newDir string) (*Change, error) {
	oldFiles, err := listFiles(oldDir)
	if err != nil {
		return nil, fmt.Errorf("reading old tree: %w", err)
	}
	newFiles, err := listFiles(newDir)
	if err != nil {
		return nil, fmt.Errorf("reading new tree: %w", err)
	}

	seen := make(map[string]bool)
	var change Change

	for _, rel := range oldFiles {
		seen[rel] = true
		oldData, err := os.ReadFile(filepath.Join(oldDir, rel))
		if err != nil {
			return nil, err
		}
		newData, err := os.ReadFile(filepath.Join(newDir, rel))
		if os.IsNotExist(err) {
			change.Files = append(change.Files, FileChange{Path: rel, Kind: KindDeleted, OldContent: oldData})
			continue
		}
		if err != nil {
			return nil, err
		}
		if string(oldData) != string(newData) {
			change.Files = append(change.Files, FileChange{Path: rel, Kind: KindModified, OldContent: oldData, NewContent: newData})
		}
	}

	for _, rel := range newFiles {
		if seen[rel] {
			continue
		}
		newData, err := os.ReadFile(filepath.Join(newDir, rel))
		if err != nil {
			return nil, err
		}
		change.Files = append(change.Files, FileChange{Path: rel, Kind: KindAdded, NewContent: newData})
	}

	sortChange(&change)
	return &change, nil
}

// FromUnifiedDiff derives the change set from a unified diff document. New
// content is read from the work tree; old content is read from baseDir when
// one is provided, otherwise it stays nil and consumers fall back to their
// conservative path.
func FromUnifiedDiff(r io.Reader, worktree, baseDir string) (*Change, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fileDiffs, err := godiff.ParseMultiFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parsing unified diff: %w", err)
	}

	var change Change
	for _, fd := range fileDiffs {
		origPath := stripDiffPrefix(fd.OrigName)
		newPath := stripDiffPrefix(fd.NewName)

		fc := FileChange{}
		switch {
		case origPath == "" && newPath == "":
			continue
		case origPath == "":
			fc.Path = newPath
			fc.Kind = KindAdded
		case newPath == "":
			fc.Path = origPath
			fc.Kind = KindDeleted
		default:
			fc.Path = newPath
			fc.Kind = KindModified
		}

		if fc.Kind != KindDeleted && worktree != "" {
			if data, err := os.ReadFile(filepath.Join(worktree, fc.Path)); err == nil {
				fc.NewContent = data
			}
		}
		if fc.Kind != KindAdded && baseDir != "" {
			src := origPath
			if src == "" {
				src = fc.Path
			}
			if data, err := os.ReadFile(filepath.Join(baseDir, src)); err == nil {
				fc.OldContent = data
			}
		}
		change.Files = append(change.Files, fc)
	}

	sortChange(&change)
	return &change, nil
}

func stripDiffPrefix(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return filepath.ToSlash(name)
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

func sortChange(c *Change) {
	sort.Slice(c.Files, func(i, j int) bool { return c.Files[i].Path < c.Files[j].Path })
}
