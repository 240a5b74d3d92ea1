package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evidentci/proofgate/internal/journal"
)

// VerifyArtifacts recomputes the Merkle root over a sealed artifact
// directory and checks it against the recorded manifest and the journal
// chain. The manifest names exactly the artifacts the run owned; files the
// run never sealed are not evidence and are ignored. Any tampering with
// sealed bytes, the manifest, or journal ordering fails.
func VerifyArtifacts(dir string) error {
	manifestPath := filepath.Join(dir, "merkle.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest struct {
		RunID  string            `json:"run_id"`
		Root   string            `json:"root"`
		Leaves map[string]string `json:"leaves"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Leaves) == 0 {
		return fmt.Errorf("manifest names no artifacts")
	}

	artifacts := make([]journal.EvidenceArtifact, 0, len(manifest.Leaves))
	for name, wantHash := range manifest.Leaves {
		bytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("sealed artifact %s missing: %w", name, err)
		}
		a := journal.NewArtifact(name, bytes)
		if a.ContentHash != wantHash {
			return fmt.Errorf("artifact %s: content hash mismatch", name)
		}
		artifacts = append(artifacts, a)
	}

	if !journal.Verify(manifest.Root, artifacts) {
		return fmt.Errorf("merkle root mismatch: evidence does not hash to %s", manifest.Root)
	}

	jpath := filepath.Join(dir, "journal.ndjson")
	if _, err := os.Stat(jpath); os.IsNotExist(err) {
		return nil
	}
	j := journal.Open(jpath)
	if err := j.VerifyChain(); err != nil {
		return err
	}
	runs, err := j.Entries()
	if err != nil {
		return err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].RunID == manifest.RunID {
			if runs[i].MerkleRoot != manifest.Root {
				return fmt.Errorf("journal entry for run %s records a different root", manifest.RunID)
			}
			return nil
		}
	}
	return fmt.Errorf("run %s not present in journal", manifest.RunID)
}
