// Package journal binds a run's evidence artifacts into a Merkle tree and
// records gating decisions in a hash-linked, append-only proof journal.
package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
)

// EvidenceArtifact is any file entering the journal: a raw tool report, the
// serialized finding set, the API delta document. Artifacts are write-once
// and owned by the run that produced them.
type EvidenceArtifact struct {
	Name        string `json:"name"`
	Bytes       []byte `json:"-"`
	ContentHash string `json:"content_hash"`
}

// NewArtifact computes the content hash at creation so the artifact can be
// referenced before the tree is built.
func NewArtifact(name string, data []byte) EvidenceArtifact {
	sum := sha256.Sum256(data)
	return EvidenceArtifact{
		Name:        name,
		Bytes:       data,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

var ErrNoArtifacts = errors.New("journal: no artifacts to hash")

// MerkleRoot computes the integrity fingerprint of an artifact set.
//
// Construction: artifacts are sorted by canonical name, leaf hash is the
// sha256 of the artifact bytes, internal nodes hash left‖right pairwise up
// the tree, and an odd node at any level is promoted unchanged. No
// duplication padding, so the tree structure stays unambiguous for auditors.
// The root is a pure function of the (ordered) artifact hashes: recomputing
// from the same artifacts is bit-for-bit reproducible.
func MerkleRoot(artifacts []EvidenceArtifact) (string, error) {
	if len(artifacts) == 0 {
		return "", ErrNoArtifacts
	}

	sorted := make([]EvidenceArtifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	level := make([][]byte, len(sorted))
	for i, a := range sorted {
		sum := sha256.Sum256(a.Bytes)
		level[i] = sum[:]
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			h := sha256.New()
			h.Write(level[i])
			h.Write(level[i+1])
			next = append(next, h.Sum(nil))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}

	return hex.EncodeToString(level[0]), nil
}

// Verify recomputes the root independently and compares it against the
// claimed one. Any artifact byte change, addition, or removal changes the
// root.
func Verify(rootClaimed string, artifacts []EvidenceArtifact) bool {
	root, err := MerkleRoot(artifacts)
	if err != nil {
		return false
	}
	return root == rootClaimed
}
