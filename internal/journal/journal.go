package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evidentci/proofgate/internal/obligation"
)

// Entry is one sealed run in the proof journal. Entries embed the previous
// entry's Merkle root, forming a chain that detects reordering and deletion.
type Entry struct {
	RunID             string              `json:"run_id"`
	Timestamp         time.Time           `json:"timestamp"`
	MerkleRoot        string              `json:"merkle_root"`
	PrevRoot          string              `json:"prev_root,omitempty"`
	ObligationResults []obligation.Result `json:"obligation_results"`
	Decision          obligation.Decision `json:"decision"`
}

// WriteError reports an I/O failure while sealing evidence. Prior journal
// entries remain intact and readable.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("journal write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Journal is an append-only NDJSON log. Append is the only mutation; prior
// entries are never edited or deleted. A single mutex serializes writers so
// concurrent runs against the same journal never interleave partial entries.
type Journal struct {
	mu   sync.Mutex
	path string
}

func Open(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Path() string { return j.path }

// Append seals one entry. The entry's PrevRoot is filled in from the current
// tail under the lock, and the line is written with a single Write call on an
// O_APPEND descriptor so it lands fully formed or not at all.
func (j *Journal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tail, err := j.tailRootLocked()
	if err != nil {
		return err
	}
	entry.PrevRoot = tail

	line, err := json.Marshal(entry)
	if err != nil {
		return &WriteError{Path: j.path, Err: err}
	}
	line = append(line, '\n')

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &WriteError{Path: j.path, Err: err}
		}
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &WriteError{Path: j.path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return &WriteError{Path: j.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &WriteError{Path: j.path, Err: err}
	}
	return nil
}

// Entries reads every journal entry in order. A missing file is an empty
// journal, not an error.
func (j *Journal) Entries() ([]Entry, error) {
	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("journal %s: corrupt entry %d: %w", j.path, len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// VerifyChain checks the hash links: each entry's PrevRoot must equal the
// preceding entry's MerkleRoot, and the first entry must have none.
func (j *Journal) VerifyChain() error {
	entries, err := j.Entries()
	if err != nil {
		return err
	}
	prev := ""
	for i, e := range entries {
		if e.PrevRoot != prev {
			return fmt.Errorf("journal %s: entry %d (run %s) breaks the chain: prev_root %q, want %q",
				j.path, i+1, e.RunID, e.PrevRoot, prev)
		}
		prev = e.MerkleRoot
	}
	return nil
}

func (j *Journal) tailRootLocked() (string, error) {
	entries, err := j.Entries()
	if err != nil {
		return "", &WriteError{Path: j.path, Err: err}
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].MerkleRoot, nil
}
