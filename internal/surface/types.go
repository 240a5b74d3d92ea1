// Package surface computes structural summaries of a module's public API
// and classifies changes between two versions by compatibility impact.
package surface

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Severity is the compatibility impact of an API change, ordered
// breaking > minor > patch.
type Severity string

const (
	SeverityPatch    Severity = "patch"
	SeverityMinor    Severity = "minor"
	SeverityBreaking Severity = "breaking"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityBreaking:
		return 2
	case SeverityMinor:
		return 1
	case SeverityPatch:
		return 0
	}
	return -1
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type SymbolKind string

const (
	KindFunc   SymbolKind = "func"
	KindMethod SymbolKind = "method"
	KindType   SymbolKind = "type"
	KindConst  SymbolKind = "const"
	KindVar    SymbolKind = "var"
)

// Param describes one declared parameter. Optional marks parameters a caller
// may omit; Go itself has none, but snapshots can originate from languages
// that do, and the additive-widening rule depends on the flag.
type Param struct {
	Name     string `json:"name" msgpack:"name"`
	Type     string `json:"type" msgpack:"type"`
	Optional bool   `json:"optional,omitempty" msgpack:"optional"`
}

// Symbol is one top-level declaration in a source file.
type Symbol struct {
	Name          string     `json:"name" msgpack:"name"`
	Kind          SymbolKind `json:"kind" msgpack:"kind"`
	SignatureHash string     `json:"signature_hash" msgpack:"signature_hash"`
	Visibility    Visibility `json:"visibility" msgpack:"visibility"`
	Params        []Param    `json:"params,omitempty" msgpack:"params"`
	Results       []string   `json:"results,omitempty" msgpack:"results"`
}

// Snapshot is the parsed structural summary of one file's declared symbols,
// keyed by content hash. Identical file contents anywhere in history share
// one snapshot.
type Snapshot struct {
	ModulePath  string   `json:"module_path" msgpack:"module_path"`
	ContentHash string   `json:"content_hash" msgpack:"content_hash"`
	Symbols     []Symbol `json:"symbols" msgpack:"symbols"`
}

// ChangeKind classifies what happened to one symbol between two snapshots.
type ChangeKind string

const (
	ChangeAdded             ChangeKind = "added"
	ChangeRemoved           ChangeKind = "removed"
	ChangeSignatureChanged  ChangeKind = "signature_changed"
	ChangeVisibilityChanged ChangeKind = "visibility_changed"
)

// Delta is the classified change of one symbol. Unchanged symbols are not
// reported.
type Delta struct {
	Symbol   string     `json:"symbol_name"`
	Change   ChangeKind `json:"change_kind"`
	Severity Severity   `json:"severity"`
	Detail   string     `json:"detail,omitempty"`
}

// ParseError reports an unparseable source file. The caller degrades the
// affected file's API diff to breaking rather than aborting the run.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

// signatureHash canonicalizes a symbol's shape so two declarations compare
// equal iff a caller cannot tell them apart.
func signatureHash(kind SymbolKind, params []Param, results []string) string {
	var b strings.Builder
	b.WriteString(string(kind))
	for _, p := range params {
		fmt.Fprintf(&b, "(%s:%s:%t)", p.Name, p.Type, p.Optional)
	}
	b.WriteString("->")
	b.WriteString(strings.Join(results, ","))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash returns the canonical sha256 hex key for file content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func sortSymbols(symbols []Symbol) {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Name < symbols[j].Name })
}
