package surface

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Cache is a content-addressed store of parsed snapshots. Snapshots are keyed
// by content hash, so two identical file contents anywhere in history share
// one entry and entries are invalidated only by content change, never by time.
//
// Concurrent requests for the same uncached hash are collapsed through
// singleflight so only one pays the parse cost.
type Cache struct {
	mu  sync.RWMutex
	mem map[string]*Snapshot

	// dir, when non-empty, spills snapshots to <dir>/<hash>.msgpack so later
	// runs skip reparsing unchanged content.
	dir string

	group singleflight.Group
}

func NewCache(dir string) *Cache {
	return &Cache{mem: make(map[string]*Snapshot), dir: dir}
}

// GetOrBuild returns the snapshot for the given content, parsing at most once
// per content hash. Parse failures are returned as *ParseError and are not
// cached: the same bad content will fail the same way next time anyway, and a
// transient read problem must not poison the store.
func (c *Cache) GetOrBuild(path string, content []byte) (*Snapshot, error) {
	key := ContentHash(content)

	c.mu.RLock()
	snap, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return snap, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if snap := c.loadSpill(key); snap != nil {
			c.store(key, snap)
			return snap, nil
		}
		snap, err := Extract(path, content)
		if err != nil {
			return nil, err
		}
		snap.ContentHash = key
		c.store(key, snap)
		c.writeSpill(key, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) store(key string, snap *Snapshot) {
	c.mu.Lock()
	c.mem[key] = snap
	c.mu.Unlock()
}

func (c *Cache) spillPath(key string) string {
	return filepath.Join(c.dir, key+".msgpack")
}

func (c *Cache) loadSpill(key string) *Snapshot {
	if c.dir == "" {
		return nil
	}
	data, err := os.ReadFile(c.spillPath(key))
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil
	}
	if snap.ContentHash != key {
		// Stale or corrupted spill entry; ignore it.
		return nil
	}
	return &snap
}

// writeSpill persists via temp-file rename. The computed value is a pure
// function of content, so last-writer-wins is safe.
func (c *Cache) writeSpill(key string, snap *Snapshot) {
	if c.dir == "" {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(c.dir, fmt.Sprintf(".%s-*", key[:8]))
	if err != nil {
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	tmp.Close()
	_ = os.Rename(tmp.Name(), c.spillPath(key))
}
