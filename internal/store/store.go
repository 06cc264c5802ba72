// Package store holds the node-local state of the key-value system: the
// multi-version in-memory map, the vector-clock algebra over its versions,
// and the conflict-resolution rule that reduces siblings to survivors.
//
// The map is per-key append-only: a write never replaces an existing
// version, it adds one. Concurrent writes therefore accumulate as siblings
// until the read path (or compaction) resolves them. Deletes append
// tombstone versions and follow exactly the same causal rules.
//
// Persistence is optional. With a data directory the store works like the
// classic WAL + snapshot pair: every mutation hits the log before memory,
// periodic snapshots bound replay time. With an empty directory the store
// is purely in-memory.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage is the node-local multi-version map. Safe for concurrent use;
// every accessor copies out under the lock, so returned slices can be
// iterated without holding anything.
type Storage struct {
	mu      sync.Mutex
	data    map[string][]Version
	wal     *WAL // nil when running in-memory only
	dataDir string
}

// New creates or reopens a Storage. dataDir == "" means in-memory only.
//
// Startup with a data directory:
//
//  1. load the latest snapshot into memory
//  2. open the WAL
//  3. replay entries written after the snapshot
func New(dataDir string) (*Storage, error) {
	s := &Storage{data: make(map[string][]Version), dataDir: dataDir}
	if dataDir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	wal, err := newWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	s.wal = wal

	if err := s.replayWAL(); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	return s, nil
}

// Put appends a version to the key's sibling list. It never overwrites:
// causally dominated versions stay in place until Resolve or Compact drops
// them.
func (s *Storage) Put(key string, v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := v.Copy()
	if s.wal != nil {
		if err := s.wal.append(walEntry{Op: opAppend, Key: key, Version: &stored}); err != nil {
			return fmt.Errorf("wal append: %w", err)
		}
	}
	s.data[key] = append(s.data[key], stored)
	return nil
}

// Get returns a snapshot of every version stored for key, tombstones
// included. Filtering live from deleted is a read-path decision, not a
// storage one — internal callers must see the whole list.
func (s *Storage) Get(key string) []Version {
	return s.GetAll(key)
}

// GetAll returns a snapshot copy of ALL versions for key, tombstones
// included. The copy is safe to iterate and mutate outside the lock.
func (s *Storage) GetAll(key string) []Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyVersions(s.data[key])
}

// Overwrite atomically replaces the sibling list for key. The new list
// must preserve every externally observable survivor.
func (s *Storage) Overwrite(key string, versions []Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyVersions(versions)
	if s.wal != nil {
		if err := s.wal.append(walEntry{Op: opOverwrite, Key: key, Versions: stored}); err != nil {
			return fmt.Errorf("wal append: %w", err)
		}
	}
	if stored == nil {
		stored = []Version{}
	}
	s.data[key] = stored
	return nil
}

// Delete removes the key and all its versions. This is an admin/GC
// operation — a normal delete goes through the coordinator and appends a
// tombstone instead.
func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	if s.wal != nil {
		if err := s.wal.append(walEntry{Op: opRemove, Key: key}); err != nil {
			return fmt.Errorf("wal append: %w", err)
		}
	}
	delete(s.data, key)
	return nil
}

// Compact rewrites the key's sibling list to its resolved survivors.
// Dominated versions and duplicates disappear; survivors (including
// surviving tombstones) are untouched, so reads cannot tell the
// difference. The lock is held for the whole rewrite, so a concurrent Put
// is never lost; the rewrite is logged as an OVERWRITE entry.
func (s *Storage) Compact(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.data[key]
	if len(versions) < 2 {
		return nil
	}
	resolved := copyVersions(Resolve(versions))
	if len(resolved) == len(versions) {
		return nil
	}
	if s.wal != nil {
		if err := s.wal.append(walEntry{Op: opOverwrite, Key: key, Versions: resolved}); err != nil {
			return fmt.Errorf("wal append: %w", err)
		}
	}
	s.data[key] = resolved
	return nil
}

// Keys returns every key currently present, including keys whose only
// versions are tombstones.
func (s *Storage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of keys present.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// ─── Persistence ──────────────────────────────────────────────────────────────

// Snapshot writes the whole map to disk and truncates the WAL. The write
// goes to a temp file first and is renamed into place, so a crash mid-write
// leaves the previous snapshot intact. No-op for in-memory stores.
func (s *Storage) Snapshot() error {
	if s.wal == nil {
		return nil
	}

	s.mu.Lock()
	snapshot := make(map[string][]Version, len(s.data))
	for k, v := range s.data {
		snapshot[k] = copyVersions(v)
	}
	s.mu.Unlock()

	path := filepath.Join(s.dataDir, "snapshot.json")
	tmp := path + ".tmp"

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	return s.wal.truncate()
}

func (s *Storage) loadSnapshot() error {
	path := filepath.Join(s.dataDir, "snapshot.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snapshot map[string][]Version
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// replayWAL re-applies logged mutations to memory without re-logging them.
func (s *Storage) replayWAL() error {
	entries, err := s.wal.readAll()
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Op {
		case opAppend:
			if e.Version != nil {
				s.data[e.Key] = append(s.data[e.Key], *e.Version)
			}
		case opOverwrite:
			s.data[e.Key] = e.Versions
		case opRemove:
			delete(s.data, e.Key)
		}
	}
	return nil
}

// Close closes the WAL file, if any. Call during shutdown.
func (s *Storage) Close() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.close()
}
