// Package store implements the concurrent key-value map with per-entry
// absolute expiry backing the command engine.
package store

import (
	"sync"
	"time"

	"github.com/cannero/kvreplica/internal/resp"
)

// Entry pairs a stored value with its optional absolute expiry. A zero
// Expiry means the entry never expires.
type Entry struct {
	Value  resp.Frame
	Expiry time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.Expiry.IsZero() && now.After(e.Expiry)
}

// Store is the shared mutable key-value map. Concurrent GETs proceed in
// parallel; SETs are serialized by taking the writer lock for the
// duration of the insert — the same read/write split the teacher uses
// for its in-memory Level tree (internal/memorystore/level.go).
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	keys    map[string]resp.Frame // map-key string -> original key Frame
}

func New() *Store {
	return &Store{
		entries: make(map[string]Entry),
		keys:    make(map[string]resp.Frame),
	}
}

// Get returns the stored value for key and whether it is present and
// unexpired. A physically-present but expired entry is reported as
// absent without being removed — lazy expiration, per the store
// invariant: every observed GET after an entry's expiry returns
// NullBulkString.
func (s *Store) Get(key resp.Frame) (resp.Frame, bool) {
	mk := key.MapKey()
	s.mu.RLock()
	entry, ok := s.entries[mk]
	s.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return resp.Frame{}, false
	}
	return entry.Value, true
}

// Set inserts or overwrites key with value. pxMillis, when non-nil,
// is the requested expiry in milliseconds from now (the SET PX
// argument); a value <= 0 produces an already-expired entry.
func (s *Store) Set(key, value resp.Frame, pxMillis *int64) {
	var expiry time.Time
	if pxMillis != nil {
		expiry = time.Now().Add(time.Duration(*pxMillis) * time.Millisecond)
	}

	mk := key.MapKey()
	s.mu.Lock()
	s.entries[mk] = Entry{Value: value, Expiry: expiry}
	s.keys[mk] = key
	s.mu.Unlock()
}

// Len returns the number of physically-present entries, including ones
// that have expired but not yet been observed via Get (used only by
// the ambient admin/heartbeat surfaces, never by command semantics).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
