package storage

import (
	"causalkv/internal/clock"
)

// LWWStore resolves conflicts by comparing timestamps pairwise.
//
// It discards what each write supersedes: Set sends no context and Delete
// sends a single Version. Once deletes race concurrent writes, replicas can
// diverge or resurrect deleted values. See ContextStore for the fix.
type LWWStore struct {
	replica int
	clock   clock.Lamport
	entries entrySet
}

// NewLWWStore returns an empty last-writer-wins store for replica.
func NewLWWStore(replica int) *LWWStore {
	return &LWWStore{replica: replica}
}

// Get returns the value of the first entry for key in Version order.
func (s *LWWStore) Get(key string) (string, bool) {
	e, ok := s.entries.first(key)
	if !ok {
		return "", false
	}
	return e.Value, true
}

// Set replaces the first entry found for key and returns no context.
func (s *LWWStore) Set(key, value string) (clock.Context, clock.Version) {
	v := s.clock.Next(s.replica)
	if prev, ok := s.entries.first(key); ok {
		s.entries = s.entries.remove(prev.Version)
	}
	s.entries = s.entries.insert(Entry{Version: v, Key: key, Value: value})
	return nil, v
}

// Delete removes the first entry found for key and returns its Version
// as a single-element context.
func (s *LWWStore) Delete(key string) (clock.Context, bool) {
	prev, ok := s.entries.first(key)
	if !ok {
		return nil, false
	}
	s.entries = s.entries.remove(prev.Version)
	return clock.NewContext(prev.Version), true
}

// ReceiveSet applies the write only if every entry currently held for key
// is older than version. The context is ignored.
func (s *LWWStore) ReceiveSet(_ clock.Context, version clock.Version, key, value string) {
	s.clock.Observe(version)

	previous := s.entries.versionsOf(key)
	for _, v := range previous {
		if !v.Less(version) {
			return
		}
	}
	s.entries = s.entries.removeIn(previous)
	s.entries = s.entries.insert(Entry{Version: version, Key: key, Value: value})
}

// ReceiveDelete removes the single entry matching the first carried Version.
func (s *LWWStore) ReceiveDelete(ctx clock.Context) {
	if ctx.Len() == 0 {
		return
	}
	v := ctx[0]
	s.clock.Observe(v)
	s.entries = s.entries.remove(v)
}

// Entries returns a snapshot of every stored entry.
func (s *LWWStore) Entries() []Entry {
	return s.entries.copy()
}

// Clone returns a deep copy of s.
func (s *LWWStore) Clone() Store {
	return &LWWStore{
		replica: s.replica,
		clock:   s.clock,
		entries: s.entries.copy(),
	}
}

// Variant returns Unsafe.
func (s *LWWStore) Variant() Variant {
	return Unsafe
}

// Counter returns the replica's Version high-water mark.
func (s *LWWStore) Counter() uint64 {
	return s.clock.Current()
}
