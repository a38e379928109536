package storage

import (
	"causalkv/internal/clock"
)

// ContextStore attaches to every local write and delete the set of
// Versions it supersedes, and applies peer updates by removing exactly
// those Versions.
//
// Concurrent writes to one key are kept side by side as siblings until a
// later write or delete observes and supersedes all of them. Entries and
// Get expose the resolved view, in which the sibling with the greatest
// Version wins.
//
// Every Version ever superseded is remembered, so a sync message for a
// write that has already been overwritten or deleted is ignored no matter
// how late or how often it arrives.
type ContextStore struct {
	replica  int
	clock    clock.Lamport
	entries  entrySet
	obsolete clock.Context
}

// NewContextStore returns an empty causal-context store for replica.
func NewContextStore(replica int) *ContextStore {
	return &ContextStore{replica: replica}
}

// Get returns the value of the winning sibling for key.
func (s *ContextStore) Get(key string) (string, bool) {
	e, ok := winner(s.entries, key)
	if !ok {
		return "", false
	}
	return e.Value, true
}

// Set supersedes every sibling currently held for key.
func (s *ContextStore) Set(key, value string) (clock.Context, clock.Version) {
	ctx := s.entries.versionsOf(key)
	v := s.clock.Next(s.replica)

	s.supersede(ctx)
	s.entries = s.entries.insert(Entry{Version: v, Key: key, Value: value})
	return ctx, v
}

// Delete supersedes every sibling held for key. Deleting an absent key is
// a no-op with nothing to broadcast.
func (s *ContextStore) Delete(key string) (clock.Context, bool) {
	ctx := s.entries.versionsOf(key)
	if ctx.Len() == 0 {
		return nil, false
	}
	s.supersede(ctx)
	return ctx, true
}

// ReceiveSet removes the entries the sender superseded and inserts the
// new entry, unless this replica has already seen it superseded.
func (s *ContextStore) ReceiveSet(ctx clock.Context, version clock.Version, key, value string) {
	s.clock.Observe(version)

	s.supersede(ctx)
	if s.obsolete.Contains(version) {
		return
	}
	s.entries = s.entries.insert(Entry{Version: version, Key: key, Value: value})
}

// ReceiveDelete removes the entries the sender superseded.
func (s *ContextStore) ReceiveDelete(ctx clock.Context) {
	if v, ok := ctx.Max(); ok {
		s.clock.Observe(v)
	}
	s.supersede(ctx)
}

// supersede never prunes obsolete: it gains one Version per overwritten
// or deleted sibling for the life of the store.
func (s *ContextStore) supersede(ctx clock.Context) {
	s.entries = s.entries.removeIn(ctx)
	s.obsolete = s.obsolete.Union(ctx)
}

// Entries returns the resolved snapshot: one entry per key.
func (s *ContextStore) Entries() []Entry {
	return resolve(s.entries)
}

// Siblings returns every live entry, including concurrent writes that
// lost the tie-break.
func (s *ContextStore) Siblings() []Entry {
	return s.entries.copy()
}

// Obsolete returns the Versions this replica knows to be superseded.
func (s *ContextStore) Obsolete() clock.Context {
	return s.obsolete.Copy()
}

// Clone returns a deep copy of s.
func (s *ContextStore) Clone() Store {
	return &ContextStore{
		replica:  s.replica,
		clock:    s.clock,
		entries:  s.entries.copy(),
		obsolete: s.obsolete.Copy(),
	}
}

// Variant returns Safe.
func (s *ContextStore) Variant() Variant {
	return Safe
}

// Counter returns the replica's Version high-water mark.
func (s *ContextStore) Counter() uint64 {
	return s.clock.Current()
}
