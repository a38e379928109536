package storage

import (
	"fmt"
	"sort"
	"strings"

	"causalkv/internal/clock"
)

// Entry is one stored (Version, Key, Value) triple.
type Entry struct {
	Version clock.Version
	Key     string
	Value   string
}

func (e Entry) String() string {
	return fmt.Sprintf("(%s, %q, %q)", e.Version, e.Key, e.Value)
}

// Variant selects the merge rules of a Store.
type Variant int

const (
	// Safe attaches a full causal context to every write and delete.
	Safe Variant = iota
	// Unsafe compares timestamps pairwise (last writer wins).
	Unsafe
)

func (v Variant) String() string {
	switch v {
	case Safe:
		return "safe"
	case Unsafe:
		return "unsafe"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant parses "safe" or "unsafe" (also "fixed" and "broken").
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe", "fixed", "":
		return Safe, nil
	case "unsafe", "broken", "lww":
		return Unsafe, nil
	}
	return 0, fmt.Errorf("unknown store variant %q (expected safe or unsafe)", s)
}

// Store defines the replica state operations shared by both variants.
type Store interface {
	// Get returns the value stored for key.
	Get(key string) (string, bool)
	// Set writes key locally and returns the context it supersedes and
	// the freshly issued Version, both to be broadcast in a PutSync.
	Set(key, value string) (clock.Context, clock.Version)
	// Delete removes key locally. It returns false if there is nothing
	// to broadcast.
	Delete(key string) (clock.Context, bool)
	// ReceiveSet applies a peer's PutSync.
	ReceiveSet(ctx clock.Context, version clock.Version, key, value string)
	// ReceiveDelete applies a peer's DeleteSync.
	ReceiveDelete(ctx clock.Context)
	// Entries returns a snapshot of the stored entries in Version order.
	Entries() []Entry
	// Clone returns a deep copy.
	Clone() Store
	// Variant reports which merge rules the store uses.
	Variant() Variant
	// Counter returns the replica's Version high-water mark.
	Counter() uint64
}

// New returns an empty store for replica with the given merge rules.
func New(variant Variant, replica int) Store {
	if variant == Unsafe {
		return NewLWWStore(replica)
	}
	return NewContextStore(replica)
}

// entrySet is a flat set of entries ordered by Version.
type entrySet []Entry

func (s entrySet) search(v clock.Version) (int, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].Version.Less(v)
	})
	return i, i < len(s) && s[i].Version == v
}

func (s entrySet) insert(e Entry) entrySet {
	i, ok := s.search(e.Version)
	if ok {
		return s
	}
	s = append(s, Entry{})
	copy(s[i+1:], s[i:])
	s[i] = e
	return s
}

func (s entrySet) remove(v clock.Version) entrySet {
	i, ok := s.search(v)
	if !ok {
		return s
	}
	return append(s[:i], s[i+1:]...)
}

// removeIn drops every entry whose Version is a member of ctx.
func (s entrySet) removeIn(ctx clock.Context) entrySet {
	if ctx.Len() == 0 {
		return s
	}
	kept := s[:0]
	for _, e := range s {
		if !ctx.Contains(e.Version) {
			kept = append(kept, e)
		}
	}
	return kept
}

// versionsOf returns the Versions of every entry for key.
func (s entrySet) versionsOf(key string) clock.Context {
	var ctx clock.Context
	for _, e := range s {
		if e.Key == key {
			ctx = ctx.Add(e.Version)
		}
	}
	return ctx
}

func (s entrySet) first(key string) (Entry, bool) {
	for _, e := range s {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

func (s entrySet) copy() entrySet {
	out := make(entrySet, len(s))
	copy(out, s)
	return out
}

// Equal reports whether two snapshots hold the same entries.
func Equal(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UniqueKeys reports whether entries hold at most one Entry per key.
func UniqueKeys(entries []Entry) bool {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Key] {
			return false
		}
		seen[e.Key] = true
	}
	return true
}
