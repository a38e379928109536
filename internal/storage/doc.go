// Package storage provides the replica state and its merge rules.
//
// A Store holds a flat, Version-ordered set of (Version, Key, Value)
// entries and two kinds of mutation: local operations (Set, Delete) that
// issue new Versions and return what they supersede, and peer operations
// (ReceiveSet, ReceiveDelete) that apply another replica's sync message.
//
// Two implementations share the interface. ContextStore removes entries by
// membership in the causal context carried with every sync message, which
// is idempotent and order independent. LWWStore compares timestamps
// pairwise and drops the context; it loses updates once deletes race
// writes and is kept to demonstrate exactly that.
//
// Stores are owned by a single replica and are not safe for concurrent use.
package storage
