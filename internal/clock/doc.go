// Package clock provides the logical timestamps used to order and supersede
// writes. A Version pairs a per-replica Lamport counter with the issuing
// replica's identity, which makes Versions globally unique and totally
// ordered. A Context is the set of Versions an operation supersedes.
package clock
