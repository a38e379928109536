package model

import (
	"causalkv/internal/storage"
)

// Property names.
const (
	InSyncWhenSyncingDone = "in sync when syncing is done"
	OneEntryPerKey        = "one entry per key"
	ConvergedAtQuiescence = "converged at quiescence"
)

// Expectation says when a property's condition must hold.
type Expectation int

const (
	// Always must hold in every reachable state.
	Always Expectation = iota
	// Eventually must hold once the system can make no further progress.
	Eventually
)

func (e Expectation) String() string {
	if e == Eventually {
		return "eventually"
	}
	return "always"
}

// Property is a named predicate over states.
type Property struct {
	Name        string
	Expectation Expectation
	Condition   func(m *Model, s *State) bool
}

// Properties returns the properties checked for every model.
func (m *Model) Properties() []Property {
	return []Property{
		{Name: InSyncWhenSyncingDone, Expectation: Always, Condition: inSyncWhenSyncingDone},
		{Name: OneEntryPerKey, Expectation: Always, Condition: oneEntryPerKey},
		{Name: ConvergedAtQuiescence, Expectation: Eventually, Condition: converged},
	}
}

// inSyncWhenSyncingDone ignores outstanding client traffic: once no sync
// message is in flight every replica must hold the same entries.
func inSyncWhenSyncingDone(m *Model, s *State) bool {
	if s.SyncInFlight() {
		return true
	}
	return converged(m, s)
}

// oneEntryPerKey holds over the read view. The safe variant may keep
// concurrent siblings underneath it.
func oneEntryPerKey(m *Model, s *State) bool {
	for _, snap := range s.Snapshots(m.cfg.Servers) {
		if !storage.UniqueKeys(snap) {
			return false
		}
	}
	return true
}

// converged compares both the read view and the raw siblings, so two
// replicas whose siblings differ but resolve alike are not in sync.
func converged(m *Model, s *State) bool {
	return allEqual(s.Snapshots(m.cfg.Servers)) && allEqual(s.Siblings(m.cfg.Servers))
}

func allEqual(sets [][]storage.Entry) bool {
	for i := 1; i < len(sets); i++ {
		if !storage.Equal(sets[0], sets[i]) {
			return false
		}
	}
	return true
}
