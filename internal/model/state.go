package model

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	"causalkv/internal/peer"
	"causalkv/internal/protocol"
	"causalkv/internal/storage"
	"causalkv/internal/wire"
)

type inflight struct {
	env protocol.Envelope
	enc []byte
}

func newInflight(env protocol.Envelope) inflight {
	b := binary.AppendUvarint(nil, uint64(env.Src))
	b = binary.AppendUvarint(b, uint64(env.Dst))
	msg, err := wire.AppendMsg(nil, env.Msg)
	if err != nil {
		msg = []byte(env.Msg.String())
	}
	return inflight{env: env, enc: append(b, msg...)}
}

func samePair(a, b protocol.Envelope) bool {
	return a.Src == b.Src && a.Dst == b.Dst
}

// State is one global configuration: every actor's state plus the
// messages in flight.
type State struct {
	Actors []protocol.State

	network Network
	flight  []inflight
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := &State{
		Actors:  make([]protocol.State, len(s.Actors)),
		network: s.network,
		flight:  make([]inflight, len(s.flight)),
	}
	for i, a := range s.Actors {
		c.Actors[i] = a.Clone()
	}
	copy(c.flight, s.flight)
	return c
}

// InFlight returns the messages not yet delivered in canonical order.
func (s *State) InFlight() []protocol.Envelope {
	out := make([]protocol.Envelope, len(s.flight))
	for i, f := range s.flight {
		out[i] = f.env
	}
	return out
}

// SyncInFlight reports whether any replica-to-replica message is pending.
func (s *State) SyncInFlight() bool {
	for _, f := range s.flight {
		if protocol.IsSync(f.env.Msg) {
			return true
		}
	}
	return false
}

// Replicas returns the server states, which occupy the first n actor slots.
func (s *State) Replicas(n int) []*peer.Replica {
	out := make([]*peer.Replica, 0, n)
	for i := 0; i < n && i < len(s.Actors); i++ {
		if r, ok := s.Actors[i].(*peer.Replica); ok {
			out = append(out, r)
		}
	}
	return out
}

// Snapshots returns the resolved entries of each server.
func (s *State) Snapshots(n int) [][]storage.Entry {
	replicas := s.Replicas(n)
	out := make([][]storage.Entry, len(replicas))
	for i, r := range replicas {
		out[i] = r.Snapshot()
	}
	return out
}

// Siblings returns the raw entries of each server.
func (s *State) Siblings(n int) [][]storage.Entry {
	replicas := s.Replicas(n)
	out := make([][]storage.Entry, len(replicas))
	for i, r := range replicas {
		out[i] = r.Siblings()
	}
	return out
}

// Key returns a canonical encoding of s. Two states with equal keys
// behave identically.
func (s *State) Key() []byte {
	var b []byte
	for _, a := range s.Actors {
		k := a.Key()
		b = binary.AppendUvarint(b, uint64(len(k)))
		b = append(b, k...)
	}
	b = binary.AppendUvarint(b, uint64(len(s.flight)))
	for _, f := range s.flight {
		b = binary.AppendUvarint(b, uint64(len(f.enc)))
		b = append(b, f.enc...)
	}
	return b
}

func (s *State) String() string {
	var sb strings.Builder
	for i, a := range s.Actors {
		if i > 0 {
			sb.WriteString(" | ")
		}
		if r, ok := a.(*peer.Replica); ok {
			sb.WriteString(entriesString(r.Snapshot()))
			continue
		}
		if st, ok := a.(interface{ String() string }); ok {
			sb.WriteString(st.String())
		}
	}
	return sb.String()
}

func entriesString(entries []storage.Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *State) send(envs []protocol.Envelope) {
	for _, env := range envs {
		s.flight = append(s.flight, newInflight(env))
	}
}

// normalize puts the in-flight messages in canonical order. Ordered
// networks keep per-pair emission order; the others sort fully and
// Duplicating networks also collapse identical copies.
func (s *State) normalize() {
	if s.network == Ordered {
		sort.SliceStable(s.flight, func(i, j int) bool {
			a, b := s.flight[i].env, s.flight[j].env
			if a.Src != b.Src {
				return a.Src < b.Src
			}
			return a.Dst < b.Dst
		})
		return
	}

	sort.Slice(s.flight, func(i, j int) bool {
		return bytes.Compare(s.flight[i].enc, s.flight[j].enc) < 0
	})
	if s.network != Duplicating {
		return
	}
	out := s.flight[:0]
	for i, f := range s.flight {
		if i > 0 && bytes.Equal(f.enc, s.flight[i-1].enc) {
			continue
		}
		out = append(out, f)
	}
	s.flight = out
}

// deliverable returns the indices of messages that may be delivered or
// dropped next. Identical copies are offered once.
func (s *State) deliverable() []int {
	var idx []int
	for i, f := range s.flight {
		if i == 0 {
			idx = append(idx, i)
			continue
		}
		prev := s.flight[i-1]
		if s.network == Ordered && samePair(prev.env, f.env) {
			continue
		}
		if bytes.Equal(prev.enc, f.enc) {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func (s *State) take(i int) protocol.Envelope {
	env := s.flight[i].env
	s.flight = append(s.flight[:i], s.flight[i+1:]...)
	return env
}
