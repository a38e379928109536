package client

import (
	"encoding/binary"
	"errors"
	"fmt"

	"causalkv/internal/protocol"
)

// DefaultKey is the key every sequencer operates on unless configured.
const DefaultKey = "k"

// ErrClientBeforeServers is returned when a client is given an actor index
// that belongs to the server range.
var ErrClientBeforeServers = errors.New("client: clients must be added after servers")

// Kind selects the mutation a sequencer issues.
type Kind int

const (
	// PutClient issues Puts.
	PutClient Kind = iota
	// DeleteClient issues Deletes.
	DeleteClient
)

func (k Kind) String() string {
	if k == DeleteClient {
		return "delete"
	}
	return "put"
}

// State is Idle when Pending is false and Awaiting(Awaiting) otherwise.
type State struct {
	Pending  bool
	Awaiting protocol.RequestID
	OpCount  int
}

// Clone returns a copy of s.
func (s *State) Clone() protocol.State {
	c := *s
	return &c
}

// Key encodes the state.
func (s *State) Key() []byte {
	b := []byte{'c', 0}
	if s.Pending {
		b[1] = 1
	}
	b = binary.AppendUvarint(b, uint64(s.Awaiting))
	return binary.AppendUvarint(b, uint64(s.OpCount))
}

func (s *State) String() string {
	if !s.Pending {
		return fmt.Sprintf("Idle(ops=%d)", s.OpCount)
	}
	return fmt.Sprintf("Awaiting(%d, ops=%d)", s.Awaiting, s.OpCount)
}

// Sequencer issues Count mutations of Kind, waiting for each
// acknowledgement before sending the next. The destination of each step is
// (index + opCount) mod Servers, so a client spreads its own sequence over
// the replicas.
type Sequencer struct {
	Kind             Kind
	Count            int
	IntermediateGets bool
	Servers          int
	Key              string
}

// New returns a sequencer for the given kind and op count.
func New(kind Kind, count, servers int, intermediateGets bool) *Sequencer {
	return &Sequencer{
		Kind:             kind,
		Count:            count,
		IntermediateGets: intermediateGets,
		Servers:          servers,
		Key:              DefaultKey,
	}
}

// Validate checks that id lies outside the server range.
func (c *Sequencer) Validate(id protocol.ID) error {
	if c.Servers <= 0 {
		return fmt.Errorf("client %d: no servers configured", id)
	}
	if int(id) < c.Servers {
		return fmt.Errorf("%w: id %d < %d servers", ErrClientBeforeServers, id, c.Servers)
	}
	return nil
}

func (c *Sequencer) key() string {
	if c.Key == "" {
		return DefaultKey
	}
	return c.Key
}

func (c *Sequencer) target(id protocol.ID, opCount int) protocol.ID {
	return protocol.ID((int(id) + opCount) % c.Servers)
}

func (c *Sequencer) value(id protocol.ID, first bool) string {
	offset := byte(int(id) % c.Servers)
	if first {
		return string(rune('A' + offset))
	}
	return string(rune('Z' - offset))
}

func (c *Sequencer) mutation(id protocol.ID, rid protocol.RequestID, first bool) protocol.Msg {
	if c.Kind == DeleteClient {
		return protocol.Delete{RequestID: rid, Key: c.key()}
	}
	return protocol.Put{RequestID: rid, Key: c.key(), Value: c.value(id, first)}
}

// OnStart issues the first mutation. It panics if id is in the server
// range; call Validate when building a topology.
func (c *Sequencer) OnStart(id protocol.ID, o *protocol.Out) protocol.State {
	if err := c.Validate(id); err != nil {
		panic(err)
	}
	if c.Count <= 0 {
		return &State{}
	}

	rid := protocol.RequestID(id)
	o.Send(c.target(id, 0), c.mutation(id, rid, true))
	return &State{Pending: true, Awaiting: rid, OpCount: 1}
}

// OnMsg advances on the acknowledgement matching the outstanding request.
func (c *Sequencer) OnMsg(id protocol.ID, state protocol.State, _ protocol.ID, msg protocol.Msg, o *protocol.Out) {
	s := state.(*State)
	if !s.Pending {
		return
	}

	switch m := msg.(type) {
	case protocol.PutOk:
		if c.Kind == PutClient && m.RequestID == s.Awaiting {
			c.advance(id, s, o)
		}
	case protocol.DeleteOk:
		if c.Kind == DeleteClient && m.RequestID == s.Awaiting {
			c.advance(id, s, o)
		}
	case protocol.GetOk:
		if m.RequestID == s.Awaiting {
			s.Pending = false
			s.Awaiting = 0
			s.OpCount++
		}
	}
}

func (c *Sequencer) advance(id protocol.ID, s *State, o *protocol.Out) {
	next := protocol.RequestID(s.OpCount+1) * protocol.RequestID(id)
	dst := c.target(id, s.OpCount)

	switch {
	case s.OpCount < c.Count:
		o.Send(dst, c.mutation(id, next, false))
		s.Awaiting = next
	case c.IntermediateGets:
		o.Send(dst, protocol.Get{RequestID: next, Key: c.key()})
		s.Awaiting = next
	default:
		s.Pending = false
		s.Awaiting = 0
	}
	s.OpCount++
}

// OnTimeout does nothing.
func (c *Sequencer) OnTimeout(protocol.ID, protocol.State, *protocol.Out) {}
