package model

import (
	"fmt"

	"causalkv/internal/client"
	"causalkv/internal/peer"
	"causalkv/internal/protocol"
)

// ActionKind is what happens to an in-flight message.
type ActionKind int

const (
	// Deliver hands the message to its destination.
	Deliver ActionKind = iota
	// Drop loses the message. Only offered on lossy networks.
	Drop
)

func (k ActionKind) String() string {
	if k == Drop {
		return "drop"
	}
	return "deliver"
}

// Action selects an in-flight message by index.
type Action struct {
	Kind  ActionKind
	Index int
}

// Model is a closed system of actors: servers 0..Servers-1, then put
// clients, then delete clients.
type Model struct {
	cfg    Config
	actors []protocol.Actor
}

// Build assembles the actors described by cfg.
func Build(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg}
	for i := 0; i < cfg.Servers; i++ {
		m.actors = append(m.actors, peer.New(protocol.Peers(i, cfg.Servers), cfg.Variant))
	}
	for i := 0; i < cfg.PutClients; i++ {
		m.actors = append(m.actors, client.New(client.PutClient, cfg.PutCount, cfg.Servers, cfg.IntermediateGets))
	}
	for i := 0; i < cfg.DeleteClients; i++ {
		m.actors = append(m.actors, client.New(client.DeleteClient, cfg.DeleteCount, cfg.Servers, cfg.IntermediateGets))
	}

	for id, a := range m.actors {
		if c, ok := a.(*client.Sequencer); ok {
			if err := c.Validate(protocol.ID(id)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}
	return m, nil
}

// Config returns the config the model was built from.
func (m *Model) Config() Config {
	return m.cfg
}

// Init starts every actor and returns the initial state.
func (m *Model) Init() *State {
	s := &State{
		Actors:  make([]protocol.State, len(m.actors)),
		network: m.cfg.Network,
	}
	for i, a := range m.actors {
		id := protocol.ID(i)
		o := protocol.NewOut(id)
		s.Actors[i] = a.OnStart(id, o)
		s.send(o.Envelopes())
	}
	s.normalize()
	return s
}

// Actions lists the transitions enabled in s.
func (m *Model) Actions(s *State) []Action {
	idx := s.deliverable()
	actions := make([]Action, 0, len(idx)*2)
	for _, i := range idx {
		actions = append(actions, Action{Kind: Deliver, Index: i})
	}
	if m.cfg.Lossy {
		for _, i := range idx {
			actions = append(actions, Action{Kind: Drop, Index: i})
		}
	}
	return actions
}

// Next applies a to a copy of s and returns the successor together with
// the message the action consumed.
func (m *Model) Next(s *State, a Action) (*State, protocol.Envelope) {
	next := s.Clone()

	var env protocol.Envelope
	if a.Kind == Deliver && next.network == Duplicating {
		env = next.flight[a.Index].env
	} else {
		env = next.take(a.Index)
	}

	if a.Kind == Deliver && int(env.Dst) < len(m.actors) {
		o := protocol.NewOut(env.Dst)
		m.actors[env.Dst].OnMsg(env.Dst, next.Actors[env.Dst], env.Src, env.Msg, o)
		next.send(o.Envelopes())
	}
	next.normalize()
	return next, env
}
