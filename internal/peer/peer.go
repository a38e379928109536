package peer

import (
	"causalkv/internal/protocol"
	"causalkv/internal/storage"
	"causalkv/internal/wire"
)

// Replica is the state of a server actor.
type Replica struct {
	Store storage.Store
}

// Clone returns a deep copy of r.
func (r *Replica) Clone() protocol.State {
	return &Replica{Store: r.Store.Clone()}
}

// Key encodes the replica's snapshot and counter.
func (r *Replica) Key() []byte {
	b := wire.AppendEntries([]byte{'s'}, r.Store.Entries())
	b = appendCounter(b, r.Store.Counter())
	if cs, ok := r.Store.(*storage.ContextStore); ok {
		b = wire.AppendEntries(b, cs.Siblings())
		b = wire.AppendContext(b, cs.Obsolete())
	}
	return b
}

func appendCounter(b []byte, c uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(c>>(8*i)))
	}
	return b
}

// Snapshot returns the replica's resolved entries.
func (r *Replica) Snapshot() []storage.Entry {
	return r.Store.Entries()
}

// Siblings returns every live entry the replica holds, including
// concurrent writes hidden from Snapshot.
func (r *Replica) Siblings() []storage.Entry {
	if cs, ok := r.Store.(*storage.ContextStore); ok {
		return cs.Siblings()
	}
	return r.Store.Entries()
}

// Server is the replica actor.
type Server struct {
	Peers   []protocol.ID
	Variant storage.Variant
}

// New returns a server actor that broadcasts to peers.
func New(peers []protocol.ID, variant storage.Variant) *Server {
	return &Server{Peers: peers, Variant: variant}
}

// OnStart returns an empty replica.
func (s *Server) OnStart(id protocol.ID, _ *protocol.Out) protocol.State {
	return &Replica{Store: storage.New(s.Variant, int(id))}
}

// OnMsg applies one message to the replica.
func (s *Server) OnMsg(_ protocol.ID, state protocol.State, src protocol.ID, msg protocol.Msg, o *protocol.Out) {
	r := state.(*Replica)

	switch m := msg.(type) {
	case protocol.Put:
		ctx, version := r.Store.Set(m.Key, m.Value)
		o.Send(src, protocol.PutOk{RequestID: m.RequestID})
		o.Broadcast(s.Peers, protocol.PutSync{
			Context: ctx,
			Version: version,
			Key:     m.Key,
			Value:   m.Value,
		})

	case protocol.Get:
		// an absent key is answered with silence
		if value, ok := r.Store.Get(m.Key); ok {
			o.Send(src, protocol.GetOk{RequestID: m.RequestID, Value: value})
		}

	case protocol.Delete:
		ctx, existed := r.Store.Delete(m.Key)
		o.Send(src, protocol.DeleteOk{RequestID: m.RequestID})
		if existed {
			o.Broadcast(s.Peers, protocol.DeleteSync{Context: ctx})
		}

	case protocol.PutSync:
		r.Store.ReceiveSet(m.Context, m.Version, m.Key, m.Value)

	case protocol.DeleteSync:
		r.Store.ReceiveDelete(m.Context)
	}
}

// OnTimeout does nothing.
func (s *Server) OnTimeout(protocol.ID, protocol.State, *protocol.Out) {}
