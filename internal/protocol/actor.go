package protocol

import (
	"fmt"
)

// ID identifies an actor. Servers occupy 0..N-1 and clients follow.
type ID int

// Envelope is a message addressed from Src to Dst.
type Envelope struct {
	Src ID
	Dst ID
	Msg Msg
}

func (e Envelope) String() string {
	return fmt.Sprintf("%d->%d %s", e.Src, e.Dst, e.Msg)
}

// Out collects the messages emitted during one actor step.
type Out struct {
	src   ID
	sends []Envelope
}

// NewOut returns an empty Out for messages sent by src.
func NewOut(src ID) *Out {
	return &Out{src: src}
}

// Send queues msg for dst.
func (o *Out) Send(dst ID, msg Msg) {
	o.sends = append(o.sends, Envelope{Src: o.src, Dst: dst, Msg: msg})
}

// Broadcast queues msg for every destination in dsts.
func (o *Out) Broadcast(dsts []ID, msg Msg) {
	for _, dst := range dsts {
		o.Send(dst, msg)
	}
}

// Envelopes returns the queued messages in emission order.
func (o *Out) Envelopes() []Envelope {
	return o.sends
}

// State is an actor's private state. Implementations must be deep-copyable
// and expose a canonical encoding so that equal states have equal keys.
type State interface {
	Clone() State
	Key() []byte
}

// Actor reacts to messages one at a time.
type Actor interface {
	// OnStart returns the initial state and may emit messages.
	OnStart(id ID, o *Out) State
	// OnMsg handles msg from src, mutating state in place.
	OnMsg(id ID, state State, src ID, msg Msg, o *Out)
	// OnTimeout handles a timer firing.
	OnTimeout(id ID, state State, o *Out)
}

// Peers returns the full mesh of servers 0..n-1 excluding self.
func Peers(self, n int) []ID {
	peers := make([]ID, 0, n)
	for i := 0; i < n; i++ {
		if i != self {
			peers = append(peers, ID(i))
		}
	}
	return peers
}
