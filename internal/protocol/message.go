package protocol

import (
	"fmt"

	"causalkv/internal/clock"
)

// RequestID correlates a client request with its reply.
type RequestID uint64

// Msg is any message exchanged between actors.
type Msg interface {
	fmt.Stringer
	isMsg()
}

// Put asks a replica to write Value at Key.
type Put struct {
	RequestID RequestID
	Key       string
	Value     string
}

// Get asks a replica for the value at Key.
type Get struct {
	RequestID RequestID
	Key       string
}

// Delete asks a replica to remove Key.
type Delete struct {
	RequestID RequestID
	Key       string
}

// PutOk acknowledges a Put.
type PutOk struct {
	RequestID RequestID
}

// GetOk answers a Get for a present key.
type GetOk struct {
	RequestID RequestID
	Value     string
}

// DeleteOk acknowledges a Delete, whether or not the key existed.
type DeleteOk struct {
	RequestID RequestID
}

// PutSync propagates a local write to peers together with the Versions
// it supersedes.
type PutSync struct {
	Context clock.Context
	Version clock.Version
	Key     string
	Value   string
}

// DeleteSync propagates a local delete to peers.
type DeleteSync struct {
	Context clock.Context
}

func (Put) isMsg()        {}
func (Get) isMsg()        {}
func (Delete) isMsg()     {}
func (PutOk) isMsg()      {}
func (GetOk) isMsg()      {}
func (DeleteOk) isMsg()   {}
func (PutSync) isMsg()    {}
func (DeleteSync) isMsg() {}

func (m Put) String() string {
	return fmt.Sprintf("Put(%d, %q, %q)", m.RequestID, m.Key, m.Value)
}

func (m Get) String() string {
	return fmt.Sprintf("Get(%d, %q)", m.RequestID, m.Key)
}

func (m Delete) String() string {
	return fmt.Sprintf("Delete(%d, %q)", m.RequestID, m.Key)
}

func (m PutOk) String() string {
	return fmt.Sprintf("PutOk(%d)", m.RequestID)
}

func (m GetOk) String() string {
	return fmt.Sprintf("GetOk(%d, %q)", m.RequestID, m.Value)
}

func (m DeleteOk) String() string {
	return fmt.Sprintf("DeleteOk(%d)", m.RequestID)
}

func (m PutSync) String() string {
	return fmt.Sprintf("PutSync(%s, %s, %q, %q)", m.Context, m.Version, m.Key, m.Value)
}

func (m DeleteSync) String() string {
	return fmt.Sprintf("DeleteSync(%s)", m.Context)
}

// IsSync reports whether msg is replica-to-replica traffic.
func IsSync(msg Msg) bool {
	switch msg.(type) {
	case PutSync, DeleteSync:
		return true
	}
	return false
}

// IsRequest reports whether msg is a client request.
func IsRequest(msg Msg) bool {
	switch msg.(type) {
	case Put, Get, Delete:
		return true
	}
	return false
}
