// Package protocol defines the transport-agnostic message contract between
// clients and replicas and the step-wise actor interface that both the
// in-process model checker and the networked node drive.
//
// An actor processes one inbound message per step, atomically, and records
// its effects (unicast replies and broadcasts) in an Out. Timeouts are part
// of the interface but are no-ops for every actor in this system.
package protocol
