// Package model builds a closed system of replicas and clients on a
// simulated network and explores its reachable states.
//
// The checker enumerates every interleaving of message deliveries (and,
// optionally, drops) and evaluates the replication properties on each
// reachable state. Violations are reported with the path of steps that
// produced them.
package model
