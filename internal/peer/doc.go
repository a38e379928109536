// Package peer implements the replica actor: it routes client requests and
// peer sync messages to a storage.Store and broadcasts the resulting sync
// messages over a pre-configured full mesh. Sync messages are applied but
// never answered or relayed.
package peer
