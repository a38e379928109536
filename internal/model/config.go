package model

import (
	"errors"
	"fmt"
	"strings"

	"causalkv/internal/storage"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("model: invalid config")

// Network selects the delivery semantics of the simulated network.
type Network int

const (
	// Ordered delivers messages between each (src, dst) pair in FIFO order.
	Ordered Network = iota
	// Unordered delivers in-flight messages in any order.
	Unordered
	// Duplicating keeps delivered messages in flight so they can be
	// delivered again.
	Duplicating
)

func (n Network) String() string {
	switch n {
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	case Duplicating:
		return "duplicating"
	}
	return fmt.Sprintf("network(%d)", int(n))
}

// ParseNetwork parses a network name.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ordered", "fifo", "":
		return Ordered, nil
	case "unordered":
		return Unordered, nil
	case "duplicating":
		return Duplicating, nil
	}
	return 0, fmt.Errorf("%w: unknown network %q", ErrInvalidConfig, s)
}

// Config describes the system under check.
type Config struct {
	Servers          int
	PutClients       int
	DeleteClients    int
	PutCount         int
	DeleteCount      int
	IntermediateGets bool
	Variant          storage.Variant
	Network          Network
	Lossy            bool
}

// DefaultConfig returns two servers, two put clients and two delete
// clients, each issuing two requests over an ordered network.
func DefaultConfig() Config {
	return Config{
		Servers:       2,
		PutClients:    2,
		DeleteClients: 2,
		PutCount:      2,
		DeleteCount:   2,
		Variant:       storage.Safe,
		Network:       Ordered,
	}
}

// Validate checks the config for obvious mistakes.
func (c Config) Validate() error {
	if c.Servers < 1 {
		return fmt.Errorf("%w: servers must be at least 1, got %d", ErrInvalidConfig, c.Servers)
	}
	if c.PutClients < 0 || c.DeleteClients < 0 {
		return fmt.Errorf("%w: client counts must not be negative", ErrInvalidConfig)
	}
	if c.PutCount < 0 || c.DeleteCount < 0 {
		return fmt.Errorf("%w: op counts must not be negative", ErrInvalidConfig)
	}
	if c.Network < Ordered || c.Network > Duplicating {
		return fmt.Errorf("%w: unknown network %d", ErrInvalidConfig, c.Network)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("servers=%d put=%dx%d delete=%dx%d gets=%t variant=%s network=%s lossy=%t",
		c.Servers, c.PutClients, c.PutCount, c.DeleteClients, c.DeleteCount,
		c.IntermediateGets, c.Variant, c.Network, c.Lossy)
}
