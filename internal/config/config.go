package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"causalkv/internal/model"
	"causalkv/internal/storage"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration decoded from strings such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   int    `toml:"id"`
	Addr string `toml:"addr"`
}

// Node holds the settings of the local replica.
type Node struct {
	ID          int      `toml:"id"`
	ListenAddr  string   `toml:"listen_addr"`
	HTTPAddr    string   `toml:"http_addr"`
	MetricsAddr string   `toml:"metrics_addr"`
	Variant     string   `toml:"variant"`
	SyncTimeout Duration `toml:"sync_timeout"`
	RetryMin    Duration `toml:"retry_min"`
	RetryMax    Duration `toml:"retry_max"`
}

// Check holds the settings of an offline model check.
type Check struct {
	Servers          int    `toml:"servers"`
	PutClients       int    `toml:"put_clients"`
	DeleteClients    int    `toml:"delete_clients"`
	PutCount         int    `toml:"put_count"`
	DeleteCount      int    `toml:"delete_count"`
	IntermediateGets bool   `toml:"intermediate_gets"`
	Variant          string `toml:"variant"`
	Network          string `toml:"network"`
	Lossy            bool   `toml:"lossy"`
	Strategy         string `toml:"strategy"`
	MaxStates        int    `toml:"max_states"`
	MaxDepth         int    `toml:"max_depth"`
	Runs             int    `toml:"runs"`
	Seed             int64  `toml:"seed"`
	Workers          int    `toml:"workers"`
}

// Config holds the node configuration.
type Config struct {
	LogLevel string `toml:"log_level"`
	Node     Node   `toml:"node"`
	Peers    []Peer `toml:"peers"`
	Check    Check  `toml:"check"`
}

// Default returns a single-node config listening on localhost.
func Default() *Config {
	m := model.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Node: Node{
			ID:          0,
			ListenAddr:  "127.0.0.1:50051",
			HTTPAddr:    "127.0.0.1:8080",
			Variant:     storage.Safe.String(),
			SyncTimeout: Duration{2 * time.Second},
			RetryMin:    Duration{50 * time.Millisecond},
			RetryMax:    Duration{2 * time.Second},
		},
		Check: Check{
			Servers:       m.Servers,
			PutClients:    m.PutClients,
			DeleteClients: m.DeleteClients,
			PutCount:      m.PutCount,
			DeleteCount:   m.DeleteCount,
			Variant:       m.Variant.String(),
			Network:       m.Network.String(),
			Strategy:      "bfs",
			Runs:          100,
			Seed:          1,
			Workers:       4,
		},
	}
}

// Load reads a TOML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	conf := Default()
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("failed to read TOML config file at '%s': %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "1=addr1,2=addr2,3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		idStr := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if idStr == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("peer ID must be a non-negative integer: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// Validate checks the node and check sections.
func (c *Config) Validate() error {
	if c.Node.ID < 0 {
		return fmt.Errorf("%w: node id must be non-negative, got %d", ErrInvalid, c.Node.ID)
	}
	if c.Node.ListenAddr == "" {
		return fmt.Errorf("%w: node listen_addr is required", ErrInvalid)
	}
	if _, err := storage.ParseVariant(c.Node.Variant); err != nil {
		return fmt.Errorf("%w: node: %v", ErrInvalid, err)
	}
	if c.Node.RetryMin.Duration <= 0 || c.Node.RetryMax.Duration < c.Node.RetryMin.Duration {
		return fmt.Errorf("%w: retry_min must be positive and not exceed retry_max", ErrInvalid)
	}

	seen := make(map[int]string, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID < 0 || p.Addr == "" {
			return fmt.Errorf("%w: peer %d has no address or a negative id", ErrInvalid, p.ID)
		}
		if addr, ok := seen[p.ID]; ok && addr != p.Addr {
			return fmt.Errorf("%w: peer %d listed twice with different addresses", ErrInvalid, p.ID)
		}
		seen[p.ID] = p.Addr
	}

	if _, err := c.ModelConfig(); err != nil {
		return fmt.Errorf("%w: check: %v", ErrInvalid, err)
	}
	switch c.Check.Strategy {
	case "bfs", "dfs", "simulate":
	default:
		return fmt.Errorf("%w: check strategy %q (expected bfs, dfs or simulate)", ErrInvalid, c.Check.Strategy)
	}
	return nil
}

// StoreVariant returns the node's merge rules.
func (c *Config) StoreVariant() storage.Variant {
	v, _ := storage.ParseVariant(c.Node.Variant)
	return v
}

// PeerAddrs returns the address of every peer other than self, keyed by id.
func (c *Config) PeerAddrs() map[int]string {
	addrs := make(map[int]string, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID != c.Node.ID {
			addrs[p.ID] = p.Addr
		}
	}
	return addrs
}

// Members returns self and every peer, sorted by id.
func (c *Config) Members() []Peer {
	members := []Peer{{ID: c.Node.ID, Addr: c.Node.ListenAddr}}
	for id, addr := range c.PeerAddrs() {
		members = append(members, Peer{ID: id, Addr: addr})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// ModelConfig converts the check section.
func (c *Config) ModelConfig() (model.Config, error) {
	variant, err := storage.ParseVariant(c.Check.Variant)
	if err != nil {
		return model.Config{}, err
	}
	network, err := model.ParseNetwork(c.Check.Network)
	if err != nil {
		return model.Config{}, err
	}

	mc := model.Config{
		Servers:          c.Check.Servers,
		PutClients:       c.Check.PutClients,
		DeleteClients:    c.Check.DeleteClients,
		PutCount:         c.Check.PutCount,
		DeleteCount:      c.Check.DeleteCount,
		IntermediateGets: c.Check.IntermediateGets,
		Variant:          variant,
		Network:          network,
		Lossy:            c.Check.Lossy,
	}
	return mc, mc.Validate()
}
