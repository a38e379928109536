package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"causalkv/internal/model"
	"causalkv/internal/storage"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "1=127.0.0.1:50051",
			want: []Peer{
				{ID: 1, Addr: "127.0.0.1:50051"},
			},
		},
		{
			name:  "multiple peers",
			input: "0=127.0.0.1:50051,1=127.0.0.1:50052,2=127.0.0.1:50053",
			want: []Peer{
				{ID: 0, Addr: "127.0.0.1:50051"},
				{ID: 1, Addr: "127.0.0.1:50052"},
				{ID: 2, Addr: "127.0.0.1:50053"},
			},
		},
		{
			name:  "with spaces",
			input: "1 = 127.0.0.1:50051 , 2 = 127.0.0.1:50052",
			want: []Peer{
				{ID: 1, Addr: "127.0.0.1:50051"},
				{ID: 2, Addr: "127.0.0.1:50052"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "1:127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "1=",
			wantErr: true,
		},
		{
			name:    "invalid format - named ID",
			input:   "n1=127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - negative ID",
			input:   "-1=127.0.0.1:50051",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	conf := Default()
	require.NoError(t, conf.Validate())
	assert.Equal(t, storage.Safe, conf.StoreVariant())

	mc, err := conf.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), mc)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[node]
id = 1
listen_addr = "127.0.0.1:6001"
variant = "unsafe"
retry_min = "10ms"
retry_max = "1s"

[[peers]]
id = 0
addr = "127.0.0.1:6000"

[[peers]]
id = 1
addr = "127.0.0.1:6001"

[[peers]]
id = 2
addr = "127.0.0.1:6002"

[check]
servers = 3
network = "unordered"
lossy = true
strategy = "dfs"
`), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, 1, conf.Node.ID)
	assert.Equal(t, storage.Unsafe, conf.StoreVariant())
	assert.Equal(t, 10*time.Millisecond, conf.Node.RetryMin.Duration)
	assert.Equal(t, 2*time.Second, conf.Node.SyncTimeout.Duration, "unset keys keep defaults")
	assert.Equal(t, map[int]string{0: "127.0.0.1:6000", 2: "127.0.0.1:6002"}, conf.PeerAddrs())
	assert.Equal(t, []Peer{
		{ID: 0, Addr: "127.0.0.1:6000"},
		{ID: 1, Addr: "127.0.0.1:6001"},
		{ID: 2, Addr: "127.0.0.1:6002"},
	}, conf.Members())

	mc, err := conf.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, mc.Servers)
	assert.Equal(t, model.Unordered, mc.Network)
	assert.True(t, mc.Lossy)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[node]\nretry_min = \"soon\"\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative node id", func(c *Config) { c.Node.ID = -1 }},
		{"no listen addr", func(c *Config) { c.Node.ListenAddr = "" }},
		{"unknown variant", func(c *Config) { c.Node.Variant = "eventual" }},
		{"retry bounds", func(c *Config) { c.Node.RetryMax = Duration{time.Millisecond} }},
		{"peer without addr", func(c *Config) { c.Peers = []Peer{{ID: 1}} }},
		{"conflicting peers", func(c *Config) {
			c.Peers = []Peer{{ID: 1, Addr: "a:1"}, {ID: 1, Addr: "b:1"}}
		}},
		{"no servers to check", func(c *Config) { c.Check.Servers = 0 }},
		{"unknown network", func(c *Config) { c.Check.Network = "mesh" }},
		{"unknown strategy", func(c *Config) { c.Check.Strategy = "astar" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := Default()
			tt.mutate(conf)
			assert.ErrorIs(t, conf.Validate(), ErrInvalid)
		})
	}
}
