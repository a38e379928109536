package node

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"causalkv/internal/storage"
)

const bufSize = 1 << 20

// testCluster runs replicas in-process over bufconn listeners.
type testCluster struct {
	t         *testing.T
	nodes     []*Node
	addrs     map[int]string
	listeners map[string]*bufconn.Listener
	dialer    grpc.DialOption
}

func newTestCluster(t *testing.T, size int, variant storage.Variant) *testCluster {
	t.Helper()

	c := &testCluster{
		t:         t,
		addrs:     make(map[int]string, size),
		listeners: make(map[string]*bufconn.Listener, size),
	}
	for i := 0; i < size; i++ {
		name := fmt.Sprintf("node-%d", i)
		c.listeners[name] = bufconn.Listen(bufSize)
		c.addrs[i] = "passthrough:///" + name
	}
	c.dialer = grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		lis, ok := c.listeners[addr]
		if !ok {
			return nil, fmt.Errorf("unknown address %s", addr)
		}
		return lis.DialContext(ctx)
	})

	for i := 0; i < size; i++ {
		c.nodes = append(c.nodes, New(Options{
			ID:          i,
			Peers:       c.addrs,
			Variant:     variant,
			SyncTimeout: 200 * time.Millisecond,
			RetryMin:    5 * time.Millisecond,
			RetryMax:    50 * time.Millisecond,
			DialOptions: []grpc.DialOption{c.dialer},
		}))
	}

	t.Cleanup(func() {
		for _, n := range c.nodes {
			n.Stop()
		}
	})
	return c
}

func (c *testCluster) serve(i int) {
	lis := c.listeners[fmt.Sprintf("node-%d", i)]
	go func() {
		_ = c.nodes[i].Serve(lis)
	}()
}

func (c *testCluster) serveAll() *testCluster {
	for i := range c.nodes {
		c.serve(i)
	}
	return c
}

func (c *testCluster) client(i int) *Client {
	c.t.Helper()
	conn, err := Dial(c.addrs[i], c.dialer)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

// converged reports whether every replica holds the same non-nil snapshot
// and no sync is waiting in an outbox.
func (c *testCluster) converged() bool {
	first := c.nodes[0].Snapshot()
	for _, n := range c.nodes {
		if n.Pending() > 0 || !storage.Equal(first, n.Snapshot()) {
			return false
		}
	}
	return true
}

func (c *testCluster) waitConverged() []storage.Entry {
	c.t.Helper()
	require.Eventually(c.t, c.converged, 5*time.Second, 10*time.Millisecond, "replicas did not converge")
	return c.nodes[0].Snapshot()
}
