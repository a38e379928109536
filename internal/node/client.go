package node

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"causalkv/internal/protocol"
	"causalkv/internal/wire"
)

// ClientManager manages gRPC clients to peer nodes.
type ClientManager struct {
	mu      sync.RWMutex
	opts    []grpc.DialOption
	conns   map[string]*grpc.ClientConn
	clients map[string]*Client
}

// NewClientManager creates a new client manager. opts are appended to the
// defaults (plaintext transport, wire codec).
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		opts:    opts,
		conns:   make(map[string]*grpc.ClientConn),
		clients: make(map[string]*Client),
	}
}

// GetClient returns a client for the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) GetClient(addr string) (*Client, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := Dial(addr, cm.opts...)
	if err != nil {
		return nil, err
	}

	client = NewClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, conn := range cm.conns {
		_ = conn.Close()
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]*Client)
}

// Dial creates a lazily connecting client connection to addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

// Client is a typed wrapper around the causalkv.Replica service.
type Client struct {
	cc     grpc.ClientConnInterface
	nextID atomic.Uint64
}

// NewClient returns a client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, msg protocol.Msg) (protocol.Msg, error) {
	out := new(wire.Frame)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, &wire.Frame{Msg: msg}, out, grpc.ForceCodec(wire.Codec{}))
	if err != nil {
		return nil, err
	}
	return out.Msg, nil
}

func (c *Client) requestID() protocol.RequestID {
	return protocol.RequestID(c.nextID.Add(1))
}

// Put writes key through the replica behind c.
func (c *Client) Put(ctx context.Context, key, value string) error {
	rid := c.requestID()
	reply, err := c.invoke(ctx, "Put", protocol.Put{RequestID: rid, Key: key, Value: value})
	if err != nil {
		return err
	}
	if ok, isOk := reply.(protocol.PutOk); !isOk || ok.RequestID != rid {
		return fmt.Errorf("put %q: unexpected reply %v", key, reply)
	}
	return nil
}

// Get reads key. It returns ErrNotFound if the replica holds no value.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rid := c.requestID()
	reply, err := c.invoke(ctx, "Get", protocol.Get{RequestID: rid, Key: key})
	if status.Code(err) == codes.NotFound {
		return "", fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	ok, isOk := reply.(protocol.GetOk)
	if !isOk || ok.RequestID != rid {
		return "", fmt.Errorf("get %q: unexpected reply %v", key, reply)
	}
	return ok.Value, nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	rid := c.requestID()
	reply, err := c.invoke(ctx, "Delete", protocol.Delete{RequestID: rid, Key: key})
	if err != nil {
		return err
	}
	if ok, isOk := reply.(protocol.DeleteOk); !isOk || ok.RequestID != rid {
		return fmt.Errorf("delete %q: unexpected reply %v", key, reply)
	}
	return nil
}

// Sync delivers a PutSync or DeleteSync on behalf of replica from.
func (c *Client) Sync(ctx context.Context, from protocol.ID, msg protocol.Msg) error {
	ctx = metadata.AppendToOutgoingContext(ctx, peerMetadataKey, strconv.Itoa(int(from)))
	_, err := c.invoke(ctx, "Sync", msg)
	return err
}
