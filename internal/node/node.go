package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"causalkv/internal/metrics"
	"causalkv/internal/peer"
	"causalkv/internal/protocol"
	"causalkv/internal/storage"
	"causalkv/internal/wire"
)

const (
	// callerID addresses replies to whoever issued the RPC.
	callerID protocol.ID = -1

	// Metadata key carrying the sending replica's id on Sync calls.
	peerMetadataKey = "x-causalkv-peer"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrEmptyKey is returned when a request names no key.
	ErrEmptyKey = errors.New("key cannot be empty")
)

// Options configures a Node.
type Options struct {
	ID          int
	ListenAddr  string
	Peers       map[int]string
	Variant     storage.Variant
	SyncTimeout time.Duration
	RetryMin    time.Duration
	RetryMax    time.Duration
	DialOptions []grpc.DialOption
	Logger      log.Logger
	Metrics     *metrics.Node
}

// Node represents a single replica in the cluster.
type Node struct {
	id         protocol.ID
	listenAddr string
	logger     log.Logger
	metrics    *metrics.Node

	mu    sync.Mutex
	actor *peer.Server
	state *peer.Replica

	nextID     atomic.Uint64
	clientMgr  *ClientManager
	outboxes   map[protocol.ID]*outbox
	grpcServer *grpc.Server
}

// New creates a node and starts its outboxes. Call Stop to release them.
func New(opts Options) *Node {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewDiscard()
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 2 * time.Second
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 50 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = opts.RetryMin
	}

	id := protocol.ID(opts.ID)
	peers := make([]protocol.ID, 0, len(opts.Peers))
	for pid := range opts.Peers {
		if protocol.ID(pid) != id {
			peers = append(peers, protocol.ID(pid))
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	actor := peer.New(peers, opts.Variant)
	n := &Node{
		id:         id,
		listenAddr: opts.ListenAddr,
		logger:     log.With(opts.Logger, "node", opts.ID),
		metrics:    opts.Metrics,
		actor:      actor,
		state:      actor.OnStart(id, protocol.NewOut(id)).(*peer.Replica),
		clientMgr:  NewClientManager(opts.DialOptions...),
		outboxes:   make(map[protocol.ID]*outbox, len(peers)),
	}

	n.grpcServer = NewServer()
	RegisterReplicaServer(n.grpcServer, &service{node: n})

	for _, pid := range peers {
		addr := opts.Peers[int(pid)]
		n.outboxes[pid] = newOutbox(outboxConfig{
			self:     id,
			peer:     pid,
			addr:     addr,
			clients:  n.clientMgr,
			timeout:  opts.SyncTimeout,
			retryMin: opts.RetryMin,
			retryMax: opts.RetryMax,
			logger:   n.logger,
			metrics:  n.metrics,
		})
	}

	return n
}

// ID returns the replica id, which also tags every Version it issues.
func (n *Node) ID() int {
	return int(n.id)
}

// Start listens on the configured address and serves until Stop.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.listenAddr, err)
	}
	return n.Serve(lis)
}

// Serve serves gRPC on lis until Stop.
func (n *Node) Serve(lis net.Listener) error {
	level.Info(n.logger).Log("msg", "starting node", "addr", lis.Addr().String(), "variant", n.actor.Variant, "peers", len(n.outboxes))

	if err := n.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop stops serving, abandons undelivered syncs and closes connections.
func (n *Node) Stop() {
	level.Info(n.logger).Log("msg", "stopping node")
	n.grpcServer.GracefulStop()
	for _, ob := range n.outboxes {
		ob.stop()
	}
	n.clientMgr.Close()
}

// Pending returns the number of syncs not yet acknowledged by peers.
func (n *Node) Pending() int {
	total := 0
	for _, ob := range n.outboxes {
		total += ob.pending()
	}
	return total
}

// Snapshot returns the resolved entries.
func (n *Node) Snapshot() []storage.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Snapshot()
}

// Shadowed returns the concurrent writes hidden from reads by a newer
// sibling for the same key.
func (n *Node) Shadowed() []storage.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return storage.Shadowed(n.state.Siblings())
}

// step applies msg from src. Syncs for peers are queued while the lock is
// held so each outbox sees them in the order they were produced. The
// envelopes addressed to anyone else are returned.
func (n *Node) step(src protocol.ID, msg protocol.Msg) []protocol.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()

	o := protocol.NewOut(n.id)
	n.actor.OnMsg(n.id, n.state, src, msg, o)
	n.metrics.Entries.Set(float64(len(n.state.Snapshot())))

	var replies []protocol.Envelope
	for _, env := range o.Envelopes() {
		if ob, ok := n.outboxes[env.Dst]; ok && protocol.IsSync(env.Msg) {
			level.Debug(n.logger).Log("msg", "queue sync", "peer", env.Dst, "sync", env.Msg)
			ob.push(env.Msg)
			continue
		}
		replies = append(replies, env)
	}
	return replies
}

func (n *Node) request(msg protocol.Msg) protocol.Msg {
	if !protocol.IsRequest(msg) {
		return nil
	}
	for _, env := range n.step(callerID, msg) {
		if env.Dst == callerID {
			return env.Msg
		}
	}
	return nil
}

func (n *Node) requestID() protocol.RequestID {
	return protocol.RequestID(n.nextID.Add(1))
}

// Put writes key locally and replicates it.
func (n *Node) Put(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	n.metrics.Requests.With("op", "put").Add(1)
	n.request(protocol.Put{RequestID: n.requestID(), Key: key, Value: value})
	return nil
}

// Get reads key from the local replica.
func (n *Node) Get(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	n.metrics.Requests.With("op", "get").Add(1)
	reply, ok := n.request(protocol.Get{RequestID: n.requestID(), Key: key}).(protocol.GetOk)
	if !ok {
		return "", ErrNotFound
	}
	return reply.Value, nil
}

// Delete removes key locally and replicates the removal. Deleting an
// absent key succeeds.
func (n *Node) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	n.metrics.Requests.With("op", "delete").Add(1)
	n.request(protocol.Delete{RequestID: n.requestID(), Key: key})
	return nil
}

// service adapts a Node to ReplicaServer.
type service struct {
	node *Node
}

func invalid(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func (s *service) Put(ctx context.Context, in *wire.Frame) (*wire.Frame, error) {
	m, ok := in.Msg.(protocol.Put)
	if !ok {
		return nil, invalid("expected Put, got %v", in.Msg)
	}
	if m.Key == "" {
		return nil, invalid("%v", ErrEmptyKey)
	}
	s.node.metrics.Requests.With("op", "put").Add(1)
	level.Debug(s.node.logger).Log("msg", "put", "key", m.Key, "request_id", m.RequestID)
	return &wire.Frame{Msg: s.node.request(m)}, nil
}

func (s *service) Get(ctx context.Context, in *wire.Frame) (*wire.Frame, error) {
	m, ok := in.Msg.(protocol.Get)
	if !ok {
		return nil, invalid("expected Get, got %v", in.Msg)
	}
	if m.Key == "" {
		return nil, invalid("%v", ErrEmptyKey)
	}
	s.node.metrics.Requests.With("op", "get").Add(1)
	reply := s.node.request(m)
	if reply == nil {
		return nil, status.Errorf(codes.NotFound, "key %q not found", m.Key)
	}
	return &wire.Frame{Msg: reply}, nil
}

func (s *service) Delete(ctx context.Context, in *wire.Frame) (*wire.Frame, error) {
	m, ok := in.Msg.(protocol.Delete)
	if !ok {
		return nil, invalid("expected Delete, got %v", in.Msg)
	}
	if m.Key == "" {
		return nil, invalid("%v", ErrEmptyKey)
	}
	s.node.metrics.Requests.With("op", "delete").Add(1)
	level.Debug(s.node.logger).Log("msg", "delete", "key", m.Key, "request_id", m.RequestID)
	return &wire.Frame{Msg: s.node.request(m)}, nil
}

func (s *service) Sync(ctx context.Context, in *wire.Frame) (*wire.Frame, error) {
	kind := syncKind(in.Msg)
	if kind == "" {
		return nil, invalid("expected PutSync or DeleteSync, got %v", in.Msg)
	}
	if m, ok := in.Msg.(protocol.PutSync); ok {
		if m.Key == "" {
			return nil, invalid("%v", ErrEmptyKey)
		}
		if m.Version.IsZero() {
			return nil, invalid("put sync for %q carries no version", m.Key)
		}
	}

	src := peerFromContext(ctx)
	level.Debug(s.node.logger).Log("msg", "apply sync", "peer", src, "sync", in.Msg)
	s.node.metrics.SyncsReceived.With("kind", kind).Add(1)
	s.node.step(src, in.Msg)
	return &wire.Frame{}, nil
}

func syncKind(msg protocol.Msg) string {
	switch msg.(type) {
	case protocol.PutSync:
		return "put_sync"
	case protocol.DeleteSync:
		return "delete_sync"
	}
	return ""
}

func peerFromContext(ctx context.Context) protocol.ID {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return callerID
	}
	vals := md.Get(peerMetadataKey)
	if len(vals) == 0 {
		return callerID
	}
	id, err := strconv.Atoi(vals[0])
	if err != nil {
		return callerID
	}
	return protocol.ID(id)
}
