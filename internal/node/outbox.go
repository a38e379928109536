package node

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"causalkv/internal/metrics"
	"causalkv/internal/protocol"
)

type outboxConfig struct {
	self     protocol.ID
	peer     protocol.ID
	addr     string
	clients  *ClientManager
	timeout  time.Duration
	retryMin time.Duration
	retryMax time.Duration
	logger   log.Logger
	metrics  *metrics.Node
}

// outbox delivers syncs to one peer in the order they were queued. A sync
// is retried until the peer acknowledges it, so a peer may apply the same
// sync twice. A sync the peer rejects as invalid is dropped.
type outbox struct {
	cfg outboxConfig

	mu     sync.Mutex
	queue  []protocol.Msg
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newOutbox(cfg outboxConfig) *outbox {
	ctx, cancel := context.WithCancel(context.Background())
	cfg.logger = log.With(cfg.logger, "peer", cfg.peer)
	ob := &outbox{
		cfg:    cfg,
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	ob.wg.Add(1)
	go func() {
		defer ob.wg.Done()
		ob.run()
	}()
	return ob
}

func (ob *outbox) push(msg protocol.Msg) {
	ob.mu.Lock()
	ob.queue = append(ob.queue, msg)
	ob.mu.Unlock()

	select {
	case ob.notify <- struct{}{}:
	default:
	}
}

func (ob *outbox) pending() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.queue)
}

func (ob *outbox) head() (protocol.Msg, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if len(ob.queue) == 0 {
		return nil, false
	}
	return ob.queue[0], true
}

func (ob *outbox) pop() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.queue[0] = nil
	ob.queue = ob.queue[1:]
}

func (ob *outbox) run() {
	backoff := ob.cfg.retryMin
	for {
		msg, ok := ob.head()
		if !ok {
			select {
			case <-ob.ctx.Done():
				return
			case <-ob.notify:
				continue
			}
		}

		if err := ob.deliver(msg); err != nil {
			ob.cfg.metrics.SyncFailures.Add(1)
			if status.Code(err) == codes.InvalidArgument {
				level.Error(ob.cfg.logger).Log("msg", "dropping rejected sync", "sync", msg, "err", err)
				backoff = ob.cfg.retryMin
				ob.pop()
				continue
			}
			level.Warn(ob.cfg.logger).Log("msg", "sync failed", "sync", msg, "retry_in", backoff, "err", err)

			timer := time.NewTimer(backoff)
			select {
			case <-ob.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			backoff *= 2
			if backoff > ob.cfg.retryMax {
				backoff = ob.cfg.retryMax
			}
			continue
		}

		backoff = ob.cfg.retryMin
		ob.cfg.metrics.SyncsSent.With("kind", syncKind(msg)).Add(1)
		ob.pop()
	}
}

func (ob *outbox) deliver(msg protocol.Msg) error {
	client, err := ob.cfg.clients.GetClient(ob.cfg.addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ob.ctx, ob.cfg.timeout)
	defer cancel()
	return client.Sync(ctx, ob.cfg.self, msg)
}

func (ob *outbox) stop() {
	ob.cancel()
	ob.wg.Wait()
}
