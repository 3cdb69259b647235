package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AppendStore is the narrow durable-stream sink a Bridge mirrors
// envelopes into. Generalized from the teacher's single-purpose
// StoreOpportunity(ctx, *Opportunity) into a topic-agnostic Append.
type AppendStore interface {
	Append(ctx context.Context, env Envelope) error
}

// Bridge asynchronously mirrors every bus envelope into a durable
// AppendStore. Mirroring is best-effort: a slow or failing store never
// backpressures the bus, matching the transport's never-block publisher
// contract.
type Bridge struct {
	store  AppendStore
	queue  chan Envelope
	logger *zap.Logger
}

// NewBridge creates a Bridge with a bounded internal queue. capacity
// bounds how many envelopes can be in flight; once it is full, each newly
// appended envelope is dropped (the publisher is never blocked).
func NewBridge(store AppendStore, capacity int, logger *zap.Logger) *Bridge {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bridge{
		store:  store,
		queue:  make(chan Envelope, capacity),
		logger: logger,
	}
}

// Append enqueues env for durable mirroring, dropping and logging if the
// queue is saturated rather than blocking the publisher.
func (b *Bridge) Append(env Envelope) {
	select {
	case b.queue <- env:
	default:
		b.logger.Warn("transport-bridge-queue-full-dropped", zap.String("topic", env.Topic), zap.Uint64("seq", env.Seq))
	}
}

// Run drains the queue into the store until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-b.queue:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := b.store.Append(writeCtx, env)
			cancel()
			if err != nil {
				b.logger.Error("transport-bridge-append-failed", zap.String("topic", env.Topic), zap.Uint64("seq", env.Seq), zap.Error(err))
			}
		}
	}
}
