package transport

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// subscriber is one registered topic-pattern listener. A pattern ending
// in ".*" matches any topic sharing its prefix; otherwise it must match
// the topic exactly.
type subscriber struct {
	pattern string
	ch      chan *Envelope
}

func (s *subscriber) matches(topic string) bool {
	if strings.HasSuffix(s.pattern, ".*") {
		return strings.HasPrefix(topic, s.pattern[:len(s.pattern)-1])
	}
	return s.pattern == topic
}

// Bus is an in-process, topic-keyed fanout publisher. It never blocks a
// publisher on a slow subscriber: a subscriber whose channel is full is
// dropped from the registry and its channel closed, mirroring the
// teacher's hub's slow-client eviction policy.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	seq         atomic.Uint64
	logger      *zap.Logger
	bridge      *Bridge
}

// NewBus creates an empty Bus. A non-nil bridge receives a best-effort
// copy of every published envelope for durable mirroring.
func NewBus(logger *zap.Logger, bridge *Bridge) *Bus {
	return &Bus{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger,
		bridge:      bridge,
	}
}

// Subscribe registers pattern and returns a channel of matching
// envelopes and an unsubscribe func. buffer sizes the per-subscriber
// channel; callers that cannot keep up are evicted, not blocked on.
func (b *Bus) Subscribe(pattern string, buffer int) (<-chan *Envelope, func()) {
	sub := &subscriber{pattern: pattern, ch: make(chan *Envelope, buffer)}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Publish stamps seq/ts and fans the envelope out to every subscriber
// whose pattern matches topic, then mirrors it to the durable bridge.
func (b *Bus) Publish(source, topic string, payload []byte, tsMillis int64) {
	env := &Envelope{
		Seq:      b.seq.Add(1),
		TSMillis: tsMillis,
		Source:   source,
		Topic:    topic,
		Payload:  payload,
	}

	b.mu.RLock()
	matched := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		if sub.matches(topic) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	var slow []*subscriber
	for _, sub := range matched {
		select {
		case sub.ch <- env:
		default:
			slow = append(slow, sub)
		}
	}

	if len(slow) > 0 {
		b.mu.Lock()
		for _, sub := range slow {
			if _, ok := b.subscribers[sub]; ok {
				delete(b.subscribers, sub)
				close(sub.ch)
			}
		}
		b.mu.Unlock()
		if b.logger != nil {
			b.logger.Warn("transport-subscriber-evicted-slow", zap.Int("count", len(slow)), zap.String("topic", topic))
		}
	}

	if b.bridge != nil {
		b.bridge.Append(*env)
	}
}

// SubscriberCount reports the number of live subscriptions, for tests
// and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
