package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeAppendStore struct {
	mu   sync.Mutex
	seen []Envelope
}

func (f *fakeAppendStore) Append(ctx context.Context, env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, env)
	return nil
}

func (f *fakeAppendStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func TestBusPublishDeliversToExactMatchSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)
	ch, unsub := bus.Subscribe(TopicExecutionResult, 4)
	defer unsub()

	bus.Publish("engine", TopicExecutionResult, []byte("payload"), 1000)

	select {
	case env := <-ch:
		if env.Topic != TopicExecutionResult || string(env.Payload) != "payload" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("expected envelope delivered")
	}
}

func TestBusPublishMatchesWildcardPrefix(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)
	ch, unsub := bus.Subscribe("price.kalshi.*", 4)
	defer unsub()

	bus.Publish("ingestor", PriceTopic("kalshi", "m1"), []byte("x"), 1)

	select {
	case env := <-ch:
		if env.Topic != "price.kalshi.m1" {
			t.Fatalf("unexpected topic: %s", env.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("expected wildcard match delivered")
	}
}

func TestBusPublishSkipsNonMatchingSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)
	ch, unsub := bus.Subscribe("price.polymarket.*", 4)
	defer unsub()

	bus.Publish("ingestor", PriceTopic("kalshi", "m1"), []byte("x"), 1)

	select {
	case env := <-ch:
		t.Fatalf("expected no delivery, got %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusEvictsSlowSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)
	_, unsub := bus.Subscribe(TopicSignalEdge, 1)
	defer unsub()

	bus.Publish("s", TopicSignalEdge, []byte("1"), 1)
	bus.Publish("s", TopicSignalEdge, []byte("2"), 2) // channel full -> evicted

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected slow subscriber evicted, count=%d", bus.SubscriberCount())
	}
}

func TestBusMirrorsToBridge(t *testing.T) {
	store := &fakeAppendStore{}
	bridge := NewBridge(store, 16, zap.NewNop())
	bus := NewBus(zap.NewNop(), bridge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	bus.Publish("engine", TopicExecutionResult, []byte("x"), 1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.count() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected bridge to mirror envelope, got %d", store.count())
}

func TestEncodeJSONReturnsIndependentBuffer(t *testing.T) {
	a, err := EncodeJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := EncodeJSON(map[string]int{"a": 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(a) == string(b) {
		t.Fatalf("expected distinct payloads, got %q and %q", a, b)
	}
}
