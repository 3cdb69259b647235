package ingestor

import (
	"context"
	"testing"
	"time"

	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// fakeFeed is a minimal venue.PriceFeed double: it emits the updates
// passed to it at construction, then blocks until ctx is cancelled.
type fakeFeed struct {
	updates chan venue.QuoteUpdate
	seed    []venue.QuoteUpdate
}

func newFakeFeed(seed []venue.QuoteUpdate) *fakeFeed {
	return &fakeFeed{updates: make(chan venue.QuoteUpdate, 10), seed: seed}
}

func (f *fakeFeed) Subscribe(ctx context.Context, marketIDs []string) error { return nil }

func (f *fakeFeed) Run(ctx context.Context) error {
	for _, u := range f.seed {
		f.updates <- u
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeFeed) Updates() <-chan venue.QuoteUpdate { return f.updates }
func (f *fakeFeed) Close() error                      { return nil }

func TestSupervisorAppliesUpdatesToStore(t *testing.T) {
	store := quote.NewStore()
	feed := newFakeFeed([]venue.QuoteUpdate{
		{Venue: types.VenueKalshi, MarketID: "NFL-X", YesAskCents: 55, NoAskCents: 42, Seq: 1},
	})

	sup := New(Config{
		Feeds:  []Feed{{Venue: types.VenueKalshi, Feed: feed}},
		Store:  store,
		Logger: zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go sup.Run(ctx)

	var got quote.Snapshot
	select {
	case got = <-sup.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot on Updates()")
	}

	if got.MarketID != "NFL-X" || got.YesAskCents != 55 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	snap, ok := store.Get(string(types.VenueKalshi), "NFL-X")
	if !ok {
		t.Fatal("expected store to hold the applied snapshot")
	}
	if snap.YesAskCents != 55 || snap.NoAskCents != 42 {
		t.Fatalf("unexpected stored snapshot: %+v", snap)
	}
}

func TestSupervisorRunReturnsOnContextCancel(t *testing.T) {
	store := quote.NewStore()
	feed := newFakeFeed(nil)

	sup := New(Config{
		Feeds:  []Feed{{Venue: types.VenuePolymarket, Feed: feed}},
		Store:  store,
		Logger: zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after cancellation")
	}
}
