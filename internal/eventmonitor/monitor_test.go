package eventmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/pkg/cache"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

type fakeStates struct {
	event *types.Event
	err   error
}

func (f *fakeStates) Fetch(ctx context.Context, eventID string) (*types.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

type fakeCooldowns struct{ active bool }

func (f *fakeCooldowns) Active(ctx context.Context, eventID string, side types.Side) (bool, error) {
	return f.active, nil
}

type fixedProb struct{ p float64 }

func (f fixedProb) WinProbability(ctx context.Context, event *types.Event) (float64, error) {
	return f.p, nil
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     1 << 20,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func testLink() types.EventLink {
	return types.EventLink{
		EventID: "evt-1",
		VenueMarkets: map[types.Venue]string{
			types.VenueKalshi:     "NFL-X",
			types.VenuePolymarket: "0xabc",
		},
	}
}

func liveEvent() *types.Event {
	return &types.Event{
		EventID:     "evt-1",
		Kind:        types.EventKindSport,
		EntityHome:  "Home",
		EntityAway:  "Away",
		State:       types.EventLive,
		PregamePrior: 0.5,
	}
}

func TestEvaluateEmitsArbitrageWhenDeficitCrossesThreshold(t *testing.T) {
	store := quote.NewStore()
	store.Apply(string(types.VenueKalshi), "NFL-X", quote.Snapshot{MarketID: "NFL-X", YesAskCents: 45, YesSizeCts: 100, NoAskCents: 60, NoSizeCts: 100, Seq: 1})
	store.Apply(string(types.VenuePolymarket), "0xabc", quote.Snapshot{MarketID: "0xabc", YesAskCents: 55, YesSizeCts: 100, NoAskCents: 50, NoSizeCts: 100, Seq: 1})

	mon := New(Config{
		TickInterval:      time.Hour,
		StalenessTTL:      time.Minute,
		ArbThresholdCents: 3,
		MinEdgeBPS:        100000, // disable edge test for this case
		MaxSizeCap:        1000,
	}, Deps{
		States:        &fakeStates{event: liveEvent()},
		Probabilities: fixedProb{p: 0.5},
		Quotes:        store,
		Cooldowns:     &fakeCooldowns{},
		Logger:        zap.NewNop(),
	}, newTestCache(t))

	mon.Assign(testLink())
	mon.evaluate(context.Background(), "evt-1")

	select {
	case sig := <-mon.Signals():
		if sig.Kind != types.SignalArbitrage {
			t.Fatalf("expected arbitrage signal, got %v", sig.Kind)
		}
		if len(sig.Legs) != 2 {
			t.Fatalf("expected 2 legs, got %d", len(sig.Legs))
		}
	case <-time.After(time.Second):
		t.Fatal("expected an arbitrage signal")
	}
}

func TestEvaluateEmitsEdgeSignalWhenModelDiverges(t *testing.T) {
	store := quote.NewStore()
	store.Apply(string(types.VenueKalshi), "NFL-X", quote.Snapshot{MarketID: "NFL-X", YesAskCents: 50, YesSizeCts: 100, NoAskCents: 52, NoSizeCts: 100, Seq: 1})
	store.Apply(string(types.VenuePolymarket), "0xabc", quote.Snapshot{MarketID: "0xabc", YesAskCents: 51, YesSizeCts: 100, NoAskCents: 51, NoSizeCts: 100, Seq: 1})

	mon := New(Config{
		TickInterval:      time.Hour,
		StalenessTTL:      time.Minute,
		ArbThresholdCents: 100, // disable arbitrage test
		MinEdgeBPS:        150,
		MaxSizeCap:        1000,
	}, Deps{
		States:        &fakeStates{event: liveEvent()},
		Probabilities: fixedProb{p: 0.70}, // model thinks home much more likely than 0.50 market price
		Quotes:        store,
		Cooldowns:     &fakeCooldowns{},
		Logger:        zap.NewNop(),
	}, newTestCache(t))

	mon.Assign(testLink())
	mon.evaluate(context.Background(), "evt-1")

	select {
	case sig := <-mon.Signals():
		if sig.Kind != types.SignalEdge {
			t.Fatalf("expected edge signal, got %v", sig.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an edge signal")
	}
}

func TestEvaluateSuppressesOnStaleState(t *testing.T) {
	store := quote.NewStore()
	mon := New(Config{
		TickInterval: time.Hour,
		StalenessTTL: time.Minute,
		MinEdgeBPS:   150,
		MaxSizeCap:   1000,
	}, Deps{
		States:        &fakeStates{err: errors.New("source down")},
		Probabilities: fixedProb{p: 0.5},
		Quotes:        store,
		Cooldowns:     &fakeCooldowns{},
		Logger:        zap.NewNop(),
	}, newTestCache(t))

	mon.Assign(testLink())
	mon.evaluate(context.Background(), "evt-1")

	select {
	case sig := <-mon.Signals():
		t.Fatalf("expected no signal on stale state, got %+v", sig)
	default:
	}
}

func TestEventMonitorReleasesAfterConsecutiveFailures(t *testing.T) {
	store := quote.NewStore()
	mon := New(Config{
		TickInterval:           time.Hour,
		StalenessTTL:           time.Minute,
		MaxConsecutiveFailures: 2,
	}, Deps{
		States:        &fakeStates{err: errors.New("source down")},
		Probabilities: fixedProb{p: 0.5},
		Quotes:        store,
		Cooldowns:     &fakeCooldowns{},
		Logger:        zap.NewNop(),
	}, newTestCache(t))

	mon.Assign(testLink())
	mon.evaluate(context.Background(), "evt-1")
	mon.evaluate(context.Background(), "evt-1")

	select {
	case id := <-mon.ReleaseRequests():
		if id != "evt-1" {
			t.Fatalf("expected release for evt-1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a release request after consecutive failures")
	}
}

func TestAssignAndReleaseUpdateMarketIndex(t *testing.T) {
	mon := New(Config{TickInterval: time.Hour}, Deps{
		States:        &fakeStates{event: liveEvent()},
		Probabilities: fixedProb{p: 0.5},
		Quotes:        quote.NewStore(),
		Cooldowns:     &fakeCooldowns{},
		Logger:        zap.NewNop(),
	}, newTestCache(t))

	link := testLink()
	mon.Assign(link)

	mon.mu.RLock()
	_, indexed := mon.marketIndex["NFL-X"]
	mon.mu.RUnlock()
	if !indexed {
		t.Fatal("expected market index to contain NFL-X after Assign")
	}

	mon.Release(link.EventID)

	mon.mu.RLock()
	ids := mon.marketIndex["NFL-X"]
	mon.mu.RUnlock()
	if len(ids) != 0 {
		t.Fatalf("expected market index entry to be cleared after Release, got %v", ids)
	}
}
