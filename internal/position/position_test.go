package position

import (
	"context"
	"testing"
	"time"

	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

type fakeQuotes struct{ snap quote.Snapshot }

func (f fakeQuotes) Get(venue, marketID string) (quote.Snapshot, bool) { return f.snap, true }

type fakeEvents struct{ event *types.Event }

func (f fakeEvents) Fetch(ctx context.Context, eventID string) (*types.Event, error) {
	return f.event, nil
}

type fakeProbabilities struct{ prob float64 }

func (f fakeProbabilities) WinProbability(ctx context.Context, event *types.Event) (float64, error) {
	return f.prob, nil
}

type fakeHoldings struct {
	holdings map[string]float64
}

func (f fakeHoldings) Holdings(ctx context.Context) (map[string]float64, error) {
	return f.holdings, nil
}

type fakeStore struct {
	saved  []*types.Position
	closed []*types.Position
}

func (f *fakeStore) SavePosition(ctx context.Context, pos *types.Position) error {
	f.saved = append(f.saved, pos)
	return nil
}

func (f *fakeStore) SaveClosedPosition(ctx context.Context, pos *types.Position) error {
	f.closed = append(f.closed, pos)
	return nil
}

func baseConfig() Config {
	return Config{
		ExitInterval:        time.Second,
		MinHoldTime:         0,
		StopLossBPS:         500,
		TakeProfitBPS:       500,
		MaxHoldTime:         time.Hour,
		ModelReversalBPS:    0,
		SlippageBufferCents: 1,
		ExitFeeBufferFrac:   0,
		ReconcileInterval:   time.Hour,
		MismatchTolerance:   0.01,
	}
}

func TestOnFilledCreatesOpenPosition(t *testing.T) {
	store := &fakeStore{}
	tr := New(baseConfig(), Deps{Logger: zap.NewNop(), Store: store})

	result := &types.ExecutionResult{
		RequestID:  "req1",
		Venue:      types.VenueKalshi,
		MarketID:   "m1",
		Side:       types.SideYes,
		Status:     types.StatusFilled,
		FilledQty:  10,
		AvgPrice:   0.5,
		ExecutedAt: time.Now(),
	}

	pos := tr.OnFilled(context.Background(), result, "home-team")

	if pos.Status != types.PositionOpen {
		t.Fatalf("expected open position, got %v", pos.Status)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected position persisted, got %d", len(store.saved))
	}

	select {
	case u := <-tr.Updates():
		if u.PositionID != pos.PositionID {
			t.Fatalf("unexpected update: %+v", u)
		}
	default:
		t.Fatal("expected a position update to be published")
	}
}

func TestCheckExitTriggersStopLoss(t *testing.T) {
	tr := New(baseConfig(), Deps{
		Logger: zap.NewNop(),
		Quotes: fakeQuotes{snap: quote.Snapshot{YesAskCents: 40}},
	})

	pos := &types.Position{
		PositionID: "p1",
		Venue:      types.VenueKalshi,
		MarketID:   "m1",
		Side:       types.SideYes,
		EntryPrice: 0.50,
		Size:       10,
		EntryTime:  time.Now().Add(-time.Minute),
	}
	tr.mu.Lock()
	tr.open[pos.PositionID] = pos
	tr.mu.Unlock()

	tr.checkExit(context.Background(), pos)

	select {
	case req := <-tr.ExitRequests():
		if req.CorrelationID != pos.PositionID {
			t.Fatalf("expected exit request correlated to position, got %+v", req)
		}
		if req.Side != types.SideNo {
			t.Fatalf("expected opposite side exit, got %v", req.Side)
		}
	default:
		t.Fatal("expected a stop-loss exit request")
	}

	if pos.ExitTrigger != types.ExitStopLoss {
		t.Fatalf("expected stop loss trigger recorded, got %v", pos.ExitTrigger)
	}
}

func TestCheckExitTriggersFinalSettlement(t *testing.T) {
	tr := New(baseConfig(), Deps{
		Logger: zap.NewNop(),
		Quotes: fakeQuotes{snap: quote.Snapshot{YesAskCents: 90}},
		Events: fakeEvents{event: &types.Event{
			EventID:     "e1",
			EntityHome:  "home-team",
			EntityAway:  "away-team",
			State:       types.EventFinal,
			FinalWinner: "home-team",
		}},
	})

	pos := &types.Position{
		PositionID: "p1",
		EventID:    "e1",
		Venue:      types.VenueKalshi,
		MarketID:   "m1",
		Entity:     "home-team",
		Side:       types.SideYes,
		EntryPrice: 0.50,
		Size:       10,
		EntryTime:  time.Now(),
	}

	tr.checkExit(context.Background(), pos)

	select {
	case req := <-tr.ExitRequests():
		if req.LimitPrice != 1.0 {
			t.Fatalf("expected settlement at $1, got %v", req.LimitPrice)
		}
	default:
		t.Fatal("expected a final settlement exit request")
	}
	if pos.ExitTrigger != types.ExitFinalSettlement {
		t.Fatalf("expected final settlement trigger, got %v", pos.ExitTrigger)
	}
}

func TestOnExitFilledClosesAndArchivesPosition(t *testing.T) {
	store := &fakeStore{}
	tr := New(baseConfig(), Deps{Logger: zap.NewNop(), Store: store})

	pos := &types.Position{
		PositionID: "p1",
		Venue:      types.VenueKalshi,
		MarketID:   "m1",
		Side:       types.SideYes,
		EntryPrice: 0.50,
		Size:       10,
		EntryTime:  time.Now().Add(-time.Hour),
	}
	tr.mu.Lock()
	tr.open[pos.PositionID] = pos
	tr.mu.Unlock()

	exitResult := &types.ExecutionResult{
		CorrelationID: "p1",
		Status:        types.StatusFilled,
		AvgPrice:      0.60,
		ExecutedAt:    time.Now(),
	}
	tr.OnExitFilled(context.Background(), exitResult)

	tr.mu.RLock()
	_, stillOpen := tr.open["p1"]
	tr.mu.RUnlock()
	if stillOpen {
		t.Fatal("expected position removed from open set")
	}
	if len(store.closed) != 1 {
		t.Fatalf("expected closed position archived, got %d", len(store.closed))
	}
	if store.closed[0].RealizedPnL <= 0 {
		t.Fatalf("expected positive realized pnl, got %v", store.closed[0].RealizedPnL)
	}
}

func TestReconcileAlertsOnMismatch(t *testing.T) {
	tr := New(baseConfig(), Deps{
		Logger: zap.NewNop(),
		Holdings: map[types.Venue]VenueHoldings{
			types.VenueKalshi: fakeHoldings{holdings: map[string]float64{"m1": 25}},
		},
	})

	pos := &types.Position{
		PositionID: "p1",
		Venue:      types.VenueKalshi,
		MarketID:   "m1",
		Size:       10,
		Status:     types.PositionOpen,
	}
	tr.mu.Lock()
	tr.open[pos.PositionID] = pos
	tr.mu.Unlock()

	tr.reconcile(context.Background())

	select {
	case alert := <-tr.Alerts():
		if alert == "" {
			t.Fatal("expected non-empty alert")
		}
	default:
		t.Fatal("expected a position_mismatch alert")
	}
}

func TestReconcileNoAlertWhenMatched(t *testing.T) {
	tr := New(baseConfig(), Deps{
		Logger: zap.NewNop(),
		Holdings: map[types.Venue]VenueHoldings{
			types.VenueKalshi: fakeHoldings{holdings: map[string]float64{"m1": 10}},
		},
	})

	pos := &types.Position{
		PositionID: "p1",
		Venue:      types.VenueKalshi,
		MarketID:   "m1",
		Size:       10,
		Status:     types.PositionOpen,
	}
	tr.mu.Lock()
	tr.open[pos.PositionID] = pos
	tr.mu.Unlock()

	tr.reconcile(context.Background())

	select {
	case alert := <-tr.Alerts():
		t.Fatalf("expected no alert, got %q", alert)
	default:
	}
}
