package signal

import (
	"context"
	"testing"
	"time"

	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

type fakeDedup struct{ seen map[string]bool }

func (f *fakeDedup) SeenRecently(ctx context.Context, signalID string, window time.Duration) (bool, error) {
	if f.seen[signalID] {
		return true, nil
	}
	f.seen[signalID] = true
	return false, nil
}

type fakeCooldowns struct{ active bool }

func (f *fakeCooldowns) Active(ctx context.Context, eventID string, side types.Side) (bool, error) {
	return f.active, nil
}

type fakeExposure struct{ per, event, global, category float64 }

func (f *fakeExposure) PerMarket(ctx context.Context, marketID string) (float64, error) { return f.per, nil }
func (f *fakeExposure) PerEvent(ctx context.Context, eventID string) (float64, error)    { return f.event, nil }
func (f *fakeExposure) Global(ctx context.Context) (float64, error)                     { return f.global, nil }
func (f *fakeExposure) PerCategory(ctx context.Context, category string) (float64, error) {
	return f.category, nil
}

type fakeBankroll struct{ amount float64 }

func (f *fakeBankroll) Available(ctx context.Context) (float64, error) { return f.amount, nil }

func testDeps() Deps {
	return Deps{
		Dedup:     &fakeDedup{seen: map[string]bool{}},
		Cooldowns: &fakeCooldowns{},
		Exposure:  &fakeExposure{},
		Bankroll:  &fakeBankroll{amount: 10000},
		Logger:    zap.NewNop(),
	}
}

func testConfig() Config {
	return Config{
		MinEdgeBPS:             150,
		MinSafePrice:           0.05,
		MaxSafePrice:           0.95,
		PriorDriftMaxDelta:     0.3,
		KellyCapFraction:       0.25,
		MinOrderSize:           1,
		MaxOrderSize:           100,
		MaxOrderContracts:      500,
		ExposurePerMarketCap:   500,
		ExposurePerEventCap:    1000,
		ExposureGlobalCap:      10000,
		ExposurePerCategoryCap: 5000,
		DedupWindow:            10 * time.Minute,
	}
}

func arbSignal(id string) *types.Signal {
	return &types.Signal{
		ID:      id,
		Kind:    types.SignalArbitrage,
		EventID: "evt-1",
		Entity:  "Home Team",
		Legs: []types.SignalLeg{
			{Venue: types.VenueKalshi, MarketID: "NFL-X", Side: types.SideYes, Price: 0.45, Size: 100},
			{Venue: types.VenuePolymarket, MarketID: "0xabc", Side: types.SideNo, Price: 0.50, Size: 100},
		},
		DetectedAt: time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
}

func TestProcessArbitrageHappyPath(t *testing.T) {
	p := New(testConfig(), testDeps())
	reqs, reason, err := p.Process(context.Background(), arbSignal("sig-1"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "" {
		t.Fatalf("expected no rejection, got %q", reason)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 linked requests, got %d", len(reqs))
	}
	if reqs[0].CorrelationID != reqs[1].CorrelationID {
		t.Fatal("expected both legs to share a correlation id")
	}
	if reqs[0].Size != 100 || reqs[1].Size != 100 {
		t.Fatalf("expected size bounded by liquidity (100), got %v/%v", reqs[0].Size, reqs[1].Size)
	}
}

func TestProcessRejectsExpiredSignal(t *testing.T) {
	p := New(testConfig(), testDeps())
	sig := arbSignal("sig-2")
	sig.ExpiresAt = time.Now().Add(-time.Second)

	_, reason, err := p.Process(context.Background(), sig, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonExpired {
		t.Fatalf("expected expired rejection, got %q", reason)
	}
}

func TestProcessRejectsDuplicateSignal(t *testing.T) {
	deps := testDeps()
	p := New(testConfig(), deps)
	sig := arbSignal("sig-3")

	if _, reason, _ := p.Process(context.Background(), sig, 0); reason != "" {
		t.Fatalf("expected first pass to succeed, got %q", reason)
	}
	_, reason, err := p.Process(context.Background(), sig, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonDuplicate {
		t.Fatalf("expected duplicate rejection, got %q", reason)
	}
}

func TestProcessRejectsDuringCooldown(t *testing.T) {
	deps := testDeps()
	deps.Cooldowns = &fakeCooldowns{active: true}
	p := New(testConfig(), deps)

	_, reason, err := p.Process(context.Background(), arbSignal("sig-4"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonCooldown {
		t.Fatalf("expected cooldown rejection, got %q", reason)
	}
}

func TestProcessRejectsUnsafePrice(t *testing.T) {
	p := New(testConfig(), testDeps())
	sig := arbSignal("sig-5")
	sig.Legs[0].Price = 0.97 // above MaxSafePrice

	_, reason, err := p.Process(context.Background(), sig, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonPriceUnsafe {
		t.Fatalf("expected price-unsafe rejection, got %q", reason)
	}
}

func TestProcessRejectsPriceAtSafeBoundary(t *testing.T) {
	p := New(testConfig(), testDeps())
	sig := arbSignal("sig-5b")
	sig.Legs[0].Price = 0.95 // exactly at MaxSafePrice, open interval

	_, reason, err := p.Process(context.Background(), sig, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonPriceUnsafe {
		t.Fatalf("expected boundary price to be rejected (open interval), got %q", reason)
	}
}

func TestProcessRejectsPriorDrift(t *testing.T) {
	p := New(testConfig(), testDeps())
	sig := arbSignal("sig-6")

	_, reason, err := p.Process(context.Background(), sig, 0.90) // |0.45-0.90| > 0.3
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonPriceDrift {
		t.Fatalf("expected price-drift rejection, got %q", reason)
	}
}

func TestProcessRejectsOnExposureCap(t *testing.T) {
	deps := testDeps()
	deps.Exposure = &fakeExposure{per: 490} // notional (100*0.45=45) would push past 500 cap
	p := New(testConfig(), deps)

	_, reason, err := p.Process(context.Background(), arbSignal("sig-7"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonExposureCap {
		t.Fatalf("expected exposure-cap rejection, got %q", reason)
	}
}

func edgeSignal(id string) *types.Signal {
	return &types.Signal{
		ID:        id,
		Kind:      types.SignalEdge,
		EventID:   "evt-2",
		Entity:    "Home Team",
		ModelProb: 0.70,
		EdgeBPS:   500,
		Legs: []types.SignalLeg{
			{Venue: types.VenueKalshi, MarketID: "NFL-Y", Side: types.SideYes, Price: 0.60, Size: 1000},
		},
		DetectedAt: time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
}

func TestProcessEdgeSignalSizesViaKelly(t *testing.T) {
	p := New(testConfig(), testDeps())
	reqs, reason, err := p.Process(context.Background(), edgeSignal("edge-1"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "" {
		t.Fatalf("expected no rejection, got %q", reason)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Size <= 0 {
		t.Fatalf("expected positive Kelly-derived size, got %v", reqs[0].Size)
	}
}

func TestProcessEdgeSignalRejectsWhenNoEdge(t *testing.T) {
	p := New(testConfig(), testDeps())
	sig := edgeSignal("edge-2")
	sig.ModelProb = 0.55
	sig.Legs[0].Price = 0.60 // model prob below price: negative Kelly fraction

	_, reason, err := p.Process(context.Background(), sig, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != types.ReasonSizeTooSmall {
		t.Fatalf("expected size-too-small rejection on negative edge, got %q", reason)
	}
}

func TestKellyFractionMatchesFormula(t *testing.T) {
	got := kellyFraction(0.7, 0.6)
	want := 0.7 - 0.3*0.6/0.4
	if got != want {
		t.Fatalf("kellyFraction(0.7,0.6) = %v, want %v", got, want)
	}
}
