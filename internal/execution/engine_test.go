package execution

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/petec4244/arbees/internal/killswitch"
	"github.com/petec4244/arbees/internal/ratelimit"
	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

type fakeOrderClient struct {
	mu         sync.Mutex
	placeCalls int
	placeErr   error
	orderID    string
	status     types.ExecutionStatus
	filledQty  float64
	avgPrice   float64
	statusErr  error
}

func (f *fakeOrderClient) PlaceIOC(ctx context.Context, req types.ExecutionRequest) (string, error) {
	f.mu.Lock()
	f.placeCalls++
	f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return f.orderID, nil
}

func (f *fakeOrderClient) OrderStatus(ctx context.Context, orderID string) (types.ExecutionStatus, float64, float64, error) {
	return f.status, f.filledQty, f.avgPrice, f.statusErr
}

func (f *fakeOrderClient) CancelAll(ctx context.Context, marketID string) error { return nil }

func (f *fakeOrderClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeCalls
}

type fakeExposure struct{ current float64 }

func (f fakeExposure) CurrentExposure(ctx context.Context, marketID string) (float64, error) {
	return f.current, nil
}

type fakeBalanceFetcher struct{ usd float64 }

func (f fakeBalanceFetcher) Balance(ctx context.Context) (float64, error) { return f.usd, nil }

func baseGateConfig() GateConfig {
	return GateConfig{
		LiveTradingEnabled: true,
		MaxOrderSize:       1000,
		MaxOrderContracts:  1000,
		MaxPositionPerMkt:  1000,
		FeeBufferFraction:  0.02,
		MinSafePrice:       0.01,
		MaxSafePrice:       0.99,
		FillPollTimeout:    time.Second,
	}
}

func baseReq() *types.ExecutionRequest {
	return &types.ExecutionRequest{
		RequestID:      "r1",
		IdempotencyKey: "key1",
		Venue:          types.VenueKalshi,
		MarketID:       "m1",
		Side:           types.SideYes,
		LimitPrice:     0.5,
		Size:           10,
		CreatedAt:      time.Now(),
	}
}

func newTestEngine(mode string, cfg GateConfig, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return New(Config{Mode: mode, Gate: cfg}, deps)
}

func TestEvaluateAndPlacePaperHappyPath(t *testing.T) {
	e := newTestEngine("paper", baseGateConfig(), Deps{})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.Status != types.StatusFilled {
		t.Fatalf("expected filled, got %v (%v)", result.Status, result.RejectionReason)
	}
	if result.FilledQty != 10 || result.AvgPrice != 0.5 {
		t.Fatalf("unexpected fill: %+v", result)
	}
}

func TestEvaluateAndPlaceRejectsWhenLiveNotAuthorized(t *testing.T) {
	cfg := baseGateConfig()
	cfg.LiveTradingEnabled = false
	e := newTestEngine("live", cfg, Deps{})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.RejectionReason != types.ReasonAuthorization {
		t.Fatalf("expected authorization rejection, got %+v", result)
	}
}

func TestEvaluateAndPlaceRejectsWhenKillSwitchActive(t *testing.T) {
	sentinel := filepath.Join(t.TempDir(), "kill_switch")
	sw, err := killswitch.New(sentinel, zap.NewNop())
	if err != nil {
		t.Fatalf("new switch: %v", err)
	}
	if err := sw.Enable("test"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	e := newTestEngine("paper", baseGateConfig(), Deps{KillSwitch: sw})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.RejectionReason != types.ReasonKillSwitch {
		t.Fatalf("expected kill switch rejection, got %+v", result)
	}
}

func TestEvaluateAndPlaceRejectsDuplicateIdempotencyKey(t *testing.T) {
	idem := NewIdempotency(time.Minute)
	e := newTestEngine("paper", baseGateConfig(), Deps{Idempotency: idem})

	first := e.evaluateAndPlace(context.Background(), baseReq())
	if first.RejectionReason != "" {
		t.Fatalf("expected first request to pass, got %+v", first)
	}

	second := e.evaluateAndPlace(context.Background(), baseReq())
	if second.RejectionReason != types.ReasonDuplicate {
		t.Fatalf("expected duplicate rejection, got %+v", second)
	}
}

func TestEvaluateAndPlaceRejectsRateLimited(t *testing.T) {
	limiters := ratelimit.NewPerVenue()
	limiters.Add(string(types.VenueKalshi), 1, 1)

	e := newTestEngine("paper", baseGateConfig(), Deps{Limiters: limiters})

	first := e.evaluateAndPlace(context.Background(), baseReq())
	if first.RejectionReason != "" {
		t.Fatalf("expected first request to pass, got %+v", first)
	}
	second := e.evaluateAndPlace(context.Background(), baseReq())
	if second.RejectionReason != types.ReasonRateLimited {
		t.Fatalf("expected rate limited rejection, got %+v", second)
	}
}

func TestEvaluateAndPlaceRejectsSizeCap(t *testing.T) {
	cfg := baseGateConfig()
	cfg.MaxOrderSize = 1.0 // $1 cap, request is 10*0.5=$5
	e := newTestEngine("paper", cfg, Deps{})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.RejectionReason != types.ReasonSizeCap {
		t.Fatalf("expected size cap rejection, got %+v", result)
	}
}

func TestEvaluateAndPlaceRejectsExposureCap(t *testing.T) {
	cfg := baseGateConfig()
	cfg.MaxPositionPerMkt = 10 // request order_value = 10*0.5 = 5, current 8 -> 13 > 10
	e := newTestEngine("paper", cfg, Deps{Exposure: fakeExposure{current: 8}})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.RejectionReason != types.ReasonExposureCap {
		t.Fatalf("expected exposure cap rejection, got %+v", result)
	}
}

func TestEvaluateAndPlaceRejectsInsufficientBalance(t *testing.T) {
	balances := NewBalanceCache(map[types.Venue]venue.BalanceFetcher{}, zap.NewNop())

	e := newTestEngine("paper", baseGateConfig(), Deps{Balances: balances})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.RejectionReason != types.ReasonInsufficientFunds {
		t.Fatalf("expected insufficient balance rejection, got %+v", result)
	}
}

func TestEvaluateAndPlaceSucceedsWithSufficientBalance(t *testing.T) {
	balances := NewBalanceCache(map[types.Venue]venue.BalanceFetcher{
		types.VenueKalshi: fakeBalanceFetcher{usd: 100},
	}, zap.NewNop())
	balances.RefreshAll(context.Background())

	e := newTestEngine("paper", baseGateConfig(), Deps{Balances: balances})
	result := e.evaluateAndPlace(context.Background(), baseReq())

	if result.RejectionReason != "" {
		t.Fatalf("expected request to pass, got %+v", result)
	}
}

func TestEvaluateAndPlaceRejectsUnsafePrice(t *testing.T) {
	req := baseReq()
	req.LimitPrice = 0.995
	e := newTestEngine("paper", baseGateConfig(), Deps{})
	result := e.evaluateAndPlace(context.Background(), req)

	if result.RejectionReason != types.ReasonPriceUnsafe {
		t.Fatalf("expected price unsafe rejection, got %+v", result)
	}
}

func TestHandleArbitragePairBothFilledEmitsBothResults(t *testing.T) {
	e := newTestEngine("paper", baseGateConfig(), Deps{})

	leg0 := baseReq()
	leg0.RequestID = "leg0"
	leg0.IdempotencyKey = "k0"
	leg0.CorrelationID = "corr1"
	leg0.Venue = types.VenueKalshi
	leg0.Side = types.SideYes

	leg1 := baseReq()
	leg1.RequestID = "leg1"
	leg1.IdempotencyKey = "k1"
	leg1.CorrelationID = "corr1"
	leg1.Venue = types.VenuePolymarket
	leg1.Side = types.SideNo

	ctx := context.Background()
	go e.handle(ctx, leg0)
	go e.handle(ctx, leg1)

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case r := <-e.Results():
			seen[r.RequestID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("expected both legs to emit, got %v", seen)
		}
	}
}

func TestApplyCompensationFlattensUnhedgedLeg(t *testing.T) {
	client := &fakeOrderClient{orderID: "flatten-1"}
	e := newTestEngine("live", baseGateConfig(), Deps{
		Orders: map[types.Venue]venue.OrderClient{types.VenueKalshi: client},
	})

	reqFilled := baseReq()
	reqFilled.Venue = types.VenueKalshi
	resFilled := &types.ExecutionResult{Status: types.StatusFilled, FilledQty: 10, AvgPrice: 0.5}

	reqRejected := baseReq()
	reqRejected.RequestID = "r2"
	resRejected := &types.ExecutionResult{Status: types.StatusRejected, RejectionReason: types.ReasonInsufficientFunds}

	pw := &pairWait{
		ready:   make(chan struct{}),
		reqs:    []*types.ExecutionRequest{reqFilled, reqRejected},
		results: []*types.ExecutionResult{resFilled, resRejected},
	}

	e.applyCompensation(context.Background(), pw)

	if client.calls() != 1 {
		t.Fatalf("expected one flatten attempt, got %d", client.calls())
	}
}

func TestOrderWindowCounterEnforcesMinuteCap(t *testing.T) {
	c := newOrderWindowCounter()
	now := time.Now()

	if !c.Allow(now, 2, 0) {
		t.Fatal("expected first order allowed")
	}
	if !c.Allow(now, 2, 0) {
		t.Fatal("expected second order allowed")
	}
	if c.Allow(now, 2, 0) {
		t.Fatal("expected third order rejected by minute cap")
	}
}

func TestIdempotencyPurgesExpiredEntries(t *testing.T) {
	r := NewIdempotency(time.Minute)
	now := time.Now()

	if !r.CheckAndRecord("k", now) {
		t.Fatal("expected new key accepted")
	}
	if r.CheckAndRecord("k", now.Add(30*time.Second)) {
		t.Fatal("expected duplicate rejected within window")
	}
	if !r.CheckAndRecord("k", now.Add(2*time.Minute)) {
		t.Fatal("expected key accepted again after window expiry")
	}
}
