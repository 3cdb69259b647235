// Package execution implements the Execution Engine (§4.D): the
// gate-ordered, fail-fast pipeline that turns a validated
// ExecutionRequest into an IOC order placement (or a structured
// rejection), and the linked-pair compensation policy for arbitrage.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petec4244/arbees/internal/killswitch"
	"github.com/petec4244/arbees/internal/ratelimit"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"

	"github.com/petec4244/arbees/internal/venue"
)

// GateConfig holds the thresholds gates G1, G5, G6, G7, G8 evaluate
// against. G2-G4 read live collaborators (kill switch, idempotency
// registry, rate limiters); G4 also applies the per-minute and
// per-hour order caps held here.
type GateConfig struct {
	LiveTradingEnabled bool // result of config.Config.LiveTradingEnabled()
	MaxOrderSize       float64
	MaxOrderContracts  int
	MaxPositionPerMkt  float64
	FeeBufferFraction  float64
	MinSafePrice       float64
	MaxSafePrice       float64
	MinuteOrderCap     int
	HourOrderCap       int
	FillPollTimeout    time.Duration // bounded wait for a terminal response
}

// GateConfigFromAppConfig builds a GateConfig from the shared app config.
func GateConfigFromAppConfig(c *config.Config) GateConfig {
	return GateConfig{
		LiveTradingEnabled: c.LiveTradingEnabled(),
		MaxOrderSize:       c.MaxOrderSize,
		MaxOrderContracts:  c.MaxOrderContracts,
		MaxPositionPerMkt:  c.ExposurePerMarketCap,
		FeeBufferFraction:  c.FeeBufferFraction,
		MinSafePrice:       c.MinSafePrice,
		MaxSafePrice:       c.MaxSafePrice,
		MinuteOrderCap:     c.MinuteOrderCap,
		HourOrderCap:       c.HourOrderCap,
		FillPollTimeout:    c.FillPollTimeout,
	}
}

// Deps collects the Engine's collaborators, one instance per component.
type Deps struct {
	KillSwitch  *killswitch.Switch
	Idempotency *Idempotency
	Limiters    *ratelimit.PerVenue
	Balances    *BalanceCache
	Exposure    ExposureTracker
	Orders      map[types.Venue]venue.OrderClient // nil for paper mode
	Logger      *zap.Logger
}

// Engine runs requests through gates G1-G8 and places orders.
type Engine struct {
	mode   string // "paper" or "live"
	cfg    GateConfig
	deps   Deps
	counts *orderWindowCounter

	mu     sync.Mutex
	seq    uint64

	results chan *types.ExecutionResult

	// pending tracks the first leg of an unmatched arbitrage pair by
	// correlation_id so the second leg can be placed concurrently with
	// it and the pair's outcome reconciled per the compensation policy.
	pendingMu sync.Mutex
	pending   map[string]*pairWait
}

type pairWait struct {
	ready chan struct{}
	reqs  []*types.ExecutionRequest
	results []*types.ExecutionResult
}

// Config holds the Engine's static construction parameters.
type Config struct {
	Mode     string
	Gate     GateConfig
	Requests <-chan *types.ExecutionRequest
}

// New builds an Engine. The caller drives consumption via Run.
func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		mode:    cfg.Mode,
		cfg:     cfg.Gate,
		deps:    deps,
		counts:  newOrderWindowCounter(),
		results: make(chan *types.ExecutionResult, 256),
		pending: make(map[string]*pairWait),
	}
}

// Results returns the channel of execution.result messages.
func (e *Engine) Results() <-chan *types.ExecutionResult {
	return e.results
}

// Run consumes requests until reqs closes or ctx is cancelled. Linked
// arbitrage legs are dispatched to their own goroutine so the two legs
// of a pair are placed concurrently, per §4.D.
func (e *Engine) Run(ctx context.Context, reqs <-chan *types.ExecutionRequest) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-reqs:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(r *types.ExecutionRequest) {
				defer wg.Done()
				e.handle(ctx, r)
			}(req)
		}
	}
}

// handle evaluates gates and, for linked pairs, coordinates placement
// with the sibling leg before emitting results.
func (e *Engine) handle(ctx context.Context, req *types.ExecutionRequest) {
	start := time.Now()
	result := e.evaluateAndPlace(ctx, req)
	result.LatencyMS = time.Since(start).Milliseconds()

	RequestsTotal.WithLabelValues(string(req.SignalType)).Inc()
	if result.RejectionReason != "" {
		RejectionsTotal.WithLabelValues(string(result.RejectionReason)).Inc()
	} else {
		ResultsTotal.WithLabelValues(string(result.Status)).Inc()
	}
	ExecutionLatencySeconds.Observe(time.Since(start).Seconds())

	e.deps.Logger.Info("execution-request-evaluated",
		zap.String("request_id", req.RequestID),
		zap.String("correlation_id", req.CorrelationID),
		zap.String("venue", string(req.Venue)),
		zap.String("market_id", req.MarketID),
		zap.String("status", string(result.Status)),
		zap.String("reject_reason", string(result.RejectionReason)),
		zap.Int64("latency_ms", result.LatencyMS))

	if req.CorrelationID == "" {
		e.emit(result)
		return
	}
	e.reconcilePair(ctx, req, result)
}

// reconcilePair holds the first leg's result until its sibling arrives
// (or a bounded wait elapses), then applies the compensation policy.
func (e *Engine) reconcilePair(ctx context.Context, req *types.ExecutionRequest, result *types.ExecutionResult) {
	e.pendingMu.Lock()
	pw, ok := e.pending[req.CorrelationID]
	if !ok {
		pw = &pairWait{ready: make(chan struct{})}
		e.pending[req.CorrelationID] = pw
	}
	pw.reqs = append(pw.reqs, req)
	pw.results = append(pw.results, result)
	first := !ok
	second := len(pw.reqs) >= 2
	if second {
		delete(e.pending, req.CorrelationID)
	}
	e.pendingMu.Unlock()

	if first && !second {
		// Wait for the sibling, bounded by the fill poll timeout, then
		// emit solo if it never shows (e.g. the sibling was dropped
		// upstream for a reason this leg never saw).
		timeout := e.cfg.FillPollTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		select {
		case <-pw.ready:
		case <-time.After(timeout):
			e.pendingMu.Lock()
			if cur, ok := e.pending[req.CorrelationID]; ok && cur == pw {
				delete(e.pending, req.CorrelationID)
			}
			e.pendingMu.Unlock()
			e.emit(result)
			return
		case <-ctx.Done():
			return
		}
		return
	}

	if second {
		close(pw.ready)
		e.applyCompensation(ctx, pw)
	}
}

// applyCompensation implements the both-filled / both-rejected /
// one-sided outcomes of §4.D's arbitrage pair policy.
func (e *Engine) applyCompensation(ctx context.Context, pw *pairWait) {
	r0, r1 := pw.results[0], pw.results[1]

	filled0 := r0.Status == types.StatusFilled || r0.Status == types.StatusPartial
	filled1 := r1.Status == types.StatusFilled || r1.Status == types.StatusPartial

	e.emit(r0)
	e.emit(r1)

	switch {
	case filled0 && filled1:
		return
	case !filled0 && !filled1:
		return
	default:
		filledReq, filledRes := pw.reqs[0], r0
		if filled1 {
			filledReq, filledRes = pw.reqs[1], r1
		}
		e.flattenUnhedgedLeg(ctx, filledReq, filledRes)
	}
}

// flattenUnhedgedLeg attempts a corrective opposing-side order to close
// the filled leg when its sibling failed to fill. If that also fails,
// it surfaces an unhedged-position alert for the Position Tracker to
// manage the residual as an ordinary single-leg position.
func (e *Engine) flattenUnhedgedLeg(ctx context.Context, req *types.ExecutionRequest, filled *types.ExecutionResult) {
	client, ok := e.deps.Orders[req.Venue]
	if !ok || client == nil {
		e.deps.Logger.Error("position-unhedged-no-client",
			zap.String("request_id", req.RequestID),
			zap.String("venue", string(req.Venue)))
		return
	}

	opposite := types.SideYes
	if req.Side == types.SideYes {
		opposite = types.SideNo
	}

	correction := types.ExecutionRequest{
		RequestID:      req.RequestID + "-flatten",
		IdempotencyKey: req.IdempotencyKey + ":flatten",
		CorrelationID:  req.CorrelationID,
		Venue:          req.Venue,
		MarketID:       req.MarketID,
		Side:           opposite,
		LimitPrice:     filled.AvgPrice,
		Size:           filled.FilledQty,
		EventID:        req.EventID,
		SignalID:       req.SignalID,
		SignalType:     req.SignalType,
		CreatedAt:      time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	orderID, err := client.PlaceIOC(ctx, correction)
	if err != nil {
		e.deps.Logger.Error("position-unhedged-flatten-failed",
			zap.String("request_id", req.RequestID),
			zap.String("venue", string(req.Venue)),
			zap.Error(err))
		FlattenFailuresTotal.Inc()
		return
	}

	e.deps.Logger.Warn("position-flattened-after-unhedged-leg",
		zap.String("request_id", req.RequestID),
		zap.String("order_id", orderID))
}

// evaluateAndPlace runs the fixed gate order G1-G8 and, on success,
// places the order.
func (e *Engine) evaluateAndPlace(ctx context.Context, req *types.ExecutionRequest) *types.ExecutionResult {
	now := time.Now()
	result := &types.ExecutionResult{
		RequestID:      req.RequestID,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
		Venue:          req.Venue,
		MarketID:       req.MarketID,
		Side:           req.Side,
		ExecutedAt:     now,
	}

	// G1 Authorization.
	if e.mode == "live" && !e.cfg.LiveTradingEnabled {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonAuthorization
		return result
	}

	// G2 Kill switch.
	if e.deps.KillSwitch != nil && e.deps.KillSwitch.IsActive() {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonKillSwitch
		return result
	}

	// G3 Idempotency.
	if e.deps.Idempotency != nil && !e.deps.Idempotency.CheckAndRecord(req.IdempotencyKey, now) {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonDuplicate
		return result
	}

	// G4 Rate limit: token bucket (burst shape) and fixed-window caps.
	if e.deps.Limiters != nil && !e.deps.Limiters.Allow(string(req.Venue)) {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonRateLimited
		return result
	}
	if !e.counts.Allow(now, e.cfg.MinuteOrderCap, e.cfg.HourOrderCap) {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonRateLimited
		return result
	}

	orderValue := req.Size * req.LimitPrice

	// G5 Size caps.
	if req.Size > float64(e.cfg.MaxOrderContracts) || orderValue > e.cfg.MaxOrderSize {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonSizeCap
		return result
	}

	// G6 Exposure cap.
	if e.deps.Exposure != nil {
		current, err := e.deps.Exposure.CurrentExposure(ctx, req.MarketID)
		if err != nil {
			result.Status = types.StatusFailed
			result.RejectionReason = ""
			e.deps.Logger.Error("exposure-lookup-failed", zap.String("request_id", req.RequestID), zap.Error(err))
			return result
		}
		if current+orderValue > e.cfg.MaxPositionPerMkt {
			result.Status = types.StatusRejected
			result.RejectionReason = types.ReasonExposureCap
			return result
		}
	}

	// G7 Balance.
	if e.deps.Balances != nil {
		required := orderValue * (1 + e.cfg.FeeBufferFraction)
		if e.deps.Balances.Get(req.Venue) < required {
			result.Status = types.StatusRejected
			result.RejectionReason = types.ReasonInsufficientFunds
			return result
		}
	}

	// G8 Price sanity.
	if req.LimitPrice < e.cfg.MinSafePrice || req.LimitPrice > e.cfg.MaxSafePrice {
		result.Status = types.StatusRejected
		result.RejectionReason = types.ReasonPriceUnsafe
		return result
	}

	return e.place(ctx, req, result)
}

// place submits the IOC order (paper simulation or live venue client)
// and resolves its terminal status within a bounded wait, polling once
// if no terminal response arrives in time.
func (e *Engine) place(ctx context.Context, req *types.ExecutionRequest, result *types.ExecutionResult) *types.ExecutionResult {
	if e.mode != "live" {
		result.Status = types.StatusFilled
		result.OrderID = "paper-" + req.RequestID
		result.FilledQty = req.Size
		result.AvgPrice = req.LimitPrice
		return result
	}

	client, ok := e.deps.Orders[req.Venue]
	if !ok || client == nil {
		result.Status = types.StatusFailed
		e.deps.Logger.Error("no-order-client-configured", zap.String("venue", string(req.Venue)))
		return result
	}

	timeout := e.cfg.FillPollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	placeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	orderID, err := client.PlaceIOC(placeCtx, *req)
	if err != nil {
		kind := venue.ClassifyError(err)
		result.Status = types.StatusFailed
		e.deps.Logger.Error("order-placement-failed",
			zap.String("request_id", req.RequestID),
			zap.String("error_kind", string(kind)),
			zap.Error(err))
		if e.deps.Balances != nil {
			RefreshAfterFailure(ctx, e.deps.Balances, req.Venue)
		}
		return result
	}
	result.OrderID = orderID

	status, filledQty, avgPrice, err := client.OrderStatus(placeCtx, orderID)
	if err != nil {
		// Indeterminate after the bounded wait; poll once more before
		// giving up, per §4.D's "if still indeterminate, mark Failed".
		status, filledQty, avgPrice, err = client.OrderStatus(ctx, orderID)
		if err != nil {
			result.Status = types.StatusFailed
			e.deps.Logger.Error("order-status-indeterminate",
				zap.String("request_id", req.RequestID),
				zap.String("order_id", orderID),
				zap.Error(err))
			return result
		}
	}

	result.Status = status
	result.FilledQty = filledQty
	result.AvgPrice = avgPrice

	if status == types.StatusFilled || status == types.StatusPartial {
		if e.deps.Balances != nil {
			RefreshAfterFill(ctx, e.deps.Balances, req.Venue)
		}
	}

	return result
}

// RefreshAfterFill forces an immediate balance refresh for venue v after
// a fill, rather than waiting for the next fixed-cadence tick.
func RefreshAfterFill(ctx context.Context, cache *BalanceCache, v types.Venue) {
	fetcher, ok := cache.fetchers[v]
	if !ok {
		return
	}
	if usd, err := fetcher.Balance(ctx); err == nil {
		cache.Set(v, usd)
	}
}

// RefreshAfterFailure is RefreshAfterFill's counterpart for a failed
// placement, which can also indicate a balance the cache has gone stale
// on (e.g. a concurrent withdrawal).
func RefreshAfterFailure(ctx context.Context, cache *BalanceCache, v types.Venue) {
	RefreshAfterFill(ctx, cache, v)
}

// emit sends result on Results(), logging and dropping if the consumer
// has fallen behind rather than blocking the hot path.
func (e *Engine) emit(result *types.ExecutionResult) {
	select {
	case e.results <- result:
	default:
		e.deps.Logger.Error("execution-result-dropped-consumer-slow",
			zap.String("request_id", result.RequestID))
	}
}

// NextClientOrderID builds a deterministic client order id from a
// timestamp prefix and an atomic counter, per §4.D.
func (e *Engine) NextClientOrderID() string {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}
