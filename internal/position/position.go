// Package position implements the Position Tracker (§4.E): the sole
// owner of the open-positions set, the exit-check pipeline that drives
// closes, and holdings reconciliation against each venue.
package position

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// QuoteSource reads the same-entity quote a position was opened on,
// never the opposite side (§8, TE1).
type QuoteSource interface {
	Get(venue, marketID string) (quote.Snapshot, bool)
}

// EventSource fetches the current lifecycle/scoreboard state of an
// Event, used for final-settlement and model-reversal exit checks.
type EventSource interface {
	Fetch(ctx context.Context, eventID string) (*types.Event, error)
}

// ProbabilitySource computes the current model win probability for an
// Event's home entity, reused for the model-reversal exit check.
type ProbabilitySource interface {
	WinProbability(ctx context.Context, event *types.Event) (float64, error)
}

// VenueHoldings reports actual held size per market on one venue, the
// ground truth reconciliation compares against the Tracker's own set.
type VenueHoldings interface {
	Holdings(ctx context.Context) (map[string]float64, error) // market_id -> size
}

// Store persists position lifecycle events to the durable store;
// archival retains closed positions once in-memory state drops them.
type Store interface {
	SavePosition(ctx context.Context, pos *types.Position) error
	SaveClosedPosition(ctx context.Context, pos *types.Position) error
}

// Config holds the exit-check thresholds and monitoring cadences.
type Config struct {
	ExitInterval         time.Duration // default 1s
	MinHoldTime          time.Duration
	StopLossBPS          int
	TakeProfitBPS        int
	MaxHoldTime          time.Duration
	ModelReversalBPS     int
	SlippageBufferCents  int
	ExitFeeBufferFrac    float64
	ReconcileInterval    time.Duration // default 1h
	MismatchTolerance    float64       // contracts
}

func (c *Config) setDefaults() {
	if c.ExitInterval <= 0 {
		c.ExitInterval = time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Hour
	}
}

// Deps collects the Tracker's collaborators.
type Deps struct {
	Quotes        QuoteSource
	Events        EventSource
	Probabilities ProbabilitySource
	Holdings      map[types.Venue]VenueHoldings
	Store         Store
	Logger        *zap.Logger
}

// Tracker is the single owner of the open-positions set.
type Tracker struct {
	cfg  Config
	deps Deps

	mu   sync.RWMutex
	open map[string]*types.Position

	updates chan *types.Position
	exits   chan *types.ExecutionRequest
	alerts  chan string

	seq atomic.Uint64
}

// New builds a Tracker.
func New(cfg Config, deps Deps) *Tracker {
	cfg.setDefaults()
	return &Tracker{
		cfg:     cfg,
		deps:    deps,
		open:    make(map[string]*types.Position),
		updates: make(chan *types.Position, 256),
		exits:   make(chan *types.ExecutionRequest, 256),
		alerts:  make(chan string, 64),
	}
}

// Updates returns the position.update stream.
func (t *Tracker) Updates() <-chan *types.Position { return t.updates }

// ExitRequests returns the exit.request stream, which re-enters the
// Execution Engine as a pre-validated intent.
func (t *Tracker) ExitRequests() <-chan *types.ExecutionRequest { return t.exits }

// Alerts returns position_mismatch / position_unhedged operator alerts.
func (t *Tracker) Alerts() <-chan string { return t.alerts }

// OnFilled creates an open Position from a Filled execution.result,
// keyed by position_id, linked to its originating signal and request.
func (t *Tracker) OnFilled(ctx context.Context, result *types.ExecutionResult, entity string) *types.Position {
	pos := &types.Position{
		PositionID: fmt.Sprintf("pos-%s", result.RequestID),
		RequestID:  result.RequestID,
		EventID:    "",
		Venue:      result.Venue,
		MarketID:   result.MarketID,
		Entity:     entity,
		Side:       result.Side,
		EntryPrice: result.AvgPrice,
		Size:       result.FilledQty,
		EntryTime:  result.ExecutedAt,
		Status:     types.PositionOpen,
	}

	t.mu.Lock()
	t.open[pos.PositionID] = pos
	t.mu.Unlock()

	if t.deps.Store != nil {
		if err := t.deps.Store.SavePosition(ctx, pos); err != nil {
			t.deps.Logger.Error("position-save-failed", zap.String("position_id", pos.PositionID), zap.Error(err))
		}
	}

	t.publish(pos)
	return pos
}

// OnExitFilled closes the position whose exit request correlates to
// result, computing realized P&L from the exit fill.
func (t *Tracker) OnExitFilled(ctx context.Context, result *types.ExecutionResult) {
	t.mu.Lock()
	pos, ok := t.open[result.CorrelationID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.open, result.CorrelationID)

	pos.Status = types.PositionClosed
	pos.ClosedAt = result.ExecutedAt
	pos.RealizedPnL = (result.AvgPrice - pos.EntryPrice) * pos.Size
	if pos.Side == types.SideNo {
		pos.RealizedPnL = (pos.EntryPrice - result.AvgPrice) * pos.Size
	}
	t.mu.Unlock()

	if t.deps.Store != nil {
		if err := t.deps.Store.SaveClosedPosition(ctx, pos); err != nil {
			t.deps.Logger.Error("position-close-save-failed", zap.String("position_id", pos.PositionID), zap.Error(err))
		}
	}

	t.publish(pos)
}

func (t *Tracker) publish(pos *types.Position) {
	select {
	case t.updates <- pos:
	default:
		t.deps.Logger.Error("position-update-dropped-consumer-slow", zap.String("position_id", pos.PositionID))
	}
}

// Run drives the exit-check loop (≈1s) and the reconciliation loop
// (≈hourly and on startup) until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	exitTicker := time.NewTicker(t.cfg.ExitInterval)
	defer exitTicker.Stop()
	reconcileTicker := time.NewTicker(t.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	t.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exitTicker.C:
			t.checkAll(ctx)
		case <-reconcileTicker.C:
			t.reconcile(ctx)
		}
	}
}

func (t *Tracker) snapshot() []*types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*types.Position, 0, len(t.open))
	for _, p := range t.open {
		out = append(out, p)
	}
	return out
}

func (t *Tracker) checkAll(ctx context.Context) {
	for _, pos := range t.snapshot() {
		t.checkExit(ctx, pos)
	}
}

// checkExit implements §4.E's exit monitor loop for a single position.
func (t *Tracker) checkExit(ctx context.Context, pos *types.Position) {
	snap, ok := t.deps.Quotes.Get(string(pos.Venue), pos.MarketID)
	if !ok {
		return
	}

	mark := markPrice(pos.Side, snap)
	opposing := markPrice(types.SideNo, snap)
	if pos.Side == types.SideNo {
		opposing = markPrice(types.SideYes, snap)
	}
	feeBuffer := mark * pos.Size * t.cfg.ExitFeeBufferFrac
	unrealized := (mark - pos.EntryPrice) * pos.Size
	if pos.Side == types.SideNo {
		unrealized = (pos.EntryPrice - mark) * pos.Size
	}
	unrealized -= feeBuffer

	t.mu.Lock()
	pos.CurrentMark = mark
	pos.UnrealizedPnL = unrealized
	t.mu.Unlock()

	now := time.Now()
	held := now.Sub(pos.EntryTime)
	pnlBPS := 0
	if pos.EntryPrice > 0 {
		pnlBPS = int((mark - pos.EntryPrice) / pos.EntryPrice * 10000)
		if pos.Side == types.SideNo {
			pnlBPS = -pnlBPS
		}
	}

	var event *types.Event
	if t.deps.Events != nil && pos.EventID != "" {
		event, _ = t.deps.Events.Fetch(ctx, pos.EventID)
	}

	switch {
	case event != nil && event.State == types.EventFinal:
		settle := 0.0
		if event.FinalWinner == pos.Entity {
			settle = 1.0
		}
		if pos.Side == types.SideNo {
			settle = 1.0 - settle
		}
		t.emitExit(ctx, pos, types.ExitFinalSettlement, settle)

	case held >= t.cfg.MinHoldTime && t.cfg.StopLossBPS > 0 && pnlBPS <= -t.cfg.StopLossBPS:
		t.emitExit(ctx, pos, types.ExitStopLoss, exitLimit(pos.Side, opposing, t.cfg.SlippageBufferCents))

	case t.cfg.TakeProfitBPS > 0 && pnlBPS >= t.cfg.TakeProfitBPS:
		t.emitExit(ctx, pos, types.ExitTakeProfit, exitLimit(pos.Side, opposing, t.cfg.SlippageBufferCents))

	case t.cfg.MaxHoldTime > 0 && held >= t.cfg.MaxHoldTime:
		t.emitExit(ctx, pos, types.ExitMaxHoldTime, exitLimit(pos.Side, opposing, t.cfg.SlippageBufferCents))

	case event != nil && t.deps.Probabilities != nil && t.cfg.ModelReversalBPS > 0:
		pHome, err := t.deps.Probabilities.WinProbability(ctx, event)
		if err == nil {
			entityProb := pHome
			if pos.Entity == event.EntityAway {
				entityProb = 1 - pHome
			}
			reversalBPS := int((pos.EntryPrice - entityProb) * 10000)
			if pos.Side == types.SideNo {
				reversalBPS = -reversalBPS
			}
			if reversalBPS >= t.cfg.ModelReversalBPS {
				t.emitExit(ctx, pos, types.ExitModelReversal, exitLimit(pos.Side, opposing, t.cfg.SlippageBufferCents))
			}
		}
	}
}

// markPrice computes the current mark per venue convention: the best
// ask on the position's own side.
func markPrice(side types.Side, snap quote.Snapshot) float64 {
	if side == types.SideYes {
		return float64(snap.YesAskCents) / 100.0
	}
	return float64(snap.NoAskCents) / 100.0
}

// exitLimit conservatively shaves a slippage buffer off the opposing
// best price so the IOC exit order is likely to clear.
func exitLimit(side types.Side, mark float64, slippageCents int) float64 {
	slip := float64(slippageCents) / 100.0
	limit := mark - slip
	if limit < 0.01 {
		limit = 0.01
	}
	return limit
}

// emitExit constructs and publishes an exit.request: opposite side of
// entry, IOC, correlated back to the position for OnExitFilled.
func (t *Tracker) emitExit(ctx context.Context, pos *types.Position, trigger types.ExitTrigger, limitPrice float64) {
	opposite := types.SideYes
	if pos.Side == types.SideYes {
		opposite = types.SideNo
	}

	req := &types.ExecutionRequest{
		RequestID:      fmt.Sprintf("%s-exit-%d", pos.PositionID, t.seq.Add(1)),
		IdempotencyKey: fmt.Sprintf("%s:exit:%s", pos.PositionID, trigger),
		CorrelationID:  pos.PositionID,
		Venue:          pos.Venue,
		MarketID:       pos.MarketID,
		Side:           opposite,
		LimitPrice:     limitPrice,
		Size:           pos.Size,
		EventID:        pos.EventID,
		CreatedAt:      time.Now(),
	}

	t.mu.Lock()
	pos.ExitTrigger = trigger
	t.mu.Unlock()

	select {
	case t.exits <- req:
	default:
		t.deps.Logger.Error("exit-request-dropped-consumer-slow", zap.String("position_id", pos.PositionID))
	}
}

// reconcile compares the Tracker's open set against each venue's actual
// holdings, alerting on any mismatch beyond tolerance. Never destructive:
// it only reports, it never force-closes a position.
func (t *Tracker) reconcile(ctx context.Context) {
	tracked := make(map[types.Venue]map[string]float64)
	for _, pos := range t.snapshot() {
		if tracked[pos.Venue] == nil {
			tracked[pos.Venue] = make(map[string]float64)
		}
		tracked[pos.Venue][pos.MarketID] += pos.Size
	}

	for v, holdings := range t.deps.Holdings {
		actual, err := holdings.Holdings(ctx)
		if err != nil {
			t.deps.Logger.Warn("reconcile-fetch-failed", zap.String("venue", string(v)), zap.Error(err))
			continue
		}

		for marketID, actualSize := range actual {
			trackedSize := tracked[v][marketID]
			delta := actualSize - trackedSize
			if delta < 0 {
				delta = -delta
			}
			if delta > t.cfg.MismatchTolerance {
				t.alert(fmt.Sprintf("position_mismatch venue=%s market=%s tracked=%.4f actual=%.4f delta=%.4f",
					v, marketID, trackedSize, actualSize, delta))
			}
		}
		for marketID, trackedSize := range tracked[v] {
			if _, seen := actual[marketID]; !seen && trackedSize > t.cfg.MismatchTolerance {
				t.alert(fmt.Sprintf("position_mismatch venue=%s market=%s tracked=%.4f actual=0", v, marketID, trackedSize))
			}
		}
	}
}

func (t *Tracker) alert(msg string) {
	t.deps.Logger.Warn("position-alert", zap.String("alert", msg))
	select {
	case t.alerts <- msg:
	default:
	}
}
