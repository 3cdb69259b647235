// Package signal implements the Signal Processor (§4.C): the fixed
// six-stage pipeline that turns a raw Signal into zero, one, or two
// validated ExecutionRequests.
package signal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// Dedup tracks which signal ids have already been processed within a
// retention window, shared across Signal Processor instances per the
// "one exclusive writer, durable transport" rule for shared registries.
type Dedup interface {
	// SeenRecently records signalID as processed and reports whether it
	// had already been recorded within window.
	SeenRecently(ctx context.Context, signalID string, window time.Duration) (bool, error)
}

// Cooldowns reports whether (event, side) is currently in a post-exit
// cooldown.
type Cooldowns interface {
	Active(ctx context.Context, eventID string, side types.Side) (bool, error)
}

// Exposure reports current dollar exposure at each scope the exposure
// gate enforces.
type Exposure interface {
	PerMarket(ctx context.Context, marketID string) (float64, error)
	PerEvent(ctx context.Context, eventID string) (float64, error)
	Global(ctx context.Context) (float64, error)
	PerCategory(ctx context.Context, category string) (float64, error)
}

// Bankroll reports the cached, eventually-consistent available bankroll
// the Kelly sizing step draws on.
type Bankroll interface {
	Available(ctx context.Context) (float64, error)
}

// EventKinder resolves an event's kind, used to apply the non-sport
// volatility discount during sizing.
type EventKinder interface {
	EventKind(ctx context.Context, eventID string) (types.EventKind, error)
}

// Config holds the Signal Processor's risk-gate thresholds.
type Config struct {
	MinEdgeBPS               int
	MinSafePrice             float64
	MaxSafePrice             float64
	PriorDriftMaxDelta       float64
	KellyCapFraction         float64
	MinOrderSize             float64 // dollars
	MaxOrderSize             float64 // dollars
	MaxOrderContracts        int
	NonSportVolatilityFactor float64 // applied to sizing for EventKindOther
	ExposurePerMarketCap     float64
	ExposurePerEventCap      float64
	ExposureGlobalCap        float64
	ExposurePerCategoryCap   float64
	DedupWindow              time.Duration
}

// Deps collects the Processor's collaborators.
type Deps struct {
	Dedup      Dedup
	Cooldowns  Cooldowns
	Exposure   Exposure
	Bankroll   Bankroll
	EventKinds EventKinder
	Logger     *zap.Logger
}

// Processor converts raw Signals into risk-bounded ExecutionRequests
// through the fixed pipeline order: expiration, dedup, cooldown, price
// sanity, sizing, exposure gate.
type Processor struct {
	cfg  Config
	deps Deps
}

// New builds a Processor.
func New(cfg Config, deps Deps) *Processor {
	if cfg.NonSportVolatilityFactor <= 0 {
		cfg.NonSportVolatilityFactor = 1.0
	}
	return &Processor{cfg: cfg, deps: deps}
}

// Process runs sig through the pipeline. priorForEntity is the pregame
// prior price used for the price-drift check (0 disables the check,
// e.g. when no prior is available). It returns the surviving requests,
// or a RejectReason recording why none survived; a non-nil error means
// a dependency failed, not that the signal was rejected.
func (p *Processor) Process(ctx context.Context, sig *types.Signal, priorForEntity float64) ([]*types.ExecutionRequest, types.RejectReason, error) {
	now := time.Now()

	// 1. Expiration check.
	if sig.Expired(now) {
		return nil, types.ReasonExpired, nil
	}

	// 2. Deduplication.
	seen, err := p.deps.Dedup.SeenRecently(ctx, sig.ID, p.cfg.DedupWindow)
	if err != nil {
		return nil, "", fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		return nil, types.ReasonDuplicate, nil
	}

	// 3. Cooldown check, every leg's (event, side).
	for _, leg := range sig.Legs {
		active, err := p.deps.Cooldowns.Active(ctx, sig.EventID, leg.Side)
		if err != nil {
			return nil, "", fmt.Errorf("cooldown check: %w", err)
		}
		if active {
			return nil, types.ReasonCooldown, nil
		}
	}

	// 4. Price sanity: open-interval safe range, and prior drift.
	for _, leg := range sig.Legs {
		if leg.Price <= p.cfg.MinSafePrice || leg.Price >= p.cfg.MaxSafePrice {
			return nil, types.ReasonPriceUnsafe, nil
		}
		if priorForEntity > 0 && math.Abs(leg.Price-priorForEntity) > p.cfg.PriorDriftMaxDelta {
			return nil, types.ReasonPriceDrift, nil
		}
	}

	// 5. Sizing.
	contracts, reason, err := p.size(ctx, sig)
	if err != nil {
		return nil, "", err
	}
	if reason != "" {
		return nil, reason, nil
	}

	// 6. Exposure gate.
	if reason, err := p.checkExposure(ctx, sig, contracts); err != nil {
		return nil, "", err
	} else if reason != "" {
		return nil, reason, nil
	}

	// 7. Emit.
	requests := make([]*types.ExecutionRequest, 0, len(sig.Legs))
	for i, leg := range sig.Legs {
		requests = append(requests, &types.ExecutionRequest{
			RequestID:      fmt.Sprintf("%s-%d", sig.ID, i),
			IdempotencyKey: idempotencyKey(sig.ID, i),
			CorrelationID:  sig.ID,
			Venue:          leg.Venue,
			MarketID:       leg.MarketID,
			Side:           leg.Side,
			LimitPrice:     leg.Price,
			Size:           contracts,
			EventID:        sig.EventID,
			SignalID:       sig.ID,
			SignalType:     sig.Kind,
			EdgeBPS:        sig.EdgeBPS,
			CreatedAt:      now,
		})
	}

	return requests, "", nil
}

func idempotencyKey(signalID string, legIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", signalID, legIndex)))
	return hex.EncodeToString(sum[:])
}

// size computes the common per-leg contract quantity. Arbitrage signals
// are capped by the liquidity already baked into each leg; Edge signals
// are sized via a capped Kelly fraction of bankroll.
func (p *Processor) size(ctx context.Context, sig *types.Signal) (contracts float64, reason types.RejectReason, err error) {
	if len(sig.Legs) == 0 {
		return 0, types.ReasonSizeTooSmall, nil
	}

	volFactor := 1.0
	if p.deps.EventKinds != nil {
		kind, err := p.deps.EventKinds.EventKind(ctx, sig.EventID)
		if err != nil {
			return 0, "", fmt.Errorf("event kind lookup: %w", err)
		}
		if kind == types.EventKindOther {
			volFactor = p.cfg.NonSportVolatilityFactor
		}
	}

	switch sig.Kind {
	case types.SignalArbitrage:
		contracts = math.Inf(1)
		for _, leg := range sig.Legs {
			legContracts := leg.Size * volFactor
			if legContracts < contracts {
				contracts = legContracts
			}
		}
	default: // SignalEdge
		bankroll, err := p.deps.Bankroll.Available(ctx)
		if err != nil {
			return 0, "", fmt.Errorf("bankroll lookup: %w", err)
		}

		leg := sig.Legs[0]
		winProb := sig.ModelProb
		if leg.Side == types.SideNo {
			winProb = 1 - sig.ModelProb
		}

		fraction := kellyFraction(winProb, leg.Price) * p.cfg.KellyCapFraction * volFactor
		if fraction < 0 {
			fraction = 0
		}

		notional := fraction * bankroll
		if notional > p.cfg.MaxOrderSize {
			notional = p.cfg.MaxOrderSize
		}
		if notional < p.cfg.MinOrderSize {
			return 0, types.ReasonSizeTooSmall, nil
		}

		contracts = notional / leg.Price
		if contracts > leg.Size {
			contracts = leg.Size // cannot exceed available liquidity
		}
	}

	if contracts > float64(p.cfg.MaxOrderContracts) {
		contracts = float64(p.cfg.MaxOrderContracts)
	}
	if contracts <= 0 {
		return 0, types.ReasonSizeTooSmall, nil
	}

	for _, leg := range sig.Legs {
		if contracts*leg.Price < p.cfg.MinOrderSize {
			return 0, types.ReasonSizeTooSmall, nil
		}
		if contracts*leg.Price > p.cfg.MaxOrderSize+1e-9 { // tolerate round-off of notional/price*price
			return 0, types.ReasonSizeCap, nil
		}
	}

	return contracts, "", nil
}

// kellyFraction computes the Kelly criterion fraction for a binary
// contract bought at price (dollars, payout $1 on win): f* = p - (1-p)*
// price/(1-price). Negative results indicate no edge and are floored by
// the caller.
func kellyFraction(winProb, price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return winProb - (1-winProb)*price/(1-price)
}

func (p *Processor) checkExposure(ctx context.Context, sig *types.Signal, contracts float64) (types.RejectReason, error) {
	category := "sport"
	if p.deps.EventKinds != nil {
		kind, err := p.deps.EventKinds.EventKind(ctx, sig.EventID)
		if err != nil {
			return "", fmt.Errorf("event kind lookup: %w", err)
		}
		category = string(kind)
	}

	for _, leg := range sig.Legs {
		notional := contracts * leg.Price

		marketExp, err := p.deps.Exposure.PerMarket(ctx, leg.MarketID)
		if err != nil {
			return "", fmt.Errorf("per-market exposure: %w", err)
		}
		if marketExp+notional > p.cfg.ExposurePerMarketCap {
			return types.ReasonExposureCap, nil
		}

		eventExp, err := p.deps.Exposure.PerEvent(ctx, sig.EventID)
		if err != nil {
			return "", fmt.Errorf("per-event exposure: %w", err)
		}
		if eventExp+notional > p.cfg.ExposurePerEventCap {
			return types.ReasonExposureCap, nil
		}

		globalExp, err := p.deps.Exposure.Global(ctx)
		if err != nil {
			return "", fmt.Errorf("global exposure: %w", err)
		}
		if globalExp+notional > p.cfg.ExposureGlobalCap {
			return types.ReasonExposureCap, nil
		}

		categoryExp, err := p.deps.Exposure.PerCategory(ctx, category)
		if err != nil {
			return "", fmt.Errorf("per-category exposure: %w", err)
		}
		if categoryExp+notional > p.cfg.ExposurePerCategoryCap {
			return types.ReasonExposureCap, nil
		}
	}

	return "", nil
}
