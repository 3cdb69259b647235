// Package eventmonitor implements the Event Monitor (§4.B): per
// assigned Event, it recomputes win probability on a fixed cadence and
// on every linked-market price update, and emits Arbitrage/Edge Signals.
package eventmonitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/pkg/cache"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// EventStateSource fetches the latest state for an event from the
// external event-state source (scoreboard feed, oracle, etc).
type EventStateSource interface {
	Fetch(ctx context.Context, eventID string) (*types.Event, error)
}

// Cooldowns reports whether (event, side) is in a post-exit cooldown.
// Same shape as internal/signal.Cooldowns: both layers read the same
// durable cooldown store, per §4.B/§4.C.
type Cooldowns interface {
	Active(ctx context.Context, eventID string, side types.Side) (bool, error)
}

// Config holds the Event Monitor's thresholds.
type Config struct {
	TickInterval      time.Duration
	StalenessTTL      time.Duration
	ArbThresholdCents int
	MinEdgeBPS        int
	MaxSizeCap        float64
	SignalTTL         time.Duration
	MaxConsecutiveFailures int
}

// Deps collects the Monitor's collaborators.
type Deps struct {
	States        EventStateSource
	Probabilities ProbabilityModel
	Quotes        *quote.Store
	Cooldowns     Cooldowns
	Logger        *zap.Logger
}

// Monitor runs the §4.B loop over a dynamically assigned set of events.
type Monitor struct {
	cfg  Config
	deps Deps

	stateCache cache.Cache

	mu          sync.RWMutex
	assigned    map[string]types.EventLink // eventID -> link
	marketIndex map[string][]string        // marketID -> eventIDs
	failCounts  map[string]int
	lastState   sync.Map // eventID -> types.EventState, for transition validation

	seq     atomic.Uint64
	signals chan *types.Signal
	release chan string // eventID this monitor is giving up on
}

// New builds a Monitor.
func New(cfg Config, deps Deps, stateCache cache.Cache) *Monitor {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = 5 * time.Second
	}

	return &Monitor{
		cfg:         cfg,
		deps:        deps,
		stateCache:  stateCache,
		assigned:    make(map[string]types.EventLink),
		marketIndex: make(map[string][]string),
		failCounts:  make(map[string]int),
		signals:     make(chan *types.Signal, 10000),
		release:     make(chan string, 1000),
	}
}

// Assign registers an event for polling, per §4.B's assign operation.
func (m *Monitor) Assign(link types.EventLink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assigned[link.EventID] = link
	m.failCounts[link.EventID] = 0
	for _, marketID := range link.VenueMarkets {
		m.marketIndex[marketID] = append(m.marketIndex[marketID], link.EventID)
	}
}

// Release stops polling an event, per §4.B's release operation.
func (m *Monitor) Release(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.assigned[eventID]
	if !ok {
		return
	}
	delete(m.assigned, eventID)
	delete(m.failCounts, eventID)

	for _, marketID := range link.VenueMarkets {
		ids := m.marketIndex[marketID]
		for i, id := range ids {
			if id == eventID {
				m.marketIndex[marketID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// Signals returns the channel of emitted Arbitrage/Edge Signals.
func (m *Monitor) Signals() <-chan *types.Signal {
	return m.signals
}

// ReleaseRequests returns events this monitor has given up polling,
// for the orchestrator to reassign elsewhere.
func (m *Monitor) ReleaseRequests() <-chan string {
	return m.release
}

// Run drives the fixed-cadence tick and reacts to price updates on
// linked markets until ctx is cancelled or priceUpdates closes.
func (m *Monitor) Run(ctx context.Context, priceUpdates <-chan quote.Snapshot) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.evaluateAll(ctx)
		case snap, ok := <-priceUpdates:
			if !ok {
				return nil
			}
			m.evaluateForMarket(ctx, snap.MarketID)
		}
	}
}

func (m *Monitor) evaluateAll(ctx context.Context) {
	m.mu.RLock()
	eventIDs := make([]string, 0, len(m.assigned))
	for id := range m.assigned {
		eventIDs = append(eventIDs, id)
	}
	m.mu.RUnlock()

	for _, id := range eventIDs {
		m.evaluate(ctx, id)
	}
}

func (m *Monitor) evaluateForMarket(ctx context.Context, marketID string) {
	m.mu.RLock()
	eventIDs := append([]string(nil), m.marketIndex[marketID]...)
	m.mu.RUnlock()

	for _, id := range eventIDs {
		m.evaluate(ctx, id)
	}
}

func (m *Monitor) evaluate(ctx context.Context, eventID string) {
	m.mu.RLock()
	link, ok := m.assigned[eventID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	event, fresh := m.eventState(ctx, eventID)
	if !fresh {
		return // stale state suppresses signal emission for this event (§4.B failure semantics)
	}

	if !event.IsLive() {
		return
	}

	pHome, err := m.deps.Probabilities.WinProbability(ctx, event)
	if err != nil {
		m.deps.Logger.Error("probability-model-failed", zap.String("event-id", eventID), zap.Error(err))
		return
	}

	quotes := make(map[types.Venue]quote.Snapshot)
	for venue, marketID := range link.VenueMarkets {
		snap, ok := m.deps.Quotes.Get(string(venue), marketID)
		if !ok {
			continue
		}
		quotes[venue] = snap
	}

	if link.BothVenuesLinked() {
		m.checkArbitrage(ctx, event, link, quotes)
	}
	m.checkEdge(ctx, event, link, quotes, pHome)
}

// eventState returns the cached event if fresh, refreshing from the
// source on a cache miss; on source failure it increments the
// consecutive-failure count and releases the event past the configured
// threshold.
func (m *Monitor) eventState(ctx context.Context, eventID string) (*types.Event, bool) {
	if v, ok := m.stateCache.Get(eventID); ok {
		event := v.(*types.Event)
		return event, true
	}

	event, err := m.deps.States.Fetch(ctx, eventID)
	if err != nil {
		m.mu.Lock()
		m.failCounts[eventID]++
		count := m.failCounts[eventID]
		m.mu.Unlock()

		m.deps.Logger.Warn("event-state-fetch-failed",
			zap.String("event-id", eventID), zap.Int("consecutive-failures", count), zap.Error(err))

		if count >= m.cfg.MaxConsecutiveFailures {
			m.Release(eventID)
			select {
			case m.release <- eventID:
			default:
			}
		}
		return nil, false
	}

	m.mu.Lock()
	m.failCounts[eventID] = 0
	m.mu.Unlock()

	if prevVal, had := m.lastState.Load(eventID); had {
		prev := prevVal.(types.EventState)
		if !CanTransition(prev, event.State) {
			m.deps.Logger.Warn("unexpected-event-state-transition",
				zap.String("event-id", eventID), zap.String("from", string(prev)), zap.String("to", string(event.State)))
		}
	}
	m.lastState.Store(eventID, event.State)

	m.stateCache.Set(eventID, event, m.cfg.StalenessTTL)
	return event, true
}

func (m *Monitor) checkArbitrage(ctx context.Context, event *types.Event, link types.EventLink, quotes map[types.Venue]quote.Snapshot) {
	type candidate struct {
		venueA, venueB       types.Venue
		marketA, marketB     string
		deficit              int
		liquidity            float64
	}

	var best *candidate
	venues := []types.Venue{types.VenueKalshi, types.VenuePolymarket}

	for _, a := range venues {
		for _, b := range venues {
			if a == b {
				continue
			}
			qa, okA := quotes[a]
			qb, okB := quotes[b]
			if !okA || !okB {
				continue
			}

			deficit := 100 - (int(qa.YesAskCents) + int(qb.NoAskCents))
			if deficit < m.cfg.ArbThresholdCents {
				continue
			}

			liquidity := math.Min(float64(qa.YesSizeCts), float64(qb.NoSizeCts))
			if liquidity <= 0 {
				continue
			}

			c := &candidate{venueA: a, venueB: b, marketA: link.VenueMarkets[a], marketB: link.VenueMarkets[b], deficit: deficit, liquidity: liquidity}

			if best == nil || c.deficit > best.deficit || (c.deficit == best.deficit && c.liquidity > best.liquidity) {
				best = c
			}
		}
	}

	if best == nil {
		return
	}

	size := math.Min(best.liquidity, m.cfg.MaxSizeCap)
	if size <= 0 {
		return
	}

	if active, _ := m.deps.Cooldowns.Active(ctx, event.EventID, types.SideYes); active {
		return
	}

	sig := &types.Signal{
		ID:      m.nextSignalID(event.EventID),
		Kind:    types.SignalArbitrage,
		EventID: event.EventID,
		Entity:  event.EntityHome,
		Legs: []types.SignalLeg{
			{Venue: best.venueA, MarketID: best.marketA, Side: types.SideYes, Price: float64(quotes[best.venueA].YesAskCents) / 100, Size: size},
			{Venue: best.venueB, MarketID: best.marketB, Side: types.SideNo, Price: float64(quotes[best.venueB].NoAskCents) / 100, Size: size},
		},
		DetectedAt: time.Now(),
		ExpiresAt:  time.Now().Add(m.cfg.SignalTTL),
	}

	m.emit(sig)
}

func (m *Monitor) checkEdge(ctx context.Context, event *types.Event, link types.EventLink, quotes map[types.Venue]quote.Snapshot, pHome float64) {
	for venue, marketID := range link.VenueMarkets {
		snap, ok := quotes[venue]
		if !ok {
			continue
		}

		edgeYesBPS := int((pHome - float64(snap.YesAskCents)/100) * 10000)
		if edgeYesBPS >= m.cfg.MinEdgeBPS {
			m.emitEdge(ctx, event, venue, marketID, types.SideYes, event.EntityHome, pHome, float64(snap.YesAskCents)/100, edgeYesBPS, snap.YesSizeCts)
		}

		edgeNoBPS := int(((1 - pHome) - float64(snap.NoAskCents)/100) * 10000)
		if edgeNoBPS >= m.cfg.MinEdgeBPS {
			m.emitEdge(ctx, event, venue, marketID, types.SideNo, event.EntityAway, 1-pHome, float64(snap.NoAskCents)/100, edgeNoBPS, snap.NoSizeCts)
		}
	}
}

func (m *Monitor) emitEdge(ctx context.Context, event *types.Event, venue types.Venue, marketID string, side types.Side, entity string, modelProb, marketProb float64, edgeBPS int, sizeCts uint16) {
	if active, _ := m.deps.Cooldowns.Active(ctx, event.EventID, side); active {
		return
	}

	size := math.Min(float64(sizeCts), m.cfg.MaxSizeCap)
	if size <= 0 {
		return
	}

	sig := &types.Signal{
		ID:         m.nextSignalID(event.EventID),
		Kind:       types.SignalEdge,
		EventID:    event.EventID,
		Entity:     entity,
		EdgeBPS:    edgeBPS,
		ModelProb:  modelProb,
		MarketProb: marketProb,
		Legs: []types.SignalLeg{
			{Venue: venue, MarketID: marketID, Side: side, Price: marketProb, Size: size},
		},
		DetectedAt: time.Now(),
		ExpiresAt:  time.Now().Add(m.cfg.SignalTTL),
	}

	m.emit(sig)
}

func (m *Monitor) emit(sig *types.Signal) {
	select {
	case m.signals <- sig:
	default:
		m.deps.Logger.Error("CRITICAL-signal-channel-full-DROPPING-SIGNAL", zap.String("event-id", sig.EventID))
	}
}

func (m *Monitor) nextSignalID(eventID string) string {
	return fmt.Sprintf("%s-%d", eventID, m.seq.Add(1))
}
