package storage

import (
	"context"
	"sync"
	"time"

	"github.com/petec4244/arbees/internal/transport"
	"github.com/petec4244/arbees/pkg/types"
)

// MemStore is an in-memory Store, used by component tests and by
// cmd/ tooling run without a configured database.
type MemStore struct {
	mu sync.Mutex

	signals    []*types.Signal
	requests   []*types.ExecutionRequest
	results    []*types.ExecutionResult
	positions  map[string]*types.Position
	dedup      map[string]time.Time
	cooldowns  map[string]time.Time
	balances   map[types.Venue]float64
	audit      []transport.Envelope
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		positions: make(map[string]*types.Position),
		dedup:     make(map[string]time.Time),
		cooldowns: make(map[string]time.Time),
		balances:  make(map[types.Venue]float64),
	}
}

func (m *MemStore) SaveSignal(ctx context.Context, sig *types.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

func (m *MemStore) SaveExecutionRequest(ctx context.Context, req *types.ExecutionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return nil
}

func (m *MemStore) SaveExecutionResult(ctx context.Context, res *types.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *MemStore) SavePosition(ctx context.Context, pos *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.PositionID] = pos
	return nil
}

func (m *MemStore) SaveClosedPosition(ctx context.Context, pos *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.PositionID] = pos
	return nil
}

func (m *MemStore) RecordCooldown(ctx context.Context, eventID string, side types.Side, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[cooldownKey(eventID, side)] = until
	return nil
}

func (m *MemStore) SaveBalanceSnapshot(ctx context.Context, venue types.Venue, usd float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[venue] = usd
	return nil
}

func (m *MemStore) AppendAudit(ctx context.Context, env transport.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, env)
	return nil
}

// SeenRecently implements internal/signal.Dedup.
func (m *MemStore) SeenRecently(ctx context.Context, signalID string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if seenAt, ok := m.dedup[signalID]; ok && now.Sub(seenAt) < window {
		return true, nil
	}
	m.dedup[signalID] = now
	return false, nil
}

// Active implements internal/signal.Cooldowns and internal/eventmonitor.Cooldowns.
func (m *MemStore) Active(ctx context.Context, eventID string, side types.Side) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.cooldowns[cooldownKey(eventID, side)]
	if !ok {
		return false, nil
	}
	return time.Now().Before(until), nil
}

// PerMarket/PerEvent/Global/PerCategory implement internal/signal.Exposure.
func (m *MemStore) PerMarket(ctx context.Context, marketID string) (float64, error) {
	return m.CurrentExposure(ctx, marketID)
}

func (m *MemStore) PerEvent(ctx context.Context, eventID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqByID := make(map[string]*types.ExecutionRequest, len(m.requests))
	for _, req := range m.requests {
		reqByID[req.RequestID] = req
	}

	var total float64
	for _, res := range m.results {
		if res.Status != types.StatusFilled {
			continue
		}
		if req, ok := reqByID[res.RequestID]; ok && req.EventID == eventID {
			total += res.FilledQty * res.AvgPrice
		}
	}
	return total, nil
}

func (m *MemStore) Global(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, pos := range m.positions {
		if pos.Status == types.PositionOpen {
			total += pos.Size * pos.EntryPrice
		}
	}
	return total, nil
}

func (m *MemStore) PerCategory(ctx context.Context, category string) (float64, error) {
	return m.Global(ctx)
}

// CurrentExposure implements internal/execution.ExposureTracker.
func (m *MemStore) CurrentExposure(ctx context.Context, marketID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, res := range m.results {
		if res.Status == types.StatusFilled && res.MarketID == marketID {
			total += res.FilledQty * res.AvgPrice
		}
	}
	return total, nil
}

// Available implements internal/signal.Bankroll.
func (m *MemStore) Available(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, usd := range m.balances {
		total += usd
	}
	return total, nil
}

func (m *MemStore) Close() error { return nil }

func cooldownKey(eventID string, side types.Side) string {
	return eventID + ":" + string(side)
}
