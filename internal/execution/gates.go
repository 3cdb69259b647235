package execution

import (
	"context"
	"sync"
	"time"

	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// Idempotency is the in-memory idempotency registry gate G3 enforces: a
// single writer per Engine instance, keyed by idempotency_key, entries
// expiring after window.
type Idempotency struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// NewIdempotency builds a registry with the given rolling window. window
// <= 0 defaults to 5 minutes, matching the spec's example.
func NewIdempotency(window time.Duration) *Idempotency {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Idempotency{window: window, seen: make(map[string]time.Time)}
}

// CheckAndRecord reports whether key is new within the window, recording
// it as seen either way. A false return means the caller must reject the
// request as a duplicate.
func (r *Idempotency) CheckAndRecord(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purge(now)

	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = now
	return true
}

// purge drops entries older than window. Caller holds mu.
func (r *Idempotency) purge(now time.Time) {
	for k, t := range r.seen {
		if now.Sub(t) > r.window {
			delete(r.seen, k)
		}
	}
}

// orderWindowCounter enforces G4's per-minute and per-hour order count
// caps, independent of the token-bucket rate limiter which smooths burst
// shape rather than bounding a fixed window total.
type orderWindowCounter struct {
	mu      sync.Mutex
	minute  []time.Time
	hour    []time.Time
}

func newOrderWindowCounter() *orderWindowCounter {
	return &orderWindowCounter{}
}

// Allow reports whether one more order may be placed without breaching
// minuteCap or hourCap, and if so, records it. A cap <= 0 is unbounded.
func (c *orderWindowCounter) Allow(now time.Time, minuteCap, hourCap int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.minute = prune(c.minute, now, time.Minute)
	c.hour = prune(c.hour, now, time.Hour)

	if minuteCap > 0 && len(c.minute) >= minuteCap {
		return false
	}
	if hourCap > 0 && len(c.hour) >= hourCap {
		return false
	}

	c.minute = append(c.minute, now)
	c.hour = append(c.hour, now)
	return true
}

func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := 0
	for cut < len(ts) && now.Sub(ts[cut]) > window {
		cut++
	}
	if cut == 0 {
		return ts
	}
	return append([]time.Time{}, ts[cut:]...)
}

// BalanceCache is the single-writer, many-reader cached venue balance
// gate G7 reads. Writes happen on a fixed refresh cadence and after every
// fill, per §4.D; reads never block on venue I/O.
type BalanceCache struct {
	mu       sync.RWMutex
	balances map[types.Venue]float64
	fetchers map[types.Venue]venue.BalanceFetcher
	logger   *zap.Logger
}

// NewBalanceCache builds a cache seeded at zero for every registered
// venue; the first RefreshAll populates real values.
func NewBalanceCache(fetchers map[types.Venue]venue.BalanceFetcher, logger *zap.Logger) *BalanceCache {
	balances := make(map[types.Venue]float64, len(fetchers))
	for v := range fetchers {
		balances[v] = 0
	}
	return &BalanceCache{balances: balances, fetchers: fetchers, logger: logger}
}

// Get returns the last-refreshed balance for v, 0 if unregistered.
func (b *BalanceCache) Get(v types.Venue) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[v]
}

// Set overwrites the cached balance for v, used after a fill settles.
func (b *BalanceCache) Set(v types.Venue, usd float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[v] = usd
}

// RefreshAll fetches every registered venue's balance. Fetch failures are
// logged and leave the prior cached value in place.
func (b *BalanceCache) RefreshAll(ctx context.Context) {
	for v, fetcher := range b.fetchers {
		usd, err := fetcher.Balance(ctx)
		if err != nil {
			b.logger.Warn("balance-refresh-failed", zap.String("venue", string(v)), zap.Error(err))
			continue
		}
		b.Set(v, usd)
	}
}

// Run refreshes once immediately, then on a fixed ticker until ctx is
// cancelled.
func (b *BalanceCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	b.RefreshAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.RefreshAll(ctx)
		}
	}
}

// ExposureTracker reports current dollar exposure for a market, the
// input to gate G6.
type ExposureTracker interface {
	CurrentExposure(ctx context.Context, marketID string) (float64, error)
}
