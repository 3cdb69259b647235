package app

import (
	"sync"
	"time"
)

// dailyPnLTracker accumulates realized P&L from closed positions,
// resetting at UTC midnight, and implements internal/killswitch's
// BalanceSource so the kill switch can trip on realized daily loss
// without waiting for an operator to notice.
type dailyPnLTracker struct {
	mu      sync.Mutex
	day     time.Time
	pnl     float64
}

func newDailyPnLTracker() *dailyPnLTracker {
	return &dailyPnLTracker{day: dayStart(time.Now())}
}

// Add folds a closed position's realized P&L into the running total.
func (d *dailyPnLTracker) Add(pnl float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	today := dayStart(time.Now())
	if today.After(d.day) {
		d.day = today
		d.pnl = 0
	}
	d.pnl += pnl
}

// DailyPnL implements killswitch.BalanceSource.
func (d *dailyPnLTracker) DailyPnL() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if today := dayStart(time.Now()); today.After(d.day) {
		d.day = today
		d.pnl = 0
	}
	return d.pnl
}

func dayStart(t time.Time) time.Time {
	y, m, day := t.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
