// Package killswitch implements gate G2: a durable, operator-togglable
// switch that halts new order submission across the whole engine, plus
// an autonomous daily-loss monitor that can trip it without an operator.
package killswitch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Switch mirrors a durable sentinel file into a lock-free atomic.Bool so
// gate evaluation on the hot path never touches disk; reads are
// lock-free and writes are serialised by a mutex.
type Switch struct {
	active       atomic.Bool
	sentinelPath string
	mu           sync.Mutex
	logger       *zap.Logger
}

// New loads the initial state from sentinelPath's presence (present =
// active) and returns a Switch ready for hot-path reads.
func New(sentinelPath string, logger *zap.Logger) (*Switch, error) {
	s := &Switch{sentinelPath: sentinelPath, logger: logger}

	if _, err := os.Stat(sentinelPath); err == nil {
		s.active.Store(true)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat sentinel: %w", err)
	}

	return s, nil
}

// IsActive is lock-free and safe on the execution hot path (G2).
func (s *Switch) IsActive() bool {
	return s.active.Load()
}

// Enable activates the switch and writes the durable sentinel so the
// state survives a process restart.
func (s *Switch) Enable(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.sentinelPath, []byte(reason+"\n"), 0o644); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	s.active.Store(true)
	s.logger.Warn("kill-switch-enabled", zap.String("reason", reason))
	return nil
}

// Disable deactivates the switch and removes the durable sentinel.
func (s *Switch) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.sentinelPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sentinel: %w", err)
	}
	s.active.Store(false)
	s.logger.Info("kill-switch-disabled")
	return nil
}

// BalanceSource reports running state for the autonomous monitor.
type BalanceSource interface {
	DailyPnL() float64 // negative = loss
}

// DailyLossMonitor trips the Switch autonomously once realized daily
// loss crosses a configured fraction of the max daily loss cap, without
// waiting for an operator.
type DailyLossMonitor struct {
	sw            *Switch
	source        BalanceSource
	maxDailyLoss  float64 // positive dollar cap
	tripFraction  float64 // e.g. 0.8
	checkInterval time.Duration
	logger        *zap.Logger
}

// DailyLossConfig configures a DailyLossMonitor.
type DailyLossConfig struct {
	Switch        *Switch
	Source        BalanceSource
	MaxDailyLoss  float64
	TripFraction  float64 // defaults to 0.8 if <= 0
	CheckInterval time.Duration
	Logger        *zap.Logger
}

// NewDailyLossMonitor builds a monitor from cfg.
func NewDailyLossMonitor(cfg DailyLossConfig) *DailyLossMonitor {
	tripFraction := cfg.TripFraction
	if tripFraction <= 0 {
		tripFraction = 0.8
	}
	checkInterval := cfg.CheckInterval
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}

	return &DailyLossMonitor{
		sw:            cfg.Switch,
		source:        cfg.Source,
		maxDailyLoss:  cfg.MaxDailyLoss,
		tripFraction:  tripFraction,
		checkInterval: checkInterval,
		logger:        cfg.Logger,
	}
}

// Run polls DailyPnL on a ticker until ctx is cancelled, tripping the
// switch the first time realized loss exceeds tripFraction*maxDailyLoss.
func (m *DailyLossMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *DailyLossMonitor) check() {
	if m.sw.IsActive() {
		return
	}

	pnl := m.source.DailyPnL()
	if pnl >= 0 {
		return
	}

	loss := -pnl
	threshold := m.maxDailyLoss * m.tripFraction
	if loss < threshold {
		return
	}

	if err := m.sw.Enable(fmt.Sprintf("daily_loss %.2f exceeded %.0f%% of cap %.2f", loss, m.tripFraction*100, m.maxDailyLoss)); err != nil {
		m.logger.Error("daily-loss-trip-failed", zap.Error(err))
	}
}
