package killswitch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewLoadsInactiveWhenSentinelAbsent(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sw.IsActive() {
		t.Fatal("expected inactive with no sentinel present")
	}
}

func TestEnableDisableTogglesActive(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sw.Enable("operator request"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !sw.IsActive() {
		t.Fatal("expected active after Enable")
	}

	if err := sw.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if sw.IsActive() {
		t.Fatal("expected inactive after Disable")
	}
}

func TestSentinelSurvivesReconstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kill")

	sw, err := New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Enable("restart test"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	restarted, err := New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	if !restarted.IsActive() {
		t.Fatal("expected sentinel file to persist active state across restart")
	}
}

func TestDisableIsIdempotentWithoutSentinel(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Disable(); err != nil {
		t.Fatalf("expected Disable on a never-enabled switch to succeed, got %v", err)
	}
}

type fixedPnL struct{ pnl float64 }

func (f fixedPnL) DailyPnL() float64 { return f.pnl }

func TestDailyLossMonitorTripsAtFraction(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mon := NewDailyLossMonitor(DailyLossConfig{
		Switch:        sw,
		Source:        fixedPnL{pnl: -850},
		MaxDailyLoss:  1000,
		TripFraction:  0.8,
		CheckInterval: time.Millisecond,
		Logger:        zap.NewNop(),
	})

	mon.check()

	if !sw.IsActive() {
		t.Fatal("expected monitor to trip the switch once loss exceeds 80% of cap")
	}
}

func TestDailyLossMonitorDoesNotTripBelowFraction(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mon := NewDailyLossMonitor(DailyLossConfig{
		Switch:       sw,
		Source:       fixedPnL{pnl: -400},
		MaxDailyLoss: 1000,
		TripFraction: 0.8,
		Logger:       zap.NewNop(),
	})

	mon.check()

	if sw.IsActive() {
		t.Fatal("expected monitor not to trip below the configured fraction")
	}
}

func TestDailyLossMonitorIgnoresPositivePnL(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mon := NewDailyLossMonitor(DailyLossConfig{
		Switch:       sw,
		Source:       fixedPnL{pnl: 500},
		MaxDailyLoss: 1000,
		Logger:       zap.NewNop(),
	})

	mon.check()

	if sw.IsActive() {
		t.Fatal("expected no trip on positive daily P&L")
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "kill"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mon := NewDailyLossMonitor(DailyLossConfig{
		Switch:        sw,
		Source:        fixedPnL{pnl: 0},
		MaxDailyLoss:  1000,
		CheckInterval: time.Millisecond,
		Logger:        zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}
