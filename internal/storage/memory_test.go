package storage

import (
	"context"
	"testing"
	"time"

	"github.com/petec4244/arbees/pkg/types"
)

func TestMemStoreDedupWindow(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	dup, err := m.SeenRecently(ctx, "sig1", time.Minute)
	if err != nil || dup {
		t.Fatalf("expected first call not-duplicate, got dup=%v err=%v", dup, err)
	}

	dup, err = m.SeenRecently(ctx, "sig1", time.Minute)
	if err != nil || !dup {
		t.Fatalf("expected second call duplicate, got dup=%v err=%v", dup, err)
	}
}

func TestMemStoreCooldownActive(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	active, _ := m.Active(ctx, "e1", types.SideYes)
	if active {
		t.Fatal("expected no cooldown before recording one")
	}

	_ = m.RecordCooldown(ctx, "e1", types.SideYes, time.Now().Add(time.Minute))
	active, _ = m.Active(ctx, "e1", types.SideYes)
	if !active {
		t.Fatal("expected cooldown active")
	}

	_ = m.RecordCooldown(ctx, "e1", types.SideYes, time.Now().Add(-time.Minute))
	active, _ = m.Active(ctx, "e1", types.SideYes)
	if active {
		t.Fatal("expected expired cooldown to report inactive")
	}
}

func TestMemStoreExposureByMarket(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_ = m.SaveExecutionResult(ctx, &types.ExecutionResult{
		RequestID: "r1", MarketID: "m1", Status: types.StatusFilled, FilledQty: 10, AvgPrice: 0.5,
	})
	_ = m.SaveExecutionResult(ctx, &types.ExecutionResult{
		RequestID: "r2", MarketID: "m1", Status: types.StatusRejected, FilledQty: 0, AvgPrice: 0,
	})

	exposure, err := m.PerMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exposure != 5.0 {
		t.Fatalf("expected exposure 5.0, got %v", exposure)
	}
}

func TestMemStoreBankrollAvailable(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_ = m.SaveBalanceSnapshot(ctx, types.VenueKalshi, 100, time.Now())
	_ = m.SaveBalanceSnapshot(ctx, types.VenuePolymarket, 50, time.Now())

	available, err := m.Available(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 150 {
		t.Fatalf("expected 150, got %v", available)
	}
}
