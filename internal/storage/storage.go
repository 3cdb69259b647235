// Package storage persists the full signal/request/result/position/
// cooldown/balance-snapshot/audit-log state layout and supplies the
// narrow collaborator interfaces (dedup, cooldowns, exposure, bankroll)
// the Signal Processor, Event Monitor, Execution Engine, and Position
// Tracker read from.
package storage

import (
	"context"
	"time"

	"github.com/petec4244/arbees/internal/transport"
	"github.com/petec4244/arbees/pkg/types"
)

// Store is the full persisted-state surface, composed of one method
// group per table in the persisted-state layout. All three backends
// (PostgresStore, MemStore, ConsoleStore) implement it in full; cmd/ and
// internal/app select one at startup.
type Store interface {
	SaveSignal(ctx context.Context, sig *types.Signal) error
	SaveExecutionRequest(ctx context.Context, req *types.ExecutionRequest) error
	SaveExecutionResult(ctx context.Context, res *types.ExecutionResult) error
	SavePosition(ctx context.Context, pos *types.Position) error
	SaveClosedPosition(ctx context.Context, pos *types.Position) error
	RecordCooldown(ctx context.Context, eventID string, side types.Side, until time.Time) error
	SaveBalanceSnapshot(ctx context.Context, venue types.Venue, usd float64, at time.Time) error
	AppendAudit(ctx context.Context, env transport.Envelope) error

	Close() error
}

// AuditBridge adapts a Store's AppendAudit into transport.AppendStore,
// the narrow seam transport.Bridge mirrors bus envelopes through.
type AuditBridge struct {
	Store Store
}

// Append satisfies transport.AppendStore.
func (a AuditBridge) Append(ctx context.Context, env transport.Envelope) error {
	return a.Store.AppendAudit(ctx, env)
}
