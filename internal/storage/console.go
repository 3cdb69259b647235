package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/petec4244/arbees/internal/transport"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// ConsoleStore implements Store by pretty-printing each event to
// stdout; it persists nothing and is intended for local/dev runs
// without a database.
type ConsoleStore struct {
	logger *zap.Logger
}

// NewConsoleStore creates a console-only Store.
func NewConsoleStore(logger *zap.Logger) *ConsoleStore {
	logger.Info("console-store-initialized")
	return &ConsoleStore{logger: logger}
}

func (c *ConsoleStore) SaveSignal(ctx context.Context, sig *types.Signal) error {
	fmt.Printf("[signal] %s kind=%s event=%s entity=%s edge_bps=%d\n",
		sig.ID, sig.Kind, sig.EventID, sig.Entity, sig.EdgeBPS)
	return nil
}

func (c *ConsoleStore) SaveExecutionRequest(ctx context.Context, req *types.ExecutionRequest) error {
	fmt.Printf("[execution.request] %s venue=%s market=%s side=%s price=%.4f size=%.2f\n",
		req.RequestID, req.Venue, req.MarketID, req.Side, req.LimitPrice, req.Size)
	return nil
}

func (c *ConsoleStore) SaveExecutionResult(ctx context.Context, res *types.ExecutionResult) error {
	fmt.Printf("[execution.result] %s status=%s filled_qty=%.2f avg_price=%.4f reason=%s\n",
		res.RequestID, res.Status, res.FilledQty, res.AvgPrice, res.RejectionReason)
	return nil
}

func (c *ConsoleStore) SavePosition(ctx context.Context, pos *types.Position) error {
	fmt.Printf("[position.open] %s venue=%s market=%s entity=%s entry=%.4f size=%.2f\n",
		pos.PositionID, pos.Venue, pos.MarketID, pos.Entity, pos.EntryPrice, pos.Size)
	return nil
}

func (c *ConsoleStore) SaveClosedPosition(ctx context.Context, pos *types.Position) error {
	fmt.Printf("[position.closed] %s trigger=%s realized_pnl=%.2f\n",
		pos.PositionID, pos.ExitTrigger, pos.RealizedPnL)
	return nil
}

func (c *ConsoleStore) RecordCooldown(ctx context.Context, eventID string, side types.Side, until time.Time) error {
	fmt.Printf("[cooldown] event=%s side=%s until=%s\n", eventID, side, until.Format(time.RFC3339))
	return nil
}

func (c *ConsoleStore) SaveBalanceSnapshot(ctx context.Context, venue types.Venue, usd float64, at time.Time) error {
	fmt.Printf("[balance] venue=%s usd=%.2f at=%s\n", venue, usd, at.Format(time.RFC3339))
	return nil
}

func (c *ConsoleStore) AppendAudit(ctx context.Context, env transport.Envelope) error {
	fmt.Printf("[audit] topic=%s seq=%d bytes=%d\n", env.Topic, env.Seq, len(env.Payload))
	return nil
}

func (c *ConsoleStore) Close() error {
	c.logger.Info("closing-console-store")
	return nil
}
