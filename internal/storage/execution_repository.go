package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/petec4244/arbees/pkg/types"
)

// executionRepository persists ExecutionRequests and ExecutionResults.
type executionRepository struct {
	db *sql.DB
}

func newExecutionRepository(db *sql.DB) *executionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) CreateRequest(ctx context.Context, req *types.ExecutionRequest) error {
	query := `
		INSERT INTO execution_requests (
			request_id, idempotency_key, correlation_id, venue, market_id, side,
			limit_price, size, event_id, signal_id, signal_type, edge_bps, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (request_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		req.RequestID, req.IdempotencyKey, req.CorrelationID, req.Venue, req.MarketID, req.Side,
		req.LimitPrice, req.Size, req.EventID, req.SignalID, req.SignalType, req.EdgeBPS, req.CreatedAt,
	)
	return err
}

func (r *executionRepository) CreateResult(ctx context.Context, res *types.ExecutionResult) error {
	query := `
		INSERT INTO execution_results (
			request_id, idempotency_key, correlation_id, venue, market_id, side,
			status, order_id, filled_qty, avg_price, fees, latency_ms, rejection_reason, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		res.RequestID, res.IdempotencyKey, res.CorrelationID, res.Venue, res.MarketID, res.Side,
		res.Status, res.OrderID, res.FilledQty, res.AvgPrice, res.Fees, res.LatencyMS,
		res.RejectionReason, res.ExecutedAt,
	)
	return err
}

// CurrentExposure implements internal/execution.ExposureTracker and the
// PerMarket leg of internal/signal.Exposure: the dollar sum of filled,
// still-open order value on marketID.
func (r *executionRepository) CurrentExposure(ctx context.Context, marketID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(filled_qty * avg_price), 0)
		FROM execution_results
		WHERE market_id = $1 AND status = $2`

	var total float64
	err := r.db.QueryRowContext(ctx, query, marketID, types.StatusFilled).Scan(&total)
	return total, err
}

// ExposureByEvent sums filled order value across both venues' markets
// for eventID, used by internal/signal.Exposure.PerEvent. ExecutionResult
// carries no event_id of its own, so this joins back through the
// originating request.
func (r *executionRepository) ExposureByEvent(ctx context.Context, eventID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(r.filled_qty * r.avg_price), 0)
		FROM execution_results r
		JOIN execution_requests q ON q.request_id = r.request_id
		WHERE q.event_id = $1 AND r.status = $2`

	var total float64
	err := r.db.QueryRowContext(ctx, query, eventID, types.StatusFilled).Scan(&total)
	return total, err
}

// ExposureGlobal sums filled order value across all open positions,
// used by internal/signal.Exposure.Global.
func (r *executionRepository) ExposureGlobal(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(SUM(size * entry_price), 0)
		FROM positions
		WHERE status = $1`

	var total float64
	err := r.db.QueryRowContext(ctx, query, types.PositionOpen).Scan(&total)
	return total, err
}

// RecentResults returns the most recent N execution results, newest
// first.
func (r *executionRepository) RecentResults(ctx context.Context, limit int) ([]*types.ExecutionResult, error) {
	query := `
		SELECT request_id, idempotency_key, correlation_id, venue, market_id, side,
			status, order_id, filled_qty, avg_price, fees, latency_ms, rejection_reason, executed_at
		FROM execution_results
		ORDER BY executed_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ExecutionResult
	for rows.Next() {
		res := &types.ExecutionResult{}
		if err := rows.Scan(&res.RequestID, &res.IdempotencyKey, &res.CorrelationID, &res.Venue, &res.MarketID,
			&res.Side, &res.Status, &res.OrderID, &res.FilledQty, &res.AvgPrice, &res.Fees, &res.LatencyMS,
			&res.RejectionReason, &res.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ResultsSince returns execution results recorded at or after since.
func (r *executionRepository) ResultsSince(ctx context.Context, since time.Time) ([]*types.ExecutionResult, error) {
	query := `
		SELECT request_id, idempotency_key, correlation_id, venue, market_id, side,
			status, order_id, filled_qty, avg_price, fees, latency_ms, rejection_reason, executed_at
		FROM execution_results
		WHERE executed_at >= $1
		ORDER BY executed_at ASC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ExecutionResult
	for rows.Next() {
		res := &types.ExecutionResult{}
		if err := rows.Scan(&res.RequestID, &res.IdempotencyKey, &res.CorrelationID, &res.Venue, &res.MarketID,
			&res.Side, &res.Status, &res.OrderID, &res.FilledQty, &res.AvgPrice, &res.Fees, &res.LatencyMS,
			&res.RejectionReason, &res.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
