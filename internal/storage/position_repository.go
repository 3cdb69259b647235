package storage

import (
	"database/sql"

	"context"

	"github.com/petec4244/arbees/pkg/types"
)

// positionRepository persists Positions across their open-to-closed
// lifecycle; closed rows remain for archival once dropped from the
// Position Tracker's in-memory set.
type positionRepository struct {
	db *sql.DB
}

func newPositionRepository(db *sql.DB) *positionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) Create(ctx context.Context, pos *types.Position) error {
	query := `
		INSERT INTO positions (
			position_id, signal_id, request_id, event_id, venue, market_id, entity, side,
			entry_price, size, entry_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (position_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		pos.PositionID, pos.SignalID, pos.RequestID, pos.EventID, pos.Venue, pos.MarketID,
		pos.Entity, pos.Side, pos.EntryPrice, pos.Size, pos.EntryTime, pos.Status,
	)
	return err
}

func (r *positionRepository) Close(ctx context.Context, pos *types.Position) error {
	query := `
		UPDATE positions
		SET status = $1, closed_at = $2, realized_pnl = $3, exit_trigger = $4,
			current_mark = $5, unrealized_pnl = $6
		WHERE position_id = $7`

	_, err := r.db.ExecContext(ctx, query,
		pos.Status, pos.ClosedAt, pos.RealizedPnL, pos.ExitTrigger,
		pos.CurrentMark, pos.UnrealizedPnL, pos.PositionID,
	)
	return err
}

// OpenByVenue returns all currently open positions on venue.
func (r *positionRepository) OpenByVenue(ctx context.Context, venue types.Venue) ([]*types.Position, error) {
	query := `
		SELECT position_id, signal_id, request_id, event_id, venue, market_id, entity, side,
			entry_price, size, entry_time, status
		FROM positions
		WHERE venue = $1 AND status = $2`

	rows, err := r.db.QueryContext(ctx, query, venue, types.PositionOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		pos := &types.Position{}
		if err := rows.Scan(&pos.PositionID, &pos.SignalID, &pos.RequestID, &pos.EventID, &pos.Venue,
			&pos.MarketID, &pos.Entity, &pos.Side, &pos.EntryPrice, &pos.Size, &pos.EntryTime, &pos.Status); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}
