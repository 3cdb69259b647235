package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/petec4244/arbees/pkg/types"
)

// signalRepository persists Signals to the signals table.
type signalRepository struct {
	db *sql.DB
}

func newSignalRepository(db *sql.DB) *signalRepository {
	return &signalRepository{db: db}
}

func (r *signalRepository) Create(ctx context.Context, sig *types.Signal) error {
	query := `
		INSERT INTO signals (id, kind, event_id, entity, edge_bps, model_prob, market_prob, detected_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		sig.ID, sig.Kind, sig.EventID, sig.Entity, sig.EdgeBPS,
		sig.ModelProb, sig.MarketProb, sig.DetectedAt, sig.ExpiresAt,
	)
	return err
}

// SeenRecently implements internal/signal.Dedup: records signalID as
// processed and reports whether it was already recorded within window.
func (r *signalRepository) SeenRecently(ctx context.Context, signalID string, window time.Duration) (bool, error) {
	query := `
		INSERT INTO signal_dedup (signal_id, first_seen_at)
		VALUES ($1, now())
		ON CONFLICT (signal_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, signalID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return false, nil // first time, not a duplicate
	}

	var firstSeen time.Time
	err = r.db.QueryRowContext(ctx, `SELECT first_seen_at FROM signal_dedup WHERE signal_id = $1`, signalID).Scan(&firstSeen)
	if err != nil {
		return false, err
	}
	return time.Since(firstSeen) < window, nil
}

// RecentByEvent returns signals detected for eventID since since, most
// recent first, for operator inspection tooling.
func (r *signalRepository) RecentByEvent(ctx context.Context, eventID string, since time.Time) ([]*types.Signal, error) {
	query := `
		SELECT id, kind, event_id, entity, edge_bps, model_prob, market_prob, detected_at, expires_at
		FROM signals
		WHERE event_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC`

	rows, err := r.db.QueryContext(ctx, query, eventID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Signal
	for rows.Next() {
		sig := &types.Signal{}
		if err := rows.Scan(&sig.ID, &sig.Kind, &sig.EventID, &sig.Entity, &sig.EdgeBPS,
			&sig.ModelProb, &sig.MarketProb, &sig.DetectedAt, &sig.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
