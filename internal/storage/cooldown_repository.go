package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/petec4244/arbees/pkg/types"
)

// cooldownRepository persists TTL'd cooldown entries, shared by
// internal/signal.Cooldowns and internal/eventmonitor.Cooldowns (both
// read the same durable set).
type cooldownRepository struct {
	db *sql.DB
}

func newCooldownRepository(db *sql.DB) *cooldownRepository {
	return &cooldownRepository{db: db}
}

func (r *cooldownRepository) Record(ctx context.Context, eventID string, side types.Side, until time.Time) error {
	query := `
		INSERT INTO cooldowns (event_id, side, until)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, side) DO UPDATE SET until = EXCLUDED.until`

	_, err := r.db.ExecContext(ctx, query, eventID, side, until)
	return err
}

// Active reports whether (eventID, side) is in an unexpired cooldown.
func (r *cooldownRepository) Active(ctx context.Context, eventID string, side types.Side) (bool, error) {
	query := `SELECT until FROM cooldowns WHERE event_id = $1 AND side = $2`

	var until time.Time
	err := r.db.QueryRowContext(ctx, query, eventID, side).Scan(&until)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().Before(until), nil
}
