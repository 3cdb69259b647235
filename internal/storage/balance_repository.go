package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/petec4244/arbees/pkg/types"
)

// balanceRepository persists periodic venue balance snapshots.
type balanceRepository struct {
	db *sql.DB
}

func newBalanceRepository(db *sql.DB) *balanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) Record(ctx context.Context, venue types.Venue, usd float64, at time.Time) error {
	query := `INSERT INTO balance_snapshots (venue, usd, at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, venue, usd, at)
	return err
}

// Latest returns the most recently recorded snapshot for venue.
func (r *balanceRepository) Latest(ctx context.Context, venue types.Venue) (float64, time.Time, error) {
	query := `SELECT usd, at FROM balance_snapshots WHERE venue = $1 ORDER BY at DESC LIMIT 1`

	var usd float64
	var at time.Time
	err := r.db.QueryRowContext(ctx, query, venue).Scan(&usd, &at)
	return usd, at, err
}

// Available implements internal/signal.Bankroll: total USD available
// across both venues' most recent balance snapshots.
func (r *balanceRepository) Available(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(SUM(usd), 0) FROM (
			SELECT DISTINCT ON (venue) venue, usd
			FROM balance_snapshots
			ORDER BY venue, at DESC
		) latest`

	var total float64
	err := r.db.QueryRowContext(ctx, query).Scan(&total)
	return total, err
}
