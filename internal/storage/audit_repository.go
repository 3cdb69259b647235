package storage

import (
	"context"
	"database/sql"

	"github.com/petec4244/arbees/internal/transport"
)

// auditRepository persists the full-fidelity audit log: a raw copy of
// every bus envelope the transport bridge mirrors, of any topic, independent
// of the typed per-table rows the other repositories maintain.
type auditRepository struct {
	db *sql.DB
}

func newAuditRepository(db *sql.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, env transport.Envelope) error {
	query := `
		INSERT INTO audit_log (seq, ts_ms, source, topic, payload)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, env.Seq, env.TSMillis, env.Source, env.Topic, env.Payload)
	return err
}
