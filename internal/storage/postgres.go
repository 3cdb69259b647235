package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/petec4244/arbees/internal/transport"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// PostgresStore is the durable Store backend, composed of one
// repository per table in the persisted-state layout.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger

	signals    *signalRepository
	executions *executionRepository
	positions  *positionRepository
	cooldowns  *cooldownRepository
	balances   *balanceRepository
	audit      *auditRepository
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStore opens and pings a PostgreSQL connection and wires up
// every table repository against it.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cfg.Logger.Info("postgres-store-connected", zap.String("host", cfg.Host), zap.String("database", cfg.Database))

	return &PostgresStore{
		db:         db,
		logger:     cfg.Logger,
		signals:    newSignalRepository(db),
		executions: newExecutionRepository(db),
		positions:  newPositionRepository(db),
		cooldowns:  newCooldownRepository(db),
		balances:   newBalanceRepository(db),
		audit:      newAuditRepository(db),
	}, nil
}

func (p *PostgresStore) SaveSignal(ctx context.Context, sig *types.Signal) error {
	return p.signals.Create(ctx, sig)
}

func (p *PostgresStore) SaveExecutionRequest(ctx context.Context, req *types.ExecutionRequest) error {
	return p.executions.CreateRequest(ctx, req)
}

func (p *PostgresStore) SaveExecutionResult(ctx context.Context, res *types.ExecutionResult) error {
	return p.executions.CreateResult(ctx, res)
}

func (p *PostgresStore) SavePosition(ctx context.Context, pos *types.Position) error {
	return p.positions.Create(ctx, pos)
}

func (p *PostgresStore) SaveClosedPosition(ctx context.Context, pos *types.Position) error {
	return p.positions.Close(ctx, pos)
}

func (p *PostgresStore) RecordCooldown(ctx context.Context, eventID string, side types.Side, until time.Time) error {
	return p.cooldowns.Record(ctx, eventID, side, until)
}

func (p *PostgresStore) SaveBalanceSnapshot(ctx context.Context, venue types.Venue, usd float64, at time.Time) error {
	return p.balances.Record(ctx, venue, usd, at)
}

func (p *PostgresStore) AppendAudit(ctx context.Context, env transport.Envelope) error {
	return p.audit.Append(ctx, env)
}

// SeenRecently implements internal/signal.Dedup.
func (p *PostgresStore) SeenRecently(ctx context.Context, signalID string, window time.Duration) (bool, error) {
	return p.signals.SeenRecently(ctx, signalID, window)
}

// Active implements internal/signal.Cooldowns and internal/eventmonitor.Cooldowns.
func (p *PostgresStore) Active(ctx context.Context, eventID string, side types.Side) (bool, error) {
	return p.cooldowns.Active(ctx, eventID, side)
}

// PerMarket/PerEvent/Global/PerCategory implement internal/signal.Exposure.
func (p *PostgresStore) PerMarket(ctx context.Context, marketID string) (float64, error) {
	return p.executions.CurrentExposure(ctx, marketID)
}

func (p *PostgresStore) PerEvent(ctx context.Context, eventID string) (float64, error) {
	return p.executions.ExposureByEvent(ctx, eventID)
}

func (p *PostgresStore) Global(ctx context.Context) (float64, error) {
	return p.executions.ExposureGlobal(ctx)
}

func (p *PostgresStore) PerCategory(ctx context.Context, category string) (float64, error) {
	return p.executions.ExposureGlobal(ctx) // no category dimension persisted yet; global is the conservative upper bound
}

// CurrentExposure implements internal/execution.ExposureTracker.
func (p *PostgresStore) CurrentExposure(ctx context.Context, marketID string) (float64, error) {
	return p.executions.CurrentExposure(ctx, marketID)
}

// Available implements internal/signal.Bankroll.
func (p *PostgresStore) Available(ctx context.Context) (float64, error) {
	return p.balances.Available(ctx)
}

func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-store")
	return p.db.Close()
}
