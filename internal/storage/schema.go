package storage

import "database/sql"

// schemaStatements creates the persisted-state tables if absent. There
// is no migration tool in this stack; tables are created idempotently
// at startup, the same pattern the integration suite this package is
// grounded on uses for its own test fixtures.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id VARCHAR(64) PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		event_id VARCHAR(64) NOT NULL,
		entity VARCHAR(128) NOT NULL,
		edge_bps INT NOT NULL DEFAULT 0,
		model_prob DOUBLE PRECISION NOT NULL DEFAULT 0,
		market_prob DOUBLE PRECISION NOT NULL DEFAULT 0,
		detected_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signal_dedup (
		signal_id VARCHAR(64) PRIMARY KEY,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS execution_requests (
		request_id VARCHAR(64) PRIMARY KEY,
		idempotency_key VARCHAR(128) NOT NULL,
		correlation_id VARCHAR(64) NOT NULL DEFAULT '',
		venue VARCHAR(16) NOT NULL,
		market_id VARCHAR(64) NOT NULL,
		side VARCHAR(8) NOT NULL,
		limit_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		event_id VARCHAR(64) NOT NULL DEFAULT '',
		signal_id VARCHAR(64) NOT NULL DEFAULT '',
		signal_type VARCHAR(16) NOT NULL DEFAULT '',
		edge_bps INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS execution_results (
		id SERIAL PRIMARY KEY,
		request_id VARCHAR(64) NOT NULL,
		idempotency_key VARCHAR(128) NOT NULL DEFAULT '',
		correlation_id VARCHAR(64) NOT NULL DEFAULT '',
		venue VARCHAR(16) NOT NULL,
		market_id VARCHAR(64) NOT NULL,
		side VARCHAR(8) NOT NULL,
		status VARCHAR(16) NOT NULL,
		order_id VARCHAR(64) NOT NULL DEFAULT '',
		filled_qty DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		fees DOUBLE PRECISION NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		rejection_reason VARCHAR(32) NOT NULL DEFAULT '',
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		position_id VARCHAR(64) PRIMARY KEY,
		signal_id VARCHAR(64) NOT NULL DEFAULT '',
		request_id VARCHAR(64) NOT NULL DEFAULT '',
		event_id VARCHAR(64) NOT NULL DEFAULT '',
		venue VARCHAR(16) NOT NULL,
		market_id VARCHAR(64) NOT NULL,
		entity VARCHAR(128) NOT NULL,
		side VARCHAR(8) NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		current_mark DOUBLE PRECISION NOT NULL DEFAULT 0,
		unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		closed_at TIMESTAMPTZ,
		realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		exit_trigger VARCHAR(24) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS cooldowns (
		event_id VARCHAR(64) NOT NULL,
		side VARCHAR(8) NOT NULL,
		until TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (event_id, side)
	)`,
	`CREATE TABLE IF NOT EXISTS balance_snapshots (
		id SERIAL PRIMARY KEY,
		venue VARCHAR(16) NOT NULL,
		usd DOUBLE PRECISION NOT NULL,
		at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGINT NOT NULL,
		ts_ms BIGINT NOT NULL,
		source VARCHAR(64) NOT NULL,
		topic VARCHAR(128) NOT NULL,
		payload BYTEA,
		PRIMARY KEY (source, seq)
	)`,
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
