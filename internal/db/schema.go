package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS kingpot`,
	`CREATE TABLE IF NOT EXISTS kingpot.ledger_snapshots (
		id         SMALLINT PRIMARY KEY,
		seq        BIGINT NOT NULL,
		body       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS kingpot.events (
		seq        BIGINT PRIMARY KEY,
		kind       TEXT NOT NULL,
		body       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS events_kind_idx ON kingpot.events (kind, seq)`,
	`CREATE TABLE IF NOT EXISTS kingpot.wallets (
		identity       TEXT PRIMARY KEY,
		balance_micros BIGINT NOT NULL CHECK (balance_micros >= 0),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS kingpot.idempotency_keys (
		identity   TEXT NOT NULL,
		key        TEXT NOT NULL,
		action     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (identity, key)
	)`,
}

// EnsureSchema creates the kingpot schema and tables if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
