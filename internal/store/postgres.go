// Package store persists the ledger in Postgres alongside the wallets it
// pays into and collects from.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kingpot/internal/bank"
	"kingpot/internal/db"
	"kingpot/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const snapshotID = 1

// Postgres implements game.Store on kingpot.ledger_snapshots,
// kingpot.wallets and kingpot.idempotency_keys.
type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: pool, log: logger}
}

func (p *Postgres) Load(ctx context.Context) (game.Snapshot, bool, error) {
	var snap game.Snapshot
	var body []byte
	err := p.db.QueryRow(ctx, `
		SELECT body
		FROM kingpot.ledger_snapshots
		WHERE id = $1
	`, snapshotID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (p *Postgres) Update(ctx context.Context, fn func(ctx context.Context, tx game.StoreTx) error) error {
	err := db.InTx(ctx, p.db, p.log, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
	if errors.Is(err, db.ErrTxConflict) {
		return fmt.Errorf("%w: %w", game.ErrTxConflict, err)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) ReserveKey(ctx context.Context, identity, key, action string) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO kingpot.idempotency_keys (identity, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (identity, key) DO NOTHING
	`, identity, strings.TrimSpace(key), action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (t pgTx) Collect(ctx context.Context, from string, amount int64) error {
	return bank.CollectTx(ctx, t.tx, from, amount)
}

func (t pgTx) Transfer(ctx context.Context, to string, amount int64) error {
	return bank.TransferTx(ctx, t.tx, to, amount)
}

func (t pgTx) SaveSnapshot(ctx context.Context, base uint64, snap game.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO kingpot.ledger_snapshots (id, seq, body, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (id) DO UPDATE
		SET seq = EXCLUDED.seq, body = EXCLUDED.body, updated_at = now()
		WHERE kingpot.ledger_snapshots.seq = $4
	`, snapshotID, int64(snap.Seq), string(body), int64(base))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected seq %d", game.ErrStaleSnapshot, base)
	}
	return nil
}
