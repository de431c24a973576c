package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kingpot/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps wallets in kingpot.wallets.
type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, log: logger}
}

func (p *Postgres) Open(ctx context.Context, id string, starter int64) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrUnknownAccount
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO kingpot.wallets (identity, balance_micros, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity) DO NOTHING
	`, id, max(starter, 0))
	return err
}

func (p *Postgres) Collect(ctx context.Context, from string, amount int64) error {
	return db.InTx(ctx, p.db, p.log, func(tx pgx.Tx) error {
		return CollectTx(ctx, tx, from, amount)
	})
}

func (p *Postgres) Transfer(ctx context.Context, to string, amount int64) error {
	return db.InTx(ctx, p.db, p.log, func(tx pgx.Tx) error {
		return TransferTx(ctx, tx, to, amount)
	})
}

// CollectTx debits from's wallet inside tx. The row is locked until tx ends.
func CollectTx(ctx context.Context, tx pgx.Tx, from string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	var balance int64
	if err := tx.QueryRow(ctx, `
		SELECT balance_micros
		FROM kingpot.wallets
		WHERE identity = $1
		FOR UPDATE
	`, from).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, from)
		}
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d micros", ErrInsufficientFunds, balance, amount)
	}
	_, err := tx.Exec(ctx, `
		UPDATE kingpot.wallets
		SET balance_micros = balance_micros - $1, updated_at = now()
		WHERE identity = $2
	`, amount, from)
	return err
}

// TransferTx credits to's wallet inside tx, opening it if needed.
func TransferTx(ctx context.Context, tx pgx.Tx, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO kingpot.wallets (identity, balance_micros, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity) DO UPDATE
		SET balance_micros = kingpot.wallets.balance_micros + EXCLUDED.balance_micros,
		    updated_at = now()
	`, to, amount)
	return err
}

func (p *Postgres) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := p.db.QueryRow(ctx, `
		SELECT balance_micros
		FROM kingpot.wallets
		WHERE identity = $1
	`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return balance, err
}
