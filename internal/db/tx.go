package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTxConflict = errors.New("transaction conflict, retry later")

const (
	maxTxAttempts  = 8
	firstTxBackoff = 75 * time.Millisecond
	maxTxBackoff   = 1200 * time.Millisecond
)

// InTx runs fn in a serializable transaction and commits it. Serialization
// failures (SQLSTATE 40001), whether raised by fn or by the commit, rerun fn
// from the start with backoff; fn must therefore be safe to call again.
// After the last attempt InTx returns ErrTxConflict.
func InTx(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, fn func(pgx.Tx) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	retryDelay := firstTxBackoff
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !IsSerializationError(err) {
			return err
		}
		logger.Debug("tx conflict", "attempt", attempt+1)
		if attempt == maxTxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < maxTxBackoff {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func IsSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
