package game

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalSink appends every ledger event to kingpot.events.
type JournalSink struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewJournalSink(db *pgxpool.Pool, logger *slog.Logger) *JournalSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalSink{db: db, log: logger}
}

func (j *JournalSink) Emit(ctx context.Context, ev Event) {
	if j == nil || j.db == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		j.log.Error("journal encode failed", "kind", ev.EventKind(), "err", err)
		return
	}
	_, err = j.db.Exec(context.WithoutCancel(ctx), `
		INSERT INTO kingpot.events (seq, kind, body, created_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (seq) DO NOTHING
	`, int64(ev.EventSeq()), ev.EventKind(), string(body))
	if err != nil {
		j.log.Error("journal append failed", "kind", ev.EventKind(), "seq", ev.EventSeq(), "err", err)
	}
}
