package game

import (
	"context"
	"log/slog"
	"time"
)

const (
	EventThroneClaimed       = "throne.claimed"
	EventGameEnded           = "game.ended"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventRoundStarted        = "round.started"
)

// Event is a notification the ledger emits after a successful transition.
// Seq orders events across concurrent callers.
type Event interface {
	EventKind() string
	EventSeq() uint64
}

type ThroneClaimed struct {
	Caller      string    `json:"caller"`
	Payment     int64     `json:"payment_micros"`
	PlatformCut int64     `json:"platform_cut_micros"`
	NewFee      int64     `json:"new_fee_micros"`
	NewPot      int64     `json:"new_pot_micros"`
	Timestamp   time.Time `json:"timestamp"`
	Round       int64     `json:"round"`
	Seq         uint64    `json:"seq"`
}

type GameEnded struct {
	Winner     string    `json:"winner"`
	Amount     int64     `json:"amount_micros"`
	DeclaredBy string    `json:"declared_by"`
	Timestamp  time.Time `json:"timestamp"`
	Round      int64     `json:"round"`
	Seq        uint64    `json:"seq"`
}

type WithdrawalCompleted struct {
	Identity  string    `json:"identity"`
	Amount    int64     `json:"amount_micros"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

type RoundStarted struct {
	Round       int64         `json:"round"`
	InitialFee  int64         `json:"initial_fee_micros"`
	GracePeriod time.Duration `json:"grace_period"`
	Timestamp   time.Time     `json:"timestamp"`
	Seq         uint64        `json:"seq"`
}

func (e ThroneClaimed) EventKind() string       { return EventThroneClaimed }
func (e GameEnded) EventKind() string           { return EventGameEnded }
func (e WithdrawalCompleted) EventKind() string { return EventWithdrawalCompleted }
func (e RoundStarted) EventKind() string        { return EventRoundStarted }

func (e ThroneClaimed) EventSeq() uint64       { return e.Seq }
func (e GameEnded) EventSeq() uint64           { return e.Seq }
func (e WithdrawalCompleted) EventSeq() uint64 { return e.Seq }
func (e RoundStarted) EventSeq() uint64        { return e.Seq }

// EventSink receives ledger notifications. Implementations must not block
// for long; they run on the caller's goroutine after the ledger lock is
// released.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to every non-nil sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, ev Event) {
	logger := s.Log
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", ev.EventKind(), "seq", ev.EventSeq()}
	switch e := ev.(type) {
	case ThroneClaimed:
		attrs = append(attrs, "caller", e.Caller, "round", e.Round, "payment_micros", e.Payment,
			"new_fee_micros", e.NewFee, "new_pot_micros", e.NewPot)
	case GameEnded:
		attrs = append(attrs, "winner", e.Winner, "round", e.Round, "amount_micros", e.Amount,
			"declared_by", e.DeclaredBy)
	case WithdrawalCompleted:
		attrs = append(attrs, "identity", e.Identity, "amount_micros", e.Amount)
	case RoundStarted:
		attrs = append(attrs, "round", e.Round, "initial_fee_micros", e.InitialFee,
			"grace_period", e.GracePeriod.String())
	}
	logger.InfoContext(ctx, "ledger event", attrs...)
}
