package game

import (
	"context"
	"sync"
)

// Store keeps the ledger durable. Every service mutation runs in one Update
// call, so the wallet changes it causes, its idempotency key and the
// resulting snapshot commit together or not at all.
type Store interface {
	Load(ctx context.Context) (Snapshot, bool, error)
	// Update runs fn in a transaction. fn may be called more than once
	// when the transaction has to be retried.
	Update(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
}

type StoreTx interface {
	// ReserveKey fails with ErrDuplicateIdempotency if (identity, key) is taken.
	ReserveKey(ctx context.Context, identity, key, action string) error
	Collect(ctx context.Context, from string, amount int64) error
	Transfer(ctx context.Context, to string, amount int64) error
	// SaveSnapshot replaces the stored snapshot, which must still be at
	// seq base; otherwise it fails with ErrStaleSnapshot. With nothing
	// stored yet any base is accepted.
	SaveSnapshot(ctx context.Context, base uint64, snap Snapshot) error
}

type storeTxKey struct{}

// txTransferer pays winnings through the store transaction on ctx, or
// straight into the bank when there is none.
type txTransferer struct {
	bank Bank
}

func (t txTransferer) Transfer(ctx context.Context, to string, amount int64) error {
	if tx, ok := ctx.Value(storeTxKey{}).(StoreTx); ok {
		return tx.Transfer(ctx, to, amount)
	}
	return t.bank.Transfer(ctx, to, amount)
}

type heldEvent struct {
	ctx context.Context
	ev  Event
}

// outbox holds ledger events until the transaction that produced them has
// committed. Events of a rolled back attempt are dropped.
type outbox struct {
	next EventSink

	mu   sync.Mutex
	held []heldEvent
}

func withOutbox(o *outbox) Option {
	return func(l *Ledger) {
		o.next = l.sink
		l.sink = o
	}
}

func (o *outbox) Emit(ctx context.Context, ev Event) {
	o.mu.Lock()
	o.held = append(o.held, heldEvent{ctx: ctx, ev: ev})
	o.mu.Unlock()
}

func (o *outbox) take() []heldEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	held := o.held
	o.held = nil
	return held
}

func (o *outbox) deliver(held []heldEvent) {
	for _, h := range held {
		o.next.Emit(h.ctx, h.ev)
	}
}
