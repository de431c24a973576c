package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Clock supplies the current time. It only needs to be monotonic
// non-decreasing; equal timestamps across calls are fine.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Transferer moves value out of the ledger to an identity.
type Transferer interface {
	Transfer(ctx context.Context, to string, amount int64) error
}

// Ledger is the king-of-the-hill state machine and escrow. All mutation
// goes through ClaimThrone, DeclareWinner, WithdrawWinnings and StartRound,
// each of which holds mu exclusively while it reads and writes state.
//
// Collaborators (transferer, sink) are handed a context that carries the
// ledger's reentrancy token; any ledger call made with that context fails
// with ErrReentrantCall before touching state.
type Ledger struct {
	mu       sync.RWMutex
	clock    Clock
	transfer Transferer
	sink     EventSink
	log      *slog.Logger

	cfg       Config
	king      string
	pot       int64
	claimFee  int64
	lastClaim time.Time
	ended     bool
	round     int64
	claimants map[string]struct{}
	pending   map[string]int64

	paidIn       int64
	platformCuts int64
	settled      int64
	seq          uint64
}

type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithSink(s EventSink) Option {
	return func(l *Ledger) {
		if s != nil {
			l.sink = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.log = logger
		}
	}
}

// NewLedger opens round 1 with cfg.
func NewLedger(cfg Config, transfer Transferer, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, errors.New("ledger: transferer required")
	}
	l := newLedger(transfer, opts...)
	l.cfg = cfg
	l.round = 1
	l.claimFee = cfg.InitialFee
	return l, nil
}

func newLedger(transfer Transferer, opts ...Option) *Ledger {
	l := &Ledger{
		clock:     systemClock{},
		transfer:  transfer,
		sink:      NoopSink{},
		log:       slog.Default(),
		claimants: make(map[string]struct{}),
		pending:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type guardKey struct{}

// enter rejects calls made from inside one of this ledger's own operations
// and returns the context collaborators must be called with.
func (l *Ledger) enter(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if owner, ok := ctx.Value(guardKey{}).(*Ledger); ok && owner == l {
		return ctx, ErrReentrantCall
	}
	return context.WithValue(ctx, guardKey{}, l), nil
}

func (l *Ledger) ClaimThrone(ctx context.Context, caller string, payment int64) (ThroneClaimed, error) {
	inner, err := l.enter(ctx)
	if err != nil {
		return ThroneClaimed{}, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ThroneClaimed{}, ErrInvalidIdentity
	}
	ev, err := l.claim(caller, payment)
	if err != nil {
		return ThroneClaimed{}, err
	}
	l.sink.Emit(inner, ev)
	return ev, nil
}

func (l *Ledger) claim(caller string, payment int64) (ThroneClaimed, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ended {
		return ThroneClaimed{}, ErrGameAlreadyEnded
	}
	if payment < l.claimFee {
		return ThroneClaimed{}, fmt.Errorf("%w: fee is %s, paid %s", ErrInsufficientPayment, FormatCoins(l.claimFee), FormatCoins(payment))
	}
	if l.king != "" && caller == l.king {
		return ThroneClaimed{}, ErrAlreadyKing
	}

	cut := PlatformCut(payment, l.cfg.PlatformFeePct)
	pot, err := addMicros(l.pot, payment-cut)
	if err != nil {
		return ThroneClaimed{}, err
	}
	platformBal, err := addMicros(l.pending[l.cfg.Platform], cut)
	if err != nil {
		return ThroneClaimed{}, err
	}
	paidIn, err := addMicros(l.paidIn, payment)
	if err != nil {
		return ThroneClaimed{}, err
	}

	now := l.clock.Now()
	if cut > 0 {
		l.pending[l.cfg.Platform] = platformBal
	}
	l.pot = pot
	l.paidIn = paidIn
	l.platformCuts += cut
	l.king = caller
	l.lastClaim = now
	l.claimFee = NextClaimFee(l.claimFee, l.cfg.FeeGrowth)
	l.claimants[caller] = struct{}{}
	l.seq++

	return ThroneClaimed{
		Caller:      caller,
		Payment:     payment,
		PlatformCut: cut,
		NewFee:      l.claimFee,
		NewPot:      l.pot,
		Timestamp:   now,
		Round:       l.round,
		Seq:         l.seq,
	}, nil
}

// DeclareWinner settles the round. Anyone may call it; it succeeds at most
// once per round.
func (l *Ledger) DeclareWinner(ctx context.Context, caller string) (GameEnded, error) {
	inner, err := l.enter(ctx)
	if err != nil {
		return GameEnded{}, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return GameEnded{}, ErrInvalidIdentity
	}
	ev, err := l.settle(caller)
	if err != nil {
		return GameEnded{}, err
	}
	l.sink.Emit(inner, ev)
	return ev, nil
}

func (l *Ledger) settle(caller string) (GameEnded, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ended {
		return GameEnded{}, ErrGameAlreadyEnded
	}
	if l.king == "" {
		return GameEnded{}, ErrNoThroneClaimed
	}
	now := l.clock.Now()
	if !now.After(l.lastClaim.Add(l.cfg.GracePeriod)) {
		return GameEnded{}, ErrGraceNotExpired
	}
	if len(l.claimants) < l.cfg.MinClaimants {
		return GameEnded{}, fmt.Errorf("%w: %d of %d distinct claimants", ErrGraceNotExpired, len(l.claimants), l.cfg.MinClaimants)
	}
	credited, err := addMicros(l.pending[l.king], l.pot)
	if err != nil {
		return GameEnded{}, err
	}

	amount := l.pot
	l.pending[l.king] = credited
	l.settled += amount
	l.pot = 0
	l.ended = true
	l.seq++

	return GameEnded{
		Winner:     l.king,
		Amount:     amount,
		DeclaredBy: caller,
		Timestamp:  now,
		Round:      l.round,
		Seq:        l.seq,
	}, nil
}

// WithdrawWinnings zeroes the caller's balance and only then transfers it.
// If the transfer fails the amount is credited back and the error is
// returned wrapped in ErrTransferFailed.
//
// The lock is held for the debit and again for the re-credit, not across
// the transfer itself. The zeroed balance is what stops a concurrent second
// withdrawal, and the transferer sees a context whose ledger calls fail with
// ErrReentrantCall. A transferer may read the ledger (PendingWinnings,
// State) while it runs. Service callers backed by a Store additionally get
// the whole withdrawal inside one transaction.
func (l *Ledger) WithdrawWinnings(ctx context.Context, caller string) (WithdrawalCompleted, error) {
	inner, err := l.enter(ctx)
	if err != nil {
		return WithdrawalCompleted{}, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return WithdrawalCompleted{}, ErrInvalidIdentity
	}
	amount, err := l.debit(caller)
	if err != nil {
		return WithdrawalCompleted{}, err
	}

	if err := l.transfer.Transfer(inner, caller, amount); err != nil {
		l.recredit(caller, amount)
		l.log.WarnContext(ctx, "winnings transfer failed, balance restored", "identity", caller, "amount_micros", amount, "err", err)
		return WithdrawalCompleted{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	l.mu.Lock()
	l.seq++
	ev := WithdrawalCompleted{
		Identity:  caller,
		Amount:    amount,
		Timestamp: l.clock.Now(),
		Seq:       l.seq,
	}
	l.mu.Unlock()

	l.sink.Emit(inner, ev)
	return ev, nil
}

func (l *Ledger) debit(caller string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount := l.pending[caller]
	if amount <= 0 {
		return 0, ErrNoWinnings
	}
	delete(l.pending, caller)
	l.seq++
	return amount, nil
}

func (l *Ledger) recredit(caller string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[caller] += amount
	l.seq++
}

// StartRound opens the next round with cfg once the current one has ended.
func (l *Ledger) StartRound(ctx context.Context, cfg Config) (RoundStarted, error) {
	inner, err := l.enter(ctx)
	if err != nil {
		return RoundStarted{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RoundStarted{}, err
	}

	l.mu.Lock()
	if !l.ended {
		l.mu.Unlock()
		return RoundStarted{}, ErrRoundInProgress
	}
	l.cfg = cfg
	l.king = ""
	l.pot = 0
	l.claimFee = cfg.InitialFee
	l.lastClaim = time.Time{}
	l.ended = false
	l.round++
	l.claimants = make(map[string]struct{})
	l.paidIn = 0
	l.platformCuts = 0
	l.settled = 0
	l.seq++
	ev := RoundStarted{
		Round:       l.round,
		InitialFee:  cfg.InitialFee,
		GracePeriod: cfg.GracePeriod,
		Timestamp:   l.clock.Now(),
		Seq:         l.seq,
	}
	l.mu.Unlock()

	l.sink.Emit(inner, ev)
	return ev, nil
}

// RemainingTime is max(0, lastClaim+grace-now). Before the first claim the
// full grace period is reported; after settlement it is zero.
func (l *Ledger) RemainingTime() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ended {
		return 0
	}
	if l.king == "" {
		return l.cfg.GracePeriod
	}
	left := l.lastClaim.Add(l.cfg.GracePeriod).Sub(l.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

type State struct {
	Round         int64         `json:"round"`
	King          string        `json:"king,omitempty"`
	Pot           int64         `json:"pot_micros"`
	ClaimFee      int64         `json:"claim_fee_micros"`
	LastClaimTime time.Time     `json:"last_claim_time"`
	GracePeriod   time.Duration `json:"grace_period"`
	Ended         bool          `json:"ended"`
	Claimants     int           `json:"claimants"`
	Seq           uint64        `json:"seq"`
}

func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return State{
		Round:         l.round,
		King:          l.king,
		Pot:           l.pot,
		ClaimFee:      l.claimFee,
		LastClaimTime: l.lastClaim,
		GracePeriod:   l.cfg.GracePeriod,
		Ended:         l.ended,
		Claimants:     len(l.claimants),
		Seq:           l.seq,
	}
}

func (l *Ledger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Ledger) PendingWinnings(id string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending[strings.TrimSpace(id)]
}

// Audit reports the current round's fund flows. PaidIn-PlatformCuts always
// equals Pot+Settled.
type Audit struct {
	PaidIn       int64 `json:"paid_in_micros"`
	PlatformCuts int64 `json:"platform_cuts_micros"`
	Pot          int64 `json:"pot_micros"`
	Settled      int64 `json:"settled_micros"`
	Pending      int64 `json:"pending_micros"`
}

func (l *Ledger) Audit() Audit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var pending int64
	for _, v := range l.pending {
		pending += v
	}
	return Audit{
		PaidIn:       l.paidIn,
		PlatformCuts: l.platformCuts,
		Pot:          l.pot,
		Settled:      l.settled,
		Pending:      pending,
	}
}

// Snapshot is a point-in-time copy of the full ledger, suitable for
// persisting and restoring.
type Snapshot struct {
	Config       Config           `json:"config"`
	King         string           `json:"king,omitempty"`
	Pot          int64            `json:"pot_micros"`
	ClaimFee     int64            `json:"claim_fee_micros"`
	LastClaim    time.Time        `json:"last_claim"`
	Ended        bool             `json:"ended"`
	Round        int64            `json:"round"`
	Claimants    []string         `json:"claimants,omitempty"`
	Pending      map[string]int64 `json:"pending"`
	PaidIn       int64            `json:"paid_in_micros"`
	PlatformCuts int64            `json:"platform_cuts_micros"`
	Settled      int64            `json:"settled_micros"`
	Seq          uint64           `json:"seq"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		Config:       l.cfg,
		King:         l.king,
		Pot:          l.pot,
		ClaimFee:     l.claimFee,
		LastClaim:    l.lastClaim,
		Ended:        l.ended,
		Round:        l.round,
		Pending:      make(map[string]int64, len(l.pending)),
		PaidIn:       l.paidIn,
		PlatformCuts: l.platformCuts,
		Settled:      l.settled,
		Seq:          l.seq,
	}
	for id := range l.claimants {
		s.Claimants = append(s.Claimants, id)
	}
	sort.Strings(s.Claimants)
	for id, v := range l.pending {
		s.Pending[id] = v
	}
	return s
}

func RestoreLedger(s Snapshot, transfer Transferer, opts ...Option) (*Ledger, error) {
	if transfer == nil {
		return nil, errors.New("ledger: transferer required")
	}
	l := newLedger(transfer, opts...)
	if err := l.load(s); err != nil {
		return nil, err
	}
	return l, nil
}

// reset puts the ledger back to s in place. The service uses it to undo an
// operation whose store transaction did not commit.
func (l *Ledger) reset(s Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(s)
}

// load replaces all state with s. Callers hold mu or own l exclusively.
func (l *Ledger) load(s Snapshot) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if s.Pot < 0 || s.ClaimFee <= 0 || s.Round < 1 {
		return fmt.Errorf("ledger: corrupt snapshot (pot=%d fee=%d round=%d)", s.Pot, s.ClaimFee, s.Round)
	}
	if s.Ended && s.Pot != 0 {
		return fmt.Errorf("ledger: corrupt snapshot: ended round holds pot %d", s.Pot)
	}
	pending := make(map[string]int64, len(s.Pending))
	for id, v := range s.Pending {
		if v < 0 {
			return fmt.Errorf("ledger: corrupt snapshot: negative balance for %s", id)
		}
		if v > 0 {
			pending[id] = v
		}
	}
	claimants := make(map[string]struct{}, len(s.Claimants))
	for _, id := range s.Claimants {
		claimants[id] = struct{}{}
	}

	l.cfg = s.Config
	l.king = s.King
	l.pot = s.Pot
	l.claimFee = s.ClaimFee
	l.lastClaim = s.LastClaim
	l.ended = s.Ended
	l.round = s.Round
	l.paidIn = s.PaidIn
	l.platformCuts = s.PlatformCuts
	l.settled = s.Settled
	l.seq = s.Seq
	l.claimants = claimants
	l.pending = pending
	return nil
}
