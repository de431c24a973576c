package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Bank is the wallet system payments are collected from and winnings are
// paid into.
type Bank interface {
	Transferer
	Open(ctx context.Context, id string, starter int64) error
	Collect(ctx context.Context, from string, amount int64) error
	Balance(ctx context.Context, id string) (int64, error)
}

// Observer is told about every rejected operation.
type Observer interface {
	ObserveRejection(op string, err error)
}

// Service is the application facade over the ledger. With a Store every
// mutation is serialised and committed together with its wallet changes;
// the ledger must then only be mutated through the Service.
type Service struct {
	store    Store
	log      *slog.Logger
	ledger   *Ledger
	bank     Bank
	cfg      Config
	observer Observer
	outbox   *outbox

	opMu sync.Mutex

	mu   sync.Mutex
	idem map[string]struct{}
}

// NewService restores the ledger from store when it holds a snapshot,
// otherwise it opens a fresh round with cfg. A nil store keeps everything
// in memory.
func NewService(ctx context.Context, store Store, bank Bank, cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bank == nil {
		return nil, errors.New("game service: bank required")
	}
	opts = append([]Option{WithLogger(logger)}, opts...)

	s := &Service{
		store: store,
		log:   logger,
		bank:  bank,
		cfg:   cfg,
		idem:  make(map[string]struct{}),
	}
	if store != nil {
		s.outbox = &outbox{}
		opts = append(opts, withOutbox(s.outbox))
	}
	transfer := txTransferer{bank: bank}

	var (
		snap  Snapshot
		found bool
		err   error
	)
	if store != nil {
		snap, found, err = store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	if found {
		s.ledger, err = RestoreLedger(snap, transfer, opts...)
		if err != nil {
			return nil, fmt.Errorf("restore ledger: %w", err)
		}
		logger.Info("ledger restored", "round", snap.Round, "seq", snap.Seq, "ended", snap.Ended)
	} else {
		s.ledger, err = NewLedger(cfg, transfer, opts...)
		if err != nil {
			return nil, err
		}
	}
	if err := bank.Open(ctx, cfg.Platform, 0); err != nil {
		return nil, fmt.Errorf("open platform wallet: %w", err)
	}
	return s, nil
}

func (s *Service) SetObserver(o Observer) { s.observer = o }

func (s *Service) Ledger() *Ledger { return s.ledger }

func (s *Service) EnsurePlayer(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrInvalidIdentity
	}
	return s.bank.Open(ctx, identity, StarterBalanceMicros)
}

func (s *Service) Game(exposeRemaining bool) GameView {
	st := s.ledger.State()
	cfg := s.ledger.Config()
	return GameView{
		Round:            st.Round,
		King:             st.King,
		PotMicros:        st.Pot,
		ClaimFeeMicros:   st.ClaimFee,
		LastClaimTime:    st.LastClaimTime,
		GracePeriodSecs:  int64(st.GracePeriod / time.Second),
		Ended:            st.Ended,
		Claimants:        st.Claimants,
		MinClaimants:     cfg.MinClaimants,
		FeeGrowth:        cfg.FeeGrowth.String(),
		PlatformFeePct:   cfg.PlatformFeePct.String(),
		RemainingExposed: exposeRemaining,
	}
}

func (s *Service) Remaining() RemainingView {
	return RemainingView{RemainingSecs: s.ledger.RemainingTime().Seconds()}
}

func (s *Service) Winnings(ctx context.Context, identity string) (WinningsView, error) {
	wallet, err := s.bank.Balance(ctx, identity)
	if err != nil {
		return WinningsView{}, err
	}
	return WinningsView{
		Identity:      identity,
		PendingMicros: s.ledger.PendingWinnings(identity),
		WalletMicros:  wallet,
	}, nil
}

// ClaimThrone collects the payment from the caller's wallet and hands it to
// the ledger. A rejected claim leaves the wallet as it was.
func (s *Service) ClaimThrone(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	var out ClaimResult
	if in.PaymentMicros <= 0 {
		return out, fmt.Errorf("%w: payment must be > 0", ErrInsufficientPayment)
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		return out, fmt.Errorf("idempotency key is required")
	}

	var ev ThroneClaimed
	var err error
	if s.store == nil {
		ev, err = s.claimInMemory(ctx, in.Identity, key, in.PaymentMicros)
	} else {
		err = s.apply(ctx, func(ctx context.Context, tx StoreTx) error {
			if err := tx.ReserveKey(ctx, in.Identity, key, "claim"); err != nil {
				return err
			}
			if err := tx.Collect(ctx, in.Identity, in.PaymentMicros); err != nil {
				return fmt.Errorf("collect payment: %w", err)
			}
			var err error
			ev, err = s.ledger.ClaimThrone(ctx, in.Identity, in.PaymentMicros)
			return err
		})
	}
	if err != nil {
		s.reject("claim", err)
		return out, err
	}

	out = ClaimResult{
		Round:             ev.Round,
		PaymentMicros:     ev.Payment,
		PlatformCutMicros: ev.PlatformCut,
		NewFeeMicros:      ev.NewFee,
		NewPotMicros:      ev.NewPot,
	}
	out.WalletMicros, err = s.bank.Balance(ctx, in.Identity)
	if err != nil {
		s.log.Warn("wallet balance read failed", "identity", in.Identity, "err", err)
	}
	return out, nil
}

// claimInMemory collects first and refunds if the ledger rejects the claim.
func (s *Service) claimInMemory(ctx context.Context, identity, key string, payment int64) (ThroneClaimed, error) {
	release, err := s.reserveKey(identity, key)
	if err != nil {
		return ThroneClaimed{}, err
	}
	if err := s.bank.Collect(ctx, identity, payment); err != nil {
		release()
		return ThroneClaimed{}, fmt.Errorf("collect payment: %w", err)
	}
	ev, err := s.ledger.ClaimThrone(ctx, identity, payment)
	if err != nil {
		release()
		if refundErr := s.bank.Transfer(ctx, identity, payment); refundErr != nil {
			s.log.Error("claim refund failed", "identity", identity, "amount_micros", payment, "err", refundErr)
			return ThroneClaimed{}, errors.Join(err, fmt.Errorf("refund payment: %w", refundErr))
		}
		return ThroneClaimed{}, err
	}
	return ev, nil
}

func (s *Service) DeclareWinner(ctx context.Context, caller string) (SettlementResult, error) {
	var ev GameEnded
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		ev, err = s.ledger.DeclareWinner(ctx, caller)
		return err
	})
	if err != nil {
		s.reject("declare", err)
		return SettlementResult{}, err
	}
	return SettlementResult{Round: ev.Round, Winner: ev.Winner, AmountMicros: ev.Amount}, nil
}

func (s *Service) WithdrawWinnings(ctx context.Context, caller string) (WithdrawalResult, error) {
	var ev WithdrawalCompleted
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		ev, err = s.ledger.WithdrawWinnings(ctx, caller)
		return err
	})
	if err != nil {
		s.reject("withdraw", err)
		return WithdrawalResult{}, err
	}
	out := WithdrawalResult{AmountMicros: ev.Amount}
	out.WalletMicros, err = s.bank.Balance(ctx, caller)
	if err != nil {
		s.log.Warn("wallet balance read failed", "identity", caller, "err", err)
	}
	return out, nil
}

// StartNextRound opens a new round with the service's configured defaults.
func (s *Service) StartNextRound(ctx context.Context) (RoundView, error) {
	var ev RoundStarted
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		ev, err = s.ledger.StartRound(ctx, s.cfg)
		return err
	})
	if err != nil {
		s.reject("start_round", err)
		return RoundView{}, err
	}
	return RoundView{
		Round:            ev.Round,
		InitialFeeMicros: ev.InitialFee,
		GracePeriodSecs:  int64(ev.GracePeriod / time.Second),
	}, nil
}

func (s *Service) reject(op string, err error) {
	if s.observer != nil {
		s.observer.ObserveRejection(op, err)
	}
}

// mutate runs a ledger operation that needs no wallet change of its own.
func (s *Service) mutate(ctx context.Context, op func(context.Context) error) error {
	if s.store == nil {
		return op(ctx)
	}
	return s.apply(ctx, func(ctx context.Context, _ StoreTx) error {
		return op(ctx)
	})
}

// apply runs op and saves the resulting snapshot in one store transaction.
// If the transaction does not commit the ledger is reset to its state
// before op and the events op raised are dropped; otherwise they are
// delivered after the commit. Each attempt starts from the same state, so
// a retried transaction applies op once.
func (s *Service) apply(ctx context.Context, op func(ctx context.Context, tx StoreTx) error) error {
	s.opMu.Lock()
	before := s.ledger.Snapshot()
	err := s.store.Update(ctx, func(ctx context.Context, tx StoreTx) error {
		if err := s.ledger.reset(before); err != nil {
			return err
		}
		s.outbox.take()
		ctx = context.WithValue(ctx, storeTxKey{}, tx)
		if err := op(ctx, tx); err != nil {
			return err
		}
		return tx.SaveSnapshot(ctx, before.Seq, s.ledger.Snapshot())
	})
	if err != nil {
		if resetErr := s.ledger.reset(before); resetErr != nil {
			s.log.Error("ledger reset failed", "seq", before.Seq, "err", resetErr)
		}
		s.outbox.take()
		s.opMu.Unlock()
		return err
	}
	held := s.outbox.take()
	s.opMu.Unlock()

	s.outbox.deliver(held)
	return nil
}

// reserveKey records (identity, key) once. The returned func releases the
// key again so a failed request can be retried with it.
func (s *Service) reserveKey(identity, key string) (func(), error) {
	mapKey := identity + "\x00" + key
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idem[mapKey]; ok {
		return nil, ErrDuplicateIdempotency
	}
	s.idem[mapKey] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.idem, mapKey)
		s.mu.Unlock()
	}, nil
}
