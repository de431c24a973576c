package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingpot/internal/bank"
)

type rejectionLog struct {
	mu    sync.Mutex
	kinds map[string][]string
}

func (r *rejectionLog) ObserveRejection(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds == nil {
		r.kinds = make(map[string][]string)
	}
	r.kinds[op] = append(r.kinds[op], ErrorKind(err))
}

func newTestService(t *testing.T) (*Service, *bank.Memory, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	wallets := bank.NewMemory()
	cfg := DefaultConfig()
	cfg.GracePeriod = 300 * time.Second
	svc, err := NewService(context.Background(), nil, wallets, cfg, nil, WithClock(clock))
	require.NoError(t, err)
	return svc, wallets, clock
}

func TestServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, wallets, clock := newTestService(t)
	for _, id := range []string{"A", "B"} {
		require.NoError(t, svc.EnsurePlayer(ctx, id))
	}
	startTotal := wallets.Total()

	res, err := svc.ClaimThrone(ctx, ClaimInput{Identity: "A", PaymentMicros: coins(100), IdempotencyKey: "a-1"})
	require.NoError(t, err)
	assert.Equal(t, coins(900), res.WalletMicros)
	assert.Equal(t, coins(95), res.NewPotMicros)

	clock.Advance(50 * time.Second)
	_, err = svc.ClaimThrone(ctx, ClaimInput{Identity: "B", PaymentMicros: coins(110), IdempotencyKey: "b-1"})
	require.NoError(t, err)

	clock.Advance(301 * time.Second)
	settled, err := svc.DeclareWinner(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "B", settled.Winner)
	assert.Equal(t, int64(199_500_000), settled.AmountMicros)

	w, err := svc.WithdrawWinnings(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(199_500_000), w.AmountMicros)
	assert.Equal(t, coins(890)+199_500_000, w.WalletMicros)

	_, err = svc.WithdrawWinnings(ctx, DefaultPlatform)
	require.NoError(t, err)

	// Every coin is back in a wallet.
	assert.Equal(t, startTotal, wallets.Total())
}

func TestServiceRefundsRejectedClaim(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _ := newTestService(t)
	obs := &rejectionLog{}
	svc.SetObserver(obs)
	require.NoError(t, svc.EnsurePlayer(ctx, "A"))

	_, err := svc.ClaimThrone(ctx, ClaimInput{Identity: "A", PaymentMicros: coins(50), IdempotencyKey: "k1"})
	require.ErrorIs(t, err, ErrInsufficientPayment)

	bal, err := wallets.Balance(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, StarterBalanceMicros, bal)
	assert.Equal(t, []string{KindInsufficientPayment}, obs.kinds["claim"])

	// The key is released so the player can retry with it.
	_, err = svc.ClaimThrone(ctx, ClaimInput{Identity: "A", PaymentMicros: coins(100), IdempotencyKey: "k1"})
	require.NoError(t, err)
}

func TestServiceClaimNeedsFunds(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	require.NoError(t, svc.EnsurePlayer(ctx, "A"))

	_, err := svc.ClaimThrone(ctx, ClaimInput{Identity: "A", PaymentMicros: StarterBalanceMicros + 1, IdempotencyKey: "k"})
	assert.ErrorIs(t, err, bank.ErrInsufficientFunds)
	assert.Empty(t, svc.Ledger().State().King)
}

func TestServiceIdempotency(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _ := newTestService(t)
	require.NoError(t, svc.EnsurePlayer(ctx, "A"))

	in := ClaimInput{Identity: "A", PaymentMicros: coins(100), IdempotencyKey: "same"}
	_, err := svc.ClaimThrone(ctx, in)
	require.NoError(t, err)
	_, err = svc.ClaimThrone(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateIdempotency)

	bal, _ := wallets.Balance(ctx, "A")
	assert.Equal(t, coins(900), bal)

	in.IdempotencyKey = " "
	_, err = svc.ClaimThrone(ctx, in)
	assert.Error(t, err)
}

func TestServiceWithdrawRecreditsOnRejectedTransfer(t *testing.T) {
	ctx := context.Background()
	svc, wallets, clock := newTestService(t)
	require.NoError(t, svc.EnsurePlayer(ctx, "A"))
	_, err := svc.ClaimThrone(ctx, ClaimInput{Identity: "A", PaymentMicros: coins(100), IdempotencyKey: "k"})
	require.NoError(t, err)
	clock.Advance(301 * time.Second)
	_, err = svc.DeclareWinner(ctx, "A")
	require.NoError(t, err)

	wallets.Reject = func(string, int64) error { return errors.New("wallet frozen") }
	_, err = svc.WithdrawWinnings(ctx, "A")
	require.ErrorIs(t, err, ErrTransferFailed)

	view, err := svc.Winnings(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, coins(95), view.PendingMicros)
	assert.Equal(t, coins(900), view.WalletMicros)
}

func TestServiceStartNextRound(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	require.NoError(t, svc.EnsurePlayer(ctx, "A"))

	_, err := svc.StartNextRound(ctx)
	assert.ErrorIs(t, err, ErrRoundInProgress)

	_, err = svc.ClaimThrone(ctx, ClaimInput{Identity: "A", PaymentMicros: coins(100), IdempotencyKey: "k"})
	require.NoError(t, err)
	clock.Advance(301 * time.Second)
	_, err = svc.DeclareWinner(ctx, "A")
	require.NoError(t, err)

	round, err := svc.StartNextRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), round.Round)
	assert.Equal(t, int64(300), round.GracePeriodSecs)

	view := svc.Game(false)
	assert.False(t, view.Ended)
	assert.Equal(t, DefaultInitialFee, view.ClaimFeeMicros)
	assert.False(t, view.RemainingExposed)
	assert.Equal(t, 300.0, svc.Remaining().RemainingSecs)
}
