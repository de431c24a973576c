// Package keeper settles rounds once their grace period runs out. It only
// talks to the public API, like any other player would.
package keeper

import (
	"context"
	"log/slog"
	"time"

	"kingpot/internal/cli"
	"kingpot/internal/game"
)

type API interface {
	Declare(ctx context.Context, accessToken string) (game.SettlementResult, error)
	StartRound(ctx context.Context, accessToken string) (game.RoundView, error)
}

type Outcome string

const (
	OutcomeSettled Outcome = "settled"
	OutcomeWaiting Outcome = "waiting"
	OutcomeIdle    Outcome = "idle"
	OutcomeEnded   Outcome = "ended"
)

type Keeper struct {
	api      API
	token    string
	autoNext bool
	log      *slog.Logger
}

func New(api API, token string, autoNext bool, logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{api: api, token: token, autoNext: autoNext, log: logger}
}

// RunOnce tries to settle the current round. Rounds that cannot be settled
// yet are reported as an outcome, not an error.
func (k *Keeper) RunOnce(ctx context.Context) (Outcome, error) {
	res, err := k.api.Declare(ctx, k.token)
	switch {
	case err == nil:
		k.log.InfoContext(ctx, "round settled", "round", res.Round, "winner", res.Winner, "amount_micros", res.AmountMicros)
		return OutcomeSettled, k.nextRound(ctx)
	case cli.IsKind(err, game.KindGraceNotExpired):
		return OutcomeWaiting, nil
	case cli.IsKind(err, game.KindNoThroneClaimed):
		return OutcomeIdle, nil
	case cli.IsKind(err, game.KindGameAlreadyEnded):
		return OutcomeEnded, k.nextRound(ctx)
	default:
		return "", err
	}
}

func (k *Keeper) nextRound(ctx context.Context) error {
	if !k.autoNext {
		return nil
	}
	round, err := k.api.StartRound(ctx, k.token)
	if err != nil {
		if cli.IsKind(err, game.KindRoundInProgress) {
			return nil
		}
		return err
	}
	k.log.InfoContext(ctx, "round started", "round", round.Round, "initial_fee_micros", round.InitialFeeMicros)
	return nil
}

// Run calls RunOnce every tick until ctx is done.
func (k *Keeper) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	k.log.Info("keeper started", "every", every.String(), "auto_next_round", k.autoNext)
	for {
		select {
		case <-ctx.Done():
			k.log.Info("keeper shutdown")
			return nil
		case <-ticker.C:
			outcome, err := k.RunOnce(ctx)
			if err != nil {
				k.log.Error("keeper pass failed", "err", err)
				continue
			}
			k.log.Debug("keeper pass complete", "outcome", string(outcome))
		}
	}
}
