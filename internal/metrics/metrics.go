// Package metrics exposes ledger activity to Prometheus.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"kingpot/internal/game"
)

type LedgerMetrics struct {
	claims      prometheus.Counter
	settlements prometheus.Counter
	withdrawals prometheus.Counter
	withdrawn   prometheus.Counter
	rejections  *prometheus.CounterVec
	pot         prometheus.Gauge
	claimFee    prometheus.Gauge
	round       prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide metrics, registering them on first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = newLedgerMetrics()
		prometheus.MustRegister(ledgerRegistry.collectors()...)
	})
	return ledgerRegistry
}

func newLedgerMetrics() *LedgerMetrics {
	return &LedgerMetrics{
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kingpot_throne_claims_total",
			Help: "Accepted throne claims.",
		}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kingpot_rounds_settled_total",
			Help: "Rounds settled by a winner declaration.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kingpot_withdrawals_total",
			Help: "Completed winnings withdrawals.",
		}),
		withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kingpot_withdrawn_coins_total",
			Help: "Coins paid out through withdrawals.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kingpot_rejections_total",
			Help: "Rejected ledger operations by operation and error kind.",
		}, []string{"op", "kind"}),
		pot: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kingpot_pot_coins",
			Help: "Current pot held for the sitting king.",
		}),
		claimFee: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kingpot_claim_fee_coins",
			Help: "Minimum payment for the next claim.",
		}),
		round: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kingpot_round",
			Help: "Current round number.",
		}),
	}
}

func (m *LedgerMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.claims, m.settlements, m.withdrawals, m.withdrawn,
		m.rejections, m.pot, m.claimFee, m.round,
	}
}

// Emit implements game.EventSink.
func (m *LedgerMetrics) Emit(_ context.Context, ev game.Event) {
	if m == nil {
		return
	}
	switch e := ev.(type) {
	case game.ThroneClaimed:
		m.claims.Inc()
		m.pot.Set(game.MicrosToCoins(e.NewPot))
		m.claimFee.Set(game.MicrosToCoins(e.NewFee))
		m.round.Set(float64(e.Round))
	case game.GameEnded:
		m.settlements.Inc()
		m.pot.Set(0)
	case game.WithdrawalCompleted:
		m.withdrawals.Inc()
		m.withdrawn.Add(game.MicrosToCoins(e.Amount))
	case game.RoundStarted:
		m.round.Set(float64(e.Round))
		m.pot.Set(0)
		m.claimFee.Set(game.MicrosToCoins(e.InitialFee))
	}
}

// ObserveRejection implements game.Observer.
func (m *LedgerMetrics) ObserveRejection(op string, err error) {
	if m == nil || err == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.rejections.WithLabelValues(op, game.ErrorKind(err)).Inc()
}

// Sync sets the gauges from a state read, used at startup after a restore.
func (m *LedgerMetrics) Sync(st game.State) {
	if m == nil {
		return
	}
	m.pot.Set(game.MicrosToCoins(st.Pot))
	m.claimFee.Set(game.MicrosToCoins(st.ClaimFee))
	m.round.Set(float64(st.Round))
}
