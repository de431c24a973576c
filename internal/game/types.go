package game

import "time"

type GameView struct {
	Round            int64     `json:"round"`
	King             string    `json:"king,omitempty"`
	PotMicros        int64     `json:"pot_micros"`
	ClaimFeeMicros   int64     `json:"claim_fee_micros"`
	LastClaimTime    time.Time `json:"last_claim_time"`
	GracePeriodSecs  int64     `json:"grace_period_secs"`
	Ended            bool      `json:"ended"`
	Claimants        int       `json:"claimants"`
	MinClaimants     int       `json:"min_claimants"`
	FeeGrowth        string    `json:"fee_growth"`
	PlatformFeePct   string    `json:"platform_fee_pct"`
	RemainingExposed bool      `json:"remaining_exposed"`
}

type ClaimInput struct {
	Identity       string
	PaymentMicros  int64
	IdempotencyKey string
}

type ClaimResult struct {
	Round             int64 `json:"round"`
	PaymentMicros     int64 `json:"payment_micros"`
	PlatformCutMicros int64 `json:"platform_cut_micros"`
	NewFeeMicros      int64 `json:"new_fee_micros"`
	NewPotMicros      int64 `json:"new_pot_micros"`
	WalletMicros      int64 `json:"wallet_micros"`
}

type SettlementResult struct {
	Round        int64  `json:"round"`
	Winner       string `json:"winner"`
	AmountMicros int64  `json:"amount_micros"`
}

type WithdrawalResult struct {
	AmountMicros int64 `json:"amount_micros"`
	WalletMicros int64 `json:"wallet_micros"`
}

type WinningsView struct {
	Identity      string `json:"identity"`
	PendingMicros int64  `json:"pending_micros"`
	WalletMicros  int64  `json:"wallet_micros"`
}

type RoundView struct {
	Round            int64 `json:"round"`
	InitialFeeMicros int64 `json:"initial_fee_micros"`
	GracePeriodSecs  int64 `json:"grace_period_secs"`
}

type RemainingView struct {
	RemainingSecs float64 `json:"remaining_secs"`
}
