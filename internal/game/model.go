package game

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MicrosPerCoin = int64(1_000_000)

	StarterBalanceMicros = int64(1_000) * MicrosPerCoin
	DefaultInitialFee    = int64(100) * MicrosPerCoin
	DefaultGracePeriod   = 5 * time.Minute
	DefaultPlatform      = "platform"
)

var (
	ErrGameAlreadyEnded     = errors.New("game already ended")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrAlreadyKing          = errors.New("caller is already king")
	ErrGraceNotExpired      = errors.New("grace period not expired")
	ErrNoThroneClaimed      = errors.New("no throne claimed")
	ErrNoWinnings           = errors.New("no winnings to withdraw")
	ErrReentrantCall        = errors.New("reentrant ledger call")
	ErrRoundInProgress      = errors.New("round still in progress")
	ErrInvalidConfig        = errors.New("invalid game config")
	ErrInvalidIdentity      = errors.New("identity is required")
	ErrAmountOverflow       = errors.New("amount overflow")
	ErrTransferFailed       = errors.New("winnings transfer failed")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry later")
	ErrStaleSnapshot        = errors.New("stored ledger is newer than this process")
)

// Error kinds reported to clients alongside the message.
const (
	KindGameAlreadyEnded    = "game_already_ended"
	KindInsufficientPayment = "insufficient_payment"
	KindAlreadyKing         = "already_king"
	KindGraceNotExpired     = "grace_not_expired"
	KindNoThroneClaimed     = "no_throne_claimed"
	KindNoWinnings          = "no_winnings"
	KindReentrantCall       = "reentrant_call"
	KindRoundInProgress     = "round_in_progress"
	KindInvalidConfig       = "invalid_config"
	KindInvalidIdentity     = "invalid_identity"
	KindAmountOverflow      = "amount_overflow"
	KindTransferFailed      = "transfer_failed"
	KindDuplicate           = "duplicate_idempotency"
	KindTxConflict          = "tx_conflict"
	KindStaleSnapshot       = "stale_snapshot"
	KindUnknown             = "unknown"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrGameAlreadyEnded, KindGameAlreadyEnded},
	{ErrInsufficientPayment, KindInsufficientPayment},
	{ErrAlreadyKing, KindAlreadyKing},
	{ErrGraceNotExpired, KindGraceNotExpired},
	{ErrNoThroneClaimed, KindNoThroneClaimed},
	{ErrNoWinnings, KindNoWinnings},
	{ErrReentrantCall, KindReentrantCall},
	{ErrRoundInProgress, KindRoundInProgress},
	{ErrInvalidConfig, KindInvalidConfig},
	{ErrInvalidIdentity, KindInvalidIdentity},
	{ErrAmountOverflow, KindAmountOverflow},
	{ErrTransferFailed, KindTransferFailed},
	{ErrDuplicateIdempotency, KindDuplicate},
	{ErrTxConflict, KindTxConflict},
	{ErrStaleSnapshot, KindStaleSnapshot},
}

// ErrorKind returns the stable kind string for a ledger error.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Config is fixed for the lifetime of a round.
type Config struct {
	InitialFee     int64           `json:"initial_fee_micros"`
	FeeGrowth      decimal.Decimal `json:"fee_growth"`
	GracePeriod    time.Duration   `json:"grace_period"`
	PlatformFeePct decimal.Decimal `json:"platform_fee_pct"`
	Platform       string          `json:"platform"`
	MinClaimants   int             `json:"min_claimants"`
}

func DefaultConfig() Config {
	return Config{
		InitialFee:     DefaultInitialFee,
		FeeGrowth:      decimal.RequireFromString("0.10"),
		GracePeriod:    DefaultGracePeriod,
		PlatformFeePct: decimal.RequireFromString("0.05"),
		Platform:       DefaultPlatform,
		MinClaimants:   1,
	}
}

func (c Config) Validate() error {
	switch {
	case c.InitialFee <= 0:
		return fmt.Errorf("%w: initial fee must be > 0", ErrInvalidConfig)
	case !c.FeeGrowth.IsPositive():
		return fmt.Errorf("%w: fee growth must be > 0", ErrInvalidConfig)
	case c.FeeGrowth.GreaterThan(decimal.NewFromInt(10)):
		return fmt.Errorf("%w: fee growth must be <= 10", ErrInvalidConfig)
	case c.PlatformFeePct.IsNegative() || c.PlatformFeePct.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: platform fee must be in [0, 1)", ErrInvalidConfig)
	case c.GracePeriod <= 0:
		return fmt.Errorf("%w: grace period must be > 0", ErrInvalidConfig)
	case c.MinClaimants < 1:
		return fmt.Errorf("%w: min claimants must be >= 1", ErrInvalidConfig)
	case strings.TrimSpace(c.Platform) == "":
		return fmt.Errorf("%w: platform identity required", ErrInvalidConfig)
	}
	return nil
}

func CoinsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCoin)))
}

func MicrosToCoins(v int64) float64 {
	return float64(v) / float64(MicrosPerCoin)
}

// ParseCoins parses a decimal coin amount such as "104.5" into micros,
// truncating anything below one micro.
func ParseCoins(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be > 0")
	}
	micros := d.Mul(decimal.NewFromInt(MicrosPerCoin)).Truncate(0)
	if micros.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrAmountOverflow
	}
	return micros.IntPart(), nil
}

// FormatCoins renders micros as a fixed six-decimal coin amount.
func FormatCoins(micros int64) string {
	return decimal.New(micros, -6).StringFixed(6)
}

// NextClaimFee grows fee by growth, truncating toward zero. The result is
// always at least one micro above fee and saturates at math.MaxInt64.
func NextClaimFee(fee int64, growth decimal.Decimal) int64 {
	next := decimal.NewFromInt(fee).Mul(decimal.NewFromInt(1).Add(growth)).Truncate(0)
	if next.GreaterThanOrEqual(decimal.NewFromInt(math.MaxInt64)) {
		return math.MaxInt64
	}
	n := next.IntPart()
	if n <= fee {
		if fee == math.MaxInt64 {
			return fee
		}
		return fee + 1
	}
	return n
}

// PlatformCut is payment*pct truncated toward zero.
func PlatformCut(payment int64, pct decimal.Decimal) int64 {
	if payment <= 0 || !pct.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(payment).Mul(pct).Truncate(0).IntPart()
}

func addMicros(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}
