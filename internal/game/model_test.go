package game

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNextClaimFee(t *testing.T) {
	tests := []struct {
		fee    int64
		growth string
		want   int64
	}{
		{fee: 100 * MicrosPerCoin, growth: "0.10", want: 110 * MicrosPerCoin},
		{fee: 110 * MicrosPerCoin, growth: "0.10", want: 121 * MicrosPerCoin},
		{fee: 7, growth: "0.10", want: 8},
		{fee: 3, growth: "0.10", want: 4},
		{fee: 1, growth: "0.0001", want: 2},
		{fee: math.MaxInt64 - 1, growth: "0.5", want: math.MaxInt64},
		{fee: math.MaxInt64, growth: "0.5", want: math.MaxInt64},
	}
	for _, tc := range tests {
		got := NextClaimFee(tc.fee, decimal.RequireFromString(tc.growth))
		if got != tc.want {
			t.Fatalf("fee=%d growth=%s got=%d want=%d", tc.fee, tc.growth, got, tc.want)
		}
	}
}

func TestNextClaimFeeTruncates(t *testing.T) {
	// 133.333333 * 1.15 = 153.33333295 -> truncated, not rounded.
	got := NextClaimFee(133_333_333, decimal.RequireFromString("0.15"))
	if got != 153_333_332 {
		t.Fatalf("got %d want 153333332", got)
	}
}

func TestPlatformCut(t *testing.T) {
	tests := []struct {
		payment int64
		pct     string
		want    int64
	}{
		{payment: 100 * MicrosPerCoin, pct: "0.05", want: 5 * MicrosPerCoin},
		{payment: 110 * MicrosPerCoin, pct: "0.05", want: 5_500_000},
		{payment: 19, pct: "0.05", want: 0},
		{payment: 100, pct: "0", want: 0},
		{payment: 0, pct: "0.05", want: 0},
	}
	for _, tc := range tests {
		got := PlatformCut(tc.payment, decimal.RequireFromString(tc.pct))
		if got != tc.want {
			t.Fatalf("payment=%d pct=%s got=%d want=%d", tc.payment, tc.pct, got, tc.want)
		}
	}
}

func TestParseCoins(t *testing.T) {
	valid := map[string]int64{
		"100":        100 * MicrosPerCoin,
		"104.5":      104_500_000,
		" 0.000001 ": 1,
		"1.0000019":  1_000_001,
	}
	for in, want := range valid {
		got, err := ParseCoins(in)
		if err != nil {
			t.Fatalf("expected %q to parse: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q got=%d want=%d", in, got, want)
		}
	}

	invalid := []string{"", "abc", "-1", "0", "1e40"}
	for _, in := range invalid {
		if _, err := ParseCoins(in); err == nil {
			t.Fatalf("expected %q to fail", in)
		}
	}
}

func TestFormatCoins(t *testing.T) {
	if got := FormatCoins(199_500_000); got != "199.500000" {
		t.Fatalf("got %q", got)
	}
	if got := FormatCoins(1); got != "0.000001" {
		t.Fatalf("got %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	mutations := map[string]func(*Config){
		"zero fee":          func(c *Config) { c.InitialFee = 0 },
		"zero growth":       func(c *Config) { c.FeeGrowth = decimal.Zero },
		"huge growth":       func(c *Config) { c.FeeGrowth = decimal.NewFromInt(11) },
		"negative platform": func(c *Config) { c.PlatformFeePct = decimal.NewFromInt(-1) },
		"full platform":     func(c *Config) { c.PlatformFeePct = decimal.NewFromInt(1) },
		"zero grace":        func(c *Config) { c.GracePeriod = 0 },
		"no claimants":      func(c *Config) { c.MinClaimants = 0 },
		"no platform":       func(c *Config) { c.Platform = " " },
	}
	for name, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestErrorKind(t *testing.T) {
	wrapped := fmt.Errorf("%w: fee is 1, paid 0", ErrInsufficientPayment)
	if got := ErrorKind(wrapped); got != KindInsufficientPayment {
		t.Fatalf("got %q", got)
	}
	if got := ErrorKind(errors.New("boom")); got != KindUnknown {
		t.Fatalf("got %q", got)
	}
	joined := fmt.Errorf("%w: %w", ErrTransferFailed, errors.New("rejected"))
	if got := ErrorKind(joined); got != KindTransferFailed {
		t.Fatalf("got %q", got)
	}
}
