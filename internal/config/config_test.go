package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingpot/internal/game"
)

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("KINGPOT_STATIC_TOKENS", "tok=alice")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.ExposeRemaining)
	assert.Equal(t, game.DefaultInitialFee, cfg.Game.InitialFee)
	assert.True(t, cfg.Game.FeeGrowth.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 5*time.Minute, cfg.Game.GracePeriod)
}

func TestLoadAPIGameOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KINGPOT_STATIC_TOKENS", "tok=alice")
	t.Setenv("KINGPOT_INITIAL_FEE", "12.5")
	t.Setenv("KINGPOT_FEE_GROWTH", "0.25")
	t.Setenv("KINGPOT_GRACE_PERIOD", "90s")
	t.Setenv("KINGPOT_PLATFORM_FEE", "0")
	t.Setenv("KINGPOT_MIN_CLAIMANTS", "3")
	t.Setenv("KINGPOT_EXPOSE_REMAINING", "true")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, int64(12_500_000), cfg.Game.InitialFee)
	assert.True(t, cfg.Game.FeeGrowth.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, 90*time.Second, cfg.Game.GracePeriod)
	assert.True(t, cfg.Game.PlatformFeePct.IsZero())
	assert.Equal(t, 3, cfg.Game.MinClaimants)
	assert.True(t, cfg.ExposeRemaining)
}

func TestLoadAPIRejectsBadGameConfig(t *testing.T) {
	t.Setenv("KINGPOT_STATIC_TOKENS", "tok=alice")
	t.Setenv("KINGPOT_PLATFORM_FEE", "1.5")

	_, err := LoadAPIFromEnv()
	assert.ErrorIs(t, err, game.ErrInvalidConfig)
}

func TestLoadAPIRequiresAuth(t *testing.T) {
	t.Setenv("KINGPOT_STATIC_TOKENS", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	_, err := LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("SUPABASE_URL", "https://x.supabase.co/")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err, "url without key")

	t.Setenv("SUPABASE_ANON_KEY", "anon")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://x.supabase.co", cfg.SupabaseURL)
}

func TestLoadKeeper(t *testing.T) {
	t.Setenv("KINGPOT_KEEPER_TOKEN", "")
	_, err := LoadKeeperFromEnv()
	assert.Error(t, err)

	t.Setenv("KINGPOT_KEEPER_TOKEN", "keeper-token")
	t.Setenv("KINGPOT_KEEPER_EVERY", "bogus")
	t.Setenv("KINGPOT_AUTO_NEXT_ROUND", "true")
	cfg, err := LoadKeeperFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Every)
	assert.True(t, cfg.AutoNextRound)
	assert.False(t, cfg.RunOnce)
}
