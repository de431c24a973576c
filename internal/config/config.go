package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kingpot/internal/game"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string
	StaticTokens    string
	NATSURL         string
	NATSSubject     string
	LogLevel        string
	ExposeRemaining bool
	Game            game.Config
}

type KeeperConfig struct {
	APIBaseURL    string
	Token         string
	Every         time.Duration
	RunOnce       bool
	AutoNextRound bool
	LogLevel      string
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("KINGPOT_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		StaticTokens:    strings.TrimSpace(os.Getenv("KINGPOT_STATIC_TOKENS")),
		NATSURL:         strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSSubject:     envDefault("KINGPOT_NATS_SUBJECT", "kingpot.events"),
		LogLevel:        envDefault("KINGPOT_LOG_LEVEL", "info"),
		ExposeRemaining: envBoolDefault("KINGPOT_EXPOSE_REMAINING", false),
	}

	gameCfg, err := loadGameConfig()
	if err != nil {
		return cfg, err
	}
	cfg.Game = gameCfg

	if (cfg.SupabaseURL == "") != (cfg.SupabaseAnonKey == "") {
		return cfg, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY must be set together")
	}
	if cfg.SupabaseURL == "" && cfg.StaticTokens == "" {
		return cfg, fmt.Errorf("either SUPABASE_URL or KINGPOT_STATIC_TOKENS is required")
	}
	return cfg, nil
}

func loadGameConfig() (game.Config, error) {
	def := game.DefaultConfig()
	cfg := game.Config{
		InitialFee:     def.InitialFee,
		FeeGrowth:      envDecimalDefault("KINGPOT_FEE_GROWTH", def.FeeGrowth),
		GracePeriod:    envDurationDefault("KINGPOT_GRACE_PERIOD", def.GracePeriod),
		PlatformFeePct: envDecimalDefault("KINGPOT_PLATFORM_FEE", def.PlatformFeePct),
		Platform:       envDefault("KINGPOT_PLATFORM_IDENTITY", def.Platform),
		MinClaimants:   envIntDefault("KINGPOT_MIN_CLAIMANTS", def.MinClaimants),
	}
	if v := strings.TrimSpace(os.Getenv("KINGPOT_INITIAL_FEE")); v != "" {
		fee, err := game.ParseCoins(v)
		if err != nil {
			return cfg, fmt.Errorf("KINGPOT_INITIAL_FEE: %w", err)
		}
		cfg.InitialFee = fee
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadKeeperFromEnv() (KeeperConfig, error) {
	cfg := KeeperConfig{
		APIBaseURL:    strings.TrimRight(envDefault("KINGPOT_API_BASE_URL", "http://localhost:8080"), "/"),
		Token:         strings.TrimSpace(os.Getenv("KINGPOT_KEEPER_TOKEN")),
		Every:         envDurationDefault("KINGPOT_KEEPER_EVERY", 15*time.Second),
		RunOnce:       envBoolDefault("KINGPOT_KEEPER_RUN_ONCE", false),
		AutoNextRound: envBoolDefault("KINGPOT_AUTO_NEXT_ROUND", false),
		LogLevel:      envDefault("KINGPOT_LOG_LEVEL", "info"),
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("KINGPOT_KEEPER_TOKEN is required")
	}
	if cfg.Every <= 0 {
		return cfg, fmt.Errorf("KINGPOT_KEEPER_EVERY must be > 0")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("KP_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDecimalDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
