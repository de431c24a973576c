package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kingpot/internal/api"
	"kingpot/internal/auth"
	"kingpot/internal/bank"
	"kingpot/internal/config"
	"kingpot/internal/db"
	"kingpot/internal/game"
	"kingpot/internal/logging"
	"kingpot/internal/metrics"
	"kingpot/internal/notify"
	"kingpot/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup("kingpot-api", cfg.LogLevel)

	var ledgerStore game.Store
	var wallets game.Bank = bank.NewMemory()
	sinks := game.MultiSink{game.LogSink{Log: logger}, metrics.Ledger()}
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, "kingpot-api")
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		wallets = bank.NewPostgres(pool, logger)
		ledgerStore = store.NewPostgres(pool, logger)
		sinks = append(sinks, game.NewJournalSink(pool, logger))
	} else {
		logger.Warn("DATABASE_URL not set, ledger state is in memory only")
	}

	if cfg.NATSURL != "" {
		publisher, err := notify.Connect(notify.Config{
			URL:           cfg.NATSURL,
			Name:          "kingpot-api",
			SubjectPrefix: cfg.NATSSubject,
		}, logger)
		if err != nil {
			logger.Error("nats connect failed", "err", err)
			os.Exit(1)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	gameSvc, err := game.NewService(ctx, ledgerStore, wallets, cfg.Game, logger, game.WithSink(sinks))
	if err != nil {
		logger.Error("game service init failed", "err", err)
		os.Exit(1)
	}
	gameSvc.SetObserver(metrics.Ledger())
	metrics.Ledger().Sync(gameSvc.Ledger().State())

	var verifier auth.Chain
	var accounts api.Accounts
	if cfg.StaticTokens != "" {
		tokens, err := auth.ParseStaticTokens(cfg.StaticTokens)
		if err != nil {
			logger.Error("static tokens invalid", "err", err)
			os.Exit(1)
		}
		verifier = append(verifier, tokens)
	}
	if cfg.SupabaseURL != "" {
		supabase := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		verifier = append(verifier, supabase)
		accounts = supabase
	}

	server := api.New(cfg, logger, verifier, accounts, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	st := gameSvc.Ledger().State()
	logger.Info("kingpot api listening", "addr", cfg.Addr, "round", st.Round, "grace_period", cfg.Game.GracePeriod.String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
