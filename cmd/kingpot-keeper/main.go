package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"kingpot/internal/cli"
	"kingpot/internal/config"
	"kingpot/internal/keeper"
	"kingpot/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadKeeperFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup("kingpot-keeper", cfg.LogLevel)

	k := keeper.New(cli.NewClient(cfg.APIBaseURL), cfg.Token, cfg.AutoNextRound, logger)
	if cfg.RunOnce {
		outcome, err := k.RunOnce(ctx)
		if err != nil {
			logger.Error("keeper pass failed", "err", err)
			os.Exit(1)
		}
		logger.Info("keeper run-once completed", "outcome", string(outcome))
		return
	}
	if err := k.Run(ctx, cfg.Every); err != nil {
		logger.Error("keeper stopped", "err", err)
		os.Exit(1)
	}
}
