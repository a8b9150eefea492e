package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-relay/internal/app"
	"github.com/samvad-hq/samvad-relay/internal/config"
	"github.com/samvad-hq/samvad-relay/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("relay starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay, err := app.NewRelay(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize relay", "error", err)
		return err
	}

	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("relay run: %w", err)
	}

	return nil
}
