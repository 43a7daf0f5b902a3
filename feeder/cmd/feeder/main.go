package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/steermux/steermux/feeder/internal/config"
	"github.com/steermux/steermux/feeder/internal/shipper"
	"github.com/steermux/steermux/feeder/internal/signal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("steermux-feeder starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_url", cfg.Feeder.ServerURL,
		"source", cfg.Feeder.Source,
		"pattern", cfg.Feeder.Pattern,
		"rate_hz", cfg.Feeder.RateHz,
	)

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ship := shipper.New(cfg.Feeder)
	go ship.Run(ctx)

	if cfg.Feeder.Pattern == "stdin" {
		if err := signal.ReadLines(ctx, os.Stdin, ship.Ship); err != nil {
			slog.Error("stdin reader stopped", "err", err)
			os.Exit(1)
		}
		slog.Info("stdin exhausted, steermux-feeder shutting down")
		return
	}

	w, err := signal.ForPattern(cfg.Feeder.Pattern, cfg.Feeder.Amplitude, cfg.Feeder.Period)
	if err != nil {
		slog.Error("failed to build waveform", "err", err)
		os.Exit(1)
	}

	signal.Run(ctx, w, cfg.Feeder.RateHz, ship.Ship)
	slog.Info("steermux-feeder shutting down")
}
