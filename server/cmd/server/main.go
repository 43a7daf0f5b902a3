package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/steermux/steermux/server/internal/api"
	"github.com/steermux/steermux/server/internal/config"
	"github.com/steermux/steermux/server/internal/ingest"
	"github.com/steermux/steermux/server/internal/merge"
	"github.com/steermux/steermux/server/internal/metrics"
	"github.com/steermux/steermux/server/internal/registry"
	"github.com/steermux/steermux/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	staticDir := flag.String("static-dir", "", "serve the phone client static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("steermux-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"max_producers", cfg.Server.MaxProducers,
		"stale_after", cfg.Server.Registry.StaleAfter,
		"evict_after", cfg.Server.Registry.EvictAfter,
		"weights", cfg.Server.Merge.Weights,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Source registry with background eviction of silent sources.
	reg := registry.New(cfg.Server.Registry.StaleAfter, cfg.Server.Registry.EvictAfter)
	go reg.Run(ctx)

	// Live weight table — swapped atomically on config reload.
	weights := merge.NewTable(merge.Weights(cfg.Server.Merge.Weights))

	var smoother *merge.Smoother
	if cfg.Server.Merge.Smoothing.Enabled {
		smoother = merge.NewSmoother(cfg.Server.Merge.Smoothing.Alpha)
	}

	collector := metrics.NewCollector()

	// Producer ingest endpoint.
	manager := ingest.New(reg, weights, collector, cfg.Server.MaxProducers, cfg.Server.EchoMerged)

	// Consumer broadcast hub.
	hub := ws.New(reg, weights, smoother, cfg.Server.UpdateInterval())
	go hub.Run(ctx)

	// Watch the config file so weight and smoothing changes apply live.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			weights.Replace(merge.Weights(updated.Server.Merge.Weights))
			if smoother != nil {
				smoother.SetAlpha(updated.Server.Merge.Smoothing.Alpha)
			}
			slog.Info("merge settings hot-reloaded", "weights", updated.Server.Merge.Weights)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Metrics exposition with live gauges.
	mh := metrics.NewHandler(collector)
	mh.Gauge("steermux_merged_steering", "Current merged steering value in [-1, 1].", func() float64 {
		return merge.Merge(reg.Snapshot(), weights.Current(), time.Now()).Value
	})
	mh.Gauge("steermux_sources_live", "Sources seen within the staleness window.", func() float64 {
		live, _ := reg.Stats()
		return float64(live)
	})
	mh.Gauge("steermux_sources_stale", "Sources awaiting eviction.", func() float64 {
		_, stale := reg.Stats()
		return float64(stale)
	})
	mh.Gauge("steermux_producer_connections", "Open producer connections.", func() float64 {
		return float64(manager.Count())
	})
	mh.Gauge("steermux_consumer_connections", "Connected consumer clients.", func() float64 {
		return float64(hub.Count())
	})

	httpMux := http.NewServeMux()
	httpMux.Handle("/ws", manager)
	httpMux.Handle("/ws/game", hub)
	httpMux.Handle("/api/", api.New(reg, weights, manager, hub, collector))
	httpMux.Handle("/metrics", mh)

	// Optional: serve the phone client static files from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *staticDir != "" {
		fs := http.FileServer(http.Dir(*staticDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *staticDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *staticDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving static files", "dir", *staticDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("steermux-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
