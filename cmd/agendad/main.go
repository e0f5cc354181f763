// Command agendad is the agenda scheduler daemon.
// It loads configuration, initialises instance identity, and runs the tick
// loop plus the HTTP/WebSocket API around the scheduler.
//
// Usage:
//
//	agendad [--config path/to/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hickagpt/agenda/internal/clock"
	"github.com/hickagpt/agenda/internal/config"
	"github.com/hickagpt/agenda/internal/history"
	"github.com/hickagpt/agenda/internal/host"
	"github.com/hickagpt/agenda/internal/ident"
	"github.com/hickagpt/agenda/internal/metrics"
	transphttp "github.com/hickagpt/agenda/internal/transport/http"
	transportws "github.com/hickagpt/agenda/internal/transport/websocket"
	"github.com/hickagpt/agenda/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agendad: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Set up structured logger ──────────────────────────────────────────
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── 3. Initialise instance identity ──────────────────────────────────────
	inst, err := ident.Load(cfg.Node.DataDir, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("init identity: %w", err)
	}

	tick, _ := cfg.Scheduler.Tick() // validated above

	slog.Info("agendad starting",
		"instance_id", inst.ID(),
		"host", cfg.Node.Host,
		"port", cfg.Node.Port,
		"data_dir", inst.DataDir(),
		"tick", tick.String(),
	)

	// ── 4. Initialise metrics registry ───────────────────────────────────────
	metricsReg := &metrics.Registry{}

	// ── 5. Open execution history journal ────────────────────────────────────
	var journal *history.Journal
	if cfg.History.Enabled {
		journal, err = history.Open(filepath.Join(inst.DataDir(), "history.db"))
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer journal.Close()
	}

	// ── 6. Initialise webhook manager and feed hub ───────────────────────────
	hooks := webhook.NewManager(cfg.Webhook)
	hub := transportws.NewHub()

	// ── 7. Initialise host (scheduler + clock + tick loop) ───────────────────
	opts := []host.Option{
		host.WithMetrics(metricsReg),
		host.WithFeed(hub),
		host.WithWebhooks(hooks),
	}
	if journal != nil {
		opts = append(opts, host.WithHistory(journal))
	}
	hs := host.New(clock.System{}, tick, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hs.Start(ctx)

	// ── 8. Start HTTP / WebSocket transport ──────────────────────────────────
	srv := transphttp.New(hs, hooks, journal, hub, cfg, metricsReg, inst.ID())
	addr := fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port)

	// Serve in a background goroutine so we can handle signals.
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("agendad ready", "instance_id", inst.ID(), "addr", addr)
		if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	// ── 9. Start dedicated Prometheus metrics listener ───────────────────────
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		go func() {
			slog.Info("metrics server listening", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, metricsReg.Handler()); err != nil {
				slog.Warn("metrics server error", "err", err)
			}
		}()
	}

	// ── 10. Graceful shutdown on SIGINT / SIGTERM ────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Give in-flight requests 5 seconds to complete.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	hs.Stop()
	hooks.Close()

	slog.Info("agendad stopped")
	return nil
}
