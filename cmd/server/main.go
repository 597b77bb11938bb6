package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/api"
	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/clientip"
	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/dispatch"
	"github.com/gyaneshwarpardhi/auditlog/internal/notify"
	"github.com/gyaneshwarpardhi/auditlog/internal/query"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
	"github.com/gyaneshwarpardhi/auditlog/internal/supervisor"
	"github.com/gyaneshwarpardhi/auditlog/internal/sweeper"
	"github.com/gyaneshwarpardhi/auditlog/internal/writer"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfgPath := flag.String("config", "configs/auditlog.yaml", "Path to YAML config")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var logger *slog.Logger
	if *logFormat == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, logger)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}
	loader.OnChange(func(c *config.Config) {
		slog.Info("config reloaded", "retention_days", c.Retention.Days, "notify", c.Notification.Enabled)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ────────────────────────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()
	if !st.Exists(ctx) {
		slog.Warn("event table missing; writes are dropped until `auditctl migrate` runs", "driver", cfg.Store.Driver)
	}

	// ── Post-write bus ───────────────────────────────────────────────────────
	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	bus := dispatch.New(busCtx, cfg.Dispatch.Workers, cfg.Dispatch.QueueDepth, logger)
	gate := notify.NewGate(loader, notify.DefaultRegistry(), logger)
	bus.Subscribe("notify", gate.Handle)

	// ── HTTP server ──────────────────────────────────────────────────────────
	sw := sweeper.New(st, loader, logger)
	resolver := clientip.NewLive(func() []string { return loader.Config().Server.AddressSources })
	handler := api.New(api.Deps{
		Writer:   writer.New(st, bus, resolver, logger),
		Query:    query.New(st, loader, logger),
		Sweeper:  sw,
		Store:    st,
		Queue:    bus,
		Config:   loader,
		Settings: loader,
		Auth:     auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.OperatorRole),
		Resolver: resolver,
		Log:      logger,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// ── Supervised services ──────────────────────────────────────────────────
	root := supervisor.New("auditlog", logger, shutdownTimeout)
	root.Add(sw)
	root.Add(supervisor.NewHTTPService(srv, shutdownTimeout))

	slog.Info("server starting", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
	if err := root.Serve(ctx); err != nil && ctx.Err() == nil {
		slog.Error("supervisor stopped", "err", err)
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	slog.Info("shutting down…")
	bus.Drain()
	slog.Info("goodbye")
}
