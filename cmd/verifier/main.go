// Command verifier is the bootstrap binary: it wires the store,
// container runtime, chain probes, scheduler and HTTP server together
// and runs until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sails-verify/program-verifier/internal/builder"
	"github.com/sails-verify/program-verifier/internal/chain"
	"github.com/sails-verify/program-verifier/internal/config"
	"github.com/sails-verify/program-verifier/internal/containerrt"
	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/events"
	"github.com/sails-verify/program-verifier/internal/httpapi"
	"github.com/sails-verify/program-verifier/internal/intake"
	"github.com/sails-verify/program-verifier/internal/logging"
	"github.com/sails-verify/program-verifier/internal/scheduler"
	"github.com/sails-verify/program-verifier/internal/store"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("verifier: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(os.Getenv("ENV") != "production")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := containerrt.NewDocker(cfg.LogsDir)
	if err != nil {
		return fmt.Errorf("connect to container runtime: %w", err)
	}

	sugar.Info("pruning containers left over from a previous run")
	if err := rt.PruneAllContainers(ctx); err != nil {
		return fmt.Errorf("prune containers: %w", err)
	}

	for _, v := range cfg.AllowedVersions {
		sugar.Infow("preparing builder image", "version", v)
		if err := rt.EnsureImage(ctx, v); err != nil {
			return fmt.Errorf("prepare builder image %s: %w", v, err)
		}
	}

	sugar.Info("pruning dangling images")
	if err := rt.PruneDanglingImages(ctx); err != nil {
		return fmt.Errorf("prune dangling images: %w", err)
	}

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	if err := os.MkdirAll(cfg.BuildsRoot, 0o755); err != nil {
		return fmt.Errorf("create builds root: %w", err)
	}

	st, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	reset, err := st.ResetInProgress(ctx)
	if err != nil {
		return fmt.Errorf("reset in-progress jobs: %w", err)
	}
	if reset > 0 {
		sugar.Infow("recovered in-progress jobs left by a previous crash", "count", reset)
	}

	probes := map[domain.Network]chain.Probe{}
	if cfg.MainnetURL != "" {
		probes[domain.NetworkMainnet] = chain.NewRPCProbe(cfg.MainnetURL)
	}
	if cfg.TestnetURL != "" {
		probes[domain.NetworkTestnet] = chain.NewRPCProbe(cfg.TestnetURL)
	}
	registry := chain.NewRegistry(probes)
	if registry.IsEmpty() {
		return config.ErrNoChainURLConfigured
	}

	b := builder.New(rt, cfg.BuildsRoot)

	promRegistry := prometheus.NewRegistry()
	sched, err := scheduler.New(st, b, registry,
		scheduler.WithMaxInProgress(cfg.MaxInProgress),
		scheduler.WithCheckInterval(cfg.CheckInterval),
		scheduler.WithEmitter(events.NewLogEmitter(os.Stdout, true)),
		scheduler.WithMetricsRegistry(promRegistry),
	)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	in := intake.New(st, cfg.AllowedVersions)
	api := httpapi.New(in, st, version, promRegistry)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api}

	go func() {
		sugar.Infow("scheduler started", "max_in_progress", cfg.MaxInProgress, "check_interval", cfg.CheckInterval)
		sched.Start(ctx)
	}()

	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("http server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
	sched.Stop()
	return httpapi.Shutdown(context.Background(), httpSrv, 10*time.Second)
}

// openStore picks a Store backend from the DATABASE_URL scheme:
// "mysql://" dials MySQL with the remainder as DSN, anything else is
// treated as a SQLite file path (empty defaults to verifier.db).
func openStore(databaseURL string) (store.Store, error) {
	if dsn, ok := strings.CutPrefix(databaseURL, "mysql://"); ok {
		return store.NewMySQLStore(dsn)
	}
	path := databaseURL
	if path == "" {
		path = "verifier.db"
	}
	return store.NewSQLiteStore(path)
}
