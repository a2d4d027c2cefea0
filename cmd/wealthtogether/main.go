package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Ruzakiff/WealthTogether/internal/amqp"
	"github.com/Ruzakiff/WealthTogether/internal/approval"
	"github.com/Ruzakiff/WealthTogether/internal/config"
	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/drift"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	apphttp "github.com/Ruzakiff/WealthTogether/internal/http"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/planner"
	"github.com/Ruzakiff/WealthTogether/internal/rules"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/internal/store/memory"
	"github.com/Ruzakiff/WealthTogether/internal/store/sqlite"
	"github.com/Ruzakiff/WealthTogether/internal/timeline"
	"github.com/Ruzakiff/WealthTogether/pkg/metrics"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: "wealthtogether",
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var st store.Store
	switch cfg.DataBackend {
	case "sqlite":
		repo, err := sqlite.NewRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("failed to open sqlite store", "path", cfg.SQLiteDBPath, "error", err)
			os.Exit(1)
		}
		st = repo
		logger.Info("initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		st = memory.New()
		logger.Info("initialized memory backend")
	}
	defer st.Close()

	var notifier *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent("amqp"))
		if err != nil {
			logger.Error("failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		notifier = client
		logger.Info("connected notification publisher", "exchange", cfg.AMQPExchange)
	}

	collector := metrics.NewCollector()
	eng := engine.New(st, engine.Config{ConflictRetries: cfg.ConflictRetries}, logger.WithComponent("engine"), collector)
	led := ledger.New(st, logger.WithComponent("ledger"))

	var gateNotifier approval.Notifier
	if notifier != nil {
		gateNotifier = notifier
	}
	gate := approval.NewGate(st, eng, approval.Config{
		Threshold: core.Cents(cfg.ApprovalThresholdCents),
		TTL:       cfg.ApprovalTTL,
	}, logger.WithComponent("approval"), collector, gateNotifier)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:      st,
		Engine:     eng,
		Gate:       gate,
		Ledger:     led,
		Forecaster: planner.NewForecaster(led),
		Rebalancer: planner.NewRebalancer(st, eng, logger.WithComponent("planner")),
		Monitor: drift.NewMonitor(st, led, drift.Config{
			Window:              time.Duration(cfg.DriftWindowDays) * 24 * time.Hour,
			MinVelocityFraction: cfg.DriftMinVelocity,
			Parallel:            cfg.DriftScanParallel,
		}, logger.WithComponent("drift"), collector, nil),
		Timeline: timeline.New(led, st),
		Rules:    rules.NewService(st, eng, logger.WithComponent("rules")),
		Logger:   logger.WithComponent("http"),
		Metrics:  collector,
	})

	metricsSrv := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      collector.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting API server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return gate.RunSweeper(gctx, cfg.ApprovalSweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped gracefully")
}
