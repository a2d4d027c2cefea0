package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Ruzakiff/WealthTogether/internal/amqp"
	"github.com/Ruzakiff/WealthTogether/internal/config"
	"github.com/Ruzakiff/WealthTogether/internal/drift"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/internal/store/memory"
	"github.com/Ruzakiff/WealthTogether/internal/store/sqlite"
	"github.com/Ruzakiff/WealthTogether/pkg/metrics"
)

// The drift worker periodically scans every couple's goals and publishes
// flags for the ones falling behind. It shares the store with the API
// server but runs as its own process so scan load never competes with
// request latency.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: "drift-worker",
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
		logger.Warn("memory backend holds no shared state; scans will see only this process's writes")
	}
	defer st.Close()

	var notifier drift.Notifier
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent("amqp"))
		if err != nil {
			logger.Error("failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		notifier = client
		logger.Info("connected drift publisher", "exchange", cfg.AMQPExchange)
	}

	collector := metrics.NewCollector()
	led := ledger.New(st, logger.WithComponent("ledger"))
	monitor := drift.NewMonitor(st, led, drift.Config{
		Window:              time.Duration(cfg.DriftWindowDays) * 24 * time.Hour,
		MinVelocityFraction: cfg.DriftMinVelocity,
		Parallel:            cfg.DriftScanParallel,
	}, logger, collector, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting drift scans", "interval", cfg.DriftScanInterval.String(),
		"window_days", cfg.DriftWindowDays, "min_velocity", cfg.DriftMinVelocity)
	if err := monitor.Run(ctx, cfg.DriftScanInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("drift monitor error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped gracefully")
}
