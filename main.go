package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/dominus1122/TaskManager2026/adapters/db"
	"github.com/dominus1122/TaskManager2026/config"
	"github.com/dominus1122/TaskManager2026/core"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "enhancements worker configuration file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	log := mustMakeLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

// run hosts the timer sweep worker: it applies migrations and drives the
// periodic long-session check. The service objects themselves are a library
// surface embedded by the task-manager shell.
func run(cfg config.Config, log *slog.Logger) error {
	log.Info("starting task enhancements worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := db.New(log, cfg.DBDriver, cfg.DBAddress)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("failed to close db connection", "error", err)
		}
	}()

	if err := storage.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}

	timers := core.NewTimerRegistry(log, storage, core.SystemClock(), cfg.Features(), cfg.TimerSettings())

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
		timers.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("bad sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	sched.Start()
	defer sched.Stop()

	log.Info("timer sweep scheduled", "schedule", cfg.SweepSchedule)

	<-ctx.Done()
	log.Debug("shutting down enhancements worker")
	return nil
}

func mustMakeLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
