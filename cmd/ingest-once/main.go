// Command ingest-once runs a single ingestion cycle and prints its summary as
// JSON. It is meant for external schedulers such as cron or a Kubernetes
// CronJob, with INGEST_INTERVAL left unused.
//
// Usage:
//
//	go run ./cmd/ingest-once [-fail-on-error]
//
// The exit code is 0 when the cycle ran, 1 when it could not run, and 2 when
// -fail-on-error is set and at least one plant failed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/couchcryptid/hydro-ingest-service/internal/app"
	"github.com/couchcryptid/hydro-ingest-service/internal/config"
	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/ingest"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
	"github.com/joho/godotenv"
)

func main() {
	failOnError := flag.Bool("fail-on-error", false, "exit with status 2 if any plant failed")
	flag.Parse()

	os.Exit(run(*failOnError))
}

func run(failOnError bool) int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	// Stdout carries the summary.
	logger := observability.NewLoggerTo(os.Stderr, cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	summary, err := a.Scheduler.RunOnce(ctx)
	if errors.Is(err, ingest.ErrCycleInProgress) {
		logger.Info("another cycle is running, nothing to do")
		return 0
	}
	if err != nil {
		logger.Error("ingestion cycle failed", "error", err)
		return 1
	}

	if err := printSummary(summary); err != nil {
		logger.Error("print summary", "error", err)
		return 1
	}
	if failOnError && summary.Count(domain.StatusFailed) > 0 {
		return 2
	}
	return 0
}

func printSummary(s domain.CycleSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
