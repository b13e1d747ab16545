// Command maintenance runs the durable-store retention procedures once.
// It is meant for cron on hosts where the API runs without its daily
// maintenance loop.
package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/db"
	"github.com/mtzview/supervisorio/services/api/logging"
	"github.com/mtzview/supervisorio/services/api/persist"
	"github.com/mtzview/supervisorio/services/maintenance/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("maintenance failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Production)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Ping(ctx); err != nil {
		return err
	}

	telemetry, inverter, err := store.RetentionCounts(ctx)
	if err != nil {
		return err
	}
	logger.Info("expired rows found",
		zap.Int64("telemetry", telemetry),
		zap.Int64("inverter", inverter),
		zap.Bool("dry_run", cfg.DryRun))

	if cfg.DryRun {
		logger.Info("dry-run: skipping cleanup procedures")
		return nil
	}

	return persist.Cleanup(ctx, store, logger)
}
