package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/config"
	"github.com/mtzview/supervisorio/services/api/db"
	httpserver "github.com/mtzview/supervisorio/services/api/http"
	"github.com/mtzview/supervisorio/services/api/ingest"
	"github.com/mtzview/supervisorio/services/api/logging"
	"github.com/mtzview/supervisorio/services/api/persist"
	"github.com/mtzview/supervisorio/services/api/snapshot"
	"github.com/mtzview/supervisorio/services/api/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("db configuration error", zap.Error(err))
	}
	defer store.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	dbNow, err := store.Ping(pingCtx)
	pingCancel()
	dbConnected := err == nil
	if dbConnected {
		logger.Info("database connected", zap.Time("db_time", dbNow))
	} else {
		logger.Warn("database unreachable, running with in-memory state only", zap.Error(err))
	}

	snapshots := snapshot.New(snapshot.Options{
		MaxEntries: cfg.HistoryMax,
		MaxAge:     cfg.HistoryMaxAge,
	})
	registry := stream.NewRegistry(ingest.Seeder(snapshots), logger.Named("stream"))
	gateway := persist.New(store, persist.Options{
		QueueSize: cfg.PersistQueue,
		Workers:   cfg.PersistWorkers,
		Timeout:   cfg.PersistTimeout,
	}, logger.Named("persist"))
	pipeline := ingest.NewPipeline(snapshots, gateway, registry, logger.Named("ingest"))

	gateway.Start(ctx)
	defer gateway.Close()

	go snapshots.RunSweeper(ctx, cfg.SweepInterval, logger.Named("snapshot"))
	go registry.RunHeartbeat(ctx, cfg.Heartbeat)
	if dbConnected {
		go persist.RunMaintenance(ctx, store, cfg.DBMaintenance, logger.Named("maintenance"))
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Pipeline:  pipeline,
		Snapshots: snapshots,
		Registry:  registry,
		Queries:   store,
	}, logger)
	logger.Info("telemetry API listening",
		zap.String("addr", cfg.ListenAddr()),
		zap.String("environment", cfg.Environment),
		zap.Bool("database", dbConnected))

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
	}
	logger.Info("shutting down")
}
