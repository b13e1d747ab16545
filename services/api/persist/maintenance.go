package persist

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner runs the durable store's retention procedures.
type Cleaner interface {
	CleanupOldTelemetry(ctx context.Context) error
	CleanupOldInverterData(ctx context.Context) error
}

// RunMaintenance calls the cleanup procedures every interval until ctx is
// done. A failing run is logged and retried on the next tick only.
func RunMaintenance(ctx context.Context, c Cleaner, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Cleanup(ctx, c, logger)
		}
	}
}

// Cleanup runs both procedures once. An error in one does not skip the other.
func Cleanup(ctx context.Context, c Cleaner, logger *zap.Logger) error {
	var first error
	if err := c.CleanupOldTelemetry(ctx); err != nil {
		logger.Error("telemetry cleanup failed", zap.Error(err))
		first = err
	} else {
		logger.Info("old telemetry data cleaned up")
	}
	if err := c.CleanupOldInverterData(ctx); err != nil {
		logger.Error("inverter cleanup failed", zap.Error(err))
		if first == nil {
			first = err
		}
	} else {
		logger.Info("old inverter data cleaned up")
	}
	return first
}
