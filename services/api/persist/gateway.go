// Package persist moves accepted readings to the durable store off the
// request path. A write is attempted once; failures are logged and counted
// but never surfaced to the producer or the live viewers.
package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/metrics"
	"github.com/mtzview/supervisorio/services/api/models"
)

// ErrQueueFull is logged when a reading is dropped because every worker is
// busy and the queue is at capacity.
var ErrQueueFull = errors.New("persist: queue full")

// Recorder is the durable store.
type Recorder interface {
	InsertControllerTelemetry(ctx context.Context, r *models.Reading) error
	InsertInverterTelemetry(ctx context.Context, r *models.Reading) (int64, error)
	InsertAlerts(ctx context.Context, deviceID string, fallback time.Time, alerts []models.Alert) error
}

// Options tunes the gateway.
type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Gateway is a bounded fire-and-forget write queue.
type Gateway struct {
	rec     Recorder
	opts    Options
	logger  *zap.Logger
	jobs    chan *models.Reading
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

// New creates a gateway. Workers are not started until Start.
func New(rec Recorder, opts Options, logger *zap.Logger) *Gateway {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		rec:    rec,
		opts:   opts,
		logger: logger,
		jobs:   make(chan *models.Reading, opts.QueueSize),
	}
}

// Record queues r for writing and returns immediately. It reports false when
// the reading was dropped.
func (g *Gateway) Record(r *models.Reading) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return false
	}
	select {
	case g.jobs <- r:
		metrics.PersistQueueDepth.Set(float64(len(g.jobs)))
		return true
	default:
		metrics.PersistWrites.WithLabelValues(string(r.Class), "dropped").Inc()
		g.logFailure(r, ErrQueueFull)
		return false
	}
}

// Start launches the workers. Each write gets its own timeout derived from
// ctx, but cancelling ctx does not abort writes already queued; Close drains.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.closed {
		return
	}
	g.started = true

	base := context.WithoutCancel(ctx)
	g.wg.Add(g.opts.Workers)
	for i := 0; i < g.opts.Workers; i++ {
		go g.worker(base)
	}
	g.logger.Info("persistence workers started",
		zap.Int("workers", g.opts.Workers),
		zap.Int("queue", g.opts.QueueSize))
}

func (g *Gateway) worker(ctx context.Context) {
	defer g.wg.Done()
	for r := range g.jobs {
		metrics.PersistQueueDepth.Set(float64(len(g.jobs)))
		g.write(ctx, r)
	}
}

func (g *Gateway) write(parent context.Context, r *models.Reading) {
	ctx, cancel := context.WithTimeout(parent, g.opts.Timeout)
	defer cancel()

	var err error
	switch r.Class {
	case models.Controller:
		err = g.rec.InsertControllerTelemetry(ctx, r)
		if err == nil && len(r.Alerts) > 0 {
			err = g.rec.InsertAlerts(ctx, r.DeviceID, r.Timestamp, r.Alerts)
		}
	case models.Inverter:
		_, err = g.rec.InsertInverterTelemetry(ctx, r)
	default:
		err = errors.New("persist: unknown device class")
	}

	if err != nil {
		metrics.PersistWrites.WithLabelValues(string(r.Class), "error").Inc()
		g.logFailure(r, err)
		return
	}
	metrics.PersistWrites.WithLabelValues(string(r.Class), "ok").Inc()
}

func (g *Gateway) logFailure(r *models.Reading, err error) {
	g.logger.Error("failed to persist reading",
		zap.String("class", string(r.Class)),
		zap.String("device_id", r.DeviceID),
		zap.Time("timestamp", r.Timestamp),
		zap.Error(err))
}

// Close stops accepting readings and waits until the queue is drained.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.jobs)
	started := g.started
	g.mu.Unlock()

	if started {
		g.wg.Wait()
	}
	metrics.PersistQueueDepth.Set(0)
}
