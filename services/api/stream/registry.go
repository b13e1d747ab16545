// Package stream fans accepted readings out to live viewers.
//
// Every viewer is a Sink registered under a unique Handle. Broadcast writes to
// every sink concurrently and waits; a sink whose write fails is dropped from
// the registry and closed, and the caller never learns about it. Write
// latency per sink is bounded by the sink's own transport deadline.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/metrics"
)

// ErrClosed is returned by a sink once its connection is gone.
var ErrClosed = errors.New("stream: sink closed")

// Handle identifies one registered viewer.
type Handle string

// Sink is one viewer's delivery channel.
type Sink interface {
	// Send writes one encoded event.
	Send(data []byte) error
	// Heartbeat writes a transport-level keep-alive.
	Heartbeat() error
	// Close releases the connection. It is safe to call more than once.
	Close()
	// Done is closed once the sink can no longer deliver.
	Done() <-chan struct{}
}

// Seeder returns the events a new viewer should see before the next live
// event, usually the current snapshots.
type Seeder func() [][]byte

// Registry tracks live viewers.
type Registry struct {
	mu     sync.RWMutex
	subs   map[Handle]*entry
	seed   Seeder
	logger *zap.Logger
}

// maxPending bounds the events held for a viewer that is still being seeded.
const maxPending = 64

var errSeedBacklog = errors.New("stream: seed backlog full")

// entry is one registered sink. While seeding is set, live events are queued
// in pending and flushed by Subscribe after the seed, so they never overtake
// an older snapshot.
type entry struct {
	sink Sink

	mu      sync.Mutex
	seeding bool
	pending [][]byte
}

// deliver sends data or, while the entry is seeding, queues it.
func (e *entry) deliver(data []byte) error {
	e.mu.Lock()
	if e.seeding {
		defer e.mu.Unlock()
		if len(e.pending) >= maxPending {
			return errSeedBacklog
		}
		e.pending = append(e.pending, data)
		return nil
	}
	e.mu.Unlock()
	return e.sink.Send(data)
}

func (e *entry) heartbeat() error {
	e.mu.Lock()
	seeding := e.seeding
	e.mu.Unlock()
	if seeding {
		return nil
	}
	return e.sink.Heartbeat()
}

// flush writes queued events until none are left, then leaves seeding.
func (e *entry) flush() error {
	for {
		e.mu.Lock()
		batch := e.pending
		e.pending = nil
		if len(batch) == 0 {
			e.seeding = false
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()

		for _, data := range batch {
			if err := e.sink.Send(data); err != nil {
				return err
			}
		}
	}
}

// NewRegistry creates an empty registry. seed may be nil.
func NewRegistry(seed Seeder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		subs:   make(map[Handle]*entry),
		seed:   seed,
		logger: logger,
	}
}

// Subscribe registers sink and delivers the current snapshots to it before
// returning. The sink is registered first and seeded outside the registry
// lock; events broadcast in the meantime are queued for it and written after
// the seed.
func (r *Registry) Subscribe(sink Sink) (Handle, error) {
	h := Handle(uuid.NewString())
	e := &entry{sink: sink, seeding: true}

	r.mu.Lock()
	r.subs[h] = e
	r.mu.Unlock()

	if err := r.seedEntry(e); err != nil {
		r.remove(h)
		sink.Close()
		return "", err
	}

	count := r.Count()
	metrics.Subscribers.Set(float64(count))
	r.logger.Info("viewer connected", zap.String("handle", string(h)), zap.Int("total", count))
	return h, nil
}

func (r *Registry) seedEntry(e *entry) error {
	if r.seed != nil {
		for _, data := range r.seed() {
			if err := e.sink.Send(data); err != nil {
				metrics.Deliveries.WithLabelValues("seed", "error").Inc()
				return err
			}
			metrics.Deliveries.WithLabelValues("seed", "ok").Inc()
		}
	}
	return e.flush()
}

func (r *Registry) remove(h Handle) (*entry, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.subs[h]
	if ok {
		delete(r.subs, h)
	}
	return e, len(r.subs), ok
}

// Unsubscribe removes and closes the viewer. Unknown handles are ignored.
func (r *Registry) Unsubscribe(h Handle) {
	e, count, ok := r.remove(h)
	if !ok {
		return
	}
	e.sink.Close()
	metrics.Subscribers.Set(float64(count))
	r.logger.Info("viewer disconnected", zap.String("handle", string(h)), zap.Int("total", count))
}

// Count returns the number of registered viewers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

type target struct {
	handle Handle
	entry  *entry
}

func (r *Registry) targets() []target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]target, 0, len(r.subs))
	for h, e := range r.subs {
		out = append(out, target{handle: h, entry: e})
	}
	return out
}

// Broadcast delivers data to every registered viewer and returns the number
// of successful deliveries.
func (r *Registry) Broadcast(data []byte) int {
	start := time.Now()
	delivered := r.fanOut("event", func(e *entry) error { return e.deliver(data) })
	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
	return delivered
}

// Heartbeat sends one keep-alive to every viewer.
func (r *Registry) Heartbeat() int {
	return r.fanOut("heartbeat", (*entry).heartbeat)
}

func (r *Registry) fanOut(kind string, write func(*entry) error) int {
	targets := r.targets()
	if len(targets) == 0 {
		return 0
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for i, t := range targets {
		go func(i int, e *entry) {
			defer wg.Done()
			errs[i] = write(e)
		}(i, t.entry)
	}
	wg.Wait()

	delivered := 0
	for i, err := range errs {
		if err == nil {
			delivered++
			metrics.Deliveries.WithLabelValues(kind, "ok").Inc()
			continue
		}
		metrics.Deliveries.WithLabelValues(kind, "error").Inc()
		r.logger.Debug("stream write failed",
			zap.String("handle", string(targets[i].handle)),
			zap.String("kind", kind),
			zap.Error(err))
		r.Unsubscribe(targets[i].handle)
	}
	return delivered
}

// RunHeartbeat sends keep-alives every interval until ctx is done.
func (r *Registry) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Heartbeat()
		}
	}
}

// Close drops every viewer.
func (r *Registry) Close() {
	for _, t := range r.targets() {
		r.Unsubscribe(t.handle)
	}
}
