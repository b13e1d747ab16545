// Package ingest turns producer requests into accepted readings and hands
// them to the snapshot store, the persistence gateway and the live viewers.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/metrics"
	"github.com/mtzview/supervisorio/services/api/models"
	"github.com/mtzview/supervisorio/services/api/snapshot"
	"github.com/mtzview/supervisorio/services/api/stream"
)

// Broadcaster delivers an encoded event to the live viewers.
type Broadcaster interface {
	Broadcast(data []byte) int
}

// Recorder queues a reading for durable storage without blocking.
type Recorder interface {
	Record(r *models.Reading) bool
}

// Pipeline applies accepted readings. Readings of one class are applied one
// at a time, so the snapshot always matches the last event broadcast.
type Pipeline struct {
	store  *snapshot.Store
	rec    Recorder
	live   Broadcaster
	logger *zap.Logger
	locks  map[models.DeviceClass]*sync.Mutex
}

// NewPipeline wires the ingestion path.
func NewPipeline(store *snapshot.Store, rec Recorder, live Broadcaster, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := make(map[models.DeviceClass]*sync.Mutex, len(models.Classes))
	for _, c := range models.Classes {
		locks[c] = &sync.Mutex{}
	}
	return &Pipeline{store: store, rec: rec, live: live, logger: logger, locks: locks}
}

// Submit validates raw and, when it is a valid reading, updates the snapshot,
// queues it for persistence and broadcasts it. A rejected reading has no
// side effect.
func (p *Pipeline) Submit(c models.DeviceClass, raw []byte) (*models.Reading, error) {
	mu, ok := p.locks[c]
	if !ok {
		return nil, fmt.Errorf("ingest: unknown device class %q", c)
	}
	mu.Lock()
	defer mu.Unlock()

	r, err := Parse(c, raw)
	if err != nil {
		metrics.ReadingsRejected.WithLabelValues(string(c)).Inc()
		return nil, err
	}
	event, err := Encode(r)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	p.store.Put(r)
	if c == models.Controller {
		p.store.SetAlerts(c, r.Alerts)
	}
	p.rec.Record(r)
	delivered := p.live.Broadcast(event)

	metrics.ReadingsAccepted.WithLabelValues(string(c)).Inc()
	p.logger.Debug("reading accepted",
		zap.String("class", string(c)),
		zap.String("device_id", r.DeviceID),
		zap.Time("timestamp", r.Timestamp),
		zap.Int("alerts", len(r.Alerts)),
		zap.Int("viewers", delivered))
	return r, nil
}

type inverterEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode renders r as one live event. Controller readings go out as the
// payload itself; inverter readings are tagged so viewers can tell the two
// apart on the shared stream.
func Encode(r *models.Reading) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.Payload); err != nil {
		return nil, err
	}
	if r.Class != models.Inverter {
		return buf.Bytes(), nil
	}
	return json.Marshal(inverterEvent{Type: "inverter", Data: buf.Bytes()})
}

// Seeder returns the current snapshot of every class as live events.
func Seeder(store *snapshot.Store) stream.Seeder {
	return func() [][]byte {
		var out [][]byte
		for _, c := range models.Classes {
			r, ok := store.Get(c)
			if !ok {
				continue
			}
			if data, err := Encode(r); err == nil {
				out = append(out, data)
			}
		}
		return out
	}
}
