// Package snapshot holds the in-memory view of the plant: the latest reading
// per device class, the latest reading per device, the bounded history ring
// and the current controller alert batch.
package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/metrics"
	"github.com/mtzview/supervisorio/services/api/models"
)

// Options bounds the history ring.
type Options struct {
	MaxEntries int
	MaxAge     time.Duration
}

type classState struct {
	mu      sync.RWMutex
	latest  *models.Reading
	devices map[string]*models.Reading
	history ring
	alerts  []models.Alert
}

// Store is the process-wide current-value cell. It is safe for concurrent use.
type Store struct {
	opts    Options
	classes map[models.DeviceClass]*classState
	now     func() time.Time
}

// New creates an empty store for every known device class.
func New(opts Options) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	s := &Store{
		opts:    opts,
		classes: make(map[models.DeviceClass]*classState, len(models.Classes)),
		now:     time.Now,
	}
	for _, c := range models.Classes {
		s.classes[c] = &classState{
			devices: make(map[string]*models.Reading),
			history: ring{max: opts.MaxEntries},
		}
	}
	return s
}

func (s *Store) class(c models.DeviceClass) *classState {
	st, ok := s.classes[c]
	if !ok {
		panic("snapshot: unknown device class " + string(c))
	}
	return st
}

// Put replaces the class snapshot and appends a derived history entry.
func (s *Store) Put(r *models.Reading) {
	entry := deriveEntry(r)
	st := s.class(r.Class)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.latest = r
	st.devices[r.DeviceID] = r
	st.history.push(entry)
}

// Get returns the latest reading for the class.
func (s *Store) Get(c models.DeviceClass) (*models.Reading, bool) {
	st := s.class(c)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.latest, st.latest != nil
}

// GetDevice returns the latest reading for one device within a class.
func (s *Store) GetDevice(c models.DeviceClass, deviceID string) (*models.Reading, bool) {
	st := s.class(c)
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.devices[deviceID]
	return r, ok
}

// Devices returns the latest reading of every device seen in the class,
// ordered by device id.
func (s *Store) Devices(c models.DeviceClass) []*models.Reading {
	st := s.class(c)
	st.mu.RLock()
	out := make([]*models.Reading, 0, len(st.devices))
	for _, r := range st.devices {
		out = append(out, r)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// History returns full history entries for the class.
func (s *Store) History(c models.DeviceClass, f HistoryFilter) []HistoryEntry {
	st := s.class(c)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.history.view(f)
}

// SensorHistory returns one sensor's series for the class. A reading without
// that sensor yields a nil value.
func (s *Store) SensorHistory(c models.DeviceClass, sensor string, f HistoryFilter) []SeriesPoint {
	entries := s.History(c, f)
	out := make([]SeriesPoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, SeriesPoint{Timestamp: e.Timestamp, Value: e.Values[sensor]})
	}
	return out
}

// SetAlerts replaces the current alert batch for the class.
func (s *Store) SetAlerts(c models.DeviceClass, alerts []models.Alert) {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	st := s.class(c)
	st.mu.Lock()
	st.alerts = alerts
	st.mu.Unlock()
}

// Alerts returns the current alert batch for the class.
func (s *Store) Alerts(c models.DeviceClass) []models.Alert {
	st := s.class(c)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.alerts == nil {
		return []models.Alert{}
	}
	return st.alerts
}

// Stats summarises one class for the status endpoint.
type Stats struct {
	HistoryCount int
	LastUpdate   *time.Time
	Devices      int
}

// Stats reports history size and last update for the class.
func (s *Store) Stats(c models.DeviceClass) Stats {
	st := s.class(c)
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := Stats{HistoryCount: len(st.history.entries), Devices: len(st.devices)}
	if st.latest != nil {
		ts := st.latest.Timestamp
		out.LastUpdate = &ts
	}
	return out
}

// Sweep evicts history entries older than the retention window relative to
// now and returns how many were removed per class.
func (s *Store) Sweep(now time.Time) map[models.DeviceClass]int {
	cutoff := now.Add(-s.opts.MaxAge)
	removed := make(map[models.DeviceClass]int, len(s.classes))
	for _, c := range models.Classes {
		st := s.class(c)
		st.mu.Lock()
		removed[c] = st.history.sweep(cutoff)
		st.mu.Unlock()
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for class, n := range s.Sweep(s.now()) {
				if n == 0 {
					continue
				}
				metrics.HistorySwept.WithLabelValues(string(class)).Add(float64(n))
				logger.Debug("history swept", zap.String("class", string(class)), zap.Int("removed", n))
			}
		}
	}
}
