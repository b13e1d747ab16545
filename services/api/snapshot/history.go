package snapshot

import (
	"time"

	"github.com/mtzview/supervisorio/services/api/models"
)

// HistoryEntry is the lightweight record kept per accepted reading.
type HistoryEntry struct {
	Timestamp time.Time           `json:"timestamp"`
	DeviceID  string              `json:"device_id"`
	Values    map[string]*float64 `json:"values"`
	Status    map[string]bool     `json:"status,omitempty"`
}

// SeriesPoint is a single sensor's value at one instant.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// HistoryFilter narrows a history view. Bounds are inclusive; Limit keeps the
// most recent entries after the bounds are applied.
type HistoryFilter struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

func (f HistoryFilter) match(e HistoryEntry) bool {
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}

func deriveEntry(r *models.Reading) HistoryEntry {
	entry := HistoryEntry{Timestamp: r.Timestamp, DeviceID: r.DeviceID}
	switch r.Class {
	case models.Controller:
		p := r.Controller()
		entry.Values = p.Temperatures()
		entry.Status = p.Operational()
	case models.Inverter:
		entry.Values = r.Inverter().Summary()
	}
	return entry
}

// ring is a count-bounded slice of history entries in insertion order.
type ring struct {
	entries []HistoryEntry
	max     int
}

func (r *ring) push(e HistoryEntry) {
	r.entries = append(r.entries, e)
	if over := len(r.entries) - r.max; over > 0 {
		// drop the head and let append reallocate once the backing array is exhausted
		r.entries = r.entries[over:]
	}
}

func (r *ring) view(f HistoryFilter) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// sweep drops every entry older than cutoff. Entries arrive in insertion
// order, not timestamp order, so the whole ring is scanned.
func (r *ring) sweep(cutoff time.Time) int {
	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(r.entries) - len(kept)
	r.entries = kept
	return removed
}
