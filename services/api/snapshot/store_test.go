package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/models"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func controllerReading(deviceID string, ts time.Time, ambiente float64) *models.Reading {
	payload := fmt.Sprintf(`{"device_id":%q,"timestamp":%q,"sensors":{"temperaturas":{"ambiente":{"value":%g}}},"status":{"operational":{"sistema_ativo":true}}}`,
		deviceID, ts.Format(time.RFC3339), ambiente)
	return &models.Reading{
		Class:     models.Controller,
		DeviceID:  deviceID,
		Timestamp: ts,
		Payload:   json.RawMessage(payload),
	}
}

func TestGetReturnsMostRecentPut(t *testing.T) {
	s := New(Options{MaxEntries: 10})

	_, ok := s.Get(models.Controller)
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		r := controllerReading("CLP-01", base.Add(time.Duration(i)*time.Second), float64(i))
		s.Put(r)

		got, ok := s.Get(models.Controller)
		require.True(t, ok)
		assert.Same(t, r, got)
	}

	_, ok = s.Get(models.Inverter)
	assert.False(t, ok, "classes are tracked independently")
}

func TestHistoryCountEviction(t *testing.T) {
	const capacity = 100
	s := New(Options{MaxEntries: capacity})

	for i := 0; i < capacity+50; i++ {
		s.Put(controllerReading("CLP-01", base.Add(time.Duration(i)*time.Second), float64(i)))
	}

	entries := s.History(models.Controller, HistoryFilter{})
	require.Len(t, entries, capacity)
	assert.Equal(t, base.Add(50*time.Second), entries[0].Timestamp, "oldest 50 evicted")
	assert.Equal(t, base.Add((capacity+49)*time.Second), entries[capacity-1].Timestamp)
}

func TestHistoryFilterTakesTailAfterBounds(t *testing.T) {
	s := New(Options{MaxEntries: 100})
	for i := 0; i < 20; i++ {
		s.Put(controllerReading("CLP-01", base.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	start := base.Add(5 * time.Minute)
	end := base.Add(14 * time.Minute)
	entries := s.History(models.Controller, HistoryFilter{Start: &start, End: &end, Limit: 3})

	require.Len(t, entries, 3)
	assert.Equal(t, base.Add(12*time.Minute), entries[0].Timestamp)
	assert.Equal(t, base.Add(14*time.Minute), entries[2].Timestamp)
}

func TestSensorHistoryShape(t *testing.T) {
	s := New(Options{})
	s.Put(controllerReading("CLP-01", base, 21.5))
	s.Put(controllerReading("CLP-01", base.Add(time.Minute), 22))

	points := s.SensorHistory(models.Controller, "ambiente", HistoryFilter{})
	require.Len(t, points, 2)
	assert.Equal(t, 22.0, *points[1].Value)

	missing := s.SensorHistory(models.Controller, "trafo", HistoryFilter{Limit: 1})
	require.Len(t, missing, 1)
	assert.Nil(t, missing[0].Value)
}

func TestOutOfOrderArrivalsKeepInsertionOrder(t *testing.T) {
	s := New(Options{})
	s.Put(controllerReading("CLP-01", base.Add(time.Hour), 1))
	s.Put(controllerReading("CLP-01", base, 2))

	entries := s.History(models.Controller, HistoryFilter{})
	require.Len(t, entries, 2)
	assert.Equal(t, base.Add(time.Hour), entries[0].Timestamp)
	assert.Equal(t, base, entries[1].Timestamp)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	s := New(Options{MaxAge: 24 * time.Hour})
	now := base.Add(48 * time.Hour)

	s.Put(controllerReading("CLP-01", now.Add(-30*time.Hour), 1))
	s.Put(controllerReading("CLP-01", now.Add(-time.Hour), 2))
	s.Put(controllerReading("CLP-01", now.Add(-25*time.Hour), 3))

	before := s.History(models.Controller, HistoryFilter{})
	assert.Len(t, before, 3, "present before the sweep")

	removed := s.Sweep(now)
	assert.Equal(t, 2, removed[models.Controller])
	assert.Equal(t, 0, removed[models.Inverter])

	after := s.History(models.Controller, HistoryFilter{})
	require.Len(t, after, 1)
	assert.Equal(t, now.Add(-time.Hour), after[0].Timestamp)

	_, ok := s.Get(models.Controller)
	assert.True(t, ok, "sweeping never clears the snapshot")
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	s := New(Options{MaxAge: time.Hour})
	s.now = func() time.Time { return base.Add(10 * time.Hour) }
	s.Put(controllerReading("CLP-01", base, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, 5*time.Millisecond, zap.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(s.History(models.Controller, HistoryFilter{})) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestDevicesAndAlerts(t *testing.T) {
	s := New(Options{})
	a := &models.Reading{Class: models.Inverter, DeviceID: "INV-02", Timestamp: base, Payload: json.RawMessage(`{}`)}
	b := &models.Reading{Class: models.Inverter, DeviceID: "INV-01", Timestamp: base, Payload: json.RawMessage(`{}`)}
	s.Put(a)
	s.Put(b)

	devices := s.Devices(models.Inverter)
	require.Len(t, devices, 2)
	assert.Equal(t, "INV-01", devices[0].DeviceID)

	got, ok := s.GetDevice(models.Inverter, "INV-02")
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.Empty(t, s.Alerts(models.Controller))
	s.SetAlerts(models.Controller, []models.Alert{{Type: "H", Severity: "medium"}})
	assert.Len(t, s.Alerts(models.Controller), 1)
	s.SetAlerts(models.Controller, nil)
	assert.NotNil(t, s.Alerts(models.Controller))
	assert.Empty(t, s.Alerts(models.Controller))

	stats := s.Stats(models.Inverter)
	assert.Equal(t, 2, stats.HistoryCount)
	assert.Equal(t, 2, stats.Devices)
	require.NotNil(t, stats.LastUpdate)
}

func TestConcurrentPutAndRead(t *testing.T) {
	s := New(Options{MaxEntries: 50, MaxAge: time.Hour})
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Put(controllerReading("CLP-01", time.Now(), float64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.History(models.Controller, HistoryFilter{Limit: 10})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Sweep(time.Now())
		}
	}()
	wg.Wait()

	assert.LessOrEqual(t, len(s.History(models.Controller, HistoryFilter{})), 50)
}
