package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/ingest"
	"github.com/mtzview/supervisorio/services/api/models"
	"github.com/mtzview/supervisorio/services/api/snapshot"
)

const maxTelemetryBody = 1 << 20

// handleControllerTelemetry accepts one CLP reading
// POST /api/clp/telemetry
func (s *Server) handleControllerTelemetry(c *gin.Context) {
	s.ingest(c, models.Controller, "telemetry received")
}

// handleInverterTelemetry accepts one inverter reading
// POST /api/inverter/telemetry
func (s *Server) handleInverterTelemetry(c *gin.Context) {
	s.ingest(c, models.Inverter, "inverter telemetry received")
}

func (s *Server) ingest(c *gin.Context, class models.DeviceClass, message string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTelemetryBody)
	raw, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "invalid data", "message": "body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "message": err.Error()})
		return
	}

	r, err := s.deps.Pipeline.Submit(class, raw)
	if err != nil {
		if ingest.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "message": err.Error()})
			return
		}
		s.logger.Error("ingest failed", zap.String("class", string(class)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "message": err.Error()})
		return
	}

	s.logger.Info("telemetry received",
		zap.String("class", string(class)),
		zap.String("device_id", r.DeviceID))
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleControllerCurrent returns the latest CLP reading as received
// GET /api/clp/current
func (s *Server) handleControllerCurrent(c *gin.Context) {
	r, ok := s.deps.Snapshots.Get(models.Controller)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data available", "message": "controller has not sent data yet"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func parseHistoryFilter(c *gin.Context, defaultLimit int) (snapshot.HistoryFilter, bool) {
	f := snapshot.HistoryFilter{Limit: defaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return f, false
		}
		f.Limit = parsed
	}

	if startStr := c.Query("start"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
			return f, false
		}
		f.Start = &t
	}

	if endStr := c.Query("end"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
			return f, false
		}
		f.End = &t
	}
	return f, true
}

// handleControllerHistory returns full history entries. The sensor query
// parameter is kept for older dashboards and answers like the sensor route.
// GET /api/clp/history
func (s *Server) handleControllerHistory(c *gin.Context) {
	if sensor := c.Query("sensor"); sensor != "" {
		s.sensorHistory(c, sensor)
		return
	}

	f, ok := parseHistoryFilter(c, s.cfg.DefaultLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.Snapshots.History(models.Controller, f))
}

// handleControllerSensorHistory returns one sensor's timestamp/value series
// GET /api/clp/history/:sensor
func (s *Server) handleControllerSensorHistory(c *gin.Context) {
	s.sensorHistory(c, c.Param("sensor"))
}

func (s *Server) sensorHistory(c *gin.Context, sensor string) {
	f, ok := parseHistoryFilter(c, s.cfg.DefaultLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.Snapshots.SensorHistory(models.Controller, sensor, f))
}

// handleControllerAlerts returns the alert batch of the latest CLP reading
// GET /api/clp/alerts
func (s *Server) handleControllerAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Snapshots.Alerts(models.Controller))
}

// handleControllerStatus summarises the CLP link
// GET /api/clp/status
func (s *Server) handleControllerStatus(c *gin.Context) {
	stats := s.deps.Snapshots.Stats(models.Controller)
	var lastUpdate *string
	if stats.LastUpdate != nil {
		ts := stats.LastUpdate.UTC().Format(time.RFC3339Nano)
		lastUpdate = &ts
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":        stats.LastUpdate != nil,
		"lastUpdate":       lastUpdate,
		"clientsConnected": s.deps.Registry.Count(),
		"historyCount":     stats.HistoryCount,
		"activeAlerts":     len(s.deps.Snapshots.Alerts(models.Controller)),
	})
}

// handleInverterCurrent returns the latest inverter readings. Readings held
// in memory win; after a restart the latest rows come from the database.
// GET /api/inverter/current
func (s *Server) handleInverterCurrent(c *gin.Context) {
	deviceID := c.Query("device_id")

	if deviceID != "" {
		if r, ok := s.deps.Snapshots.GetDevice(models.Inverter, deviceID); ok {
			c.JSON(http.StatusOK, r)
			return
		}
	} else if devices := s.deps.Snapshots.Devices(models.Inverter); len(devices) > 0 {
		c.JSON(http.StatusOK, devices)
		return
	}

	if s.deps.Queries == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data available", "message": "inverter has not sent data yet"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if deviceID != "" {
		row, err := s.deps.Queries.LatestInverterDevice(ctx, deviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if row == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no data available", "message": "inverter has not sent data yet"})
			return
		}
		c.JSON(http.StatusOK, row)
		return
	}

	rows, err := s.deps.Queries.LatestInverterData(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data available", "message": "inverter has not sent data yet"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// handleInverterHistory returns the in-memory inverter history
// GET /api/inverter/history
func (s *Server) handleInverterHistory(c *gin.Context) {
	f, ok := parseHistoryFilter(c, s.cfg.DefaultLimit)
	if !ok {
		return
	}
	if sensor := c.Query("sensor"); sensor != "" {
		c.JSON(http.StatusOK, s.deps.Snapshots.SensorHistory(models.Inverter, sensor, f))
		return
	}
	c.JSON(http.StatusOK, s.deps.Snapshots.History(models.Inverter, f))
}
