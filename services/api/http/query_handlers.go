package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mtzview/supervisorio/services/api/db"
)

func (s *Server) requireDB(c *gin.Context) {
	if s.deps.Queries == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return
	}
	c.Next()
}

func queryContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}

func (s *Server) respondRows(c *gin.Context, rows []db.Row, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) respondRow(c *gin.Context, row db.Row, err error, missing string) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": missing})
		return
	}
	c.JSON(http.StatusOK, row)
}

// GET /api/alerts/preferences
func (s *Server) handleAlertPreferences(c *gin.Context) {
	ctx, cancel := queryContext(c)
	defer cancel()

	rows, err := s.deps.Queries.AlertPreferences(ctx)
	s.respondRows(c, rows, err)
}

// PUT /api/alerts/preferences/:sensor
func (s *Server) handleUpdateAlertPreferences(c *gin.Context) {
	var update db.AlertPreferenceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "message": err.Error()})
		return
	}

	ctx, cancel := queryContext(c)
	defer cancel()

	row, err := s.deps.Queries.UpdateAlertPreferences(ctx, c.Param("sensor"), update)
	s.respondRow(c, row, err, "sensor not found")
}

// GET /api/alerts/active
func (s *Server) handleActiveAlerts(c *gin.Context) {
	ctx, cancel := queryContext(c)
	defer cancel()

	rows, err := s.deps.Queries.ActiveAlerts(ctx)
	s.respondRows(c, rows, err)
}

func alertID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return 0, false
	}
	return id, true
}

// POST /api/alerts/:id/acknowledge
func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c)
	defer cancel()

	row, err := s.deps.Queries.AcknowledgeAlert(ctx, id)
	s.respondRow(c, row, err, "alert not found")
}

// POST /api/alerts/:id/resolve
func (s *Server) handleResolveAlert(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c)
	defer cancel()

	row, err := s.deps.Queries.ResolveAlert(ctx, id)
	s.respondRow(c, row, err, "alert not found")
}

// GET /api/stats/temperature
func (s *Server) handleTemperatureStats(c *gin.Context) {
	ctx, cancel := queryContext(c)
	defer cancel()

	rows, err := s.deps.Queries.TemperatureStats(ctx)
	s.respondRows(c, rows, err)
}

// GET /api/preferences/:key
func (s *Server) handleGetPreference(c *gin.Context) {
	key := c.Param("key")
	ctx, cancel := queryContext(c)
	defer cancel()

	value, err := s.deps.Queries.UserPreference(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if value == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preference not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// POST /api/preferences/:key
func (s *Server) handleSetPreference(c *gin.Context) {
	var body struct {
		Value json.RawMessage `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "message": err.Error()})
		return
	}

	ctx, cancel := queryContext(c)
	defer cancel()

	row, err := s.deps.Queries.SetUserPreference(ctx, c.Param("key"), body.Value)
	s.respondRow(c, row, err, "preference not stored")
}

func (s *Server) statsQuery(c *gin.Context, param string, fallback int) (db.StatsQuery, bool) {
	q := db.StatsQuery{DeviceID: strings.TrimSpace(c.Query("device_id")), Window: fallback}
	if raw := c.Query(param); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
			return q, false
		}
		q.Window = n
	}
	return q, true
}

// GET /api/inverter/stats/hourly
func (s *Server) handleInverterHourlyStats(c *gin.Context) {
	q, ok := s.statsQuery(c, "hours", 24)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c)
	defer cancel()

	rows, err := s.deps.Queries.InverterHourlyStats(ctx, q)
	s.respondRows(c, rows, err)
}

// GET /api/inverter/stats/daily
func (s *Server) handleInverterDailyStats(c *gin.Context) {
	q, ok := s.statsQuery(c, "days", 30)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c)
	defer cancel()

	rows, err := s.deps.Queries.InverterDailyStats(ctx, q)
	s.respondRows(c, rows, err)
}

// GET /api/inverter/devices
func (s *Server) handleInverterDevices(c *gin.Context) {
	ctx, cancel := queryContext(c)
	defer cancel()

	rows, err := s.deps.Queries.ActiveInverters(ctx)
	s.respondRows(c, rows, err)
}

// POST /api/inverter/device
func (s *Server) handleInverterDevice(c *gin.Context) {
	var device db.InverterDevice
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "message": err.Error()})
		return
	}

	ctx, cancel := queryContext(c)
	defer cancel()

	row, err := s.deps.Queries.UpsertInverterDevice(ctx, device)
	s.respondRow(c, row, err, "device not stored")
}
