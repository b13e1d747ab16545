package http

import (
	"context"
	"encoding/json"

	"github.com/mtzview/supervisorio/services/api/db"
)

// Queries is the durable-store surface used by the read and admin routes.
// *db.Store satisfies it.
type Queries interface {
	TemperatureStats(ctx context.Context) ([]db.Row, error)

	LatestInverterData(ctx context.Context) ([]db.Row, error)
	LatestInverterDevice(ctx context.Context, deviceID string) (db.Row, error)
	InverterHourlyStats(ctx context.Context, q db.StatsQuery) ([]db.Row, error)
	InverterDailyStats(ctx context.Context, q db.StatsQuery) ([]db.Row, error)
	UpsertInverterDevice(ctx context.Context, d db.InverterDevice) (db.Row, error)
	ActiveInverters(ctx context.Context) ([]db.Row, error)

	AlertPreferences(ctx context.Context) ([]db.Row, error)
	UpdateAlertPreferences(ctx context.Context, sensor string, u db.AlertPreferenceUpdate) (db.Row, error)
	ActiveAlerts(ctx context.Context) ([]db.Row, error)
	AcknowledgeAlert(ctx context.Context, id int64) (db.Row, error)
	ResolveAlert(ctx context.Context, id int64) (db.Row, error)

	UserPreference(ctx context.Context, key string) (json.RawMessage, error)
	SetUserPreference(ctx context.Context, key string, value json.RawMessage) (db.Row, error)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// Controller (CLP) endpoints - ingestion, live stream and in-memory views
	clp := api.Group("/clp")
	{
		clp.POST("/telemetry", s.handleControllerTelemetry)
		clp.GET("/stream", s.handleStream)
		clp.GET("/ws", s.handleWebSocket)
		clp.GET("/current", s.handleControllerCurrent)
		clp.GET("/history", s.handleControllerHistory)
		clp.GET("/history/:sensor", s.handleControllerSensorHistory)
		clp.GET("/alerts", s.handleControllerAlerts)
		clp.GET("/status", s.handleControllerStatus)
	}

	// Inverter endpoints
	inverter := api.Group("/inverter")
	{
		inverter.POST("/telemetry", s.handleInverterTelemetry)
		inverter.GET("/current", s.handleInverterCurrent)
		inverter.GET("/history", s.handleInverterHistory)
		inverter.GET("/stats/hourly", s.requireDB, s.handleInverterHourlyStats)
		inverter.GET("/stats/daily", s.requireDB, s.handleInverterDailyStats)
		inverter.GET("/devices", s.requireDB, s.handleInverterDevices)
		inverter.POST("/device", s.requireDB, s.handleInverterDevice)
	}

	// Alert history and thresholds - durable store only
	alerts := api.Group("/alerts", s.requireDB)
	{
		alerts.GET("/preferences", s.handleAlertPreferences)
		alerts.PUT("/preferences/:sensor", s.handleUpdateAlertPreferences)
		alerts.GET("/active", s.handleActiveAlerts)
		alerts.POST("/:id/acknowledge", s.handleAcknowledgeAlert)
		alerts.POST("/:id/resolve", s.handleResolveAlert)
	}

	api.GET("/stats/temperature", s.requireDB, s.handleTemperatureStats)
	api.GET("/preferences/:key", s.requireDB, s.handleGetPreference)
	api.POST("/preferences/:key", s.requireDB, s.handleSetPreference)
}
