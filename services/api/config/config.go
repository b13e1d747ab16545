package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the telemetry API.
type Config struct {
	DatabaseURL    string
	DBMaxConns     int32
	Port           int
	CORSOrigin     string
	Environment    string
	StaticDir      string
	HistoryMax     int
	HistoryMaxAge  time.Duration
	SweepInterval  time.Duration
	Heartbeat      time.Duration
	StreamWriteTTL time.Duration
	PersistQueue   int
	PersistWorkers int
	PersistTimeout time.Duration
	DBMaintenance  time.Duration
	DefaultLimit   int
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		DBMaxConns:     20,
		Port:           3001,
		CORSOrigin:     "*",
		Environment:    "development",
		HistoryMax:     1000,
		HistoryMaxAge:  24 * time.Hour,
		SweepInterval:  time.Hour,
		Heartbeat:      30 * time.Second,
		StreamWriteTTL: 10 * time.Second,
		PersistQueue:   256,
		PersistWorkers: 4,
		PersistTimeout: 5 * time.Second,
		DBMaintenance:  24 * time.Hour,
		DefaultLimit:   100,
	}

	cfg.DatabaseURL = DatabaseURL()

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
		cfg.Port = port
	}

	if origin := strings.TrimSpace(os.Getenv("CORS_ORIGIN")); origin != "" {
		cfg.CORSOrigin = origin
	}

	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env != "" {
		cfg.Environment = env
	} else if env := strings.TrimSpace(os.Getenv("NODE_ENV")); env != "" {
		cfg.Environment = env
	}

	cfg.StaticDir = strings.TrimSpace(os.Getenv("STATIC_DIR"))

	var err error
	if cfg.DBMaxConns, err = positiveInt32("DB_MAX_CONNS", cfg.DBMaxConns); err != nil {
		return cfg, err
	}
	if cfg.HistoryMax, err = positiveInt("HISTORY_MAX", cfg.HistoryMax); err != nil {
		return cfg, err
	}
	if cfg.PersistQueue, err = positiveInt("PERSIST_QUEUE", cfg.PersistQueue); err != nil {
		return cfg, err
	}
	if cfg.PersistWorkers, err = positiveInt("PERSIST_WORKERS", cfg.PersistWorkers); err != nil {
		return cfg, err
	}
	if cfg.DefaultLimit, err = positiveInt("API_DEFAULT_LIMIT", cfg.DefaultLimit); err != nil {
		return cfg, err
	}
	if cfg.HistoryMaxAge, err = positiveDuration("HISTORY_RETENTION", cfg.HistoryMaxAge); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = positiveDuration("HISTORY_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return cfg, err
	}
	if cfg.Heartbeat, err = positiveDuration("STREAM_HEARTBEAT_INTERVAL", cfg.Heartbeat); err != nil {
		return cfg, err
	}
	if cfg.StreamWriteTTL, err = positiveDuration("STREAM_WRITE_TIMEOUT", cfg.StreamWriteTTL); err != nil {
		return cfg, err
	}
	if cfg.PersistTimeout, err = positiveDuration("PERSIST_TIMEOUT", cfg.PersistTimeout); err != nil {
		return cfg, err
	}
	if cfg.DBMaintenance, err = positiveDuration("DB_MAINTENANCE_INTERVAL", cfg.DBMaintenance); err != nil {
		return cfg, err
	}

	if cfg.PersistWorkers > int(cfg.DBMaxConns) {
		cfg.PersistWorkers = int(cfg.DBMaxConns)
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IsProduction reports whether the process runs with production defaults.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DatabaseURL returns DATABASE_URL, or a DSN assembled from the DB_*
// variables when it is unset.
func DatabaseURL() string {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return dsn
	}
	return databaseURLFromParts()
}

// databaseURLFromParts builds a DSN from the DB_* variables used by the
// field deployment scripts.
func databaseURLFromParts() string {
	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")
	name := envOr("DB_NAME", "mtzview")
	user := envOr("DB_USER", "mtzview")
	password := os.Getenv("DB_PASSWORD")

	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	q := u.Query()
	q.Set("connect_timeout", "2")
	u.RawQuery = q.Encode()
	return u.String()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func positiveInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}

func positiveInt32(key string, fallback int32) (int32, error) {
	n, err := positiveInt(key, int(fallback))
	return int32(n), err
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return fallback, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
