package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apiconfig "github.com/mtzview/supervisorio/services/api/config"
)

const defaultTimeout = 2 * time.Minute

// Config holds runtime configuration for the maintenance job.
type Config struct {
	DatabaseURL string
	Timeout     time.Duration
	DryRun      bool
	Production  bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{DatabaseURL: apiconfig.DatabaseURL(), Timeout: defaultTimeout}

	if v := strings.TrimSpace(os.Getenv("MAINTENANCE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid MAINTENANCE_TIMEOUT: %s", v)
		}
		cfg.Timeout = d
	}

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = os.Getenv("NODE_ENV")
	}
	cfg.Production = strings.EqualFold(env, "production")

	return cfg, nil
}
