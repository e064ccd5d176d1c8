package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// applyEnvironmentOverrides maps the deployment's well-known variable names onto the config.
func applyEnvironmentOverrides(cfg *Config) {
	if key := os.Getenv("NEON_API_KEY"); key != "" {
		cfg.Neon.APIKey = key
	}
	if orgID := os.Getenv("NEON_ORG_ID"); orgID != "" {
		cfg.Neon.OrgID = orgID
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("WORKSPACE_PANEL_DATABASE_URL"); url != "" {
		cfg.Aggregator.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
		if cfg.Cache.Backend == "memory" {
			cfg.Cache.Backend = "redis"
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}
}
