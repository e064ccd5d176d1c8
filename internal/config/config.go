// Package config provides configuration management for the workspace panel.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the workspace panel.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Neon        NeonConfig        `mapstructure:"neon" yaml:"neon"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Aggregator  AggregatorConfig  `mapstructure:"aggregator" yaml:"aggregator"`
	WorkspaceDB WorkspaceDBConfig `mapstructure:"workspace_db" yaml:"workspace_db"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter" yaml:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// NeonConfig holds the provisioning API client configuration.
type NeonConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	OrgID        string        `mapstructure:"org_id" yaml:"org_id"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	DatabaseName string        `mapstructure:"database_name" yaml:"database_name"`
	RoleName     string        `mapstructure:"role_name" yaml:"role_name"`
}

// ProvisioningBudget is the longest the provisioning calls of one workspace
// create can take: every create attempt timing out, the backoff between them,
// then the connection URI call and its project details fallback.
func (n NeonConfig) ProvisioningBudget() time.Duration {
	budget := time.Duration(n.MaxAttempts+2) * n.Timeout
	for attempt := 1; attempt < n.MaxAttempts; attempt++ {
		budget += n.RetryBackoff * time.Duration(1<<uint(attempt))
	}
	return budget
}

// DatabaseConfig holds the master registry connection.
type DatabaseConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	MinConnections int    `mapstructure:"min_connections" yaml:"min_connections"`
}

// AggregatorConfig holds the optional aggregator connection. An empty URL disables mirroring.
type AggregatorConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
}

// Enabled reports whether the aggregator mirror is configured.
func (a AggregatorConfig) Enabled() bool {
	return strings.TrimSpace(a.URL) != ""
}

// WorkspaceDBConfig tunes the pooled handles to workspace databases.
type WorkspaceDBConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// CacheConfig holds workspace lookup cache configuration.
type CacheConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	WorkspaceTTL time.Duration `mapstructure:"workspace_ttl" yaml:"workspace_ttl"`
	MaxSize      int           `mapstructure:"max_size" yaml:"max_size"`
}

// RedisConfig holds Redis connection settings for the redis cache backend.
type RedisConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size" yaml:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from defaults, an optional file and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/workspace-panel/")
	}

	v.SetEnvPrefix("PANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The file is optional; defaults and env cover a bare deployment.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvironmentOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "210s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "180s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("neon.api_key", "")
	v.SetDefault("neon.org_id", "")
	v.SetDefault("neon.base_url", "https://console.neon.tech/api/v2")
	v.SetDefault("neon.timeout", "30s")
	v.SetDefault("neon.max_attempts", 3)
	v.SetDefault("neon.retry_backoff", "1s")
	v.SetDefault("neon.database_name", "neondb")
	v.SetDefault("neon.role_name", "neondb_owner")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)

	v.SetDefault("aggregator.url", "")
	v.SetDefault("aggregator.max_connections", 4)

	v.SetDefault("workspace_db.max_open_conns", 5)
	v.SetDefault("workspace_db.max_idle_conns", 2)
	v.SetDefault("workspace_db.conn_max_lifetime", "30m")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.workspace_ttl", "5m")
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("redis.url", "")

	v.SetDefault("rate_limiter.enabled", false)
	v.SetDefault("rate_limiter.requests_per_second", 50.0)
	v.SetDefault("rate_limiter.burst_size", 20)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.Neon.APIKey == "" {
		return fmt.Errorf("neon.api_key is required")
	}

	if c.Neon.MaxAttempts < 1 {
		return fmt.Errorf("neon.max_attempts must be at least 1")
	}

	if c.Neon.Timeout <= 0 {
		return fmt.Errorf("neon.timeout must be positive")
	}

	if c.Server.RequestTimeout > 0 {
		if budget := c.Neon.ProvisioningBudget(); c.Server.RequestTimeout < budget {
			return fmt.Errorf("server.request_timeout %s is shorter than the provisioning budget %s", c.Server.RequestTimeout, budget)
		}
		if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
			return fmt.Errorf("server.write_timeout %s must exceed server.request_timeout %s", c.Server.WriteTimeout, c.Server.RequestTimeout)
		}
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return fmt.Errorf("metrics port %d collides with server port", c.Metrics.Port)
		}
	}

	return nil
}
