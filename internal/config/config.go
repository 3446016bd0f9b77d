// Package config loads and validates the Gestio backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the GESTIO_ prefix (e.g.,
// GESTIO_DATABASE_HOST overrides database.host in the YAML). This layering
// allows the same binary to run with a config.yaml in local development and
// with pure environment variables in containerized deployments — no
// recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gestio-hq/gestio/internal/audit"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	GeoIP     GeoIPConfig     `mapstructure:"geoip"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TrustedProxies are the proxy CIDRs Gin accepts X-Forwarded-For from.
	// The client IP recorded in audit rows depends on this being right.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the Redis connection used for the geo-IP cache and the
// outbound lookup rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GeoIPConfig configures country resolution for audit enrichment.
type GeoIPConfig struct {
	// Enabled turns resolution off entirely; records then carry "XX".
	Enabled bool `mapstructure:"enabled"`
	// BaseURL of the lookup provider; the client calls GET <base_url>/<ip>.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds one external lookup (default 2s).
	Timeout time.Duration `mapstructure:"timeout"`
	// CacheTTL is how long resolved countries are cached (default 168h).
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// MaxLookupsPerSecond caps outbound calls to the provider across all
	// server instances (0 disables the limiter).
	MaxLookupsPerSecond int `mapstructure:"max_lookups_per_second"`
}

// AuditConfig configures optional shipping of audit records to external
// destinations. Local database persistence is always on and not configurable.
type AuditConfig struct {
	Shippers []audit.ShipperConfig `mapstructure:"shippers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	// MetricsPort is the side-channel Prometheus port (separate from the API).
	MetricsPort int `mapstructure:"metrics_port"`
}

// Load reads configuration from configPath (or the default search path when
// empty), applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gestio")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables.
	}

	v.SetEnvPrefix("GESTIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures.
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal().
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields so secrets can be
	// injected as ${VAR} references from infrastructure tooling.
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.trusted_proxies", []string{})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gestio")
	v.SetDefault("database.user", "gestio")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// GeoIP defaults
	v.SetDefault("geoip.enabled", true)
	v.SetDefault("geoip.base_url", "https://api.country.is")
	v.SetDefault("geoip.timeout", "2s")
	v.SetDefault("geoip.cache_ttl", "168h")
	v.SetDefault("geoip.max_lookups_per_second", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics_port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",
		"server.trusted_proxies",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// GeoIP
		"geoip.enabled",
		"geoip.base_url",
		"geoip.timeout",
		"geoip.cache_ttl",
		"geoip.max_lookups_per_second",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics_port",
	}

	for _, key := range keys {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.GeoIP.Enabled {
		if c.GeoIP.BaseURL == "" {
			return fmt.Errorf("geoip.base_url is required when geoip is enabled")
		}
		if c.GeoIP.Timeout <= 0 {
			return fmt.Errorf("geoip.timeout must be positive")
		}
		if c.GeoIP.CacheTTL <= 0 {
			return fmt.Errorf("geoip.cache_ttl must be positive")
		}
	}

	for i, s := range c.Audit.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d]: webhook.url is required", i)
			}
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d]: file.path is required", i)
			}
		default:
			return fmt.Errorf("audit.shippers[%d]: unknown type %q", i, s.Type)
		}
	}

	if c.Telemetry.MetricsPort < 1 || c.Telemetry.MetricsPort > 65535 {
		return fmt.Errorf("invalid telemetry metrics port: %d", c.Telemetry.MetricsPort)
	}

	return nil
}

// GetAddress returns the host:port the HTTP server listens on.
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}
