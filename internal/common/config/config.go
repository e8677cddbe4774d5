// Package config provides configuration management for the hub.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the hub.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Hub       HubConfig       `mapstructure:"hub"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Session   SessionConfig   `mapstructure:"session"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the MCP HTTP server configuration.
type ServerConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	ReadTimeout      int    `mapstructure:"readTimeout"`      // in seconds
	WriteTimeout     int    `mapstructure:"writeTimeout"`     // in seconds
	RequestTimeoutMS int    `mapstructure:"requestTimeoutMs"` // per-request deadline
}

// HubConfig holds the message-hub (WebSocket) server configuration.
type HubConfig struct {
	Port      int `mapstructure:"port"`
	SendQueue int `mapstructure:"sendQueue"` // per-connection bounded queue
}

// DatabaseConfig holds primary store configuration. Driver is "sqlite3"
// (default, single file) or "postgres" (pgx stdlib).
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite file path, ":memory:" for tests
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// VectorConfig holds the optional vector store configuration. An empty URL
// disables semantic search.
type VectorConfig struct {
	URL        string `mapstructure:"url"`
	Collection string `mapstructure:"collection"`
	TimeoutMS  int    `mapstructure:"timeoutMs"`
	// IndexWrites controls whether observation writes are mirrored into the
	// vector store (ENABLE_ADVANCED_MEMORY).
	IndexWrites bool `mapstructure:"indexWrites"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// BootstrapKey is a static API key mapped to DefaultTenant, for
	// single-tenant deployments (API_KEY).
	BootstrapKey  string `mapstructure:"bootstrapKey"`
	DefaultTenant string `mapstructure:"defaultTenant"`
	JWTSecret     string `mapstructure:"jwtSecret"`
}

// RateLimitConfig holds per-API-key token bucket settings.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// SessionConfig holds session and handoff settings.
type SessionConfig struct {
	HandoffRetentionDays int `mapstructure:"handoffRetentionDays"`
	ContextLearnings     int `mapstructure:"contextLearnings"` // top-N learnings in WARM tier
	ContextEntities      int `mapstructure:"contextEntities"`  // COLD tier search limit
}

// RegistryConfig holds agent registry settings.
type RegistryConfig struct {
	StaleAfter int `mapstructure:"staleAfter"` // seconds without activity before offline
	SweepEvery int `mapstructure:"sweepEvery"` // seconds between sweeps
}

// CacheConfig holds the ephemeral cache settings.
type CacheConfig struct {
	TTL int `mapstructure:"ttl"` // seconds
}

// SlackConfig holds the optional Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhookUrl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeout returns the per-request deadline as a time.Duration.
func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

// HandoffRetention returns the handoff retention window as a time.Duration.
func (s *SessionConfig) HandoffRetention() time.Duration {
	return time.Duration(s.HandoffRetentionDays) * 24 * time.Hour
}

// StaleAfterDuration returns the registry stale threshold.
func (r *RegistryConfig) StaleAfterDuration() time.Duration {
	return time.Duration(r.StaleAfter) * time.Second
}

// SweepInterval returns the registry sweep interval.
func (r *RegistryConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepEvery) * time.Second
}

// TTLDuration returns the cache TTL.
func (c *CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// Timeout returns the vector store request timeout.
func (v *VectorConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutMS) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 6174)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestTimeoutMs", 30000)

	v.SetDefault("hub.port", 3004)
	v.SetDefault("hub.sendQueue", 64)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "neuralhub.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "neuralhub")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "neuralhub")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "neuralhub")
	v.SetDefault("nats.maxReconnects", 10)

	// Vector defaults - empty URL disables semantic search
	v.SetDefault("vector.url", "")
	v.SetDefault("vector.collection", "observations")
	v.SetDefault("vector.timeoutMs", 2000)
	v.SetDefault("vector.indexWrites", false)

	v.SetDefault("auth.bootstrapKey", "")
	v.SetDefault("auth.defaultTenant", "default")
	v.SetDefault("auth.jwtSecret", "")

	v.SetDefault("rateLimit.rps", 20.0)
	v.SetDefault("rateLimit.burst", 40)

	v.SetDefault("session.handoffRetentionDays", 90)
	v.SetDefault("session.contextLearnings", 10)
	v.SetDefault("session.contextEntities", 20)

	v.SetDefault("registry.staleAfter", 300)
	v.SetDefault("registry.sweepEvery", 60)

	v.SetDefault("cache.ttl", 60)

	v.SetDefault("slack.webhookUrl", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix NEURALHUB_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/neuralhub/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("NEURALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy env var names carried over from earlier deployments. AutomaticEnv
	// does not handle camelCase keys, so these are bound explicitly.
	_ = v.BindEnv("auth.bootstrapKey", "API_KEY", "NEURALHUB_AUTH_BOOTSTRAP_KEY")
	_ = v.BindEnv("server.port", "NEURAL_MCP_PORT", "NEURALHUB_SERVER_PORT")
	_ = v.BindEnv("hub.port", "MESSAGE_HUB_PORT", "NEURALHUB_HUB_PORT")
	_ = v.BindEnv("vector.url", "VECTOR_STORE_URL", "NEURALHUB_VECTOR_URL")
	_ = v.BindEnv("vector.indexWrites", "ENABLE_ADVANCED_MEMORY", "NEURALHUB_VECTOR_INDEX_WRITES")
	_ = v.BindEnv("slack.webhookUrl", "SLACK_WEBHOOK_URL", "NEURALHUB_SLACK_WEBHOOK_URL")
	_ = v.BindEnv("server.requestTimeoutMs", "REQUEST_TIMEOUT_MS", "NEURALHUB_SERVER_REQUEST_TIMEOUT_MS")
	_ = v.BindEnv("rateLimit.rps", "RATE_LIMIT_RPS", "NEURALHUB_RATE_LIMIT_RPS")
	_ = v.BindEnv("rateLimit.burst", "RATE_LIMIT_BURST", "NEURALHUB_RATE_LIMIT_BURST")
	_ = v.BindEnv("auth.jwtSecret", "JWT_SECRET", "NEURALHUB_AUTH_JWT_SECRET")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/neuralhub/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Hub.Port <= 0 || cfg.Hub.Port > 65535 {
		errs = append(errs, "hub.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite3 driver")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	default:
		errs = append(errs, "database.driver must be sqlite3 or postgres")
	}

	if cfg.RateLimit.RPS <= 0 {
		errs = append(errs, "rateLimit.rps must be positive")
	}
	if cfg.RateLimit.Burst <= 0 {
		errs = append(errs, "rateLimit.burst must be positive")
	}
	if cfg.Session.HandoffRetentionDays <= 0 {
		errs = append(errs, "session.handoffRetentionDays must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
