// Package config provides configuration management for the run-of-show server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string `yaml:"port"`
	Env  string `yaml:"env"`

	// Database configuration
	DatabaseURL string `yaml:"database_url"`

	// CORS configuration
	CORSOrigin string `yaml:"cors_origin"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // console or json

	// Sync timing
	ServerTimeInterval    time.Duration `yaml:"server_time_interval"`
	PassiveResyncInterval time.Duration `yaml:"passive_resync_interval"`
	MaxMessageSize        int64         `yaml:"max_message_size"`

	// Timers
	DefaultDurationSeconds int `yaml:"default_duration_seconds"`

	// Admin routes are disabled while empty
	AdminKey string `yaml:"admin_key"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// NATS relay is disabled while NATSURL is empty
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	// Housekeeping
	HousekeepingSchedule string        `yaml:"housekeeping_schedule"`
	PresenceTTL          time.Duration `yaml:"presence_ttl"`
	AutoResetSchedule    string        `yaml:"auto_reset_schedule"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:                   "4000",
		Env:                    "development",
		DatabaseURL:            "file:./runofshow.db",
		CORSOrigin:             "http://localhost:3000",
		LogLevel:               "info",
		LogFormat:              "console",
		ServerTimeInterval:     5 * time.Second,
		PassiveResyncInterval:  20 * time.Second,
		MaxMessageSize:         4096,
		DefaultDurationSeconds: 300,
		MetricsEnabled:         true,
		NATSSubjectPrefix:      "runofshow",
		HousekeepingSchedule:   "@every 1m",
		PresenceTTL:            2 * time.Minute,
	}
}

// Load loads configuration from environment variables with sensible defaults.
// CONFIG_FILE is ignored here; use LoadWithFile to honor it.
func Load() *Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadWithFile overlays the YAML file at path on the defaults, then applies the environment.
// An empty path behaves like Load.
func LoadWithFile(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	// Server
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)

	// Database
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	// CORS
	c.CORSOrigin = getEnv("CORS_ORIGIN", c.CORSOrigin)

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	// Sync
	c.ServerTimeInterval = getEnvDuration("SERVER_TIME_INTERVAL", c.ServerTimeInterval)
	c.PassiveResyncInterval = getEnvDuration("PASSIVE_RESYNC_INTERVAL", c.PassiveResyncInterval)
	c.MaxMessageSize = int64(getEnvInt("MAX_MESSAGE_SIZE", int(c.MaxMessageSize)))

	// Timers
	c.DefaultDurationSeconds = getEnvInt("DEFAULT_DURATION_SECONDS", c.DefaultDurationSeconds)

	c.AdminKey = getEnv("ADMIN_KEY", c.AdminKey)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)

	// NATS
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)

	// Housekeeping
	c.HousekeepingSchedule = getEnv("HOUSEKEEPING_SCHEDULE", c.HousekeepingSchedule)
	c.PresenceTTL = getEnvDuration("PRESENCE_TTL", c.PresenceTTL)
	c.AutoResetSchedule = getEnv("AUTO_RESET_SCHEDULE", c.AutoResetSchedule)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AdminEnabled reports whether admin routes are served.
func (c *Config) AdminEnabled() bool {
	return c.AdminKey != ""
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("5s") or bare seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
