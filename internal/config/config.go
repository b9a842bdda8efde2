// Package config loads service settings from defaults, an optional TOML
// file and environment variables, in increasing order of precedence, and
// validates them at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Database DatabaseConfig  `toml:"database"`
	Import   ImportConfig    `toml:"import"`
	Reader   ReaderConfig    `toml:"reader"`
	Rate     RateLimitConfig `toml:"rate"`
	Security SecurityConfig  `toml:"security"`
	Logging  LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `toml:"port" env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `toml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout time.Duration `toml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `toml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies lists CIDRs whose X-Real-IP and X-Forwarded-For
	// headers are believed. Comma-separated in the environment.
	TrustedProxies []string `toml:"trusted_proxies" env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL string `toml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `toml:"max_conns" env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `toml:"min_conns" env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `toml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `toml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig controls ECSV import processing.
type ImportConfig struct {
	MaxFileSize   int64         `toml:"max_file_size" env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`
	MaxConcurrent int           `toml:"max_concurrent" env:"IMPORT_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `toml:"max_wait_time" env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is the number of rows sent per COPY.
	BatchSize int           `toml:"batch_size" env:"IMPORT_BATCH_SIZE" default:"1000"`
	Timeout   time.Duration `toml:"timeout" env:"IMPORT_TIMEOUT" default:"10m"`

	// SampleRows is how many data rows Inspect returns.
	SampleRows int `toml:"sample_rows" env:"IMPORT_SAMPLE_ROWS" default:"10"`

	// TablePrefix is prepended to table names derived from file names.
	TablePrefix string `toml:"table_prefix" env:"IMPORT_TABLE_PREFIX" default:"ecsv_"`

	// ResultRetention is how long a finished import stays queryable in memory.
	ResultRetention time.Duration `toml:"result_retention" env:"IMPORT_RESULT_RETENTION" default:"5m"`
}

// ReaderConfig tunes the ECSV stream readers.
type ReaderConfig struct {
	// BufferSize is the window size of each reader stage.
	BufferSize int `toml:"buffer_size" env:"ECSV_BUFFER_SIZE" default:"1024"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `toml:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `toml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
	ImportLimit       int  `toml:"import_limit" env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds API authentication and header settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list in the environment.
	APIKeys       []string `toml:"api_keys" env:"API_KEYS"`
	RequireAPIKey bool     `toml:"require_api_key" env:"REQUIRE_API_KEY" default:"false"`
	EnableCSP     bool     `toml:"enable_csp" env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `toml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
