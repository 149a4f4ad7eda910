// Package config loads the gridedit server settings from environment
// variables with defaults, and validates them on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Sessions SessionsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so SSE streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every non-streaming route.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`

	// MaxBodyBytes caps JSON request bodies (default: 4MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"4194304"`
}

// EngineConfig holds the defaults every new table is built with.
type EngineConfig struct {
	CloneMaxDepth      int  `env:"CLONE_MAX_DEPTH" default:"50"`
	CloneMaxProperties int  `env:"CLONE_MAX_PROPERTIES" default:"10000"`
	CloneDiagnostics   bool `env:"CLONE_DIAGNOSTICS" default:"false"`

	// HistorySize bounds undo snapshots per table (default: 50)
	HistorySize int `env:"HISTORY_SIZE" default:"50"`

	// Debounce delays field validation while typing; 0 validates immediately.
	Debounce time.Duration `env:"VALIDATION_DEBOUNCE" default:"16ms"`

	// AsyncMaxConcurrent bounds async validators in flight across all tables.
	AsyncMaxConcurrent int           `env:"ASYNC_MAX_CONCURRENT" default:"16"`
	AsyncMaxWait       time.Duration `env:"ASYNC_MAX_WAIT" default:"5s"`

	// Locale is used when a request carries no Accept-Language.
	Locale string `env:"DEFAULT_LOCALE" envAlt:"LANG_DEFAULT" default:"en"`
}

// SessionsConfig holds the table registry settings.
type SessionsConfig struct {
	// TTL is how long an untouched table lives (default: 30m)
	TTL time.Duration `env:"SESSION_TTL" default:"30m"`

	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" default:"5m"`

	// MaxTables caps concurrently live tables (default: 1000)
	MaxTables int `env:"SESSION_MAX_TABLES" default:"1000"`

	// EventBuffer is the per-subscriber SSE buffer (default: 64)
	EventBuffer int `env:"SESSION_EVENT_BUFFER" default:"64"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Forwarded-For headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of accepted X-API-Key values.
	APIKeys []string `env:"API_KEYS"`

	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// EnableCSP sets Content-Security-Policy on HTML responses (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
