package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// env returns a getenv func backed by a map.
func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "0.0.0.0:8080")
	}
	if cfg.Engine.CloneMaxDepth != 50 {
		t.Errorf("Engine.CloneMaxDepth = %d, want 50", cfg.Engine.CloneMaxDepth)
	}
	if cfg.Engine.CloneMaxProperties != 10000 {
		t.Errorf("Engine.CloneMaxProperties = %d, want 10000", cfg.Engine.CloneMaxProperties)
	}
	if cfg.Engine.HistorySize != 50 {
		t.Errorf("Engine.HistorySize = %d, want 50", cfg.Engine.HistorySize)
	}
	if cfg.Engine.Debounce != 16*time.Millisecond {
		t.Errorf("Engine.Debounce = %v, want 16ms", cfg.Engine.Debounce)
	}
	if cfg.Engine.Locale != "en" {
		t.Errorf("Engine.Locale = %q, want %q", cfg.Engine.Locale, "en")
	}
	if cfg.Sessions.TTL != 30*time.Minute {
		t.Errorf("Sessions.TTL = %v, want 30m", cfg.Sessions.TTL)
	}
	if cfg.Security.TrustedProxies != nil {
		t.Errorf("Security.TrustedProxies = %v, want nil", cfg.Security.TrustedProxies)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"SERVER_PORT":         "9090",
		"HISTORY_SIZE":        "10",
		"VALIDATION_DEBOUNCE": "0s",
		"LOG_LEVEL":           "debug",
		"CLONE_DIAGNOSTICS":   "true",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Engine.HistorySize != 10 {
		t.Errorf("Engine.HistorySize = %d, want %d", cfg.Engine.HistorySize, 10)
	}
	if cfg.Engine.Debounce != 0 {
		t.Errorf("Engine.Debounce = %v, want 0", cfg.Engine.Debounce)
	}
	if !cfg.Engine.CloneDiagnostics {
		t.Error("Engine.CloneDiagnostics = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AlternateEnvVar(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"PORT": "3000"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}

	cfg, err = LoadFrom(env(map[string]string{"PORT": "3000", "SERVER_PORT": "4000"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want primary var to win", cfg.Server.Port)
	}
}

func TestLoad_CommaSeparatedList(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"API_KEYS":        " key-one, ,key-two ",
		"REQUIRE_API_KEY": "true",
		"TRUSTED_PROXIES": "10.0.0.0/8,192.168.0.0/16",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	want := []string{"key-one", "key-two"}
	if !reflect.DeepEqual(cfg.Security.APIKeys, want) {
		t.Errorf("Security.APIKeys = %v, want %v", cfg.Security.APIKeys, want)
	}
	if len(cfg.Security.TrustedProxies) != 2 {
		t.Errorf("Security.TrustedProxies = %v, want 2 entries", cfg.Security.TrustedProxies)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad integer", map[string]string{"SERVER_PORT": "eighty"}, "SERVER_PORT"},
		{"bad duration", map[string]string{"SESSION_TTL": "soon"}, "invalid duration"},
		{"bad boolean", map[string]string{"CLONE_DIAGNOSTICS": "sometimes"}, "invalid boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(env(tt.vars))
			if err == nil {
				t.Fatal("LoadFrom() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_Required(t *testing.T) {
	var target struct {
		Token string `env:"TOKEN" required:"true"`
	}

	err := loadStruct(reflect.ValueOf(&target).Elem(), env(nil))
	if err == nil || !strings.Contains(err.Error(), "TOKEN") {
		t.Fatalf("loadStruct() error = %v, want missing TOKEN", err)
	}

	if err := loadStruct(reflect.ValueOf(&target).Elem(), env(map[string]string{"TOKEN": "x"})); err != nil {
		t.Fatalf("loadStruct() error = %v", err)
	}
	if target.Token != "x" {
		t.Errorf("Token = %q, want %q", target.Token, "x")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFrom(env(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"zero history", func(c *Config) { c.Engine.HistorySize = 0 }, "HISTORY_SIZE"},
		{"negative debounce", func(c *Config) { c.Engine.Debounce = -time.Millisecond }, "VALIDATION_DEBOUNCE"},
		{"clone depth", func(c *Config) { c.Engine.CloneMaxDepth = 0 }, "CLONE_MAX_DEPTH"},
		{"async slots", func(c *Config) { c.Engine.AsyncMaxConcurrent = 0 }, "ASYNC_MAX_CONCURRENT"},
		{"bad locale", func(c *Config) { c.Engine.Locale = "not a locale!" }, "DEFAULT_LOCALE"},
		{"max tables", func(c *Config) { c.Sessions.MaxTables = 0 }, "SESSION_MAX_TABLES"},
		{"rate", func(c *Config) { c.Rate.RequestsPerMinute = 0 }, "RATE_LIMIT_REQUESTS_PER_MINUTE"},
		{"keys required", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS is empty"},
		{"bad proxy", func(c *Config) { c.Security.TrustedProxies = []string{"10.0.0.1"} }, "TRUSTED_PROXIES"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = 0
	cfg.Engine.HistorySize = -1
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if n := strings.Count(err.Error(), "\n  - "); n != 3 {
		t.Errorf("Validate() reported %d problems, want 3:\n%v", n, err)
	}
}

func TestValidate_RateDisabled(t *testing.T) {
	cfg := validConfig(t)
	cfg.Rate.Enabled = false
	cfg.Rate.RequestsPerMinute = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil when rate limiting is off", err)
	}
}

func TestString_MasksAPIKeys(t *testing.T) {
	cfg := validConfig(t)
	cfg.Security.APIKeys = []string{"super-secret-key"}

	s := cfg.String()
	if strings.Contains(s, "super-secret-key") {
		t.Errorf("String() leaked an API key: %s", s)
	}
	if !strings.Contains(s, "[1 MASKED]") {
		t.Errorf("String() = %s, want masked key count", s)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"127.0.0.1", 9000, "127.0.0.1:9000"},
		{"::1", 80, "[::1]:80"},
	}
	for _, tt := range tests {
		c := ServerConfig{Host: tt.host, Port: tt.port}
		if got := c.Addr(); got != tt.want {
			t.Errorf("Addr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
