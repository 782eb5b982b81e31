// Package config provides unified configuration for a trellis server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Optional config.local.yaml overlay next to the config file
//  4. Environment variable overrides (TRELLIS_ prefix)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import "time"

// Config holds all configuration for a trellis server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Auth    AuthConfig    `yaml:"auth"`
	Client  ClientConfig  `yaml:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"

	// Loggers overrides the level of named loggers and their children,
	// e.g. {"trellis.auth": "debug"}.
	Loggers map[string]string `yaml:"loggers"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type        string          `yaml:"type"`         // "none", "apikey" or "jwt", default: "none"
	APIKeys     []APIKeyConfig  `yaml:"api_keys"`     // API key entries for type=apikey
	JWT         JWTConfig       `yaml:"jwt"`          // settings for type=jwt
	RateLimit   RateLimitConfig `yaml:"rate_limit"`   // per-tier request limits
	BypassPaths []string        `yaml:"bypass_paths"` // default: /healthz, /readyz, /metrics
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds bearer token validation settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TenantClaim string        `yaml:"tenant_claim"` // default: "tenant_id"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
}

// RateLimitConfig holds per-tier requests-per-minute limits. Zero means
// unlimited.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// ClientConfig holds settings for outbound HTTP clients, such as the JWKS
// fetcher.
type ClientConfig struct {
	Timeout            time.Duration `yaml:"timeout"`              // default: 10s
	RetryMax           int           `yaml:"retry_max"`            // default: 2
	RetryWaitMin       time.Duration `yaml:"retry_wait_min"`       // default: 100ms
	RetryWaitMax       time.Duration `yaml:"retry_wait_max"`       // default: 2s
	BreakerTripAfter   uint32        `yaml:"breaker_trip_after"`   // 0 disables the breaker
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"` // default: 30s
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Auth: AuthConfig{
			Type:        "none",
			BypassPaths: []string{"/healthz", "/readyz", "/metrics"},
		},
		Client: ClientConfig{
			Timeout:            10 * time.Second,
			RetryMax:           2,
			RetryWaitMin:       100 * time.Millisecond,
			RetryWaitMax:       2 * time.Second,
			BreakerOpenTimeout: 30 * time.Second,
		},
	}
}
