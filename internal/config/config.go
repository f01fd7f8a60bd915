// Package config provides configuration management for reconlens.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reconlens configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sources   SourcesConfig   `yaml:"sources"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxy lets X-Forwarded-For and X-Real-IP set the client
	// address. Enable only behind a proxy that overwrites them.
	TrustProxy bool `yaml:"trust_proxy"`
}

// RedisConfig holds Redis connection settings. Redis only backs the
// inbound rate limiter; an empty Addr keeps limiting in-process.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// RateLimitConfig holds inbound API rate limit settings.
type RateLimitConfig struct {
	Enabled           bool           `yaml:"enabled"`
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	BurstSize         int            `yaml:"burst_size"`
	IncludeHeaders    bool           `yaml:"include_headers"`
	EndpointCosts     map[string]int `yaml:"endpoint_costs"` // "METHOD:/path" -> multiplier
}

// SourcesConfig holds upstream intel provider settings.
type SourcesConfig struct {
	IPQuery        IPQueryConfig        `yaml:"ipquery"`
	Censys         CensysConfig         `yaml:"censys"`
	SecurityTrails SecurityTrailsConfig `yaml:"securitytrails"`
}

// IPQueryConfig holds IPQuery settings. IPQuery needs no credential.
type IPQueryConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CensysConfig holds Censys Platform settings.
type CensysConfig struct {
	BaseURL  string        `yaml:"base_url"`
	TokenEnv string        `yaml:"token_env"`
	OrgIDEnv string        `yaml:"org_id_env"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SecurityTrailsConfig holds SecurityTrails settings.
type SecurityTrailsConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// TelemetryConfig holds metrics and tracing settings.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name"`
	Environment    string  `yaml:"environment"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`
}

// Credentials is the resolved set of provider secrets. It is built once
// from the environment and handed to the source adapters at construction.
type Credentials struct {
	CensysToken          string
	CensysOrgID          string
	SecurityTrailsAPIKey string
	RedisPassword        string
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			PasswordEnv: "REDIS_PASSWORD",
			DB:          0,
			PoolSize:    10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			BurstSize:         10,
			IncludeHeaders:    true,
			EndpointCosts: map[string]int{
				"POST:/api/v1/deep-dive": 2,
				"POST:/api/v1/bulk":      5,
			},
		},
		Sources: SourcesConfig{
			IPQuery: IPQueryConfig{
				BaseURL: "https://api.ipquery.io",
				Timeout: 30 * time.Second,
			},
			Censys: CensysConfig{
				BaseURL:  "https://api.platform.censys.io/v3/global/asset",
				TokenEnv: "CENSYS_API_TOKEN",
				OrgIDEnv: "CENSYS_ORG_ID",
				Timeout:  30 * time.Second,
			},
			SecurityTrails: SecurityTrailsConfig{
				BaseURL:   "https://api.securitytrails.com/v1",
				APIKeyEnv: "SECURITYTRAILS_API_KEY",
				Timeout:   30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "reconlens",
			Environment:    "development",
			MetricsEnabled: true,
			TracingEnabled: false,
			SamplingRate:   1.0,
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Sources.IPQuery.BaseURL == "" {
		errs = append(errs, errors.New("sources.ipquery.base_url cannot be empty"))
	}
	if c.Sources.Censys.BaseURL == "" {
		errs = append(errs, errors.New("sources.censys.base_url cannot be empty"))
	}
	if c.Sources.SecurityTrails.BaseURL == "" {
		errs = append(errs, errors.New("sources.securitytrails.base_url cannot be empty"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must be positive"))
	}
	if c.Telemetry.TracingEnabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, errors.New("telemetry.otlp_endpoint required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

// Credentials resolves provider secrets from the configured env vars.
func (c *Config) Credentials() Credentials {
	return Credentials{
		CensysToken:          lookupEnv(c.Sources.Censys.TokenEnv),
		CensysOrgID:          lookupEnv(c.Sources.Censys.OrgIDEnv),
		SecurityTrailsAPIKey: lookupEnv(c.Sources.SecurityTrails.APIKeyEnv),
		RedisPassword:        lookupEnv(c.Redis.PasswordEnv),
	}
}

// EnabledSources returns the names of upstream sources that can run with
// the given credentials.
func (c *Config) EnabledSources(creds Credentials) []string {
	sources := []string{"ipquery"}
	if creds.CensysToken != "" {
		sources = append(sources, "censys")
	}
	if creds.SecurityTrailsAPIKey != "" {
		sources = append(sources, "securitytrails")
	}
	return sources
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
