// Package config handles YAML configuration loading with environment variable
// expansion and FEEDCACHE_* overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"go.yaml.in/yaml/v3"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreS3     = "s3"
)

// Config is the top-level feed cache configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Remote    RemoteConfig    `yaml:"remote"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"FEEDCACHE_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AdminKeys guard refresh, validate, and delete. Empty leaves them open.
	AdminKeys []string `yaml:"admin_keys" env:"FEEDCACHE_ADMIN_KEYS" envSeparator:","`
	// RefreshPerMinute throttles POST /v1/feed/refresh. 0 = unlimited.
	RefreshPerMinute int64 `yaml:"refresh_per_minute" env:"FEEDCACHE_REFRESH_PER_MINUTE"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Kind string   `yaml:"kind" env:"FEEDCACHE_STORE_KIND"` // file, sqlite, memory, s3
	Path string   `yaml:"path" env:"FEEDCACHE_STORE_PATH"` // file
	DSN  string   `yaml:"dsn"  env:"FEEDCACHE_STORE_DSN"`  // sqlite: file path or ":memory:"
	S3   S3Config `yaml:"s3"`
}

// S3Config locates the snapshot object.
type S3Config struct {
	Bucket   string        `yaml:"bucket"   env:"FEEDCACHE_S3_BUCKET"`
	Key      string        `yaml:"key"      env:"FEEDCACHE_S3_KEY"`
	Region   string        `yaml:"region"   env:"FEEDCACHE_S3_REGION"`
	Endpoint string        `yaml:"endpoint" env:"FEEDCACHE_S3_ENDPOINT"` // S3-compatible servers
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig holds the freshness policy.
type CacheConfig struct {
	MaxAgeDays       int           `yaml:"max_age_days"      env:"FEEDCACHE_MAX_AGE_DAYS"`
	Timezone         string        `yaml:"timezone"          env:"FEEDCACHE_TIMEZONE"` // IANA name for calendar arithmetic
	ValidateInterval time.Duration `yaml:"validate_interval" env:"FEEDCACHE_VALIDATE_INTERVAL"`
}

// RemoteConfig configures the feed API client. An empty URL disables
// remote fetching; the service then only serves what is cached.
type RemoteConfig struct {
	URL             string        `yaml:"url"              env:"FEEDCACHE_REMOTE_URL"`
	Timeout         time.Duration `yaml:"timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"FEEDCACHE_REFRESH_INTERVAL"` // 0 = no background refresh
	DNSCache        bool          `yaml:"dns_cache"`
	DNSRefresh      time.Duration `yaml:"dns_refresh"`
	Auth            AuthConfig    `yaml:"auth"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// AuthConfig configures authentication against the feed API.
type AuthConfig struct {
	Kind         string   `yaml:"kind"          env:"FEEDCACHE_REMOTE_AUTH_KIND"` // "", api_key, oauth2, gcp, aws_sigv4
	APIKey       string   `yaml:"api_key"       env:"FEEDCACHE_REMOTE_API_KEY"`
	Header       string   `yaml:"header"`
	Prefix       string   `yaml:"prefix"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"     env:"FEEDCACHE_REMOTE_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"FEEDCACHE_REMOTE_CLIENT_SECRET"`
	Scopes       []string `yaml:"scopes"`
	Region       string   `yaml:"region"`
	Service      string   `yaml:"service"`
}

// BreakerConfig tunes the circuit breaker around remote fetches.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"FEEDCACHE_METRICS_ENABLED"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"     env:"FEEDCACHE_TRACING_ENABLED"`
	Endpoint   string  `yaml:"endpoint"    env:"FEEDCACHE_TRACING_ENDPOINT"` // OTLP gRPC endpoint
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"  env:"FEEDCACHE_LOG_LEVEL"`  // debug, info, warn, error
	Format string `yaml:"format" env:"FEEDCACHE_LOG_FORMAT"` // json, text
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when a key is absent.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8080",
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			RefreshPerMinute: 6,
		},
		Store: StoreConfig{
			Kind: StoreFile,
			Path: "feed-store.json",
			DSN:  "feedcache.db",
			S3:   S3Config{Key: "feed/snapshot.json", Timeout: 30 * time.Second},
		},
		Cache: CacheConfig{
			MaxAgeDays:       7,
			Timezone:         "UTC",
			ValidateInterval: time.Hour,
		},
		Remote: RemoteConfig{
			Timeout:    10 * time.Second,
			DNSCache:   true,
			DNSRefresh: 5 * time.Minute,
			Breaker: BreakerConfig{
				Enabled:        true,
				ErrorThreshold: 0.5,
				MinSamples:     3,
				OpenTimeout:    30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{SampleRate: 1.0},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads and parses a YAML config file, expanding ${VAR} references,
// then applies FEEDCACHE_* environment overrides and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Kind {
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file store"))
		}
	case StoreSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the sqlite store"))
		}
	case StoreS3:
		if c.Store.S3.Bucket == "" || c.Store.S3.Key == "" {
			errs = append(errs, errors.New("store.s3.bucket and store.s3.key are required for the s3 store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not one of file, sqlite, memory, s3", c.Store.Kind))
	}

	if c.Server.RefreshPerMinute < 0 {
		errs = append(errs, errors.New("server.refresh_per_minute must not be negative"))
	}

	if c.Cache.MaxAgeDays < 1 {
		errs = append(errs, fmt.Errorf("cache.max_age_days must be at least 1, got %d", c.Cache.MaxAgeDays))
	}
	if _, err := time.LoadLocation(c.Cache.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("cache.timezone: %w", err))
	}
	if c.Cache.ValidateInterval < 0 {
		errs = append(errs, errors.New("cache.validate_interval must not be negative"))
	}

	if c.Remote.RefreshInterval < 0 {
		errs = append(errs, errors.New("remote.refresh_interval must not be negative"))
	}
	if c.Remote.RefreshInterval > 0 && c.Remote.URL == "" {
		errs = append(errs, errors.New("remote.refresh_interval requires remote.url"))
	}
	if b := c.Remote.Breaker; b.Enabled && (b.ErrorThreshold <= 0 || b.ErrorThreshold > 1) {
		errs = append(errs, fmt.Errorf("remote.breaker.error_threshold must be in (0, 1], got %v", b.ErrorThreshold))
	}

	if r := c.Telemetry.Tracing.SampleRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.tracing.sample_rate must be in [0, 1], got %v", r))
	}
	if c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.tracing.endpoint is required when tracing is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the configured cache timezone. Validate has already
// checked that it loads.
func (c CacheConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
