// Package config handles loading, validating, and applying defaults to the
// relay configuration. Configuration is read from a YAML file and may be
// overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that implements
// yaml.Unmarshaler so that Go-style duration strings (e.g. "30s", "5m")
// can be used in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a YAML scalar as a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML serialises the duration back to a human-readable string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config is the top-level configuration for the relay service.
type Config struct {
	App       AppConfig       `yaml:"app"`
	API       APIConfig       `yaml:"api"`
	Store     StoreConfig     `yaml:"store"`
	Broker    BrokerConfig    `yaml:"broker"`
	Retry     RetryConfig     `yaml:"retry"`
	Worker    WorkerConfig    `yaml:"worker"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Retention RetentionConfig `yaml:"retention"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Health    HealthConfig    `yaml:"health"`
	Vendors   []VendorConfig  `yaml:"vendors"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// APIConfig controls the public HTTP API.
type APIConfig struct {
	Port           int      `yaml:"port"`
	RequestTimeout Duration `yaml:"requestTimeout"`
}

// StoreConfig controls the SQLite-backed notification store.
type StoreConfig struct {
	DBPath string `yaml:"dbPath"`
}

// BrokerConfig controls the Redis-backed work queue.
type BrokerConfig struct {
	Addr              string   `yaml:"addr"`
	Password          string   `yaml:"password"`
	DB                int      `yaml:"db"`
	PoolSize          int      `yaml:"poolSize"`
	DialTimeout       Duration `yaml:"dialTimeout"`
	ReadTimeout       Duration `yaml:"readTimeout"`
	WriteTimeout      Duration `yaml:"writeTimeout"`
	Queue             string   `yaml:"queue"`
	VisibilityTimeout Duration `yaml:"visibilityTimeout"`
	PromoteInterval   Duration `yaml:"promoteInterval"`
}

// RetryConfig controls the exponential-backoff schedule applied to failed
// deliveries.
type RetryConfig struct {
	MaxRetryCount int      `yaml:"maxRetryCount"`
	InitialDelay  Duration `yaml:"initialDelay"`
	MaxDelay      Duration `yaml:"maxDelay"`
	Multiplier    float64  `yaml:"multiplier"`
	Jitter        float64  `yaml:"jitter"`
}

// WorkerConfig controls the delivery worker pool.
type WorkerConfig struct {
	Concurrency int      `yaml:"concurrency"`
	PollTimeout Duration `yaml:"pollTimeout"`
	HTTPTimeout Duration `yaml:"httpTimeout"`
}

// SweeperConfig controls the periodic safety-net scan for due notifications
// that never reached the broker.
type SweeperConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Interval  Duration `yaml:"interval"`
	OnStartup bool     `yaml:"onStartup"`
}

// RetentionConfig controls terminal-record cleanup.
type RetentionConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanupInterval"`
	RetentionPeriod Duration `yaml:"retentionPeriod"`
}

// StorageConfig controls volume and queue-depth monitoring.
type StorageConfig struct {
	MonitorInterval   Duration `yaml:"monitorInterval"`
	VolumePath        string   `yaml:"volumePath"`
	WarningThreshold  float64  `yaml:"warningThreshold"`
	CriticalThreshold float64  `yaml:"criticalThreshold"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health/readiness probe endpoints.
type HealthConfig struct {
	LivenessPath  string `yaml:"livenessPath"`
	ReadinessPath string `yaml:"readinessPath"`
	Port          int    `yaml:"port"`
}

// VendorConfig supplies per-vendor adapter configuration, such as signing
// secrets or vendor-specific headers, keyed by vendor name.
type VendorConfig struct {
	Name          string            `yaml:"name"`
	SigningSecret string            `yaml:"signingSecret"`
	Headers       map[string]string `yaml:"headers"`
}

// Load reads the YAML configuration file at path, applies defaults, applies
// environment-variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "json"
	}

	if c.API.Port == 0 {
		c.API.Port = 8081
	}
	if c.API.RequestTimeout.Duration == 0 {
		c.API.RequestTimeout.Duration = 10 * time.Second
	}

	if c.Broker.Addr == "" {
		c.Broker.Addr = "localhost:6379"
	}
	if c.Broker.PoolSize == 0 {
		c.Broker.PoolSize = 10
	}
	if c.Broker.DialTimeout.Duration == 0 {
		c.Broker.DialTimeout.Duration = 5 * time.Second
	}
	if c.Broker.ReadTimeout.Duration == 0 {
		c.Broker.ReadTimeout.Duration = 3 * time.Second
	}
	if c.Broker.WriteTimeout.Duration == 0 {
		c.Broker.WriteTimeout.Duration = 3 * time.Second
	}
	if c.Broker.Queue == "" {
		c.Broker.Queue = "default"
	}
	if c.Broker.VisibilityTimeout.Duration == 0 {
		c.Broker.VisibilityTimeout.Duration = 30 * time.Second
	}
	if c.Broker.PromoteInterval.Duration == 0 {
		c.Broker.PromoteInterval.Duration = time.Second
	}

	// Retry defaults per spec: 5 retries, 1s initial delay, 1h cap.
	if c.Retry.MaxRetryCount == 0 {
		c.Retry.MaxRetryCount = 5
	}
	if c.Retry.InitialDelay.Duration == 0 {
		c.Retry.InitialDelay.Duration = time.Second
	}
	if c.Retry.MaxDelay.Duration == 0 {
		c.Retry.MaxDelay.Duration = time.Hour
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = 0.2
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 5
	}
	if c.Worker.PollTimeout.Duration == 0 {
		c.Worker.PollTimeout.Duration = 5 * time.Second
	}
	if c.Worker.HTTPTimeout.Duration == 0 {
		c.Worker.HTTPTimeout.Duration = 30 * time.Second
	}

	if c.Sweeper.Interval.Duration == 0 {
		c.Sweeper.Enabled = true
		c.Sweeper.OnStartup = true
		c.Sweeper.Interval.Duration = time.Minute
	}

	if c.Retention.CleanupInterval.Duration == 0 {
		c.Retention.Enabled = true
		c.Retention.CleanupInterval.Duration = time.Hour
		c.Retention.RetentionPeriod.Duration = 30 * 24 * time.Hour
	} else if c.Retention.RetentionPeriod.Duration == 0 {
		c.Retention.RetentionPeriod.Duration = 30 * 24 * time.Hour
	}

	if c.Storage.MonitorInterval.Duration == 0 {
		c.Storage.MonitorInterval.Duration = time.Minute
	}
	if c.Storage.VolumePath == "" {
		c.Storage.VolumePath = "/data"
	}
	if c.Storage.WarningThreshold == 0 {
		c.Storage.WarningThreshold = 80
	}
	if c.Storage.CriticalThreshold == 0 {
		c.Storage.CriticalThreshold = 95
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Enabled = true
		c.Metrics.Port = 9090
		c.Metrics.Path = "/metrics"
	} else if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Health.LivenessPath == "" {
		c.Health.LivenessPath = "/healthz"
	}
	if c.Health.ReadinessPath == "" {
		c.Health.ReadinessPath = "/ready"
	}
	if c.Health.Port == 0 {
		c.Health.Port = c.Metrics.Port
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. A non-empty environment value replaces whatever the config
// file set for the same field.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		c.Broker.Addr = v
	}
	if v := os.Getenv("RELAY_REDIS_PASSWORD"); v != "" {
		c.Broker.Password = v
	}
}

// validate checks that all required fields are populated and that enum
// values are within the allowed set.
func (c *Config) validate() error {
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.logLevel must be one of: debug, info, warn, error; got %q", c.App.LogLevel)
	}

	switch c.App.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("app.logFormat must be one of: json, text; got %q", c.App.LogFormat)
	}

	if c.Retry.MaxRetryCount < 0 {
		return fmt.Errorf("retry.maxRetryCount must be >= 0")
	}
	if c.Retry.InitialDelay.Duration <= 0 {
		return fmt.Errorf("retry.initialDelay must be positive")
	}
	if c.Retry.MaxDelay.Duration < c.Retry.InitialDelay.Duration {
		return fmt.Errorf("retry.maxDelay must be >= retry.initialDelay")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be between 0 and 1")
	}

	if c.Broker.Addr == "" {
		return fmt.Errorf("broker.addr is required")
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.dbPath is required")
	}

	return nil
}
