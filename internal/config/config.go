// Package config provides unified configuration for the pulsekit SDK.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the SDK. Hosts normally use
// DefaultConfig and override a handful of fields before handing the
// struct to the client; file and environment loading exist for hosts
// that prefer external configuration.
type Config struct {
	// Collector endpoint configuration
	Collector CollectorConfig `json:"collector" yaml:"collector"`

	// Queue configuration for the local durable event queue
	Queue QueueConfig `json:"queue" yaml:"queue"`

	// WritablePath is the base directory for the on-disk store.
	// The store file lives under WritablePath/<gameKey>/.
	WritablePath string `json:"writable_path" yaml:"writable_path"`

	// EnableSDKInitEvent controls emission of the sdk_init event on startup
	EnableSDKInitEvent bool `json:"enable_sdk_init_event" yaml:"enable_sdk_init_event"`

	// EnableHealthEvent controls emission of the health event on session end
	EnableHealthEvent bool `json:"enable_health_event" yaml:"enable_health_event"`
}

// CollectorConfig holds the remote collector endpoint settings.
type CollectorConfig struct {
	// Protocol is the URL scheme used to reach the collector
	Protocol string `json:"protocol" yaml:"protocol"`

	// Host is the collector host name
	Host string `json:"host" yaml:"host"`

	// Version is the collector API version path segment
	Version string `json:"version" yaml:"version"`

	// RequestTimeout bounds each collector request; expiry is treated
	// as no response
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// UseGzip controls request body compression
	UseGzip bool `json:"use_gzip" yaml:"use_gzip"`
}

// QueueConfig holds the flush and storage-size policy of the local queue.
type QueueConfig struct {
	// ProcessInterval is the period of the recurring flush
	ProcessInterval time.Duration `json:"process_interval" yaml:"process_interval"`

	// MaxBatchSize caps the number of events claimed per flush
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`

	// MaxStoreSizeBytes is the hard ceiling; above it only
	// session/business-critical categories are queued
	MaxStoreSizeBytes int64 `json:"max_store_size_bytes" yaml:"max_store_size_bytes"`

	// TrimThresholdBytes is the soft threshold; above it the oldest
	// sessions are trimmed on startup
	TrimThresholdBytes int64 `json:"trim_threshold_bytes" yaml:"trim_threshold_bytes"`
}

// DefaultConfig returns the default SDK configuration.
func DefaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			Protocol:       "https",
			Host:           "collector.pulsekit.io",
			Version:        "v2",
			RequestTimeout: 10 * time.Second,
			UseGzip:        true,
		},
		Queue: QueueConfig{
			ProcessInterval:    8 * time.Second,
			MaxBatchSize:       500,
			MaxStoreSizeBytes:  6291456,
			TrimThresholdBytes: 5242880,
		},
		WritablePath:       "./data/pulsekit",
		EnableSDKInitEvent: true,
		EnableHealthEvent:  true,
	}
}

// BaseURL returns the collector base URL without a trailing slash.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s/%s", c.Collector.Protocol, c.Collector.Host, c.Collector.Version)
}

// StorePath returns the on-disk store path for the given game key.
func (c *Config) StorePath(gameKey string) string {
	return filepath.Join(c.WritablePath, gameKey, "pulsekit.sqlite3")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Collector.Protocol != "https" && c.Collector.Protocol != "http" {
		return fmt.Errorf("invalid collector protocol: %s (must be https or http)", c.Collector.Protocol)
	}
	if c.Collector.Host == "" {
		return fmt.Errorf("collector.host is required")
	}
	if c.Collector.RequestTimeout <= 0 {
		return fmt.Errorf("collector.request_timeout must be positive")
	}
	if c.Queue.ProcessInterval <= 0 {
		return fmt.Errorf("queue.process_interval must be positive")
	}
	if c.Queue.MaxBatchSize <= 0 {
		return fmt.Errorf("queue.max_batch_size must be positive")
	}
	if c.Queue.TrimThresholdBytes > c.Queue.MaxStoreSizeBytes {
		return fmt.Errorf("queue.trim_threshold_bytes (%d) must not exceed queue.max_store_size_bytes (%d)",
			c.Queue.TrimThresholdBytes, c.Queue.MaxStoreSizeBytes)
	}
	if c.WritablePath == "" {
		return fmt.Errorf("writable_path is required")
	}
	return nil
}

// EnsureDirectories creates the writable directory for the given game key.
func (c *Config) EnsureDirectories(gameKey string) error {
	dir := filepath.Dir(c.StorePath(gameKey))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file, layered on
// top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides. Variables use the
// PULSEKIT_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSEKIT_COLLECTOR_PROTOCOL"); v != "" {
		cfg.Collector.Protocol = v
	}
	if v := os.Getenv("PULSEKIT_COLLECTOR_HOST"); v != "" {
		cfg.Collector.Host = v
	}
	if v := os.Getenv("PULSEKIT_COLLECTOR_VERSION"); v != "" {
		cfg.Collector.Version = v
	}
	if v := os.Getenv("PULSEKIT_COLLECTOR_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collector.RequestTimeout = d
		}
	}
	if v := os.Getenv("PULSEKIT_COLLECTOR_USE_GZIP"); v != "" {
		cfg.Collector.UseGzip = v == "true" || v == "1"
	}
	if v := os.Getenv("PULSEKIT_QUEUE_PROCESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.ProcessInterval = d
		}
	}
	if v := os.Getenv("PULSEKIT_QUEUE_MAX_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Queue.MaxBatchSize)
	}
	if v := os.Getenv("PULSEKIT_QUEUE_MAX_STORE_SIZE_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Queue.MaxStoreSizeBytes)
	}
	if v := os.Getenv("PULSEKIT_QUEUE_TRIM_THRESHOLD_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Queue.TrimThresholdBytes)
	}
	if v := os.Getenv("PULSEKIT_WRITABLE_PATH"); v != "" {
		cfg.WritablePath = v
	}
	if v := os.Getenv("PULSEKIT_ENABLE_SDK_INIT_EVENT"); v != "" {
		cfg.EnableSDKInitEvent = v == "true" || v == "1"
	}
	if v := os.Getenv("PULSEKIT_ENABLE_HEALTH_EVENT"); v != "" {
		cfg.EnableHealthEvent = v == "true" || v == "1"
	}
}
