package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/songzhibin97/sentinel/events"
	"github.com/songzhibin97/sentinel/logging"
	"github.com/songzhibin97/sentinel/model"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration. Values are resolved from
// defaults, then an optional YAML file, then SENTINEL_* environment
// variables, and are validated before use.
type Config struct {
	// Server configuration
	ServerAddr      string        `yaml:"server_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`

	// Model artifacts
	ScalerPath string  `yaml:"scaler_path"`
	ModelPath  string  `yaml:"model_path"`
	Threshold  float64 `yaml:"threshold"`

	// MachineID distinguishes evaluation IDs generated by separate processes.
	MachineID uint16 `yaml:"machine_id"`

	// EventBufferSize is how many evaluation events may queue before
	// publishers wait for subscribers to catch up.
	EventBufferSize int `yaml:"event_buffer_size"`

	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig selects where final evaluation states are kept.
type StorageConfig struct {
	Backend       string        `yaml:"backend"`
	AuditCapacity int           `yaml:"audit_capacity"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ServerAddr:      ":8000",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
		ScalerPath:      "models/scaler.json",
		ModelPath:       "models/fraud_detection_model.json",
		Threshold:       model.DefaultThreshold,
		MachineID:       1,
		EventBufferSize: events.DefaultBufferSize,
		Storage: StorageConfig{
			Backend:       BackendMemory,
			AuditCapacity: 10000,
			RedisAddr:     "localhost:6379",
			RedisTTL:      24 * time.Hour,
		},
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	var errs []error
	errs = append(errs, cfg.applyEnv()...)
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) applyEnv() []error {
	var errs []error

	setString(&c.ServerAddr, "SENTINEL_SERVER_ADDR")
	setString(&c.LogLevel, "SENTINEL_LOG_LEVEL")
	setString(&c.LogFormat, "SENTINEL_LOG_FORMAT")
	setString(&c.ScalerPath, "SENTINEL_SCALER_PATH")
	setString(&c.ModelPath, "SENTINEL_MODEL_PATH")
	setString(&c.Storage.Backend, "SENTINEL_STORAGE_BACKEND")
	setString(&c.Storage.RedisAddr, "SENTINEL_REDIS_ADDR")
	setString(&c.Storage.RedisPassword, "SENTINEL_REDIS_PASSWORD")

	if err := setDuration(&c.ShutdownTimeout, "SENTINEL_SHUTDOWN_TIMEOUT"); err != nil {
		errs = append(errs, err)
	}
	if err := setDuration(&c.Storage.RedisTTL, "SENTINEL_REDIS_TTL"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.Storage.AuditCapacity, "SENTINEL_AUDIT_CAPACITY"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.Storage.RedisDB, "SENTINEL_REDIS_DB"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.EventBufferSize, "SENTINEL_EVENT_BUFFER_SIZE"); err != nil {
		errs = append(errs, err)
	}
	if value := os.Getenv("SENTINEL_THRESHOLD"); value != "" {
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SENTINEL_THRESHOLD: invalid number %q: %w", value, err))
		} else {
			c.Threshold = threshold
		}
	}
	if value := os.Getenv("SENTINEL_MACHINE_ID"); value != "" {
		id, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			errs = append(errs, fmt.Errorf("SENTINEL_MACHINE_ID: invalid machine id %q: %w", value, err))
		} else {
			c.MachineID = uint16(id)
		}
	}

	return errs
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ShutdownTimeout must be positive"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LogFormat must be text or json, got %q", c.LogFormat))
	}
	if c.ScalerPath == "" {
		errs = append(errs, fmt.Errorf("ScalerPath is required"))
	}
	if c.ModelPath == "" {
		errs = append(errs, fmt.Errorf("ModelPath is required"))
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("Threshold must be between 0 and 1, got %v", c.Threshold))
	}

	if c.EventBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("EventBufferSize must be positive, got %d", c.EventBufferSize))
	}

	switch c.Storage.Backend {
	case BackendMemory:
		if c.Storage.AuditCapacity < 0 {
			errs = append(errs, fmt.Errorf("AuditCapacity cannot be negative"))
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("RedisAddr is required for the redis backend"))
		}
		if c.Storage.RedisTTL < 0 {
			errs = append(errs, fmt.Errorf("RedisTTL cannot be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	*dst = duration
	return nil
}

func setInt(dst *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	*dst = result
	return nil
}
