// Package config loads server configuration from a YAML file with
// PETGUILD_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PETGUILD_"

// DefaultPath is the config file read when CONFIG_PATH is unset.
const DefaultPath = "./config.yaml"

// Path returns the config file location: CONFIG_PATH, or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	RequestBurst      int           `yaml:"request_burst" env:"REQUEST_BURST"`
}

// SchedulerConfig holds background pass cadence
type SchedulerConfig struct {
	LifecycleInterval time.Duration `yaml:"lifecycle_interval" env:"LIFECYCLE_INTERVAL"`
	EconomyInterval   time.Duration `yaml:"economy_interval" env:"ECONOMY_INTERVAL"`
	RetentionInterval time.Duration `yaml:"retention_interval" env:"RETENTION_INTERVAL"`
	RetentionWindow   time.Duration `yaml:"retention_window" env:"RETENTION_WINDOW"`
	Workers           int           `yaml:"workers" env:"WORKERS"`
}

// EconomyConfig holds prices and income rates
type EconomyConfig struct {
	AdoptionCost    int64   `yaml:"adoption_cost" env:"ADOPTION_COST"`
	FoodCost        int64   `yaml:"food_cost" env:"FOOD_COST"`
	EvolutionReward int64   `yaml:"evolution_reward" env:"EVOLUTION_REWARD"`
	AccrualRate     float64 `yaml:"accrual_rate" env:"ACCRUAL_RATE"`
	BonusMin        int64   `yaml:"bonus_min" env:"BONUS_MIN"`
	BonusMax        int64   `yaml:"bonus_max" env:"BONUS_MAX"`
}

// StorageConfig holds snapshot persistence configuration
type StorageConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	Path             string        `yaml:"path" env:"PATH"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

// CacheConfig holds the Redis status cache configuration
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// HubConfig holds websocket hub configuration
type HubConfig struct {
	SendBuffer       int `yaml:"send_buffer" env:"SEND_BUFFER"`
	BroadcastBuffer  int `yaml:"broadcast_buffer" env:"BROADCAST_BUFFER"`
	ActionsPerMinute int `yaml:"actions_per_minute" env:"ACTIONS_PER_MINUTE"`
}

// Config represents the complete configuration for the pet server
type Config struct {
	// Tenants are provisioned at boot if not restored from storage.
	Tenants   []string        `yaml:"tenants" env:"TENANTS"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Economy   EconomyConfig   `yaml:"economy" envPrefix:"ECONOMY_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
	Hub       HubConfig       `yaml:"hub" envPrefix:"HUB_"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		Storage: StorageConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	setDefaults(cfg)
	return cfg
}

// Load reads path (a missing file means defaults), applies environment
// overrides, fills unset values and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.RequestsPerSecond == 0 {
		cfg.Server.RequestsPerSecond = 200
	}
	if cfg.Server.RequestBurst == 0 {
		cfg.Server.RequestBurst = 400
	}

	if cfg.Scheduler.LifecycleInterval == 0 {
		cfg.Scheduler.LifecycleInterval = 5 * time.Minute
	}
	if cfg.Scheduler.EconomyInterval == 0 {
		cfg.Scheduler.EconomyInterval = time.Minute
	}
	if cfg.Scheduler.RetentionInterval == 0 {
		cfg.Scheduler.RetentionInterval = time.Hour
	}
	if cfg.Scheduler.RetentionWindow == 0 {
		cfg.Scheduler.RetentionWindow = 7 * 24 * time.Hour
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = runtime.NumCPU()
	}

	if cfg.Economy.AdoptionCost == 0 {
		cfg.Economy.AdoptionCost = 100
	}
	if cfg.Economy.FoodCost == 0 {
		cfg.Economy.FoodCost = 50
	}
	if cfg.Economy.EvolutionReward == 0 {
		cfg.Economy.EvolutionReward = 25
	}
	if cfg.Economy.AccrualRate == 0 {
		cfg.Economy.AccrualRate = 0.125
	}
	if cfg.Economy.BonusMin == 0 {
		cfg.Economy.BonusMin = 1
	}
	if cfg.Economy.BonusMax == 0 {
		cfg.Economy.BonusMax = 3
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "petguild.db"
	}
	if cfg.Storage.SnapshotInterval == 0 {
		cfg.Storage.SnapshotInterval = 30 * time.Second
	}

	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:6379"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 15 * time.Minute
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Hub.SendBuffer == 0 {
		cfg.Hub.SendBuffer = 256
	}
	if cfg.Hub.BroadcastBuffer == 0 {
		cfg.Hub.BroadcastBuffer = 1024
	}
	if cfg.Hub.ActionsPerMinute == 0 {
		cfg.Hub.ActionsPerMinute = 60
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Scheduler.LifecycleInterval < 0 || c.Scheduler.EconomyInterval < 0 || c.Scheduler.RetentionInterval < 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.RequestBurst < 0 {
		return fmt.Errorf("server rate limits must not be negative")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Economy.AdoptionCost < 0 || c.Economy.FoodCost < 0 || c.Economy.EvolutionReward < 0 {
		return fmt.Errorf("economy costs and rewards must not be negative")
	}
	if c.Economy.AccrualRate < 0 {
		return fmt.Errorf("economy.accrual_rate must not be negative")
	}
	if c.Economy.BonusMin < 0 || c.Economy.BonusMax < c.Economy.BonusMin {
		return fmt.Errorf("economy.bonus_min must be between 0 and economy.bonus_max")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}
