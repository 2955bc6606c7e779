// Package config loads sessionctl settings from defaults, an optional YAML
// file and SESSIONS_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jmcleod/sessionstore/session"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the complete sessionctl configuration.
type Config struct {
	Backend  string         `yaml:"backend" env:"BACKEND"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envPrefix:"SQLITE_"`
	Bolt     BoltConfig     `yaml:"bolt" envPrefix:"BOLT_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Expiry   ExpiryConfig   `yaml:"expiry" envPrefix:"EXPIRY_"`
	Admin    AdminConfig    `yaml:"admin" envPrefix:"ADMIN_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// BoltConfig configures the BBolt backend.
type BoltConfig struct {
	Path    string        `yaml:"path" env:"PATH"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// ExpiryConfig holds the two independent expiry clocks and the sweep cadence.
type ExpiryConfig struct {
	MaxInactivity time.Duration `yaml:"max_inactivity" env:"MAX_INACTIVITY"`
	MaxLifeTime   time.Duration `yaml:"max_lifetime" env:"MAX_LIFETIME"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// SweepSchedule is a cron expression; when set it replaces SweepInterval.
	SweepSchedule string `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	// Token is the bearer token the admin API requires. It may be empty
	// only when Addr is a loopback address.
	Token string `yaml:"token" env:"TOKEN"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SESSIONS_"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendSQLite,
		SQLite:  SQLiteConfig{Path: "./data/sessions.db"},
		Bolt:    BoltConfig{Path: "./data/sessions.bolt", Timeout: time.Second},
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "sessions:"},
		Expiry: ExpiryConfig{
			MaxInactivity: 15 * time.Minute,
			MaxLifeTime:   7 * 24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Admin: AdminConfig{Addr: "127.0.0.1:8089"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Bolt.Path == "" {
			errs = append(errs, errors.New("bolt.path is required"))
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required"))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Expiry.MaxInactivity <= 0 {
		errs = append(errs, errors.New("expiry.max_inactivity must be positive"))
	}
	if c.Expiry.MaxLifeTime <= 0 {
		errs = append(errs, errors.New("expiry.max_lifetime must be positive"))
	}
	if c.Expiry.SweepInterval <= 0 {
		errs = append(errs, errors.New("expiry.sweep_interval must be positive"))
	}
	if c.Expiry.SweepSchedule != "" {
		if err := session.ValidateSchedule(c.Expiry.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("expiry.sweep_schedule: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
