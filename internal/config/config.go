// Package config reads the daemon settings from FLOWS_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Addr    string
	Backend string

	DBPath      string
	Persistence string // sync or async
	LazyLoad    bool
	CacheBytes  uint64

	AutoVacuumInterval time.Duration

	RedisURL    string
	RedisPrefix string

	LogLevel  string
	LogFormat string
	LogFile   string

	ShutdownTimeout time.Duration
}

func defaults() Config {
	return Config{
		Addr:               ":8080",
		Backend:            BackendFile,
		DBPath:             "flows.db",
		Persistence:        "sync",
		AutoVacuumInterval: 10 * time.Minute,
		RedisURL:           "redis://localhost:6379/0",
		LogLevel:           "info",
		LogFormat:          "text",
		ShutdownTimeout:    10 * time.Second,
	}
}

// Load reads envFiles into the process environment, without overriding
// variables that are already set, then builds the config from it.
// Missing env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrapf(err, "could not load env file %s", f)
		}
	}

	return FromEnv(os.LookupEnv)
}

// FromEnv builds the config from lookup, e.g. os.LookupEnv
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaults()

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str("FLOWS_ADDR", &cfg.Addr)
	str("FLOWS_BACKEND", &cfg.Backend)
	str("FLOWS_DB_PATH", &cfg.DBPath)
	str("FLOWS_PERSISTENCE", &cfg.Persistence)
	str("FLOWS_REDIS_URL", &cfg.RedisURL)
	str("FLOWS_REDIS_PREFIX", &cfg.RedisPrefix)
	str("FLOWS_LOG_LEVEL", &cfg.LogLevel)
	str("FLOWS_LOG_FORMAT", &cfg.LogFormat)
	str("FLOWS_LOG_FILE", &cfg.LogFile)

	if v, ok := lookup("FLOWS_LAZY_LOAD"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "FLOWS_LAZY_LOAD: %s", err.Error())
		}
		cfg.LazyLoad = b
	}

	if v, ok := lookup("FLOWS_CACHE_BYTES"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "FLOWS_CACHE_BYTES: %s", err.Error())
		}
		cfg.CacheBytes = n
	}

	durations := map[string]*time.Duration{
		"FLOWS_AUTOVACUUM_INTERVAL": &cfg.AutoVacuumInterval,
		"FLOWS_SHUTDOWN_TIMEOUT":    &cfg.ShutdownTimeout,
	}

	for name, dst := range durations {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidConfig, "%s: %s", name, err.Error())
			}
			*dst = d
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.DBPath == "" {
			return errors.Wrap(ErrInvalidConfig, "db path is required for the file backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.Wrap(ErrInvalidConfig, "redis url is required for the redis backend")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown backend %q", c.Backend)
	}

	if c.Persistence != "sync" && c.Persistence != "async" {
		return errors.Wrapf(ErrInvalidConfig, "persistence must be sync or async, got %q", c.Persistence)
	}

	if c.AutoVacuumInterval <= 0 || c.ShutdownTimeout <= 0 {
		return errors.Wrap(ErrInvalidConfig, "intervals must be positive")
	}

	return nil
}
