package flowstore

import (
	"time"

	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

const defaultAutoVacuumMinSize uint64 = 1000
const defaultCacheShards = 16

const (
	minCacheBytes     uint64 = 1 << 20
	maxCacheBytes     uint64 = 256 << 20
	fallbackCacheSize uint64 = 64 << 20
)

var defaultAutovacuumIntervals = 10 * time.Minute
var defaultPersistenceIntervals = 1 * time.Second

type ValueLoadStrategy string
type PersistenceStrategy string

const (
	Async PersistenceStrategy = "async"
	Sync  PersistenceStrategy = "sync"
)

const (
	LazyLoad  ValueLoadStrategy = "lazy"
	EagerLoad ValueLoadStrategy = "eager"
)

type Config struct {
	PersistenceStrategy       PersistenceStrategy
	ValueLoadStrategy         ValueLoadStrategy
	TruncateFileWhenOpen      bool
	AsyncPersistenceIntervals time.Duration
	DisableAutoVacuum         bool
	AutoVacuumOnlyOnClose     bool
	AutoVacuumMinSize         uint64
	AutoVacuumIntervals       time.Duration

	// MaxCacheBytes bounds the lazy value cache. Ignored with EagerLoad.
	MaxCacheBytes uint64
	CacheShards   int

	Logger logrus.FieldLogger
}

func (cfg *Config) normalize() {
	if cfg.PersistenceStrategy == "" {
		cfg.PersistenceStrategy = Sync
	} else if cfg.PersistenceStrategy == Async && cfg.AsyncPersistenceIntervals == 0 {
		cfg.AsyncPersistenceIntervals = defaultPersistenceIntervals
	}

	if cfg.ValueLoadStrategy == "" {
		cfg.ValueLoadStrategy = EagerLoad
	}

	if cfg.AutoVacuumIntervals == 0 {
		cfg.AutoVacuumIntervals = defaultAutovacuumIntervals
	}

	if cfg.AutoVacuumMinSize == 0 {
		cfg.AutoVacuumMinSize = defaultAutoVacuumMinSize
	}

	if cfg.CacheShards <= 0 {
		cfg.CacheShards = defaultCacheShards
	}

	if cfg.MaxCacheBytes == 0 {
		cfg.MaxCacheBytes = defaultCacheBytes(memory.TotalMemory())
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
}

// defaultCacheBytes takes 1/64 of the system memory, clamped.
func defaultCacheBytes(total uint64) uint64 {
	if total == 0 {
		return fallbackCacheSize
	}

	size := total / 64
	if size < minCacheBytes {
		return minCacheBytes
	}

	if size > maxCacheBytes {
		return maxCacheBytes
	}

	return size
}
