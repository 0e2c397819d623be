package main

import (
	"context"

	"github.com/denismitr/flowstore"
	"github.com/denismitr/flowstore/internal/config"
	"github.com/denismitr/flowstore/store"
	"github.com/denismitr/flowstore/store/dbstore"
	"github.com/denismitr/flowstore/store/redisstore"
	"github.com/sirupsen/logrus"
)

func dbConfig(cfg *config.Config, log logrus.FieldLogger) *flowstore.Config {
	dbCfg := &flowstore.Config{
		PersistenceStrategy: flowstore.PersistenceStrategy(cfg.Persistence),
		ValueLoadStrategy:   flowstore.EagerLoad,
		AutoVacuumIntervals: cfg.AutoVacuumInterval,
		MaxCacheBytes:       cfg.CacheBytes,
		Logger:              log,
	}

	if cfg.LazyLoad {
		dbCfg.ValueLoadStrategy = flowstore.LazyLoad
	}

	return dbCfg
}

// openStore opens the configured backend, the returned func releases it
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (store.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}

		log.WithField("url", cfg.RedisURL).Info("using redis backend")
		return redisstore.New(rdb, cfg.RedisPrefix), rdb.Close, nil
	case config.BackendMemory:
		db, closer, err := flowstore.Open(flowstore.InMemory, dbConfig(cfg, log))
		if err != nil {
			return nil, nil, err
		}

		log.Warn("using in-memory backend, nothing will be persisted")
		return dbstore.New(db), closer, nil
	}

	db, closer, err := flowstore.Open(cfg.DBPath, dbConfig(cfg, log))
	if err != nil {
		return nil, nil, err
	}

	log.WithFields(logrus.Fields{
		"file":    cfg.DBPath,
		"records": db.Count(),
	}).Info("database opened")

	return dbstore.New(db), closer, nil
}
