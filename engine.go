package flowstore

import (
	"context"
	"sync"
	"time"

	"github.com/denismitr/flowstore/internal/lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/btree"
)

var ErrDatabaseAlreadyClosed = errors.New("database already closed")

const castPanic = "how could primary keys item not be of type *entry"

type valueCache interface {
	Add(key uint64, value []byte) bool
	Get(key uint64) ([]byte, bool)
	Remove(key uint64)
	Purge()
}

type entryIterator func(ent *entry) bool

type engine struct {
	dbFile      string
	cfg         *Config
	persistence *persistence
	pks         *btree.BTree
	cache       valueCache
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	staleWrites uint64
	closed      bool
}

func newEngine(dbFile string, cfg *Config) (*engine, error) {
	e := &engine{
		dbFile: dbFile,
		pks:    btree.NewNonConcurrent(byPrimaryKeys),
		stopCh: make(chan struct{}),
		cfg:    cfg,
		cache:  lru.NullCache{},
	}

	if e.lazy() {
		c, err := lru.New(cfg.CacheShards, cfg.MaxCacheBytes)
		if err != nil {
			return nil, errors.Wrap(err, "could not create value cache")
		}
		e.cache = c
	}

	return e, nil
}

func (e *engine) inMemory() bool {
	return e.dbFile == InMemory
}

// lazy values are kept on disk and only cached by position
func (e *engine) lazy() bool {
	return !e.inMemory() && e.cfg.ValueLoadStrategy == LazyLoad
}

func (e *engine) init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inMemory() {
		return nil
	}

	p, err := newPersistence(e.dbFile, e.cfg.PersistenceStrategy, e.cfg.TruncateFileWhenOpen)
	if err != nil {
		return err
	}
	e.persistence = p

	if err := e.persistence.load(e.replayUnderLock); err != nil {
		_ = p.close()
		return err
	}

	if e.cfg.PersistenceStrategy == Async {
		e.wg.Add(1)
		go e.asyncFlush(e.cfg.AsyncPersistenceIntervals)
	}

	if !e.cfg.DisableAutoVacuum && !e.cfg.AutoVacuumOnlyOnClose {
		e.wg.Add(1)
		go e.scheduleVacuum(e.cfg.AutoVacuumIntervals)
	}

	return nil
}

func (e *engine) replayUnderLock(ent *entry) error {
	if e.lazy() {
		ent.value = nil
	}

	if existing := e.pks.Set(ent); existing != nil {
		e.staleWrites++
	}

	return nil
}

func (e *engine) asyncFlush(d time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			if err := e.persistence.sync(); err != nil {
				e.cfg.Logger.WithError(err).Error("async flush failed")
			}
		}
	}
}

func (e *engine) scheduleVacuum(d time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			e.mu.Lock()
			if e.staleWrites < e.cfg.AutoVacuumMinSize {
				e.mu.Unlock()
				continue
			}

			if err := e.vacuumUnderLock(); err != nil {
				e.cfg.Logger.WithError(err).WithField("file", e.dbFile).Error("auto vacuum failed")
			}
			e.mu.Unlock()
		}
	}
}

func (e *engine) vacuum() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrDatabaseAlreadyClosed
	}

	return e.vacuumUnderLock()
}

// vacuumUnderLock rewrites the file so that it holds exactly one set command per live key
func (e *engine) vacuumUnderLock() error {
	if e.persistence == nil {
		return nil
	}

	rs := &respSerializer{}
	var ents []*entry
	var positions []position
	var err error

	e.pks.Ascend(nil, func(i interface{}) bool {
		ent := mustEntry(i)
		v, vErr := e.valueOfUnderLock(ent)
		if vErr != nil {
			err = vErr
			return false
		}

		ents = append(ents, ent)
		positions = append(positions, rs.serializeSetCommand(ent.key.String(), v))
		return true
	})

	if err != nil {
		return errors.Wrap(err, "vacuum could not collect values")
	}

	if err := e.persistence.writeAndSwap(rs); err != nil {
		return err
	}

	for i, ent := range ents {
		ent.pos = positions[i]
	}

	e.cache.Purge()
	e.staleWrites = 0

	e.cfg.Logger.WithFields(logrus.Fields{
		"file":    e.dbFile,
		"records": len(ents),
		"bytes":   rs.len(),
	}).Debug("vacuum complete")

	return nil
}

func (e *engine) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrDatabaseAlreadyClosed
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()

	e.mu.Lock()
	defer func() {
		e.pks = nil
		e.persistence = nil
		e.cache.Purge()
		e.mu.Unlock()
	}()

	if e.persistence == nil {
		return nil
	}

	var vacuumErr error
	if !e.cfg.DisableAutoVacuum && e.staleWrites > 0 {
		vacuumErr = e.vacuumUnderLock()
	}

	if err := e.persistence.close(); err != nil {
		return err
	}

	return vacuumErr
}

func (e *engine) get(key string) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, false, ErrDatabaseAlreadyClosed
	}

	found := e.pks.Get(keyEntry(key))
	if found == nil {
		return nil, false, nil
	}

	v, err := e.valueOfUnderLock(mustEntry(found))
	if err != nil {
		return nil, false, err
	}

	return v, true, nil
}

func (e *engine) has(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return !e.closed && e.pks.Get(keyEntry(key)) != nil
}

func (e *engine) valueOfUnderLock(ent *entry) ([]byte, error) {
	if !e.lazy() {
		return ent.value, nil
	}

	if v, ok := e.cache.Get(ent.pos.offset); ok {
		return v, nil
	}

	v, err := e.persistence.readAt(ent.pos)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load value of key %s", ent.key.String())
	}

	e.cache.Add(ent.pos.offset, v)
	return v, nil
}

// commit persists the writes in one append and only then makes them visible
func (e *engine) commit(writes []write) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrDatabaseAlreadyClosed
	}

	var positions []position
	if e.persistence != nil {
		rs := &respSerializer{pos: e.persistence.offset()}
		positions = make([]position, len(writes))
		for i, w := range writes {
			positions[i] = rs.serializeSetCommand(w.key, w.value)
		}

		if err := e.persistence.write(rs); err != nil {
			return err
		}
	}

	for i, w := range writes {
		ent := newEntry(w.key, w.value)
		if positions != nil {
			ent.pos = positions[i]
		}

		if e.lazy() {
			ent.value = nil
			e.cache.Add(ent.pos.offset, w.value)
		}

		if existing := e.pks.Set(ent); existing != nil {
			e.staleWrites++
			if e.lazy() {
				e.cache.Remove(mustEntry(existing).pos.offset)
			}
		}
	}

	return nil
}

func (e *engine) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0
	}

	return e.pks.Len()
}

// scanPrefix walks keys starting with prefix in ascending order.
// prefix is expected to end on a segment boundary, e.g. `owner:`
func (e *engine) scanPrefix(ctx context.Context, prefix string, ir entryIterator) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrDatabaseAlreadyClosed
	}

	var err error
	e.pks.Ascend(keyEntry(prefix), func(i interface{}) bool {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return false
		}

		ent := mustEntry(i)
		if !ent.key.HasPrefix(prefix) {
			return false
		}

		return ir(ent)
	})

	return err
}

func mustEntry(i interface{}) *entry {
	ent, ok := i.(*entry)
	if !ok {
		panic(castPanic)
	}
	return ent
}
