package flowstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// InMemory opens a database that never touches the disk
const InMemory = ":memory:"

var ErrInvalidKey = errors.New("invalid key")

type DB struct {
	e      *engine
	mu     sync.RWMutex
	closed bool
}

type UserCallback func(tx *Tx) error

type Closer func() error

func NullCloser() error { return nil }

func Open(path string, cfgs ...*Config) (*DB, Closer, error) {
	cfg := &Config{}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cp := *cfgs[0]
		cfg = &cp
	}
	cfg.normalize()

	e, err := newEngine(path, cfg)
	if err != nil {
		return nil, NullCloser, err
	}

	if err := e.init(); err != nil {
		return nil, NullCloser, err
	}

	db := &DB{e: e}

	return db, db.close, nil
}

func (db *DB) close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	db.closed = true
	return db.e.close()
}

func (db *DB) begin(ctx context.Context, readOnly bool) (*Tx, error) {
	if db.closed {
		return nil, ErrDatabaseAlreadyClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Tx{e: db.e, ctx: ctx, readOnly: readOnly}, nil
}

func (db *DB) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return 0
	}

	return db.e.count()
}

// Vacuum compacts the database file down to the live records
func (db *DB) Vacuum() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	return db.e.vacuum()
}

func (db *DB) View(ctx context.Context, cb UserCallback) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tx, err := db.begin(ctx, true)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(err, rbErr.Error())
		}

		return errors.Wrap(err, "db read failed")
	}

	return tx.Commit()
}

// Update runs cb in an exclusive read-write transaction.
// Nothing cb wrote is kept when it returns an error.
func (db *DB) Update(ctx context.Context, cb UserCallback) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.begin(ctx, false)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(err, rbErr.Error())
		}

		return errors.Wrap(err, "db write failed. rolled back")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "db commit failed")
	}

	return nil
}

func serializeToValue(d interface{}) ([]byte, error) {
	switch typedValue := d.(type) {
	case []byte:
		cp := make([]byte, len(typedValue))
		copy(cp, typedValue)
		return cp, nil
	case string:
		return []byte(typedValue), nil
	case json.RawMessage:
		cp := make([]byte, len(typedValue))
		copy(cp, typedValue)
		return cp, nil
	}

	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrapf(err, "could not marshal data %+v value", d)
	}

	return b, nil
}
