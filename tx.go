package flowstore

import (
	"context"

	"github.com/pkg/errors"
)

var ErrKeyDoesNotExist = errors.New("key does not exist in DB")
var ErrTxIsReadOnly = errors.New("transaction is read only")
var ErrTxAlreadyDone = errors.New("transaction already committed or rolled back")

// Tx buffers its writes, they become visible to other transactions
// only after a successful commit.
type Tx struct {
	e        *engine
	ctx      context.Context
	readOnly bool
	done     bool
	writes   []write
	index    map[string]int
}

func (x *Tx) Get(key string) (*Document, error) {
	if err := x.ctx.Err(); err != nil {
		return nil, err
	}

	if i, ok := x.index[key]; ok {
		return newDocument(key, x.writes[i].value), nil
	}

	v, ok, err := x.e.get(key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.Wrapf(ErrKeyDoesNotExist, "%s", key)
	}

	return newDocument(key, v), nil
}

func (x *Tx) Has(key string) (bool, error) {
	if err := x.ctx.Err(); err != nil {
		return false, err
	}

	if _, ok := x.index[key]; ok {
		return true, nil
	}

	return x.e.has(key), nil
}

// Put creates or replaces the value under key.
// data can be []byte, string or anything json can marshal.
func (x *Tx) Put(key string, data interface{}) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	if x.done {
		return ErrTxAlreadyDone
	}

	if err := x.ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return errors.Wrap(ErrInvalidKey, "key cannot be empty")
	}

	v, err := serializeToValue(data)
	if err != nil {
		return err
	}

	if x.index == nil {
		x.index = make(map[string]int)
	}

	if i, ok := x.index[key]; ok {
		x.writes[i].value = v
		return nil
	}

	x.index[key] = len(x.writes)
	x.writes = append(x.writes, write{key: key, value: v})

	return nil
}

// Scan calls fn for every committed document whose key starts with prefix,
// in key order. Pending writes of this transaction are not visited.
func (x *Tx) Scan(prefix string, fn func(d *Document) bool) error {
	var err error
	scanErr := x.e.scanPrefix(x.ctx, prefix, func(ent *entry) bool {
		v, vErr := x.e.valueOfUnderLock(ent)
		if vErr != nil {
			err = vErr
			return false
		}

		return fn(newDocument(ent.key.String(), v))
	})

	if scanErr != nil {
		return scanErr
	}

	return err
}

func (x *Tx) Count() int {
	return x.e.count()
}

func (x *Tx) Commit() error {
	if x.done {
		return ErrTxAlreadyDone
	}

	x.done = true
	if x.readOnly || len(x.writes) == 0 {
		return nil
	}

	return x.e.commit(x.writes)
}

func (x *Tx) Rollback() error {
	if x.done {
		return ErrTxAlreadyDone
	}

	x.done = true
	x.writes = nil
	x.index = nil
	return nil
}
