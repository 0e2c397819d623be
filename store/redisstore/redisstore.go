// Package redisstore keeps owner records in Redis, one JSON value per owner
package redisstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/denismitr/flowstore/model"
	"github.com/denismitr/flowstore/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "flows:owner:"

// Client is the part of the go-redis API the store needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MSet(ctx context.Context, values ...interface{}) *redis.StatusCmd
}

type Store struct {
	rdb    Client
	prefix string

	// serializes writers of this process, redis offers no
	// isolation for the read-modify-write of one Update
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New(rdb Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Store{rdb: rdb, prefix: prefix}
}

// NewClient connects to the redis url, e.g. redis://localhost:6379/0
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis URL")
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "could not reach redis at %s", opts.Addr)
	}

	return rdb, nil
}

func (s *Store) key(ownerID string) string {
	return s.prefix + ownerID
}

func (s *Store) View(ctx context.Context, fn func(r store.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(&reader{ctx: ctx, s: s})
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	x := &tx{reader: reader{ctx: ctx, s: s}, pending: make(map[string][]byte)}
	if err := fn(x); err != nil {
		return errors.Wrap(err, "redis update failed. nothing written")
	}

	return x.commit()
}

type reader struct {
	ctx context.Context
	s   *Store
}

var _ store.RawReader = (*reader)(nil)

func (r *reader) GetRaw(ownerID string) ([]byte, bool, error) {
	b, err := r.s.rdb.Get(r.ctx, r.s.key(ownerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, errors.Wrapf(err, "redis GET of owner %s failed", ownerID)
	}

	return b, true, nil
}

func (r *reader) Get(ownerID string) (*model.OwnerRecord, bool, error) {
	raw, ok, err := r.GetRaw(ownerID)
	if err != nil || !ok {
		return nil, false, err
	}

	return decode(ownerID, raw)
}

func decode(ownerID string, raw []byte) (*model.OwnerRecord, bool, error) {
	var owner model.OwnerRecord
	if err := json.Unmarshal(raw, &owner); err != nil {
		return nil, false, errors.Wrapf(err, "could not decode owner %s", ownerID)
	}

	return &owner, true, nil
}

type tx struct {
	reader
	order   []string
	pending map[string][]byte
}

func (x *tx) Get(ownerID string) (*model.OwnerRecord, bool, error) {
	if raw, ok := x.pending[ownerID]; ok {
		return decode(ownerID, raw)
	}

	return x.reader.Get(ownerID)
}

func (x *tx) GetRaw(ownerID string) ([]byte, bool, error) {
	if raw, ok := x.pending[ownerID]; ok {
		return raw, true, nil
	}

	return x.reader.GetRaw(ownerID)
}

func (x *tx) Put(ownerID string, owner *model.OwnerRecord) error {
	if owner == nil {
		return errors.Errorf("nil record for owner %s", ownerID)
	}

	b, err := json.Marshal(owner)
	if err != nil {
		return errors.Wrapf(err, "could not encode owner %s", ownerID)
	}

	if _, ok := x.pending[ownerID]; !ok {
		x.order = append(x.order, ownerID)
	}
	x.pending[ownerID] = b

	return nil
}

func (x *tx) commit() error {
	if len(x.order) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(x.order)*2)
	for _, ownerID := range x.order {
		values = append(values, x.s.key(ownerID), x.pending[ownerID])
	}

	if err := x.s.rdb.MSet(x.ctx, values...).Err(); err != nil {
		return errors.Wrap(err, "redis MSET failed")
	}

	return nil
}
