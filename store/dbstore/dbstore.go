// Package dbstore keeps owner records in the embedded flowstore database
package dbstore

import (
	"context"
	"strings"

	"github.com/denismitr/flowstore"
	"github.com/denismitr/flowstore/model"
	"github.com/denismitr/flowstore/store"
	"github.com/pkg/errors"
)

const ownerPrefix = "owner:"

func ownerKey(ownerID string) string {
	return ownerPrefix + ownerID
}

type Store struct {
	db *flowstore.DB
}

var _ store.Store = (*Store)(nil)

func New(db *flowstore.DB) *Store {
	return &Store{db: db}
}

func (s *Store) View(ctx context.Context, fn func(r store.Reader) error) error {
	return s.db.View(ctx, func(tx *flowstore.Tx) error {
		return fn(&reader{tx: tx})
	})
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.Update(ctx, func(tx *flowstore.Tx) error {
		return fn(&writer{reader: reader{tx: tx}})
	})
}

// Owners calls fn with the stored document of every owner in id order
func (s *Store) Owners(ctx context.Context, fn func(ownerID string, doc *flowstore.Document) bool) error {
	return s.db.View(ctx, func(tx *flowstore.Tx) error {
		return tx.Scan(ownerPrefix, func(d *flowstore.Document) bool {
			return fn(strings.TrimPrefix(d.Key(), ownerPrefix), d)
		})
	})
}

type reader struct {
	tx *flowstore.Tx
}

var _ store.RawReader = (*reader)(nil)

func (r *reader) Get(ownerID string) (*model.OwnerRecord, bool, error) {
	doc, ok, err := r.document(ownerID)
	if err != nil || !ok {
		return nil, false, err
	}

	var owner model.OwnerRecord
	if err := doc.Unmarshal(&owner); err != nil {
		return nil, false, err
	}

	return &owner, true, nil
}

func (r *reader) GetRaw(ownerID string) ([]byte, bool, error) {
	doc, ok, err := r.document(ownerID)
	if err != nil || !ok {
		return nil, false, err
	}

	return doc.Value(), true, nil
}

func (r *reader) document(ownerID string) (*flowstore.Document, bool, error) {
	doc, err := r.tx.Get(ownerKey(ownerID))
	if err != nil {
		if errors.Is(err, flowstore.ErrKeyDoesNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return doc, true, nil
}

type writer struct {
	reader
}

func (w *writer) Put(ownerID string, owner *model.OwnerRecord) error {
	if owner == nil {
		return errors.Errorf("nil record for owner %s", ownerID)
	}

	return w.tx.Put(ownerKey(ownerID), owner)
}
