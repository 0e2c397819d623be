// Package store describes the keyed owner store the command and query
// handlers work against. Backends live in the sub packages.
package store

import (
	"context"

	"github.com/denismitr/flowstore/model"
	"github.com/pkg/errors"
)

var ErrOwnerNotFound = errors.New("owner not found")

// Reader gives read access to owner records
type Reader interface {
	// Get returns false when there is no record for ownerID
	Get(ownerID string) (*model.OwnerRecord, bool, error)
}

// RawReader is implemented by readers that can hand out
// the serialized record without decoding it.
type RawReader interface {
	GetRaw(ownerID string) ([]byte, bool, error)
}

// Tx is a read-write view. Puts become visible to others
// only when the surrounding Update succeeds.
type Tx interface {
	Reader
	Put(ownerID string, owner *model.OwnerRecord) error
}

type Store interface {
	View(ctx context.Context, fn func(r Reader) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// MustGet is Get that treats a missing record as ErrOwnerNotFound
func MustGet(r Reader, ownerID string) (*model.OwnerRecord, error) {
	owner, ok, err := r.Get(ownerID)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.Wrapf(ErrOwnerNotFound, "owner %s", ownerID)
	}

	return owner, nil
}
