// Package query serves read only lookups of owners and their apps
package query

import (
	"context"
	"encoding/json"

	"github.com/denismitr/flowstore/model"
	"github.com/denismitr/flowstore/store"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

type Handler struct {
	s store.Store
}

func NewHandler(s store.Store) *Handler {
	return &Handler{s: s}
}

// Owner fails with store.ErrOwnerNotFound when there is no such owner
func (h *Handler) Owner(ctx context.Context, ownerID string) (*model.OwnerRecord, error) {
	var owner *model.OwnerRecord
	err := h.s.View(ctx, func(r store.Reader) error {
		var err error
		owner, err = store.MustGet(r, ownerID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return owner, nil
}

// App returns the first app with the given id. A missing owner
// is reported the same way as a missing app.
func (h *Handler) App(ctx context.Context, ownerID, appID string) (*model.AppRecord, bool, error) {
	var app *model.AppRecord
	err := h.s.View(ctx, func(r store.Reader) error {
		if rr, ok := r.(store.RawReader); ok {
			raw, found, err := rr.GetRaw(ownerID)
			if err != nil || !found {
				return err
			}

			app, err = findRawApp(raw, appID)
			return err
		}

		owner, found, err := r.Get(ownerID)
		if err != nil || !found {
			return err
		}

		if a, ok := owner.FindApp(appID); ok {
			app = a
		}

		return nil
	})

	if err != nil {
		return nil, false, err
	}

	return app, app != nil, nil
}

// findRawApp decodes only the first matching app of a serialized owner
func findRawApp(raw []byte, appID string) (*model.AppRecord, error) {
	var match *gjson.Result
	gjson.GetBytes(raw, "apps").ForEach(func(_, value gjson.Result) bool {
		if value.Get("app_id").String() == appID {
			match = &value
			return false
		}
		return true
	})

	if match == nil {
		return nil, nil
	}

	var app model.AppRecord
	if err := json.Unmarshal([]byte(match.Raw), &app); err != nil {
		return nil, errors.Wrapf(err, "could not decode app %s", appID)
	}

	return &app, nil
}
