// Package command applies the mutating operations on owner records.
// Every operation loads one owner, changes it in memory and stores
// the whole record back inside a single store update.
package command

import (
	"context"

	"github.com/denismitr/flowstore/model"
	"github.com/denismitr/flowstore/store"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	s   store.Store
	log logrus.FieldLogger
}

func NewHandler(s store.Store, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Handler{s: s, log: log}
}

// CreateUser stores an owner without apps. An existing record is replaced
// and its apps are lost.
func (h *Handler) CreateUser(ctx context.Context, ownerID string) error {
	return h.s.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put(ownerID, model.NewOwner(ownerID)); err != nil {
			return err
		}

		h.log.WithField("owner_id", ownerID).Debug("owner created")
		return nil
	})
}

// CreateApp appends an app with default contents. The owner must exist.
func (h *Handler) CreateApp(ctx context.Context, ownerID, appID, name, description string) error {
	return h.s.Update(ctx, func(tx store.Tx) error {
		owner, err := store.MustGet(tx, ownerID)
		if err != nil {
			return err
		}

		owner.AddApp(model.NewApp(appID, name, description))
		if err := tx.Put(ownerID, owner); err != nil {
			return err
		}

		h.log.WithFields(logrus.Fields{
			"owner_id": ownerID,
			"app_id":   appID,
			"apps":     len(owner.Apps),
		}).Debug("app created")

		return nil
	})
}

func (h *Handler) UpdateFlowGraph(ctx context.Context, ownerID, appID, flowGraph string) error {
	return h.updateApps(ctx, UpdateFlowGraphName, ownerID, appID, func(app *model.AppRecord) error {
		app.FlowGraph = flowGraph
		return nil
	})
}

func (h *Handler) UpdateSandbox(ctx context.Context, ownerID, appID string, sandbox model.SandboxInfo) error {
	return h.updateApps(ctx, UpdateSandboxName, ownerID, appID, func(app *model.AppRecord) error {
		app.Sandbox = sandbox
		return nil
	})
}

// UpdateNodes replaces the whole node list of every matching app
func (h *Handler) UpdateNodes(ctx context.Context, ownerID, appID string, nodes []model.NodeRecord) error {
	return h.updateApps(ctx, UpdateNodesName, ownerID, appID, func(app *model.AppRecord) error {
		cp := []model.NodeRecord{}
		if len(nodes) > 0 {
			if err := copier.CopyWithOption(&cp, &nodes, copier.Option{DeepCopy: true}); err != nil {
				return errors.Wrap(err, "could not copy nodes")
			}
		}

		app.Nodes = cp
		return nil
	})
}

func (h *Handler) UpdateDeployedAPI(ctx context.Context, ownerID, appID string, api model.DeployedAPI) error {
	return h.updateApps(ctx, UpdateDeployedAPIName, ownerID, appID, func(app *model.AppRecord) error {
		cp := model.DeployedAPI{Name: api.Name, Functions: []model.APIFunctionDescriptor{}}
		if len(api.Functions) > 0 {
			if err := copier.CopyWithOption(&cp.Functions, &api.Functions, copier.Option{DeepCopy: true}); err != nil {
				return errors.Wrap(err, "could not copy deployed api functions")
			}
		}

		app.DeployedAPI = cp
		return nil
	})
}

func (h *Handler) UpdateIsPublic(ctx context.Context, ownerID, appID string, isPublic bool) error {
	return h.updateApps(ctx, UpdateIsPublicName, ownerID, appID, func(app *model.AppRecord) error {
		app.IsPublic = isPublic
		return nil
	})
}

// updateApps applies fn to every app matching appID. Without a match
// the record stays as it is and nothing is written.
func (h *Handler) updateApps(
	ctx context.Context,
	op, ownerID, appID string,
	fn func(app *model.AppRecord) error,
) error {
	return h.s.Update(ctx, func(tx store.Tx) error {
		owner, err := store.MustGet(tx, ownerID)
		if err != nil {
			return err
		}

		var fnErr error
		matched := owner.EachApp(appID, func(app *model.AppRecord) {
			if fnErr == nil {
				fnErr = fn(app)
			}
		})

		if fnErr != nil {
			return fnErr
		}

		lg := h.log.WithFields(logrus.Fields{
			"op":       op,
			"owner_id": ownerID,
			"app_id":   appID,
			"matched":  matched,
		})

		if matched == 0 {
			lg.Debug("no app matched, nothing to update")
			return nil
		}

		if err := tx.Put(ownerID, owner); err != nil {
			return err
		}

		lg.Debug("apps updated")
		return nil
	})
}
