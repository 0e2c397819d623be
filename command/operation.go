package command

import (
	"context"
	"encoding/json"

	"github.com/denismitr/flowstore/model"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrUnknownCommand = errors.New("unknown command")
var ErrMalformedOperation = errors.New("malformed operation")

const (
	CreateUserName        = "CreateUser"
	CreateAppName         = "CreateApp"
	UpdateFlowGraphName   = "UpdateFlowGraph"
	UpdateSandboxName     = "UpdateSandbox"
	UpdateNodesName       = "UpdateNodes"
	UpdateDeployedAPIName = "UpdateDeployedApi"
	UpdateIsPublicName    = "UpdateIsPublic"
)

// Command is one of the operations accepted by Handler.Execute
type Command interface {
	Type() string
}

type CreateUser struct {
	OwnerID string `json:"owner_id" validate:"required"`
}

type CreateApp struct {
	OwnerID     string `json:"owner_id" validate:"required"`
	AppID       string `json:"app_id" validate:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateFlowGraph struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	AppID     string `json:"app_id" validate:"required"`
	FlowGraph string `json:"flow_graph"`
}

type UpdateSandbox struct {
	OwnerID string            `json:"owner_id" validate:"required"`
	AppID   string            `json:"app_id" validate:"required"`
	Sandbox model.SandboxInfo `json:"sandbox"`
}

type UpdateNodes struct {
	OwnerID string             `json:"owner_id" validate:"required"`
	AppID   string             `json:"app_id" validate:"required"`
	Nodes   []model.NodeRecord `json:"nodes" validate:"dive"`
}

type UpdateDeployedAPI struct {
	OwnerID     string            `json:"owner_id" validate:"required"`
	AppID       string            `json:"app_id" validate:"required"`
	DeployedAPI model.DeployedAPI `json:"deployed_api"`
}

type UpdateIsPublic struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	AppID    string `json:"app_id" validate:"required"`
	IsPublic bool   `json:"is_public"`
}

func (CreateUser) Type() string        { return CreateUserName }
func (CreateApp) Type() string         { return CreateAppName }
func (UpdateFlowGraph) Type() string   { return UpdateFlowGraphName }
func (UpdateSandbox) Type() string     { return UpdateSandboxName }
func (UpdateNodes) Type() string       { return UpdateNodesName }
func (UpdateDeployedAPI) Type() string { return UpdateDeployedAPIName }
func (UpdateIsPublic) Type() string    { return UpdateIsPublicName }

// Execute dispatches cmd to the matching handler method.
// Commands may be passed by value or by pointer.
func (h *Handler) Execute(ctx context.Context, cmd Command) error {
	cmd, err := deref(cmd)
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case CreateUser:
		return h.CreateUser(ctx, c.OwnerID)
	case CreateApp:
		return h.CreateApp(ctx, c.OwnerID, c.AppID, c.Name, c.Description)
	case UpdateFlowGraph:
		return h.UpdateFlowGraph(ctx, c.OwnerID, c.AppID, c.FlowGraph)
	case UpdateSandbox:
		return h.UpdateSandbox(ctx, c.OwnerID, c.AppID, c.Sandbox)
	case UpdateNodes:
		return h.UpdateNodes(ctx, c.OwnerID, c.AppID, c.Nodes)
	case UpdateDeployedAPI:
		return h.UpdateDeployedAPI(ctx, c.OwnerID, c.AppID, c.DeployedAPI)
	case UpdateIsPublic:
		return h.UpdateIsPublic(ctx, c.OwnerID, c.AppID, c.IsPublic)
	case nil:
		return errors.Wrap(ErrMalformedOperation, "nil command")
	}

	return errors.Wrapf(ErrUnknownCommand, "%T", cmd)
}

func deref(cmd Command) (Command, error) {
	var v Command
	switch c := cmd.(type) {
	case *CreateUser:
		if c != nil {
			v = *c
		}
	case *CreateApp:
		if c != nil {
			v = *c
		}
	case *UpdateFlowGraph:
		if c != nil {
			v = *c
		}
	case *UpdateSandbox:
		if c != nil {
			v = *c
		}
	case *UpdateNodes:
		if c != nil {
			v = *c
		}
	case *UpdateDeployedAPI:
		if c != nil {
			v = *c
		}
	case *UpdateIsPublic:
		if c != nil {
			v = *c
		}
	default:
		return cmd, nil
	}

	if v == nil {
		return nil, errors.Wrapf(ErrMalformedOperation, "nil %T", cmd)
	}

	return v, nil
}

// DecodeOperation reads an operation envelope of the form
//
//	{"type": "UpdateIsPublic", "owner_id": "...", "app_id": "...", "is_public": true}
func DecodeOperation(raw []byte) (Command, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.Wrap(ErrMalformedOperation, "invalid json")
	}

	typ := gjson.GetBytes(raw, "type")
	if !typ.Exists() || typ.Type != gjson.String {
		return nil, errors.Wrap(ErrMalformedOperation, "type is missing")
	}

	switch typ.String() {
	case CreateUserName:
		return decodeInto(raw, CreateUser{})
	case CreateAppName:
		return decodeInto(raw, CreateApp{})
	case UpdateFlowGraphName:
		return decodeInto(raw, UpdateFlowGraph{})
	case UpdateSandboxName:
		return decodeInto(raw, UpdateSandbox{})
	case UpdateNodesName:
		return decodeInto(raw, UpdateNodes{})
	case UpdateDeployedAPIName:
		return decodeInto(raw, UpdateDeployedAPI{})
	case UpdateIsPublicName:
		return decodeInto(raw, UpdateIsPublic{})
	}

	return nil, errors.Wrapf(ErrUnknownCommand, "%s", typ.String())
}

func decodeInto[T Command](raw []byte, cmd T) (Command, error) {
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, errors.Wrapf(ErrMalformedOperation, "%s: %s", cmd.Type(), err.Error())
	}

	return cmd, nil
}

// EncodeOperation is the inverse of DecodeOperation
func EncodeOperation(cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode %s", cmd.Type())
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, errors.Wrapf(err, "could not encode %s", cmd.Type())
	}

	typ, _ := json.Marshal(cmd.Type())
	fields["type"] = typ

	return json.Marshal(fields)
}
