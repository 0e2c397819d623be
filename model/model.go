// Package model holds the records kept per owner: the owner itself and the
// apps (flow graphs, sandbox metadata, deployed API descriptors) it owns.
package model

// NodeKind tags a flow graph node
type NodeKind string

const (
	NodeAPI      NodeKind = "API"
	NodeFunction NodeKind = "FUNCTION"
)

func (k NodeKind) Valid() bool {
	return k == NodeAPI || k == NodeFunction
}

type HTTPMethod string

const (
	MethodGet    HTTPMethod = "GET"
	MethodPost   HTTPMethod = "POST"
	MethodPut    HTTPMethod = "PUT"
	MethodDelete HTTPMethod = "DELETE"
	MethodPatch  HTTPMethod = "PATCH"
	MethodString HTTPMethod = "STRING"
)

func (m HTTPMethod) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodString:
		return true
	}
	return false
}

type OutputType string

const (
	OutputString  OutputType = "STRING"
	OutputNumber  OutputType = "NUMBER"
	OutputBoolean OutputType = "BOOLEAN"
	OutputObject  OutputType = "OBJECT"
)

func (o OutputType) Valid() bool {
	switch o {
	case OutputString, OutputNumber, OutputBoolean, OutputObject:
		return true
	}
	return false
}

type OwnerRecord struct {
	OwnerID string      `json:"owner_id"`
	Apps    []AppRecord `json:"apps"`
}

type AppRecord struct {
	AppID       string       `json:"app_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	IsPublic    bool         `json:"is_public"`
	FlowGraph   string       `json:"flow_graph"`
	Nodes       []NodeRecord `json:"nodes"`
	Sandbox     SandboxInfo  `json:"sandbox"`
	DeployedAPI DeployedAPI  `json:"deployed_api"`
}

type NodeRecord struct {
	ID      string      `json:"id" validate:"required"`
	Details NodeDetails `json:"details"`
}

type NodeDetails struct {
	Kind   NodeKind `json:"kind" validate:"oneof=API FUNCTION"`
	Module string   `json:"module"`
	Value  string   `json:"value"`
}

type SandboxInfo struct {
	ID         string `json:"id"`
	PortURL    string `json:"port_url"`
	SandboxURL string `json:"sandbox_url"`
}

type DeployedAPI struct {
	Name      string                  `json:"name"`
	Functions []APIFunctionDescriptor `json:"functions" validate:"dive"`
}

type APIFunctionDescriptor struct {
	APIName string         `json:"api_name"`
	Request APIRequest     `json:"request"`
	Inputs  []APIParameter `json:"inputs"`
	Output  OutputType     `json:"output" validate:"oneof=STRING NUMBER BOOLEAN OBJECT"`
}

type APIRequest struct {
	URL     string         `json:"url"`
	Method  HTTPMethod     `json:"method" validate:"oneof=GET POST PUT DELETE PATCH STRING"`
	Inputs  []APIParameter `json:"inputs"`
	Imports []string       `json:"imports"`
}

type APIParameter struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

// NewOwner creates an owner without apps
func NewOwner(ownerID string) *OwnerRecord {
	return &OwnerRecord{OwnerID: ownerID, Apps: []AppRecord{}}
}

// NewApp creates an app record with everything except
// the identity at its default value.
func NewApp(appID, name, description string) AppRecord {
	return AppRecord{
		AppID:       appID,
		Name:        name,
		Description: description,
		Nodes:       []NodeRecord{},
		DeployedAPI: DeployedAPI{Functions: []APIFunctionDescriptor{}},
	}
}

// FindApp returns the first app with the given id
func (o *OwnerRecord) FindApp(appID string) (*AppRecord, bool) {
	for i := range o.Apps {
		if o.Apps[i].AppID == appID {
			return &o.Apps[i], true
		}
	}

	return nil, false
}

// EachApp calls fn for every app with the given id and reports how many matched.
// Ids are not unique, so more than one app may be visited.
func (o *OwnerRecord) EachApp(appID string, fn func(app *AppRecord)) int {
	matched := 0
	for i := range o.Apps {
		if o.Apps[i].AppID == appID {
			fn(&o.Apps[i])
			matched++
		}
	}

	return matched
}

func (o *OwnerRecord) AddApp(app AppRecord) {
	o.Apps = append(o.Apps, app)
}
