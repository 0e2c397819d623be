package command

import (
	"testing"

	"github.com/denismitr/flowstore/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOperation(t *testing.T) {
	tt := []struct {
		name     string
		in       string
		expected Command
	}{
		{
			name:     "create user",
			in:       `{"type":"CreateUser","owner_id":"alice"}`,
			expected: CreateUser{OwnerID: "alice"},
		},
		{
			name:     "create app",
			in:       `{"type":"CreateApp","owner_id":"alice","app_id":"app1","name":"Flow A","description":"desc"}`,
			expected: CreateApp{OwnerID: "alice", AppID: "app1", Name: "Flow A", Description: "desc"},
		},
		{
			name:     "update is public",
			in:       `{"type":"UpdateIsPublic","owner_id":"alice","app_id":"app1","is_public":true}`,
			expected: UpdateIsPublic{OwnerID: "alice", AppID: "app1", IsPublic: true},
		},
		{
			name: "update nodes",
			in: `{"type":"UpdateNodes","owner_id":"alice","app_id":"app1",
				"nodes":[{"id":"n1","details":{"kind":"API","module":"http","value":"v"}}]}`,
			expected: UpdateNodes{OwnerID: "alice", AppID: "app1", Nodes: []model.NodeRecord{
				{ID: "n1", Details: model.NodeDetails{Kind: model.NodeAPI, Module: "http", Value: "v"}},
			}},
		},
		{
			name: "update sandbox",
			in: `{"type":"UpdateSandbox","owner_id":"alice","app_id":"app1",
				"sandbox":{"id":"s","port_url":"p","sandbox_url":"u"}}`,
			expected: UpdateSandbox{OwnerID: "alice", AppID: "app1", Sandbox: model.SandboxInfo{
				ID: "s", PortURL: "p", SandboxURL: "u",
			}},
		},
		{
			name:     "update flow graph",
			in:       `{"type":"UpdateFlowGraph","owner_id":"alice","app_id":"app1","flow_graph":"{}"}`,
			expected: UpdateFlowGraph{OwnerID: "alice", AppID: "app1", FlowGraph: "{}"},
		},
		{
			name: "update deployed api",
			in: `{"type":"UpdateDeployedApi","owner_id":"alice","app_id":"app1",
				"deployed_api":{"name":"api","functions":[]}}`,
			expected: UpdateDeployedAPI{OwnerID: "alice", AppID: "app1", DeployedAPI: model.DeployedAPI{
				Name: "api", Functions: []model.APIFunctionDescriptor{},
			}},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := DecodeOperation([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cmd)
		})
	}
}

func TestDecodeOperation_Errors(t *testing.T) {
	tt := []struct {
		name string
		in   string
		err  error
	}{
		{name: "not json", in: `{"type":`, err: ErrMalformedOperation},
		{name: "no type", in: `{"owner_id":"alice"}`, err: ErrMalformedOperation},
		{name: "type is not a string", in: `{"type":42}`, err: ErrMalformedOperation},
		{name: "unknown type", in: `{"type":"DeleteApp","owner_id":"alice"}`, err: ErrUnknownCommand},
		{name: "wrong field type", in: `{"type":"UpdateIsPublic","owner_id":"a","app_id":"b","is_public":"yes"}`, err: ErrMalformedOperation},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeOperation([]byte(tc.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.err), err.Error())
		})
	}
}

func TestEncodeOperation(t *testing.T) {
	b, err := EncodeOperation(UpdateIsPublic{OwnerID: "alice", AppID: "app1", IsPublic: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UpdateIsPublic","owner_id":"alice","app_id":"app1","is_public":true}`, string(b))

	cmd, err := DecodeOperation(b)
	require.NoError(t, err)
	assert.Equal(t, UpdateIsPublic{OwnerID: "alice", AppID: "app1", IsPublic: true}, cmd)
}
