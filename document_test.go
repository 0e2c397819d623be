package flowstore

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Accessors(t *testing.T) {
	raw := []byte(`{"owner_id":"alice","apps":[{"app_id":"a1","active":true},{"app_id":"a2"}],"version":3}`)
	doc := newDocument("owner:alice", raw)

	raw[2] = 'X'
	assert.Equal(t, byte('o'), doc.Value()[2], "document must own its bytes")

	n, err := doc.Int("apps.#")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = doc.Int("name")
	assert.True(t, errors.Is(err, ErrJsonPathInvalid))

	assert.Equal(t, 3, doc.IntOrDefault("version", 0))
	assert.Equal(t, 7, doc.IntOrDefault("missing", 7))
}

func TestDocument_Unmarshal(t *testing.T) {
	var dest struct {
		OwnerID string `json:"owner_id"`
	}

	require.NoError(t, newDocument("k", []byte(`{"owner_id":"bob"}`)).Unmarshal(&dest))
	assert.Equal(t, "bob", dest.OwnerID)

	err := newDocument("k", []byte(`{"owner_id":`)).Unmarshal(&dest)
	assert.True(t, errors.Is(err, ErrJsonCouldNotBeUnmarshalled))
}
