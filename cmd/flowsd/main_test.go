package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/denismitr/flowstore"
	"github.com/denismitr/flowstore/command"
	"github.com/denismitr/flowstore/store/dbstore"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flows.db")
	db, closer, err := flowstore.Open(path, &flowstore.Config{DisableAutoVacuum: true})
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	h := command.NewHandler(dbstore.New(db), log)
	ctx := context.Background()

	require.NoError(t, h.CreateUser(ctx, "bob"))
	require.NoError(t, h.CreateUser(ctx, "alice"))
	require.NoError(t, h.CreateApp(ctx, "alice", "a1", "A", ""))
	require.NoError(t, h.CreateApp(ctx, "alice", "a2", "B", ""))
	require.NoError(t, h.UpdateIsPublic(ctx, "alice", "a2", true))
	require.NoError(t, closer())

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	base := []string{"flowsd", "--env-file", filepath.Join(t.TempDir(), "none.env")}
	err := app.Run(append(base, args...))
	return out.String(), err
}

func TestDump(t *testing.T) {
	path := seedFile(t)

	t.Run("app counts", func(t *testing.T) {
		out, err := run(t, "dump", "--db", path)
		require.NoError(t, err)
		assert.Equal(t, "alice\t2\nbob\t0\n", out)
	})

	t.Run("json records", func(t *testing.T) {
		out, err := run(t, "dump", "--db", path, "--json")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)

		var owner struct {
			OwnerID string `json:"owner_id"`
			Apps    []struct {
				IsPublic bool `json:"is_public"`
			} `json:"apps"`
		}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &owner))
		assert.Equal(t, "alice", owner.OwnerID)
		require.Len(t, owner.Apps, 2)
		assert.True(t, owner.Apps[1].IsPublic)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "dump", "--db", filepath.Join(t.TempDir(), "nope.db"))
		assert.Error(t, err)
	})
}

func TestVacuum(t *testing.T) {
	path := seedFile(t)

	out, err := run(t, "vacuum", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "vacuumed: 2 records\n", out)

	out, err = run(t, "dump", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "alice\t2\nbob\t0\n", out)
}
