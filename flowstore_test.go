package flowstore_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/denismitr/flowstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietConfig(cfg flowstore.Config) *flowstore.Config {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	cfg.Logger = l
	return &cfg
}

func openDB(t *testing.T, path string, cfg flowstore.Config) (*flowstore.DB, flowstore.Closer) {
	t.Helper()

	db, closer, err := flowstore.Open(path, quietConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}

	return db, closer
}

func putAll(t *testing.T, db *flowstore.DB, kv map[string]string) {
	t.Helper()

	if err := db.Update(context.Background(), func(tx *flowstore.Tx) error {
		for k, v := range kv {
			if err := tx.Put(k, v); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func getString(t *testing.T, db *flowstore.DB, key string) (string, error) {
	t.Helper()

	var result string
	err := db.View(context.Background(), func(tx *flowstore.Tx) error {
		doc, err := tx.Get(key)
		if err != nil {
			return err
		}

		result = string(doc.Value())
		return nil
	})

	return result, err
}

func TestDB_InMemory(t *testing.T) {
	db, closer := openDB(t, flowstore.InMemory, flowstore.Config{})
	defer func() {
		require.NoError(t, closer())
	}()

	t.Run("put and read back", func(t *testing.T) {
		putAll(t, db, map[string]string{
			"owner:alice": `{"owner_id":"alice"}`,
			"owner:bob":   `{"owner_id":"bob"}`,
		})

		v, err := getString(t, db, "owner:alice")
		require.NoError(t, err)
		assert.Equal(t, `{"owner_id":"alice"}`, v)
		assert.Equal(t, 2, db.Count())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := getString(t, db, "owner:nobody")
		require.Error(t, err)
		assert.True(t, errors.Is(err, flowstore.ErrKeyDoesNotExist))
	})

	t.Run("vacuum is a no op", func(t *testing.T) {
		assert.NoError(t, db.Vacuum())
		assert.Equal(t, 2, db.Count())
	})
}

func TestDB_Update(t *testing.T) {
	db, closer := openDB(t, flowstore.InMemory, flowstore.Config{})
	defer closer()

	t.Run("failed callback leaves no trace", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.Update(context.Background(), func(tx *flowstore.Tx) error {
			if err := tx.Put("owner:carol", `{"owner_id":"carol"}`); err != nil {
				return err
			}
			return boom
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Equal(t, 0, db.Count())

		_, err = getString(t, db, "owner:carol")
		assert.True(t, errors.Is(err, flowstore.ErrKeyDoesNotExist))
	})

	t.Run("pending writes are visible inside the transaction", func(t *testing.T) {
		err := db.Update(context.Background(), func(tx *flowstore.Tx) error {
			if err := tx.Put("owner:dave", `{"v":1}`); err != nil {
				return err
			}

			if err := tx.Put("owner:dave", `{"v":2}`); err != nil {
				return err
			}

			has, err := tx.Has("owner:dave")
			require.NoError(t, err)
			assert.True(t, has)

			doc, err := tx.Get("owner:dave")
			require.NoError(t, err)
			v, err := doc.Int("v")
			require.NoError(t, err)
			assert.Equal(t, 2, v)
			return nil
		})

		require.NoError(t, err)
		v, err := getString(t, db, "owner:dave")
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, v)
	})

	t.Run("read only transactions reject writes", func(t *testing.T) {
		err := db.View(context.Background(), func(tx *flowstore.Tx) error {
			return tx.Put("owner:eve", "{}")
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, flowstore.ErrTxIsReadOnly))
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		err := db.Update(context.Background(), func(tx *flowstore.Tx) error {
			return tx.Put("", "{}")
		})

		assert.True(t, errors.Is(err, flowstore.ErrInvalidKey))
	})

	t.Run("structs are stored as json", func(t *testing.T) {
		type payload struct {
			Name string `json:"name"`
		}

		putErr := db.Update(context.Background(), func(tx *flowstore.Tx) error {
			return tx.Put("payload:1", payload{Name: "foo"})
		})
		require.NoError(t, putErr)

		err := db.View(context.Background(), func(tx *flowstore.Tx) error {
			doc, err := tx.Get("payload:1")
			if err != nil {
				return err
			}

			var p payload
			if err := doc.Unmarshal(&p); err != nil {
				return err
			}

			assert.Equal(t, "foo", p.Name)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := db.Update(ctx, func(tx *flowstore.Tx) error {
			return nil
		})

		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestTx_Scan(t *testing.T) {
	db, closer := openDB(t, flowstore.InMemory, flowstore.Config{})
	defer closer()

	putAll(t, db, map[string]string{
		"owner:carol": `{"owner_id":"carol"}`,
		"owner:alice": `{"owner_id":"alice"}`,
		"owner:bob":   `{"owner_id":"bob"}`,
		"other:zed":   `{}`,
		"owners":      `{}`,
	})

	t.Run("visits only prefixed keys in order", func(t *testing.T) {
		var keys []string
		err := db.View(context.Background(), func(tx *flowstore.Tx) error {
			return tx.Scan("owner:", func(d *flowstore.Document) bool {
				keys = append(keys, d.Key())
				return true
			})
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"owner:alice", "owner:bob", "owner:carol"}, keys)
	})

	t.Run("stops when asked to", func(t *testing.T) {
		var keys []string
		err := db.View(context.Background(), func(tx *flowstore.Tx) error {
			return tx.Scan("owner:", func(d *flowstore.Document) bool {
				keys = append(keys, d.Key())
				return false
			})
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"owner:alice"}, keys)
	})
}

func TestDB_Persistence(t *testing.T) {
	for _, strategy := range []flowstore.ValueLoadStrategy{flowstore.EagerLoad, flowstore.LazyLoad} {
		t.Run(string(strategy), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "flows.db")
			cfg := flowstore.Config{ValueLoadStrategy: strategy, MaxCacheBytes: 1 << 20}

			db, closer := openDB(t, path, cfg)
			putAll(t, db, map[string]string{
				"owner:alice": `{"owner_id":"alice","apps":[]}`,
				"owner:bob":   `{"owner_id":"bob","apps":[]}`,
			})
			putAll(t, db, map[string]string{
				"owner:alice": `{"owner_id":"alice","apps":[{"app_id":"a1"}]}`,
			})

			v, err := getString(t, db, "owner:alice")
			require.NoError(t, err)
			assert.Equal(t, `{"owner_id":"alice","apps":[{"app_id":"a1"}]}`, v)
			require.NoError(t, closer())

			db, closer = openDB(t, path, cfg)
			defer closer()

			assert.Equal(t, 2, db.Count())

			v, err = getString(t, db, "owner:alice")
			require.NoError(t, err)
			assert.Equal(t, `{"owner_id":"alice","apps":[{"app_id":"a1"}]}`, v)

			v, err = getString(t, db, "owner:bob")
			require.NoError(t, err)
			assert.Equal(t, `{"owner_id":"bob","apps":[]}`, v)
		})
	}
}

func TestDB_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.db")
	cfg := flowstore.Config{DisableAutoVacuum: true}

	db, closer := openDB(t, path, cfg)
	putAll(t, db, map[string]string{"owner:alice": `{"owner_id":"alice"}`})
	require.NoError(t, closer())

	info, err := os.Stat(path)
	require.NoError(t, err)
	healthySize := info.Size()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0666)
	require.NoError(t, err)
	_, err = f.WriteString("*3\r\n+set\r\n$9\r\nowner:bob\r\n$40\r\n{\"owner_")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db, closer = openDB(t, path, cfg)
	assert.Equal(t, 1, db.Count())

	v, err := getString(t, db, "owner:alice")
	require.NoError(t, err)
	assert.Equal(t, `{"owner_id":"alice"}`, v)

	putAll(t, db, map[string]string{"owner:bob": `{"owner_id":"bob"}`})
	require.NoError(t, closer())

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), healthySize)

	db, closer = openDB(t, path, cfg)
	defer closer()
	assert.Equal(t, 2, db.Count())

	v, err = getString(t, db, "owner:bob")
	require.NoError(t, err)
	assert.Equal(t, `{"owner_id":"bob"}`, v)
}

func TestDB_Vacuum(t *testing.T) {
	for _, strategy := range []flowstore.ValueLoadStrategy{flowstore.EagerLoad, flowstore.LazyLoad} {
		t.Run(string(strategy), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "flows.db")
			cfg := flowstore.Config{
				ValueLoadStrategy: strategy,
				DisableAutoVacuum: true,
				MaxCacheBytes:     1 << 20,
			}

			db, closer := openDB(t, path, cfg)
			defer closer()

			for i := 0; i < 20; i++ {
				putAll(t, db, map[string]string{
					"owner:alice": fmt.Sprintf(`{"owner_id":"alice","rev":%d}`, i),
				})
			}

			before, err := os.Stat(path)
			require.NoError(t, err)

			require.NoError(t, db.Vacuum())

			after, err := os.Stat(path)
			require.NoError(t, err)
			assert.Less(t, after.Size(), before.Size())

			v, err := getString(t, db, "owner:alice")
			require.NoError(t, err)
			assert.Equal(t, `{"owner_id":"alice","rev":19}`, v)

			putAll(t, db, map[string]string{"owner:bob": `{"owner_id":"bob"}`})
			v, err = getString(t, db, "owner:bob")
			require.NoError(t, err)
			assert.Equal(t, `{"owner_id":"bob"}`, v)
		})
	}
}

func TestDB_Closed(t *testing.T) {
	db, closer := openDB(t, flowstore.InMemory, flowstore.Config{})
	require.NoError(t, closer())

	err := db.View(context.Background(), func(tx *flowstore.Tx) error { return nil })
	assert.True(t, errors.Is(err, flowstore.ErrDatabaseAlreadyClosed))
	assert.True(t, errors.Is(closer(), flowstore.ErrDatabaseAlreadyClosed))
	assert.Equal(t, 0, db.Count())
}
