package dbstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/denismitr/flowstore"
	"github.com/denismitr/flowstore/model"
	"github.com/denismitr/flowstore/store"
	"github.com/denismitr/flowstore/store/dbstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type dbStoreTestSuite struct {
	suite.Suite
	db     *flowstore.DB
	closer flowstore.Closer
	path   string
	s      *dbstore.Store
}

func (st *dbStoreTestSuite) SetupTest() {
	st.path = filepath.Join(st.T().TempDir(), "owners.db")

	db, closer, err := flowstore.Open(st.path, &flowstore.Config{DisableAutoVacuum: true})
	st.Require().NoError(err)

	st.db = db
	st.closer = closer
	st.s = dbstore.New(db)
}

func (st *dbStoreTestSuite) TearDownTest() {
	if st.closer != nil {
		_ = st.closer()
	}
}

func (st *dbStoreTestSuite) put(owner *model.OwnerRecord) {
	st.Require().NoError(st.s.Update(context.Background(), func(tx store.Tx) error {
		return tx.Put(owner.OwnerID, owner)
	}))
}

func (st *dbStoreTestSuite) Test_GetMissingOwner() {
	err := st.s.View(context.Background(), func(r store.Reader) error {
		owner, ok, err := r.Get("nobody")
		st.Require().NoError(err)
		st.False(ok)
		st.Nil(owner)

		_, err = store.MustGet(r, "nobody")
		st.True(errors.Is(err, store.ErrOwnerNotFound))
		return nil
	})

	st.Require().NoError(err)
}

func (st *dbStoreTestSuite) Test_PutOverwrites() {
	owner := model.NewOwner("alice")
	owner.AddApp(model.NewApp("app1", "Flow A", "desc"))
	st.put(owner)
	st.put(model.NewOwner("alice"))

	err := st.s.View(context.Background(), func(r store.Reader) error {
		got, ok, err := r.Get("alice")
		st.Require().NoError(err)
		st.Require().True(ok)
		st.Equal("alice", got.OwnerID)
		st.Empty(got.Apps)
		return nil
	})

	st.Require().NoError(err)
	st.Equal(1, st.db.Count())
}

func (st *dbStoreTestSuite) Test_RawReader() {
	st.put(model.NewOwner("bob"))

	err := st.s.View(context.Background(), func(r store.Reader) error {
		rr, ok := r.(store.RawReader)
		st.Require().True(ok)

		raw, found, err := rr.GetRaw("bob")
		st.Require().NoError(err)
		st.Require().True(found)
		st.JSONEq(`{"owner_id":"bob","apps":[]}`, string(raw))

		_, found, err = rr.GetRaw("carol")
		st.Require().NoError(err)
		st.False(found)
		return nil
	})

	st.Require().NoError(err)
}

func (st *dbStoreTestSuite) Test_FailedUpdateWritesNothing() {
	boom := errors.New("boom")
	err := st.s.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.Put("carol", model.NewOwner("carol")); err != nil {
			return err
		}
		return boom
	})

	st.True(errors.Is(err, boom))
	st.Equal(0, st.db.Count())
}

func (st *dbStoreTestSuite) Test_SurvivesReopen() {
	owner := model.NewOwner("dave")
	owner.AddApp(model.NewApp("app1", "Flow", "d"))
	st.put(owner)
	st.Require().NoError(st.closer())

	db, closer, err := flowstore.Open(st.path)
	st.Require().NoError(err)
	st.closer = closer

	s := dbstore.New(db)
	err = s.View(context.Background(), func(r store.Reader) error {
		got, ok, err := r.Get("dave")
		st.Require().NoError(err)
		st.Require().True(ok)
		st.Equal(owner, got)
		return nil
	})
	st.Require().NoError(err)
}

func (st *dbStoreTestSuite) Test_Owners() {
	st.put(model.NewOwner("carol"))
	st.put(model.NewOwner("alice"))
	st.put(model.NewOwner("bob"))

	alice := model.NewOwner("alice")
	alice.AddApp(model.NewApp("a1", "A", ""))
	alice.AddApp(model.NewApp("a2", "B", ""))
	st.put(alice)

	var ids []string
	var counts []int
	err := st.s.Owners(context.Background(), func(ownerID string, doc *flowstore.Document) bool {
		ids = append(ids, ownerID)
		counts = append(counts, doc.IntOrDefault("apps.#", -1))
		return true
	})

	st.Require().NoError(err)
	st.Equal([]string{"alice", "bob", "carol"}, ids)
	st.Equal([]int{2, 0, 0}, counts)
}

func TestDBStoreTestSuite(t *testing.T) {
	suite.Run(t, &dbStoreTestSuite{})
}

func TestStore_PutNil(t *testing.T) {
	db, closer, err := flowstore.Open(flowstore.InMemory)
	require.NoError(t, err)
	defer closer()

	err = dbstore.New(db).Update(context.Background(), func(tx store.Tx) error {
		return tx.Put("x", nil)
	})

	assert.Error(t, err)
}
