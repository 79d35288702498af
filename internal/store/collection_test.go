package store

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

func listID(l model.List) model.ID { return l.ID }

func TestCollectionPersistsEveryMutation(t *testing.T) {
	local := setupLocal(t)
	key := localstore.Key("lists")
	c := NewCollection(local, key, listID, discard)

	c.Add(model.List{ID: "1", Name: "Groceries"})
	c.Add(model.List{ID: "2", Name: "Hardware"})
	_, err := c.Update("1", model.Patch{"name": "Weekly groceries"})
	require.NoError(t, err)
	require.True(t, c.Replace("2", model.List{ID: "2", Name: "Tools"}))

	want := []model.List{{ID: "2", Name: "Tools"}, {ID: "1", Name: "Weekly groceries"}}
	if diff := cmp.Diff(want, c.All()); diff != "" {
		t.Errorf("in memory (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, readStored[model.List](t, local, key)); diff != "" {
		t.Errorf("stored (-want +got):\n%s", diff)
	}

	removed, ok := c.Delete("2")
	require.True(t, ok)
	assert.Equal(t, "Tools", removed.Name)

	reloaded := NewCollection(local, key, listID, discard)
	assert.True(t, reloaded.Load())
	if diff := cmp.Diff(c.All(), reloaded.All()); diff != "" {
		t.Errorf("reload (-want +got):\n%s", diff)
	}
}

func TestCollectionUpdateMissing(t *testing.T) {
	c := NewCollection(setupLocal(t), localstore.Key("lists"), listID, discard)
	_, err := c.Update("404", model.Patch{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, c.Replace("404", model.List{}))
	_, ok := c.Delete("404")
	assert.False(t, ok)
}

func TestCollectionLoadCorruptSnapshot(t *testing.T) {
	local := setupLocal(t)
	key := localstore.Key("lists")
	require.NoError(t, local.Set(key, `{not json`))

	c := NewCollection(local, key, listID, discard)

	assert.False(t, c.Load())
	assert.Empty(t, c.All())
}

func TestCollectionUpsertAndReset(t *testing.T) {
	local := setupLocal(t)
	key := localstore.Key("lists")
	c := NewCollection(local, key, listID, discard)

	c.Upsert(model.List{ID: "1", Name: "a"})
	c.Upsert(model.List{ID: "2", Name: "b"})
	c.Upsert(model.List{ID: "1", Name: "c"})
	assert.Equal(t, []model.List{{ID: "2", Name: "b"}, {ID: "1", Name: "c"}}, c.All())

	c.Reset(nil)
	assert.Zero(t, c.Len())
	assert.Len(t, readStored[model.List](t, local, key), 2, "Reset must not write")
}

func TestCollectionSurvivesStorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO kv").WillReturnError(errors.New("disk full"))
	mock.ExpectQuery("SELECT value FROM kv").WillReturnError(errors.New("disk gone"))

	c := NewCollection(localstore.NewSQLStore(db, "test"), localstore.Key("lists"), listID, discard)
	c.Add(model.List{ID: "1", Name: "Groceries"})
	assert.Equal(t, 1, c.Len(), "in-memory copy stays authoritative")

	assert.False(t, c.Load())
	assert.Empty(t, c.All())
	assert.NoError(t, mock.ExpectationsWereMet())
}
