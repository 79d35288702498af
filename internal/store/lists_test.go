package store

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

type cleaned []model.ID

func (c *cleaned) DeleteAll(id model.ID) { *c = append(*c, id) }

func setupLists(t *testing.T, user string) (*ListStore, *backend, *localstore.SQLStore, *events, *cleaned) {
	t.Helper()
	local := setupLocal(t)
	b, client := newBackend(t)
	rec := &events{}
	items := &cleaned{}
	s := NewListStore(ListStoreDeps{
		Local:   local,
		Client:  client,
		User:    staticUser(user),
		History: rec,
		Items:   items,
		Logger:  discard,
	})
	return s, b, local, rec, items
}

func TestListsUseUserScopedKey(t *testing.T) {
	s, b, local, _, _ := setupLists(t, "7")
	b.reply("GET /api/shopping-lists", http.StatusOK, `{"items":[{"id":1,"name":"Groceries"},{"id":2,"name":"Hardware"}]}`)

	require.NoError(t, s.Reload(context.Background()))

	want := []model.List{{ID: "1", Name: "Groceries"}, {ID: "2", Name: "Hardware"}}
	if diff := cmp.Diff(want, s.All()); diff != "" {
		t.Errorf("lists (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, readStored[model.List](t, local, "listio:lists:7")); diff != "" {
		t.Errorf("stored (-want +got):\n%s", diff)
	}
	_, ok, err := local.Get(ListsKey)
	require.NoError(t, err)
	assert.False(t, ok, "generic key untouched while signed in")
	assert.Equal(t, "Groceries", s.Name("1"))
}

func TestListsReloadFallsBackToSnapshot(t *testing.T) {
	s, b, local, _, _ := setupLists(t, "")
	b.reply("GET /api/shopping-lists", http.StatusBadGateway, `{"message":"offline"}`)
	require.NoError(t, localstore.WriteJSON(local, ListsKey, []model.List{{ID: "3", Name: "Cached"}}))

	err := s.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, []model.List{{ID: "3", Name: "Cached"}}, s.All())
}

func TestListCreateRemoteReconcilesLocalRecord(t *testing.T) {
	s, b, _, _, _ := setupLists(t, "")
	b.reply("POST /api/shopping-lists", http.StatusCreated, `{"id":11,"name":"Party"}`)

	s.Load()
	s.Add(model.List{ID: "local-1", Name: "Party"})
	s.Add(model.List{ID: "5", Name: "Other"})

	created, err := s.CreateRemote(context.Background(), model.List{ID: "local-1", Name: "Party"})
	require.NoError(t, err)
	assert.Equal(t, model.ID("11"), created.ID)
	assert.Equal(t, []model.List{{ID: "5", Name: "Other"}, {ID: "11", Name: "Party"}}, s.All())

	body := b.body(t, "POST /api/shopping-lists")
	assert.Equal(t, "Party", body["name"])
	assert.NotContains(t, body, "id")
}

func TestListCreateRemoteRestoresOnConflict(t *testing.T) {
	s, b, _, _, _ := setupLists(t, "")
	b.reply("POST /api/shopping-lists", http.StatusConflict, `{"message":"list already exists"}`)
	b.reply("GET /api/shopping-lists", http.StatusOK, `[{"id":2,"name":"Hardware"},{"id":3,"name":"PARTY"}]`)
	b.reply("PUT /api/shopping-lists/3", http.StatusOK, `{"id":3,"name":"Party","description":"restored"}`)

	s.Load()
	created, err := s.CreateRemote(context.Background(), model.List{Name: "Party"})
	require.NoError(t, err)
	assert.Equal(t, model.ID("3"), created.ID)
	assert.Equal(t, "restored", created.Description)
	assert.Equal(t, []string{"POST /api/shopping-lists", "GET /api/shopping-lists", "PUT /api/shopping-lists/3"}, b.Calls())

	got, ok := s.Get("3")
	require.True(t, ok)
	assert.Equal(t, "Party", got.Name)
}

func TestListCreateRemoteConflictWithoutMatch(t *testing.T) {
	s, b, _, _, _ := setupLists(t, "")
	b.reply("POST /api/shopping-lists", http.StatusConflict, `{"message":"list already exists"}`)
	b.reply("GET /api/shopping-lists", http.StatusOK, `[]`)

	s.Load()
	_, err := s.CreateRemote(context.Background(), model.List{Name: "Party"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `"Party" already exists`)
	assert.Empty(t, s.All())
}

func TestListDeleteRemoteRecordsEventAndDropsItems(t *testing.T) {
	s, b, _, rec, items := setupLists(t, "7")
	b.reply("DELETE /api/shopping-lists/4", http.StatusNoContent, "")

	s.Load()
	s.Add(model.List{ID: "4", Name: "Groceries"})

	require.NoError(t, s.DeleteRemote(context.Background(), "4"))
	assert.Empty(t, s.All())
	assert.Equal(t, cleaned{"4"}, *items)

	evs := rec.List()
	require.Len(t, evs, 1)
	assert.Equal(t, "list.delete", evs[0].Type)
	assert.Equal(t, "Groceries", evs[0].Data["name"])
	assert.Equal(t, model.ID("7"), evs[0].Opts.UserID)
}

func TestListDeleteRemoteFailureKeepsList(t *testing.T) {
	s, b, _, rec, items := setupLists(t, "")
	b.reply("DELETE /api/shopping-lists/4", http.StatusForbidden, `{"message":"not yours"}`)

	s.Load()
	s.Add(model.List{ID: "4", Name: "Groceries"})

	require.Error(t, s.DeleteRemote(context.Background(), "4"))
	assert.Len(t, s.All(), 1)
	assert.Empty(t, *items)
	assert.Empty(t, rec.List())
}

func TestListSharing(t *testing.T) {
	s, b, _, _, _ := setupLists(t, "")
	b.reply("POST /api/shopping-lists/4/share", http.StatusOK, `{"ok":true}`)
	b.reply("GET /api/shopping-lists/4/shared-users", http.StatusOK, `[{"id":9,"email":"ana@example.com","permission":"write"}]`)
	b.reply("DELETE /api/shopping-lists/4/share/9", http.StatusNoContent, "")

	ctx := context.Background()
	require.NoError(t, s.Share(ctx, "4", model.Share{Email: "ana@example.com", Permission: "write"}))
	users, err := s.SharedUsers(ctx, "4")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ana@example.com", users[0].Email)
	require.NoError(t, s.RevokeShare(ctx, "4", "9"))

	err = s.Share(ctx, "4", model.Share{Email: "not-an-email"})
	assert.Error(t, err)
}
