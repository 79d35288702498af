package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/category"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

// ListsKey is the unscoped storage key of the lists collection.
var ListsKey = localstore.Key("lists")

// ItemsCleaner drops the stored items of a deleted list.
type ItemsCleaner interface {
	DeleteAll(listID model.ID)
}

type ListStore struct {
	lists   *Collection[model.List]
	gateway api.Lists
	user    Identity
	history EventRecorder
	items   ItemsCleaner
	logger  *slog.Logger
}

type ListStoreDeps struct {
	Local   localstore.Store
	Client  *api.Client
	User    Identity
	History EventRecorder
	Items   ItemsCleaner
	Logger  *slog.Logger
}

func NewListStore(d ListStoreDeps) *ListStore {
	if d.User == nil {
		d.User = noIdentity{}
	}
	if d.History == nil {
		d.History = noRecorder{}
	}
	logger := d.Logger.With("component", "lists")
	return &ListStore{
		lists:   NewCollection(d.Local, ListsKey, func(l model.List) model.ID { return l.ID }, logger),
		gateway: d.Client.Lists(),
		user:    d.User,
		history: d.History,
		items:   d.Items,
		logger:  logger,
	}
}

// SetItemsCleaner wires the list-items store after construction.
func (s *ListStore) SetItemsCleaner(c ItemsCleaner) {
	s.items = c
}

// Load reads the current user's lists from storage.
func (s *ListStore) Load() {
	s.lists.SetKey(localstore.UserKey(ListsKey, s.user.UserID()))
	s.lists.Load()
}

func (s *ListStore) Save()                                 { s.lists.Save() }
func (s *ListStore) All() []model.List                     { return s.lists.All() }
func (s *ListStore) Get(id model.ID) (model.List, bool)    { return s.lists.Get(id) }
func (s *ListStore) Add(l model.List)                      { s.lists.Add(l) }
func (s *ListStore) Delete(id model.ID) (model.List, bool) { return s.lists.Delete(id) }
func (s *ListStore) Set(lists []model.List)                { s.lists.Set(lists) }
func (s *ListStore) Update(id model.ID, p model.Patch) (model.List, error) {
	return s.lists.Update(id, p)
}

// Name returns the list's name, or "" when it is not cached.
func (s *ListStore) Name(id model.ID) string {
	l, ok := s.lists.Get(id)
	if !ok {
		return ""
	}
	return l.Name
}

// Reload reads the local snapshot and then refreshes it from the server.
func (s *ListStore) Reload(ctx context.Context) error {
	s.Load()
	_, err := s.FetchRemote(ctx, nil)
	return err
}

// FetchRemote replaces the cached lists with the server's.
func (s *ListStore) FetchRemote(ctx context.Context, params url.Values) (api.Page[model.List], error) {
	page, err := s.gateway.List(ctx, params)
	if err != nil {
		return page, fallback(s.lists, fmt.Errorf("fetch lists: %w", err))
	}
	s.lists.Set(page.Items)
	return page, nil
}

// CreateRemote creates list on the server and reconciles the cached record
// carrying list.ID, if any. A conflict is recovered by restoring the existing
// list with the same name.
func (s *ListStore) CreateRemote(ctx context.Context, list model.List) (model.List, error) {
	localID := list.ID
	payload, err := payloadOf(list, "id", "items", "createdAt", "updatedAt")
	if err != nil {
		return model.List{}, fmt.Errorf("create list: %w", err)
	}

	created, err := s.gateway.Create(ctx, payload)
	if err != nil {
		if !api.IsConflict(err) {
			return model.List{}, fmt.Errorf("create list: %w", err)
		}
		restored, rerr := s.restore(ctx, list.Name, payload)
		if rerr != nil {
			return model.List{}, fmt.Errorf("list %q already exists and could not be restored: %w", list.Name, rerr)
		}
		created = restored
	}

	if localID.IsZero() || !s.lists.Replace(localID, created) {
		s.lists.Upsert(created)
	}
	return created, nil
}

func (s *ListStore) restore(ctx context.Context, name string, payload model.Patch) (model.List, error) {
	page, err := s.gateway.List(ctx, url.Values{"search": {name}})
	if err != nil {
		return model.List{}, err
	}
	for _, existing := range page.Items {
		if !category.SameName(existing.Name, name) {
			continue
		}
		updated, ok, err := s.gateway.Update(ctx, existing.ID, payload)
		if err != nil {
			return model.List{}, err
		}
		if !ok {
			return model.Merge(existing, payload)
		}
		return updated, nil
	}
	return model.List{}, fmt.Errorf("no list named %q found: %w", name, ErrNotFound)
}

// UpdateRemote sends patch and merges the server's answer into the cache.
func (s *ListStore) UpdateRemote(ctx context.Context, id model.ID, patch model.Patch) (model.List, error) {
	updated, ok, err := s.gateway.Update(ctx, id, patch)
	if err != nil {
		return model.List{}, fmt.Errorf("update list %s: %w", id, err)
	}
	if !ok {
		return s.lists.Update(id, patch)
	}
	if !s.lists.Replace(id, updated) {
		s.lists.Add(updated)
	}
	return updated, nil
}

// DeleteRemote deletes the list on the server, records the deletion and
// drops the list and its stored items locally.
func (s *ListStore) DeleteRemote(ctx context.Context, id model.ID) error {
	name := s.Name(id)
	if err := s.gateway.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}

	if name == "" {
		name = "List #" + id.String()
	}
	s.history.RecordEvent(history.TypeListDelete, "list", id,
		map[string]any{"name": name},
		history.Options{ListID: id, UserID: model.ID(s.user.UserID())})

	s.lists.Delete(id)
	if s.items != nil {
		s.items.DeleteAll(id)
	}
	return nil
}

func (s *ListStore) Share(ctx context.Context, id model.ID, share model.Share) error {
	if _, err := s.gateway.Share(ctx, id, share); err != nil {
		return fmt.Errorf("share list %s: %w", id, err)
	}
	return nil
}

func (s *ListStore) SharedUsers(ctx context.Context, id model.ID) ([]model.SharedUser, error) {
	users, err := s.gateway.SharedUsers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("shared users of list %s: %w", id, err)
	}
	return users, nil
}

func (s *ListStore) RevokeShare(ctx context.Context, id, userID model.ID) error {
	if err := s.gateway.RevokeShare(ctx, id, userID); err != nil {
		return fmt.Errorf("revoke share of list %s: %w", id, err)
	}
	return nil
}
