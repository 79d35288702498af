package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

var PantryKey = localstore.Key("pantry")

// PantryItemsKey is the storage key of a pantry's items.
func PantryItemsKey(pantryID model.ID) string {
	return localstore.Key("pantry-items", pantryID.String())
}

// PantryStore caches the user's pantries and, per pantry, their items.
type PantryStore struct {
	local    localstore.Store
	pantries *Collection[model.Pantry]
	gateway  api.Pantries
	user     Identity
	history  EventRecorder
	logger   *slog.Logger
}

func NewPantryStore(local localstore.Store, client *api.Client, user Identity, rec EventRecorder, logger *slog.Logger) *PantryStore {
	if user == nil {
		user = noIdentity{}
	}
	if rec == nil {
		rec = noRecorder{}
	}
	logger = logger.With("component", "pantry")
	return &PantryStore{
		local:    local,
		pantries: NewCollection(local, PantryKey, func(p model.Pantry) model.ID { return p.ID }, logger),
		gateway:  client.Pantries(),
		user:     user,
		history:  rec,
		logger:   logger,
	}
}

// Load reads the current user's pantries from storage.
func (s *PantryStore) Load() {
	s.pantries.SetKey(localstore.UserKey(PantryKey, s.user.UserID()))
	s.pantries.Load()
}

func (s *PantryStore) Save()                                   { s.pantries.Save() }
func (s *PantryStore) All() []model.Pantry                     { return s.pantries.All() }
func (s *PantryStore) Get(id model.ID) (model.Pantry, bool)    { return s.pantries.Get(id) }
func (s *PantryStore) Add(p model.Pantry)                      { s.pantries.Add(p) }
func (s *PantryStore) Delete(id model.ID) (model.Pantry, bool) { return s.pantries.Delete(id) }
func (s *PantryStore) Update(id model.ID, p model.Patch) (model.Pantry, error) {
	return s.pantries.Update(id, p)
}

// Items returns the cached items of a pantry.
func (s *PantryStore) Items(pantryID model.ID) []model.PantryItem {
	return s.itemsOf(pantryID).All()
}

func (s *PantryStore) itemsOf(pantryID model.ID) *Collection[model.PantryItem] {
	c := NewCollection(s.local, PantryItemsKey(pantryID), func(i model.PantryItem) model.ID { return i.ID }, s.logger)
	c.Load()
	return c
}

// FetchRemote replaces the cached pantries with the server's.
func (s *PantryStore) FetchRemote(ctx context.Context, params url.Values) (api.Page[model.Pantry], error) {
	page, err := s.gateway.List(ctx, params)
	if err != nil {
		return page, fallback(s.pantries, fmt.Errorf("fetch pantries: %w", err))
	}
	s.pantries.Set(page.Items)
	return page, nil
}

// FetchItems replaces the cached items of a pantry with the server's.
func (s *PantryStore) FetchItems(ctx context.Context, pantryID model.ID, params url.Values) (api.Page[model.PantryItem], error) {
	items := s.itemsOf(pantryID)
	page, err := s.gateway.Items(ctx, pantryID, params)
	if err != nil {
		return page, fallback(items, fmt.Errorf("fetch items of pantry %s: %w", pantryID, err))
	}
	items.Set(page.Items)
	return page, nil
}

func (s *PantryStore) CreateRemote(ctx context.Context, p model.Pantry) (model.Pantry, error) {
	localID := p.ID
	payload, err := payloadOf(p, "id", "items", "createdAt", "updatedAt")
	if err != nil {
		return model.Pantry{}, fmt.Errorf("create pantry: %w", err)
	}
	created, err := s.gateway.Create(ctx, payload)
	if err != nil {
		return model.Pantry{}, fmt.Errorf("create pantry: %w", err)
	}
	if localID.IsZero() || !s.pantries.Replace(localID, created) {
		s.pantries.Upsert(created)
	}
	return created, nil
}

func (s *PantryStore) UpdateRemote(ctx context.Context, id model.ID, patch model.Patch) (model.Pantry, error) {
	updated, ok, err := s.gateway.Update(ctx, id, patch)
	if err != nil {
		return model.Pantry{}, fmt.Errorf("update pantry %s: %w", id, err)
	}
	if !ok {
		return s.pantries.Update(id, patch)
	}
	s.pantries.Upsert(updated)
	return updated, nil
}

// DeleteRemote deletes the pantry on the server, records the deletion and
// drops the pantry with its cached items.
func (s *PantryStore) DeleteRemote(ctx context.Context, id model.ID) error {
	p, _ := s.pantries.Get(id)
	if err := s.gateway.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete pantry %s: %w", id, err)
	}
	s.history.RecordEvent("pantry.delete", "pantry", id, map[string]any{"name": p.Name},
		history.Options{UserID: model.ID(s.user.UserID())})
	s.pantries.Delete(id)
	if err := s.local.Remove(PantryItemsKey(id)); err != nil {
		s.logger.Error("delete pantry items", "pantry_id", id, "error", err)
	}
	return nil
}

func (s *PantryStore) AddItemRemote(ctx context.Context, pantryID model.ID, item model.PantryItem) (model.PantryItem, error) {
	payload, err := payloadOf(item, "id", "pantryId")
	if err != nil {
		return model.PantryItem{}, fmt.Errorf("add item to pantry %s: %w", pantryID, err)
	}
	created, err := s.gateway.AddItem(ctx, pantryID, payload)
	if err != nil {
		return model.PantryItem{}, fmt.Errorf("add item to pantry %s: %w", pantryID, err)
	}
	if created.PantryID.IsZero() {
		created.PantryID = pantryID
	}
	s.itemsOf(pantryID).Upsert(created)
	return created, nil
}

func (s *PantryStore) UpdateItemRemote(ctx context.Context, pantryID, itemID model.ID, patch model.Patch) (model.PantryItem, error) {
	updated, ok, err := s.gateway.UpdateItem(ctx, pantryID, itemID, patch)
	if err != nil {
		return model.PantryItem{}, fmt.Errorf("update pantry item %s: %w", itemID, err)
	}
	items := s.itemsOf(pantryID)
	if !ok {
		return items.Update(itemID, patch)
	}
	items.Upsert(updated)
	return updated, nil
}

func (s *PantryStore) DeleteItemRemote(ctx context.Context, pantryID, itemID model.ID) error {
	if err := s.gateway.DeleteItem(ctx, pantryID, itemID); err != nil {
		return fmt.Errorf("delete pantry item %s: %w", itemID, err)
	}
	s.itemsOf(pantryID).Delete(itemID)
	return nil
}

func (s *PantryStore) Share(ctx context.Context, id model.ID, share model.Share) error {
	if _, err := s.gateway.Share(ctx, id, share); err != nil {
		return fmt.Errorf("share pantry %s: %w", id, err)
	}
	return nil
}

func (s *PantryStore) Shares(ctx context.Context, id model.ID) ([]model.SharedUser, error) {
	users, err := s.gateway.Shares(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("shares of pantry %s: %w", id, err)
	}
	return users, nil
}

func (s *PantryStore) RevokeShare(ctx context.Context, id, userID model.ID) error {
	if err := s.gateway.RevokeShare(ctx, id, userID); err != nil {
		return fmt.Errorf("revoke share of pantry %s: %w", id, err)
	}
	return nil
}
