package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/category"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

var (
	CategoriesKey = localstore.Key("categories")
	// DefaultsCreatedKey marks that the built-in categories were reconciled
	// with the server for this installation.
	DefaultsCreatedKey = localstore.Key("defaults-created", "v1")
)

type CategoryStore struct {
	local      localstore.Store
	categories *Collection[model.Category]
	gateway    api.Categories
	logger     *slog.Logger
}

func NewCategoryStore(local localstore.Store, client *api.Client, logger *slog.Logger) *CategoryStore {
	logger = logger.With("component", "categories")
	return &CategoryStore{
		local:      local,
		categories: NewCollection(local, CategoriesKey, func(c model.Category) model.ID { return c.ID }, logger),
		gateway:    client.Categories(),
		logger:     logger,
	}
}

// Load reads the cached categories. A cache holding server categories is used
// as is; otherwise the built-in defaults come first, followed by any stored
// custom categories.
func (s *CategoryStore) Load() {
	s.categories.Load()
	stored := s.categories.All()
	for _, c := range stored {
		if c.ID.IsSynced() {
			return
		}
	}

	merged := category.Defaults()
	for _, c := range stored {
		if _, isDefault := category.Default(c.ID); !isDefault {
			merged = append(merged, c)
		}
	}
	s.categories.Reset(merged)
}

func (s *CategoryStore) Save()                                     { s.categories.Save() }
func (s *CategoryStore) All() []model.Category                     { return s.categories.All() }
func (s *CategoryStore) Get(id model.ID) (model.Category, bool)    { return s.categories.Get(id) }
func (s *CategoryStore) Add(c model.Category)                      { s.categories.Add(c) }
func (s *CategoryStore) Delete(id model.ID) (model.Category, bool) { return s.categories.Delete(id) }
func (s *CategoryStore) Update(id model.ID, p model.Patch) (model.Category, error) {
	return s.categories.Update(id, p)
}

// GetByName finds a category by accent- and case-insensitive name.
func (s *CategoryStore) GetByName(name string) (model.Category, bool) {
	return s.categories.Find(func(c model.Category) bool { return category.SameName(c.Name, name) })
}

// Resolve maps id to a category. A direct id match wins. A built-in id then
// resolves to the first cached category carrying the built-in's name, and
// finally to the built-in itself.
func (s *CategoryStore) Resolve(id model.ID) (model.Category, bool) {
	if id.IsZero() {
		return model.Category{}, false
	}
	if c, ok := s.categories.Get(id); ok {
		return c, true
	}
	def, ok := category.Default(id)
	if !ok {
		return model.Category{}, false
	}
	if c, ok := s.GetByName(def.Name); ok {
		return c, true
	}
	return def, true
}

func (s *CategoryStore) IconByID(id model.ID) string {
	c, ok := s.Resolve(id)
	if !ok {
		return category.FallbackIcon
	}
	return c.IconOr(category.FallbackIcon)
}

func (s *CategoryStore) ColorByID(id model.ID) string {
	c, ok := s.Resolve(id)
	if !ok {
		return category.FallbackColor
	}
	return c.ColorOr(category.FallbackColor)
}

// FetchRemote replaces the cached categories with the server's.
func (s *CategoryStore) FetchRemote(ctx context.Context, params url.Values) (api.Page[model.Category], error) {
	page, err := s.gateway.List(ctx, params)
	if err != nil {
		return page, fallback(s.categories, fmt.Errorf("fetch categories: %w", err))
	}
	s.categories.Set(page.Items)
	return page, nil
}

func (s *CategoryStore) CreateRemote(ctx context.Context, c model.Category) (model.Category, error) {
	created, err := s.gateway.Create(ctx, c)
	if err != nil {
		return model.Category{}, fmt.Errorf("create category: %w", err)
	}
	if !created.ID.IsZero() {
		s.categories.Add(created)
	}
	return created, nil
}

func (s *CategoryStore) UpdateRemote(ctx context.Context, id model.ID, c model.Category) (model.Category, error) {
	updated, err := s.gateway.Update(ctx, id, c)
	if err != nil {
		return model.Category{}, fmt.Errorf("update category %s: %w", id, err)
	}
	s.categories.Replace(id, updated)
	return updated, nil
}

func (s *CategoryStore) DeleteRemote(ctx context.Context, id model.ID) error {
	if err := s.gateway.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	s.categories.Delete(id)
	return nil
}

// Init loads the cache, reconciles the built-in categories with the server
// once per installation and refreshes from the server. On a remote failure
// the local categories stay in place and the error is returned.
func (s *CategoryStore) Init(ctx context.Context) error {
	s.Load()

	page, err := s.FetchRemote(ctx, nil)
	if err != nil {
		return err
	}

	_, created, err := s.local.Get(DefaultsCreatedKey)
	if err != nil {
		s.logger.Warn("read defaults flag", "error", err)
	}
	if !created {
		s.reconcileDefaults(ctx, page.Items)
		if err := s.local.Set(DefaultsCreatedKey, "1"); err != nil {
			s.logger.Warn("write defaults flag", "error", err)
		}
	}

	if _, err := s.FetchRemote(ctx, nil); err != nil {
		return err
	}
	return nil
}

// reconcileDefaults creates the built-ins missing on the server and updates
// those whose icon or color drifted. Individual failures are logged.
func (s *CategoryStore) reconcileDefaults(ctx context.Context, remote []model.Category) {
	var errs []error
	for _, def := range category.Defaults() {
		existing, found := findByName(remote, def.Name)
		if !found {
			_, err := s.CreateRemote(ctx, model.Category{
				Name:     def.Name,
				Metadata: model.Metadata{"icon": def.Icon, "color": def.Color, "isDefault": true},
			})
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if existing.IconOr("") == def.Icon && existing.ColorOr("") == def.Color {
			continue
		}
		meta := model.Metadata{}
		for k, v := range existing.Metadata {
			meta[k] = v
		}
		meta["icon"] = def.Icon
		meta["color"] = def.Color
		meta["isDefault"] = true
		if _, err := s.UpdateRemote(ctx, existing.ID, model.Category{Name: existing.Name, Metadata: meta}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("reconcile default categories", "error", err)
	}
}

func findByName(cats []model.Category, name string) (model.Category, bool) {
	for _, c := range cats {
		if category.SameName(c.Name, name) {
			return c, true
		}
	}
	return model.Category{}, false
}
