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

var ProductsKey = localstore.Key("products")

type ProductStore struct {
	products *Collection[model.Product]
	gateway  api.Products
	history  EventRecorder
	logger   *slog.Logger
}

func NewProductStore(local localstore.Store, client *api.Client, rec EventRecorder, logger *slog.Logger) *ProductStore {
	if rec == nil {
		rec = noRecorder{}
	}
	logger = logger.With("component", "products")
	return &ProductStore{
		products: NewCollection(local, ProductsKey, func(p model.Product) model.ID { return p.ID }, logger),
		gateway:  client.Products(),
		history:  rec,
		logger:   logger,
	}
}

func (s *ProductStore) Load()                                    { s.products.Load() }
func (s *ProductStore) Save()                                    { s.products.Save() }
func (s *ProductStore) All() []model.Product                     { return s.products.All() }
func (s *ProductStore) Get(id model.ID) (model.Product, bool)    { return s.products.Get(id) }
func (s *ProductStore) Add(p model.Product)                      { s.products.Add(p) }
func (s *ProductStore) Delete(id model.ID) (model.Product, bool) { return s.products.Delete(id) }
func (s *ProductStore) Seed(products []model.Product)            { s.products.Set(products) }
func (s *ProductStore) Update(id model.ID, p model.Patch) (model.Product, error) {
	return s.products.Update(id, p)
}

// FetchRemote replaces the cached products with the server's.
func (s *ProductStore) FetchRemote(ctx context.Context, params url.Values) (api.Page[model.Product], error) {
	page, err := s.gateway.List(ctx, params)
	if err != nil {
		return page, fallback(s.products, fmt.Errorf("fetch products: %w", err))
	}
	s.products.Set(page.Items)
	return page, nil
}

// Search queries the server without touching the cache.
func (s *ProductStore) Search(ctx context.Context, q string) ([]model.Product, error) {
	page, err := s.gateway.Search(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return page.Items, nil
}

// CreateRemote creates p on the server and caches the result. When the server
// reports the product already exists, the existing record with the same name
// is updated instead.
func (s *ProductStore) CreateRemote(ctx context.Context, p model.Product) (model.Product, error) {
	in := api.ProductInputFrom(p)
	created, err := s.gateway.Create(ctx, in)
	if err != nil {
		if !api.IsConflict(err) {
			return model.Product{}, fmt.Errorf("create product: %w", err)
		}
		restored, rerr := s.restore(ctx, in)
		if rerr != nil {
			return model.Product{}, fmt.Errorf("product %q already exists and could not be restored: %w", p.Name, rerr)
		}
		created = restored
	}

	if p.ID.IsZero() || !s.products.Replace(p.ID, created) {
		s.products.Upsert(created)
	}
	return created, nil
}

func (s *ProductStore) restore(ctx context.Context, in api.ProductInput) (model.Product, error) {
	page, err := s.gateway.Search(ctx, in.Name, nil)
	if err != nil {
		return model.Product{}, err
	}
	for _, existing := range page.Items {
		if category.SameName(existing.Name, in.Name) {
			return s.gateway.Update(ctx, existing.ID, in)
		}
	}
	return model.Product{}, fmt.Errorf("no product named %q found: %w", in.Name, ErrNotFound)
}

// UpdateRemote merges patch into the cached product, sends the result and
// stores the server's answer.
func (s *ProductStore) UpdateRemote(ctx context.Context, id model.ID, patch model.Patch) (model.Product, error) {
	current, ok := s.products.Get(id)
	if !ok {
		current = model.Product{ID: id}
	}
	merged, err := model.Merge(current, patch)
	if err != nil {
		return model.Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	updated, err := s.gateway.Update(ctx, id, api.ProductInputFrom(merged))
	if err != nil {
		return model.Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	s.products.Upsert(updated)
	return updated, nil
}

// DeleteRemote deletes the product on the server and records the deletion.
func (s *ProductStore) DeleteRemote(ctx context.Context, id model.ID) error {
	p, _ := s.products.Get(id)
	if err := s.gateway.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.history.RecordEvent("product.delete", "product", id, map[string]any{"name": p.Name}, history.Options{})
	s.products.Delete(id)
	return nil
}
