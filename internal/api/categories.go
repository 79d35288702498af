package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dukerupert/listio/internal/model"
)

const categoriesBase = "/api/categories"

type Categories struct {
	c *Client
}

func (c *Client) Categories() Categories {
	return Categories{c: c}
}

type categoryPayload struct {
	Name     string         `json:"name" validate:"required"`
	Metadata model.Metadata `json:"metadata"`
}

// newCategoryPayload carries icon and color inside metadata, which is where
// the backend stores them.
func newCategoryPayload(cat model.Category) categoryPayload {
	meta := model.Metadata{}
	for k, v := range cat.Metadata {
		meta[k] = v
	}
	if cat.Icon != "" {
		meta["icon"] = cat.Icon
	}
	if cat.Color != "" {
		meta["color"] = cat.Color
	}
	return categoryPayload{Name: cat.Name, Metadata: meta}
}

func (a Categories) List(ctx context.Context, params url.Values) (Page[model.Category], error) {
	raw, err := a.c.Get(ctx, query(categoriesBase, params))
	if err != nil {
		return Page[model.Category]{}, err
	}
	return DecodeList[model.Category](raw)
}

func (a Categories) Get(ctx context.Context, id model.ID) (model.Category, error) {
	raw, err := a.c.Get(ctx, categoriesBase+"/"+id.String())
	if err != nil {
		return model.Category{}, err
	}
	return DecodeOne[model.Category](raw)
}

func (a Categories) Create(ctx context.Context, cat model.Category) (model.Category, error) {
	payload := newCategoryPayload(cat)
	if err := a.c.Validate(payload); err != nil {
		return model.Category{}, err
	}
	raw, err := a.c.Post(ctx, categoriesBase, payload)
	if err != nil {
		return model.Category{}, err
	}
	return DecodeOne[model.Category](raw)
}

// Update replaces the category's name and metadata. An empty response body
// yields the submitted record.
func (a Categories) Update(ctx context.Context, id model.ID, cat model.Category) (model.Category, error) {
	if id.IsZero() {
		return model.Category{}, fmt.Errorf("%w: category id required", ErrValidation)
	}
	payload := newCategoryPayload(cat)
	if err := a.c.Validate(payload); err != nil {
		return model.Category{}, err
	}
	raw, err := a.c.Put(ctx, categoriesBase+"/"+id.String(), payload)
	if err != nil {
		return model.Category{}, err
	}
	updated, ok, err := decodeOptional[model.Category](raw)
	if err != nil {
		return model.Category{}, err
	}
	if !ok {
		cat.ID = id
		return cat, nil
	}
	return updated, nil
}

func (a Categories) Delete(ctx context.Context, id model.ID) error {
	_, err := a.c.Delete(ctx, categoriesBase+"/"+id.String())
	return err
}
