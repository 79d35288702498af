package api

import (
	"context"
	"net/url"

	"github.com/dukerupert/listio/internal/model"
)

const productsBase = "/api/products"

type Products struct {
	c *Client
}

func (c *Client) Products() Products {
	return Products{c: c}
}

// ProductInput is the create/update payload. Products must belong to a category.
type ProductInput struct {
	Name     string             `json:"name" validate:"required"`
	Metadata model.Metadata     `json:"metadata"`
	Category *model.CategoryRef `json:"category" validate:"required"`
}

// ProductInputFrom builds the payload for p.
func ProductInputFrom(p model.Product) ProductInput {
	in := ProductInput{Name: p.Name, Metadata: p.Metadata}
	if in.Metadata == nil {
		in.Metadata = model.Metadata{}
	}
	if p.Category != nil {
		in.Category = &model.CategoryRef{ID: p.Category.ID}
	}
	return in
}

func (a Products) List(ctx context.Context, params url.Values) (Page[model.Product], error) {
	raw, err := a.c.Get(ctx, query(productsBase, params))
	if err != nil {
		return Page[model.Product]{}, err
	}
	return DecodeList[model.Product](raw)
}

// Search lists products whose name matches q.
func (a Products) Search(ctx context.Context, q string, params url.Values) (Page[model.Product], error) {
	merged := url.Values{}
	for k, v := range params {
		merged[k] = v
	}
	merged.Set("search", q)
	return a.List(ctx, merged)
}

func (a Products) Get(ctx context.Context, id model.ID) (model.Product, error) {
	raw, err := a.c.Get(ctx, productsBase+"/"+id.String())
	if err != nil {
		return model.Product{}, err
	}
	return DecodeOne[model.Product](raw)
}

func (a Products) Create(ctx context.Context, in ProductInput) (model.Product, error) {
	if err := a.c.Validate(in); err != nil {
		return model.Product{}, err
	}
	raw, err := a.c.Post(ctx, productsBase, in)
	if err != nil {
		return model.Product{}, err
	}
	return DecodeOne[model.Product](raw)
}

func (a Products) Update(ctx context.Context, id model.ID, in ProductInput) (model.Product, error) {
	if err := a.c.Validate(in); err != nil {
		return model.Product{}, err
	}
	raw, err := a.c.Put(ctx, productsBase+"/"+id.String(), in)
	if err != nil {
		return model.Product{}, err
	}
	updated, ok, err := decodeOptional[model.Product](raw)
	if err != nil {
		return model.Product{}, err
	}
	if !ok {
		return model.Product{ID: id, Name: in.Name, Metadata: in.Metadata, Category: in.Category}, nil
	}
	return updated, nil
}

func (a Products) Delete(ctx context.Context, id model.ID) error {
	_, err := a.c.Delete(ctx, productsBase+"/"+id.String())
	return err
}
