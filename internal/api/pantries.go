package api

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/dukerupert/listio/internal/model"
)

const pantriesBase = "/api/pantries"

type Pantries struct {
	c *Client
}

func (c *Client) Pantries() Pantries {
	return Pantries{c: c}
}

func pantryPath(id model.ID) string {
	return pantriesBase + "/" + id.String()
}

func (a Pantries) List(ctx context.Context, params url.Values) (Page[model.Pantry], error) {
	raw, err := a.c.Get(ctx, query(pantriesBase, params))
	if err != nil {
		return Page[model.Pantry]{}, err
	}
	return DecodeList[model.Pantry](raw)
}

func (a Pantries) Create(ctx context.Context, payload any) (model.Pantry, error) {
	raw, err := a.c.Post(ctx, pantriesBase, payload)
	if err != nil {
		return model.Pantry{}, err
	}
	return DecodeOne[model.Pantry](raw)
}

func (a Pantries) Get(ctx context.Context, id model.ID, params url.Values) (model.Pantry, error) {
	raw, err := a.c.Get(ctx, query(pantryPath(id), params))
	if err != nil {
		return model.Pantry{}, err
	}
	return DecodeOne[model.Pantry](raw)
}

func (a Pantries) Update(ctx context.Context, id model.ID, payload any) (model.Pantry, bool, error) {
	raw, err := a.c.Put(ctx, pantryPath(id), payload)
	if err != nil {
		return model.Pantry{}, false, err
	}
	return decodeOptional[model.Pantry](raw)
}

func (a Pantries) Delete(ctx context.Context, id model.ID) error {
	_, err := a.c.Delete(ctx, pantryPath(id))
	return err
}

func (a Pantries) Share(ctx context.Context, id model.ID, share model.Share) (json.RawMessage, error) {
	if err := a.c.Validate(share); err != nil {
		return nil, err
	}
	return a.c.Post(ctx, pantryPath(id)+"/share", share)
}

func (a Pantries) Shares(ctx context.Context, id model.ID) ([]model.SharedUser, error) {
	raw, err := a.c.Get(ctx, pantryPath(id)+"/share")
	if err != nil {
		return nil, err
	}
	page, err := DecodeList[model.SharedUser](raw)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (a Pantries) RevokeShare(ctx context.Context, id, userID model.ID) error {
	_, err := a.c.Delete(ctx, pantryPath(id)+"/share/"+userID.String())
	return err
}

func (a Pantries) Items(ctx context.Context, id model.ID, params url.Values) (Page[model.PantryItem], error) {
	raw, err := a.c.Get(ctx, query(pantryPath(id)+"/items", params))
	if err != nil {
		return Page[model.PantryItem]{}, err
	}
	return DecodeList[model.PantryItem](raw)
}

func (a Pantries) AddItem(ctx context.Context, id model.ID, payload any) (model.PantryItem, error) {
	raw, err := a.c.Post(ctx, pantryPath(id)+"/items", payload)
	if err != nil {
		return model.PantryItem{}, err
	}
	return DecodeOne[model.PantryItem](raw)
}

func (a Pantries) UpdateItem(ctx context.Context, id, itemID model.ID, payload any) (model.PantryItem, bool, error) {
	raw, err := a.c.Put(ctx, pantryPath(id)+"/items/"+itemID.String(), payload)
	if err != nil {
		return model.PantryItem{}, false, err
	}
	return decodeOptional[model.PantryItem](raw)
}

func (a Pantries) DeleteItem(ctx context.Context, id, itemID model.ID) error {
	_, err := a.c.Delete(ctx, pantryPath(id)+"/items/"+itemID.String())
	return err
}
