package api

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/dukerupert/listio/internal/model"
)

const listsBase = "/api/shopping-lists"

type Lists struct {
	c *Client
}

func (c *Client) Lists() Lists {
	return Lists{c: c}
}

func listPath(id model.ID) string {
	return listsBase + "/" + id.String()
}

func (a Lists) List(ctx context.Context, params url.Values) (Page[model.List], error) {
	raw, err := a.c.Get(ctx, query(listsBase, params))
	if err != nil {
		return Page[model.List]{}, err
	}
	return DecodeList[model.List](raw)
}

func (a Lists) Get(ctx context.Context, id model.ID) (model.List, error) {
	raw, err := a.c.Get(ctx, listPath(id))
	if err != nil {
		return model.List{}, err
	}
	return DecodeOne[model.List](raw)
}

// Create posts payload, usually a model.List or model.Patch.
func (a Lists) Create(ctx context.Context, payload any) (model.List, error) {
	raw, err := a.c.Post(ctx, listsBase, payload)
	if err != nil {
		return model.List{}, err
	}
	return DecodeOne[model.List](raw)
}

// Update returns the server record and whether the response carried one.
func (a Lists) Update(ctx context.Context, id model.ID, payload any) (model.List, bool, error) {
	raw, err := a.c.Put(ctx, listPath(id), payload)
	if err != nil {
		return model.List{}, false, err
	}
	return decodeOptional[model.List](raw)
}

func (a Lists) Delete(ctx context.Context, id model.ID) error {
	_, err := a.c.Delete(ctx, listPath(id))
	return err
}

func (a Lists) Share(ctx context.Context, id model.ID, share model.Share) (json.RawMessage, error) {
	if err := a.c.Validate(share); err != nil {
		return nil, err
	}
	return a.c.Post(ctx, listPath(id)+"/share", share)
}

func (a Lists) SharedUsers(ctx context.Context, id model.ID) ([]model.SharedUser, error) {
	raw, err := a.c.Get(ctx, listPath(id)+"/shared-users")
	if err != nil {
		return nil, err
	}
	page, err := DecodeList[model.SharedUser](raw)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (a Lists) RevokeShare(ctx context.Context, id, userID model.ID) error {
	_, err := a.c.Delete(ctx, listPath(id)+"/share/"+userID.String())
	return err
}
