package api

import (
	"context"
	"net/url"

	"github.com/dukerupert/listio/internal/model"
)

type ListItems struct {
	c *Client
}

func (c *Client) ListItems() ListItems {
	return ListItems{c: c}
}

func itemsPath(listID model.ID) string {
	return listPath(listID) + "/items"
}

func itemPath(listID, itemID model.ID) string {
	return itemsPath(listID) + "/" + itemID.String()
}

// List returns the items of a list, normalized with NormalizeListItem.
func (a ListItems) List(ctx context.Context, listID model.ID, params url.Values) (Page[model.ListItem], error) {
	raw, err := a.c.Get(ctx, query(itemsPath(listID), params))
	if err != nil {
		return Page[model.ListItem]{}, err
	}
	page, err := DecodeList[model.ListItem](raw)
	if err != nil {
		return page, err
	}
	for i := range page.Items {
		page.Items[i] = model.NormalizeListItem(page.Items[i])
	}
	return page, nil
}

func (a ListItems) Create(ctx context.Context, listID model.ID, payload any) (model.ListItem, error) {
	raw, err := a.c.Post(ctx, itemsPath(listID), payload)
	if err != nil {
		return model.ListItem{}, err
	}
	item, err := DecodeOne[model.ListItem](raw)
	if err != nil {
		return model.ListItem{}, err
	}
	return model.NormalizeListItem(item), nil
}

// Update returns the server record and whether the response carried one.
func (a ListItems) Update(ctx context.Context, listID, itemID model.ID, payload any) (model.ListItem, bool, error) {
	raw, err := a.c.Put(ctx, itemPath(listID, itemID), payload)
	if err != nil {
		return model.ListItem{}, false, err
	}
	return normalizedOptional(raw)
}

// MarkPurchased toggles the purchased flag with a PATCH.
func (a ListItems) MarkPurchased(ctx context.Context, listID, itemID model.ID, purchased bool) (model.ListItem, bool, error) {
	raw, err := a.c.Patch(ctx, itemPath(listID, itemID), map[string]bool{"purchased": purchased})
	if err != nil {
		return model.ListItem{}, false, err
	}
	return normalizedOptional(raw)
}

func (a ListItems) Delete(ctx context.Context, listID, itemID model.ID) error {
	_, err := a.c.Delete(ctx, itemPath(listID, itemID))
	return err
}

func normalizedOptional(raw []byte) (model.ListItem, bool, error) {
	item, ok, err := decodeOptional[model.ListItem](raw)
	if err != nil || !ok {
		return item, ok, err
	}
	return model.NormalizeListItem(item), true, nil
}
