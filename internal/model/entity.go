package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend expects quantities as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultUnit is assigned to list items created without a unit.
const DefaultUnit = "unit"

// Metadata holds free-form extension fields such as icon, color or description.
type Metadata map[string]any

// String returns the string stored under key, or "".
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Patch is a partial update merged field-by-field into a record.
type Patch map[string]any

// Meta is the pagination block of an enveloped collection response.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PageSize   int `json:"pageSize,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"totalPages,omitempty"`
}

type CategoryRef struct {
	ID   ID     `json:"id" validate:"required"`
	Name string `json:"name,omitempty"`
}

type Category struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	Icon     string   `json:"icon,omitempty"`
	Color    string   `json:"color,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// IconOr returns the category icon, falling back to metadata and then def.
func (c Category) IconOr(def string) string {
	if c.Icon != "" {
		return c.Icon
	}
	if s := c.Metadata.String("icon"); s != "" {
		return s
	}
	return def
}

// ColorOr returns the category color, falling back to metadata and then def.
func (c Category) ColorOr(def string) string {
	if c.Color != "" {
		return c.Color
	}
	if s := c.Metadata.String("color"); s != "" {
		return s
	}
	return def
}

type Product struct {
	ID        ID           `json:"id"`
	Name      string       `json:"name"`
	Category  *CategoryRef `json:"category,omitempty"`
	Metadata  Metadata     `json:"metadata,omitempty"`
	CreatedAt *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
}

type List struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Recurrent   bool       `json:"recurrent,omitempty"`
	Metadata    Metadata   `json:"metadata,omitempty"`
	Items       []ListItem `json:"items,omitempty"` // legacy: items embedded in the list record
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type ListItem struct {
	ID           ID              `json:"id"`
	ListID       ID              `json:"listId,omitempty"`
	Name         string          `json:"name,omitempty"`
	CategoryID   ID              `json:"categoryId,omitempty"`
	CategoryName string          `json:"categoryName,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit,omitempty"`
	Purchased    bool            `json:"purchased"`
	Product      *Product        `json:"product,omitempty"`
	Metadata     Metadata        `json:"metadata,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// DisplayName resolves the item name, falling back to the referenced product.
func (i ListItem) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.Product != nil {
		return i.Product.Name
	}
	return ""
}

// NormalizeListItem fills the derived and defaulted fields of an item as
// returned by the backend: name and category come from the product when the
// item does not carry them, quantity defaults to 1 and unit to DefaultUnit.
func NormalizeListItem(i ListItem) ListItem {
	if i.Product != nil {
		if i.Name == "" {
			i.Name = i.Product.Name
		}
		if c := i.Product.Category; c != nil {
			if i.CategoryID.IsZero() {
				i.CategoryID = c.ID
			}
			if i.CategoryName == "" {
				i.CategoryName = c.Name
			}
		}
	}
	if !i.Quantity.IsPositive() {
		i.Quantity = decimal.NewFromInt(1)
	}
	if i.Unit == "" {
		i.Unit = DefaultUnit
	}
	return i
}

type Pantry struct {
	ID          ID           `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Metadata    Metadata     `json:"metadata,omitempty"`
	Items       []PantryItem `json:"items,omitempty"`
	CreatedAt   *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time   `json:"updatedAt,omitempty"`
}

type PantryItem struct {
	ID        ID              `json:"id"`
	PantryID  ID              `json:"pantryId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Product   *Product        `json:"product,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit,omitempty"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	Metadata  Metadata        `json:"metadata,omitempty"`
}

type UserProfile struct {
	ID          ID       `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Surname     string   `json:"surname,omitempty"`
	Email       string   `json:"email,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Token       string   `json:"token,omitempty"`
	AccessToken string   `json:"accessToken,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// SessionToken returns the bearer token carried by the profile, if any.
func (u UserProfile) SessionToken() string {
	if u.Token != "" {
		return u.Token
	}
	return u.AccessToken
}

// Share grants another user access to a list or pantry.
type Share struct {
	Email      string `json:"email" validate:"required,email"`
	Permission string `json:"permission,omitempty" validate:"omitempty,oneof=read write admin"`
}

type SharedUser struct {
	ID         ID     `json:"id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// Merge applies patch on top of rec and returns the result. Fields are merged
// at the top level of the JSON form, so a patch key replaces the whole value.
func Merge[T any](rec T, patch Patch) (T, error) {
	var out T
	base, err := ToPatch(rec)
	if err != nil {
		return out, err
	}
	for k, v := range patch {
		base[k] = v
	}
	data, err := json.Marshal(base)
	if err != nil {
		return out, fmt.Errorf("encode merged record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode merged record: %w", err)
	}
	return out, nil
}

// ToPatch converts v to its top-level JSON fields.
func ToPatch(v any) (Patch, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	p := Patch{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	return p, nil
}
