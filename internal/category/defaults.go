// Package category holds the built-in category set and the name matching
// used to reconcile it with categories stored on the server.
package category

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dukerupert/listio/internal/model"
)

const (
	FallbackIcon  = "mdi-package-variant"
	FallbackColor = "#9E9E9E"
	OtherID       = model.ID("cat-other")
)

var defaults = []model.Category{
	{ID: "cat-fruits", Name: "Frutas y Verduras", Icon: "mdi-carrot", Color: "#4CAF50"},
	{ID: "cat-dairy", Name: "Lácteos", Icon: "mdi-cheese", Color: "#FFC107"},
	{ID: "cat-meat", Name: "Carnes y Pescados", Icon: "mdi-food-steak", Color: "#F44336"},
	{ID: "cat-bakery", Name: "Panadería", Icon: "mdi-baguette", Color: "#FF9800"},
	{ID: "cat-beverages", Name: "Bebidas", Icon: "mdi-bottle-soda", Color: "#2196F3"},
	{ID: "cat-snacks", Name: "Snacks y Dulces", Icon: "mdi-cookie", Color: "#E91E63"},
	{ID: "cat-canned", Name: "Enlatados y Conservas", Icon: "mdi-food-drumstick", Color: "#795548"},
	{ID: "cat-frozen", Name: "Congelados", Icon: "mdi-snowflake", Color: "#00BCD4"},
	{ID: "cat-cleaning", Name: "Limpieza", Icon: "mdi-spray-bottle", Color: "#9C27B0"},
	{ID: "cat-personal", Name: "Cuidado Personal", Icon: "mdi-hand-heart", Color: "#FF5722"},
	{ID: "cat-baby", Name: "Bebé", Icon: "mdi-baby-bottle", Color: "#FFEB3B"},
	{ID: "cat-pets", Name: "Mascotas", Icon: "mdi-paw", Color: "#607D8B"},
	{ID: OtherID, Name: "Otros", Icon: "mdi-cart", Color: "#9E9E9E"},
}

// Defaults returns a copy of the built-in categories.
func Defaults() []model.Category {
	out := make([]model.Category, len(defaults))
	copy(out, defaults)
	return out
}

// Default looks up a built-in category by id.
func Default(id model.ID) (model.Category, bool) {
	for _, c := range defaults {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}

// IsDefaultID reports whether id names a built-in category.
func IsDefaultID(id model.ID) bool {
	return strings.HasPrefix(string(id), "cat-")
}

// Normalize folds case, strips diacritics and collapses whitespace so that
// "Lácteos", "LACTEOS" and " lacteos " compare equal.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// SameName reports whether two category names match after normalization.
func SameName(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
