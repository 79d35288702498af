package category

import (
	"strings"

	"github.com/dukerupert/listio/internal/model"
)

var idToSlug = map[model.ID]string{
	"cat-fruits":    "frutas-y-verduras",
	"cat-beverages": "bebidas",
	"cat-canned":    "enlatados-y-conservas",
	"cat-cleaning":  "limpieza",
	"cat-pets":      "mascotas",
}

var imageSlugs = map[string]bool{
	"frutas-y-verduras":     true,
	"lacteos":               true,
	"carnes-y-pescados":     true,
	"panaderia":             true,
	"snacks-y-dulces":       true,
	"enlatados-y-conservas": true,
	"congelados":            true,
	"cuidado-personal":      true,
	"bebe":                  true,
	"mascotas":              true,
	"bebidas":               true,
	"limpieza":              true,
}

// Slug turns a category name into its image slug ("Frutas y Verduras" → "frutas-y-verduras").
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range Normalize(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// DefaultImage returns the bundled image path for a default category id or
// name, or "" when there is none.
func DefaultImage(idOrName string) string {
	if idOrName == "" {
		return ""
	}
	if slug, ok := idToSlug[model.ID(idOrName)]; ok {
		return "/images/categories/" + slug + ".jpg"
	}
	if slug := Slug(idOrName); imageSlugs[slug] {
		return "/images/categories/" + slug + ".jpg"
	}
	return ""
}
