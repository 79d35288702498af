package category

import (
	"strings"

	"github.com/dukerupert/listio/internal/model"
)

// Categorize suggests a built-in category for an item name. Matching is
// accent- and case-insensitive: exact names first, then keywords contained in
// the name. Unknown items fall into OtherID.
func Categorize(itemName string) model.ID {
	name := Normalize(itemName)
	if name == "" {
		return OtherID
	}

	if id, ok := exactMatch[name]; ok {
		return id
	}

	for _, entry := range keywordMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.id
		}
	}

	return OtherID
}

var exactMatch = map[string]model.ID{
	"leche":           "cat-dairy",
	"milk":            "cat-dairy",
	"huevos":          "cat-dairy",
	"eggs":            "cat-dairy",
	"queso":           "cat-dairy",
	"cheese":          "cat-dairy",
	"mantequilla":     "cat-dairy",
	"butter":          "cat-dairy",
	"yogur":           "cat-dairy",
	"yogurt":          "cat-dairy",
	"pan":             "cat-bakery",
	"bread":           "cat-bakery",
	"pollo":           "cat-meat",
	"chicken":         "cat-meat",
	"carne":           "cat-meat",
	"beef":            "cat-meat",
	"pescado":         "cat-meat",
	"fish":            "cat-meat",
	"agua":            "cat-beverages",
	"water":           "cat-beverages",
	"cafe":            "cat-beverages",
	"coffee":          "cat-beverages",
	"te":              "cat-beverages",
	"tea":             "cat-beverages",
	"manzana":         "cat-fruits",
	"apple":           "cat-fruits",
	"platano":         "cat-fruits",
	"banana":          "cat-fruits",
	"tomate":          "cat-fruits",
	"tomato":          "cat-fruits",
	"lechuga":         "cat-fruits",
	"lettuce":         "cat-fruits",
	"papel higienico": "cat-cleaning",
	"toilet paper":    "cat-cleaning",
	"lejia":           "cat-cleaning",
	"bleach":          "cat-cleaning",
	"champu":          "cat-personal",
	"shampoo":         "cat-personal",
	"panales":         "cat-baby",
	"diapers":         "cat-baby",
	"pienso":          "cat-pets",
	"dog food":        "cat-pets",
	"cat food":        "cat-pets",
	"helado":          "cat-frozen",
	"ice cream":       "cat-frozen",
	"atun":            "cat-canned",
	"tuna":            "cat-canned",
	"galletas":        "cat-snacks",
	"cookies":         "cat-snacks",
	"chocolate":       "cat-snacks",
}

type keywordEntry struct {
	keyword string
	id      model.ID
}

// Longer and more specific keywords come first.
var keywordMatches = []keywordEntry{
	{"comida para perro", "cat-pets"},
	{"comida para gato", "cat-pets"},
	{"arena para gato", "cat-pets"},
	{"pet food", "cat-pets"},
	{"papilla", "cat-baby"},
	{"toallitas", "cat-baby"},
	{"baby", "cat-baby"},
	{"bebe", "cat-baby"},
	{"congelad", "cat-frozen"},
	{"frozen", "cat-frozen"},
	{"ice cream", "cat-frozen"},
	{"helado", "cat-frozen"},
	{"en lata", "cat-canned"},
	{"canned", "cat-canned"},
	{"conserva", "cat-canned"},
	{"enlatad", "cat-canned"},
	{"detergente", "cat-cleaning"},
	{"detergent", "cat-cleaning"},
	{"limpia", "cat-cleaning"},
	{"cleaner", "cat-cleaning"},
	{"suavizante", "cat-cleaning"},
	{"esponja", "cat-cleaning"},
	{"sponge", "cat-cleaning"},
	{"pasta de dientes", "cat-personal"},
	{"toothpaste", "cat-personal"},
	{"desodorante", "cat-personal"},
	{"deodorant", "cat-personal"},
	{"gel de ducha", "cat-personal"},
	{"body wash", "cat-personal"},
	{"jabon", "cat-personal"},
	{"soap", "cat-personal"},
	{"pechuga", "cat-meat"},
	{"chicken", "cat-meat"},
	{"salmon", "cat-meat"},
	{"pollo", "cat-meat"},
	{"ternera", "cat-meat"},
	{"cerdo", "cat-meat"},
	{"pork", "cat-meat"},
	{"carne", "cat-meat"},
	{"pescado", "cat-meat"},
	{"yogur", "cat-dairy"},
	{"yogurt", "cat-dairy"},
	{"queso", "cat-dairy"},
	{"cheese", "cat-dairy"},
	{"leche", "cat-dairy"},
	{"milk", "cat-dairy"},
	{"nata", "cat-dairy"},
	{"cream", "cat-dairy"},
	{"aguacate", "cat-fruits"},
	{"avocado", "cat-fruits"},
	{"zumo", "cat-beverages"},
	{"juice", "cat-beverages"},
	{"refresco", "cat-beverages"},
	{"soda", "cat-beverages"},
	{"cerveza", "cat-beverages"},
	{"beer", "cat-beverages"},
	{"vino", "cat-beverages"},
	{"wine", "cat-beverages"},
	{"agua", "cat-beverages"},
	{"water", "cat-beverages"},
	{"patatas fritas", "cat-snacks"},
	{"chips", "cat-snacks"},
	{"galleta", "cat-snacks"},
	{"cookie", "cat-snacks"},
	{"chocolate", "cat-snacks"},
	{"caramelo", "cat-snacks"},
	{"candy", "cat-snacks"},
	{"baguette", "cat-bakery"},
	{"bollo", "cat-bakery"},
	{"bread", "cat-bakery"},
	{"croissant", "cat-bakery"},
	{"pan ", "cat-bakery"},
	{"fruta", "cat-fruits"},
	{"fruit", "cat-fruits"},
	{"verdura", "cat-fruits"},
	{"manzana", "cat-fruits"},
	{"apple", "cat-fruits"},
	{"tomate", "cat-fruits"},
	{"tomato", "cat-fruits"},
	{"patata", "cat-fruits"},
	{"potato", "cat-fruits"},
	{"cebolla", "cat-fruits"},
	{"onion", "cat-fruits"},
	{"zanahoria", "cat-fruits"},
	{"carrot", "cat-fruits"},
	{"lechuga", "cat-fruits"},
	{"lettuce", "cat-fruits"},
}
