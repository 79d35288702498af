package category

import (
	"testing"

	"github.com/dukerupert/listio/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lácteos", "lacteos"},
		{"  FRUTAS   y Verduras ", "frutas y verduras"},
		{"Bebé", "bebe"},
		{"Panadería", "panaderia"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameName(t *testing.T) {
	if !SameName("frutas y verduras", "Frutas y Verduras") {
		t.Error("expected case-insensitive match")
	}
	if !SameName("LACTEOS", "Lácteos") {
		t.Error("expected accent-insensitive match")
	}
	if SameName("Bebidas", "Bebé") {
		t.Error("unexpected match")
	}
}

func TestDefaults(t *testing.T) {
	ds := Defaults()
	if len(ds) != 13 {
		t.Fatalf("expected 13 defaults, got %d", len(ds))
	}
	ds[0].Name = "changed"
	if c, _ := Default("cat-fruits"); c.Name != "Frutas y Verduras" {
		t.Error("Defaults must return a copy")
	}
	c, ok := Default("cat-fruits")
	if !ok || c.Icon != "mdi-carrot" {
		t.Errorf("Default(cat-fruits) = %+v, %v", c, ok)
	}
	if !IsDefaultID("cat-pets") || IsDefaultID("12") {
		t.Error("IsDefaultID mismatch")
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		input string
		want  model.ID
	}{
		{"leche", "cat-dairy"},
		{"Leche entera", "cat-dairy"},
		{"MILK", "cat-dairy"},
		{"pan", "cat-bakery"},
		{"pan integral", "cat-bakery"},
		{"Pechuga de pollo", "cat-meat"},
		{"guisantes congelados", "cat-frozen"},
		{"tomate en lata", "cat-canned"},
		{"aguacate", "cat-fruits"},
		{"agua con gas", "cat-beverages"},
		{"champú", "cat-personal"},
		{"comida para perro", "cat-pets"},
		{"vanilla ice cream", "cat-frozen"},
		{"tornillos", OtherID},
		{"", OtherID},
		{"   ", OtherID},
	}
	for _, tt := range tests {
		if got := Categorize(tt.input); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDefaultImage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cat-fruits", "/images/categories/frutas-y-verduras.jpg"},
		{"Lácteos", "/images/categories/lacteos.jpg"},
		{"Snacks y Dulces", "/images/categories/snacks-y-dulces.jpg"},
		{"cat-dairy", ""},
		{"Herramientas", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DefaultImage(tt.in); got != tt.want {
			t.Errorf("DefaultImage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
