package deeplink

import (
	"testing"

	"github.com/harvestflow/harvestflow/internal/models"
)

func TestEncodeEmptyData(t *testing.T) {
	if got := Encode("/app/add/product", nil); got != "/app/add/product?" {
		t.Errorf("expected trailing ?, got %q", got)
	}
	// Base already carrying a ? must not get a second one.
	if got := Encode("/app/add/product?", nil); got != "/app/add/product?" {
		t.Errorf("expected single ?, got %q", got)
	}
}

func TestEncodeOrderPreserved(t *testing.T) {
	var d models.CollectedData
	d = d.Set("a", "x")
	d = d.Set("b", "y")
	got := Encode("https://market.example/add", d)
	want := "https://market.example/add?a=x&b=y"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEncodeIdempotent(t *testing.T) {
	var d models.CollectedData
	d = d.Set("name", "Sweet Corn")
	d = d.Set("price", "50")
	first := Encode("/app/add/product", d)
	second := Encode("/app/add/product", d)
	if first != second {
		t.Errorf("encoding not stable: %q vs %q", first, second)
	}
}

func TestEncodeUnderscoreKeysAndEscaping(t *testing.T) {
	var d models.CollectedData
	d = d.Set("price_per_kg", "50")
	d = d.Set("description", "Grown locally & fresh")
	got := Encode("/app/add/product", d)
	want := "/app/add/product?price-per-kg=50&description=Grown+locally+%26+fresh"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEncodeDropsEmptyValues(t *testing.T) {
	var d models.CollectedData
	d = d.Set("name", "Mangoes")
	d = d.Set("description", "   ")
	d = d.Set("price", "120")
	got := Encode("/app/add/product", d)
	want := "/app/add/product?name=Mangoes&price=120"
	if got != want {
		t.Errorf("whitespace-only value should be dropped: got %q", got)
	}
}

func TestEncodeAllValuesEmpty(t *testing.T) {
	var d models.CollectedData
	d = d.Set("name", "")
	if got := Encode("/app/add/product", d); got != "/app/add/product?" {
		t.Errorf("expected bare ?, got %q", got)
	}
}

func TestEncodeValueTrimmed(t *testing.T) {
	var d models.CollectedData
	d = d.Set("name", "  Sweet Corn  ")
	got := Encode("/base", d)
	want := "/base?name=Sweet+Corn"
	if got != want {
		t.Errorf("expected trimmed value, got %q", got)
	}
}
