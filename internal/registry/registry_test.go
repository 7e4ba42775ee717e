package registry

import (
	"testing"

	"FeedGate/internal/domain/models"
)

func mustRegister(t *testing.T, r *Registry, id string, cat models.Category, tier int) {
	t.Helper()
	if err := r.Register(models.Provider{ID: id, Category: cat, Tier: tier}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestOrderByTierThenRegistration(t *testing.T) {
	r := New()
	mustRegister(t, r, "b", models.CategoryMarketData, 2)
	mustRegister(t, r, "a", models.CategoryMarketData, 1)
	mustRegister(t, r, "c", models.CategoryMarketData, 2)

	got := r.ProvidersFor(models.CategoryMarketData)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	r := New()
	mustRegister(t, r, "a", models.CategoryNews, 1)
	if err := r.Register(models.Provider{ID: "a", Category: models.CategoryNews, Tier: 1}); err == nil {
		t.Fatalf("duplicate id should be rejected")
	}
}

func TestDisableExcludesFromSelection(t *testing.T) {
	r := New()
	mustRegister(t, r, "a", models.CategoryNews, 1)
	mustRegister(t, r, "b", models.CategoryNews, 2)

	if err := r.Disable("a"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got := r.ProvidersFor(models.CategoryNews)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("disabled provider must be excluded, got %+v", got)
	}
	if err := r.Enable("a"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if len(r.ProvidersFor(models.CategoryNews)) != 2 {
		t.Fatalf("re-enabled provider must return")
	}
}

func TestEnableUnknownProvider(t *testing.T) {
	r := New()
	if err := r.Enable("ghost"); err == nil {
		t.Fatalf("unknown provider should error")
	}
}

func TestCategoriesSorted(t *testing.T) {
	r := New()
	mustRegister(t, r, "n", models.CategoryNews, 1)
	mustRegister(t, r, "m", models.CategoryMarketData, 1)
	cats := r.Categories()
	if len(cats) != 2 || cats[0] != models.CategoryMarketData || cats[1] != models.CategoryNews {
		t.Fatalf("unexpected categories %v", cats)
	}
}
