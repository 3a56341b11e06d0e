package sources_test

import (
	"context"
	"errors"
	"testing"

	"streamkeep/internal/services"
	"streamkeep/internal/sources"
	"streamkeep/internal/testsupport"
)

func TestAddListGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSources(t, cfg)
	ctx := context.Background()

	alpha := testsupport.AddSource(t, store, "alpha", "https://example.com/alpha")
	beta := testsupport.AddSource(t, store, "beta", "https://example.com/beta")
	if alpha.ID == 0 || beta.ID <= alpha.ID {
		t.Fatalf("expected increasing ids, got %d and %d", alpha.ID, beta.ID)
	}
	if !alpha.Active {
		t.Fatal("new sources should be active")
	}
	if alpha.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "beta" {
		t.Fatalf("unexpected list: %+v", list)
	}

	got, err := store.GetByName(ctx, "beta")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got == nil || got.Address != "https://example.com/beta" {
		t.Fatalf("unexpected source: %+v", got)
	}

	missing, err := store.GetByName(ctx, "gamma")
	if err != nil {
		t.Fatalf("GetByName missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing source, got %+v", missing)
	}
}

func TestAddRejectsDuplicatesAndInvalidNames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSources(t, cfg)
	ctx := context.Background()

	testsupport.AddSource(t, store, "alpha", "https://example.com/alpha")
	if _, err := store.Add(ctx, "alpha", "https://example.com/other"); !errors.Is(err, sources.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	for _, name := range []string{"", "two words", "../up", "a/b"} {
		if _, err := store.Add(ctx, name, "https://example.com"); !errors.Is(err, services.ErrValidation) {
			t.Errorf("Add(%q) expected validation error, got %v", name, err)
		}
	}
	if _, err := store.Add(ctx, "gamma", "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty address, got %v", err)
	}
}

func TestRemoveAndActiveFlag(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSources(t, cfg)
	ctx := context.Background()

	alpha := testsupport.AddSource(t, store, "alpha", "https://example.com/alpha")
	testsupport.AddSource(t, store, "beta", "https://example.com/beta")

	if err := store.SetActive(ctx, "beta", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "alpha" {
		t.Fatalf("unexpected active list: %+v", active)
	}
	if err := store.SetActive(ctx, "nobody", true); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	removed, err := store.Remove(ctx, alpha.ID)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = store.Remove(ctx, alpha.ID)
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
	removed, err = store.RemoveByName(ctx, "beta")
	if err != nil || !removed {
		t.Fatalf("RemoveByName = %v, %v", removed, err)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty registry, got %+v", list)
	}
}
