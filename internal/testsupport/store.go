package testsupport

import (
	"context"
	"testing"

	"streamkeep/internal/config"
	"streamkeep/internal/database"
	"streamkeep/internal/queue"
	"streamkeep/internal/sources"
)

// MustOpenDB opens the config's database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	return queue.NewStore(MustOpenDB(t, cfg))
}

// MustOpenSources opens a sources.Store for tests and registers cleanup.
func MustOpenSources(t testing.TB, cfg *config.Config) *sources.Store {
	t.Helper()
	return sources.NewStore(MustOpenDB(t, cfg))
}

// AddSource registers a source for tests using the provided store.
func AddSource(t testing.TB, store *sources.Store, name, address string) *sources.Source {
	t.Helper()

	src, err := store.Add(context.Background(), name, address)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return src
}
