package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"streamkeep/internal/database"
)

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "streamkeep.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, table := range []string{"sources", "segment_queue", "schema_version"} {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
			t.Fatalf("query table %s: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
	if db.Path() != path {
		t.Fatalf("unexpected path %q", db.Path())
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamkeep.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := db.ExecContext(context.Background(),
		"INSERT INTO sources (name, address, active, created_at) VALUES (?, ?, 1, ?)",
		"alpha", "https://example.com/alpha", database.FormatTime(time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	reopened, err := database.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	var count int
	if err := reopened.QueryRowContext(context.Background(), "SELECT COUNT(1) FROM sources").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected persisted row, got %d", count)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamkeep.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = db.Close()

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if _, err := raw.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = raw.Close()

	if _, err := database.Open(path); !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParseTimeRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	parsed, err := database.ParseTime(database.FormatTime(now))
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("got %v want %v", parsed, now)
	}
	if _, err := database.ParseTime(""); err == nil {
		t.Fatal("expected error for empty value")
	}
}
