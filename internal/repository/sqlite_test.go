package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trivia-arena/internal/models"
)

func openTestStore(t *testing.T, path string) *SQLiteProgressStore {
	t.Helper()
	store, err := OpenSQLiteProgressStore(path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return store
}

func TestSQLiteProgressStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.db")
	store := openTestStore(t, path)

	if _, err := store.GetProgress(ctx, "p1"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}

	updated := time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	want := models.CharacterProgress{PlayerID: "p1", Level: 4, ExperiencePoints: 450, UpdatedAt: updated}
	if err := store.SaveProgress(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not re-run migrations or lose rows.
	store = openTestStore(t, path)
	defer store.Close()

	got, err := store.GetProgress(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Level != 4 || got.ExperiencePoints != 450 || !got.UpdatedAt.Equal(updated) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestSQLiteProgressStoreNeverLowersExperience(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "progress.db"))
	defer store.Close()

	now := time.Now()
	if err := store.SaveProgress(ctx, models.CharacterProgress{PlayerID: "p1", Level: 3, ExperiencePoints: 300, UpdatedAt: now}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveProgress(ctx, models.CharacterProgress{PlayerID: "p1", Level: 2, ExperiencePoints: 120, UpdatedAt: now}); err != nil {
		t.Fatalf("stale save: %v", err)
	}
	got, err := store.GetProgress(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ExperiencePoints != 300 || got.Level != 3 {
		t.Fatalf("stale write applied: %+v", got)
	}
}

func TestSQLiteProgressStoreRejectsEmptyInput(t *testing.T) {
	if _, err := OpenSQLiteProgressStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
	store := openTestStore(t, filepath.Join(t.TempDir(), "progress.db"))
	defer store.Close()
	if err := store.SaveProgress(context.Background(), models.CharacterProgress{}); err == nil {
		t.Fatal("expected error for empty player id")
	}
}

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	got := upSection(content)
	if got != "\nCREATE TABLE a (id INTEGER);\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatal("content without markers should be returned whole")
	}
}
