package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-arena/internal/models"
)

func testLobby(code string, created time.Time) *models.Lobby {
	return models.NewLobby(code, models.Player{ID: "host-" + code, Username: "host"}, models.Settings{
		QuestionCount:  10,
		QuestionSetIDs: []string{"general"},
		TimeLimit:      30,
	}, created)
}

func TestMemoryRepositoryRoundTripIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()

	lobby := testLobby("ABC123", now)
	if err := repo.SaveLobby(ctx, lobby); err != nil {
		t.Fatalf("save: %v", err)
	}
	lobby.Players[0].Username = "mutated"

	got, err := repo.GetLobby(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Players[0].Username != "host" {
		t.Fatalf("stored lobby changed through caller pointer: %q", got.Players[0].Username)
	}

	if err := repo.DeleteLobby(ctx, "ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetLobby(ctx, "ABC123"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("expected ErrLobbyNotFound, got %v", err)
	}
}

func TestMemoryRepositoryListLobbies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Now()

	for i, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		if err := repo.SaveLobby(ctx, testLobby(code, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("save %s: %v", code, err)
		}
	}
	ended := testLobby("DDDDDD", base.Add(time.Hour))
	ended.EndGame(base.Add(time.Hour))
	if err := repo.SaveLobby(ctx, ended); err != nil {
		t.Fatalf("save ended: %v", err)
	}

	got, err := repo.ListLobbies(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Code != "CCCCCC" || got[1].Code != "BBBBBB" {
		codes := make([]string, 0, len(got))
		for _, l := range got {
			codes = append(codes, l.Code)
		}
		t.Fatalf("unexpected listing %v", codes)
	}
}

func TestMemoryRepositoryDeleteFinishedLobbies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	old := testLobby("OLD001", now.Add(-2*time.Hour))
	old.EndGame(now.Add(-90 * time.Minute))
	recent := testLobby("NEW001", now.Add(-time.Hour))
	recent.EndGame(now.Add(-time.Minute))
	live := testLobby("LIVE01", now.Add(-3*time.Hour))

	for _, l := range []*models.Lobby{old, recent, live} {
		if err := repo.SaveLobby(ctx, l); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	n, err := repo.DeleteFinishedLobbiesOlderThan(ctx, time.Hour)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d want 1", n)
	}
	if _, err := repo.GetLobby(ctx, "OLD001"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("old lobby should be gone, got %v", err)
	}
	for _, code := range []string{"NEW001", "LIVE01"} {
		if _, err := repo.GetLobby(ctx, code); err != nil {
			t.Fatalf("%s should survive: %v", code, err)
		}
	}
}

func TestMemoryRepositoryProgress(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if _, err := repo.GetProgress(ctx, "p1"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}
	want := models.CharacterProgress{PlayerID: "p1", Level: 3, ExperiencePoints: 260}
	if err := repo.SaveProgress(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.GetProgress(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestMemoryRepositoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemoryRepository()
	if err := repo.SaveLobby(ctx, testLobby("ABC123", time.Now())); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
