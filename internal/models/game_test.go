package models

import (
	"testing"
	"time"
)

func TestLobbyStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to LobbyStatus
		want     bool
	}{
		{Waiting, Started, true},
		{Waiting, Ended, true},
		{Started, Ended, true},
		{Started, Waiting, false},
		{Started, Started, false},
		{Ended, Waiting, false},
		{Ended, Started, false},
		{Ended, Ended, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestLobbyStartAndEndAreGuarded(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lobby := NewLobby("ABC123", Player{ID: "host", Username: "host"}, Settings{}, created)

	if !lobby.EndGame(created) {
		t.Fatal("a waiting lobby can be closed")
	}
	if lobby.StartGame(created.Add(time.Minute)) {
		t.Fatal("an ended lobby must not restart")
	}
	if lobby.Status != Ended || lobby.StartedAt != nil {
		t.Fatalf("rejected start changed the lobby: %+v", lobby)
	}

	lobby = NewLobby("ABC124", Player{ID: "host", Username: "host"}, Settings{}, created)
	started := created.Add(time.Minute)
	if !lobby.StartGame(started) {
		t.Fatal("a waiting lobby can start")
	}
	if lobby.StartGame(started.Add(time.Second)) {
		t.Fatal("a started lobby must not start twice")
	}
	if !lobby.StartedAt.Equal(started) {
		t.Fatalf("started at %v want %v", lobby.StartedAt, started)
	}
	if !lobby.EndGame(started.Add(time.Minute)) || lobby.EndGame(started.Add(2*time.Minute)) {
		t.Fatal("a started lobby ends exactly once")
	}
	if !lobby.EndedAt.Equal(started.Add(time.Minute)) {
		t.Fatalf("ended at %v", lobby.EndedAt)
	}
}
