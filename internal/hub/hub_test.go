package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trivia-arena/internal/models"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// create registers a lobby and releases the lock Create hands back.
func create(t *testing.T, h *Hub, code string) *LobbyHub {
	t.Helper()
	lh, ok := h.Create(newLobby(code))
	if !ok {
		t.Fatalf("create %s failed", code)
	}
	lh.Unlock()
	return lh
}

func newLobby(code string) *models.Lobby {
	return models.NewLobby(code, models.Player{ID: "host", Username: "host"}, models.Settings{QuestionCount: 10, TimeLimit: 30}, time.Now())
}

func TestCreateIsInsertIfAbsent(t *testing.T) {
	h := newTestHub()
	first := create(t, h, "ABC123")
	if _, ok := h.Create(newLobby("ABC123")); ok {
		t.Fatal("second create with the same code should fail")
	}
	if h.Get("ABC123") != first {
		t.Fatal("registry should keep the first lobby")
	}
	if h.Len() != 1 {
		t.Fatalf("len = %d want 1", h.Len())
	}
}

func TestSnapshotIsIsolatedFromMutations(t *testing.T) {
	h := newTestHub()
	lh := create(t, h, "ABC123")

	if !lh.Lock() {
		t.Fatal("lock failed on open lobby")
	}
	lh.Lobby().AddPlayer(models.Player{ID: "p2", Username: "bob"}, time.Now())
	if got := len(lh.Snapshot().Players); got != 1 {
		t.Fatalf("unpublished change leaked into snapshot: %d players", got)
	}
	lh.Publish()
	lh.Unlock()

	if got := len(lh.Snapshot().Players); got != 2 {
		t.Fatalf("snapshot has %d players want 2", got)
	}
}

func TestLockFailsAfterClose(t *testing.T) {
	h := newTestHub()
	lh := create(t, h, "ABC123")

	if !lh.Lock() {
		t.Fatal("lock failed")
	}
	waiterResult := make(chan bool, 1)
	go func() { waiterResult <- lh.Lock() }()

	lh.Close()
	h.Remove("ABC123", lh)
	lh.Unlock()

	select {
	case ok := <-waiterResult:
		if ok {
			t.Fatal("waiter should observe the lobby as closed")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never returned")
	}
	if h.Get("ABC123") != nil {
		t.Fatal("lobby should be gone from the registry")
	}
}

func TestRemoveIgnoresReplacedEntry(t *testing.T) {
	h := newTestHub()
	old := create(t, h, "ABC123")
	h.Remove("ABC123", old)
	replacement := create(t, h, "ABC123")
	h.Remove("ABC123", old)
	if h.Get("ABC123") != replacement {
		t.Fatal("stale remove dropped the replacement lobby")
	}
}

func TestBroadcastReachesRegisteredClients(t *testing.T) {
	h := newTestHub()
	lh := create(t, h, "ABC123")

	clients := make([]*WebSocketClient, 3)
	for i := range clients {
		clients[i] = &WebSocketClient{ID: string(rune('a' + i)), PlayerID: "p", Send: make(chan []byte, 4)}
		if !lh.Register(clients[i]) {
			t.Fatal("register failed")
		}
	}
	waitFor(t, func() bool { return lh.ClientCount() == 3 })

	lh.BroadcastEvent("player_joined", map[string]string{"player_id": "p2"})
	for _, c := range clients {
		select {
		case msg := <-c.Send:
			var event models.GameEvent
			if err := json.Unmarshal(msg, &event); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if event.Type != "player_joined" || event.LobbyCode != "ABC123" {
				t.Fatalf("unexpected event %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s got no message", c.ID)
		}
	}

	lh.Unregister(clients[0])
	waitFor(t, func() bool { return lh.ClientCount() == 2 })
	if _, open := <-clients[0].Send; open {
		t.Fatal("unregistered client channel should be closed")
	}
}

func TestRemoveDeliversQueuedEventsThenHangsUp(t *testing.T) {
	h := newTestHub()
	lh := create(t, h, "ABC123")
	client := &WebSocketClient{ID: "c1", Send: make(chan []byte, 4)}
	lh.Register(client)
	waitFor(t, func() bool { return lh.ClientCount() == 1 })

	lh.BroadcastEvent("lobby_deleted", nil)
	h.Remove("ABC123", lh)

	var got []string
	for msg := range client.Send {
		var event models.GameEvent
		_ = json.Unmarshal(msg, &event)
		got = append(got, event.Type)
	}
	if len(got) != 1 || got[0] != "lobby_deleted" {
		t.Fatalf("got events %v", got)
	}
	if lh.Register(&WebSocketClient{ID: "late", Send: make(chan []byte, 1)}) {
		t.Fatal("register on a removed lobby should fail")
	}
}

func TestTrackPresenceReportsFirstAndLastSocket(t *testing.T) {
	h := newTestHub()
	lh := create(t, h, "ABC123")

	var changes []bool
	record := func(connected bool) { changes = append(changes, connected) }

	lh.TrackPresence("p1", 1, record)
	lh.TrackPresence("p1", 1, record)
	lh.TrackPresence("p2", 1, record)
	lh.TrackPresence("p1", -1, record)
	if len(changes) != 2 || !changes[0] || !changes[1] {
		t.Fatalf("closing one of two sockets changed presence: %v", changes)
	}
	lh.TrackPresence("p1", -1, record)
	if len(changes) != 3 || changes[2] {
		t.Fatalf("closing the last socket should disconnect: %v", changes)
	}
	lh.TrackPresence("p1", -1, record)
	if len(changes) != 3 {
		t.Fatalf("extra close reported a change: %v", changes)
	}
	lh.TrackPresence("p1", 1, record)
	if len(changes) != 4 || !changes[3] {
		t.Fatalf("reconnect not reported: %v", changes)
	}
}

func TestScheduleTimerReplacesPending(t *testing.T) {
	h := newTestHub()
	lh := create(t, h, "ABC123")

	var mu sync.Mutex
	var fired []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			fired = append(fired, name)
			mu.Unlock()
		}
	}

	lh.Lock()
	lh.ScheduleTimer(20*time.Millisecond, record("first"))
	lh.ScheduleTimer(20*time.Millisecond, record("second"))
	lh.Unlock()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "second" {
		t.Fatalf("fired %v want [second]", fired)
	}
}

func TestResetClosesEverything(t *testing.T) {
	h := newTestHub()
	a := create(t, h, "AAAAAA")
	create(t, h, "BBBBBB")
	h.Reset()
	if h.Len() != 0 {
		t.Fatalf("len = %d after reset", h.Len())
	}
	if a.Lock() {
		t.Fatal("reset lobby should be closed")
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("reset lobby was not stopped")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
