package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trivia-arena/internal/models"
)

// Hub is the registry of live lobbies, one LobbyHub per code. Its own lock
// only guards the map; lobby mutations take the LobbyHub lock instead.
type Hub struct {
	lobbies map[string]*LobbyHub
	mu      sync.RWMutex
	log     *slog.Logger
}

// LobbyHub owns one lobby: the operation lock, the mutable lobby state, the
// last published snapshot and the websocket clients watching it.
type LobbyHub struct {
	code string
	log  *slog.Logger

	op     sync.Mutex
	closed bool
	lobby  *models.Lobby
	Game   *models.GameState // guarded by Lock; nil until the game starts
	timer  *time.Timer

	snapshot atomic.Pointer[models.Lobby]

	clients    map[string]*WebSocketClient
	clientsMu  sync.RWMutex
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	presenceMu sync.Mutex
	sockets    map[string]int // open sockets per player id
}

type WebSocketClient struct {
	ID        string
	LobbyCode string
	PlayerID  string
	Send      chan []byte
	Hub       *LobbyHub
}

type Client = WebSocketClient

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		lobbies: make(map[string]*LobbyHub),
		log:     log,
	}
}

// Create registers lobby under its code unless the code is already taken.
// The new LobbyHub is returned locked; the caller must Unlock it.
func (h *Hub) Create(lobby *models.Lobby) (*LobbyHub, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.lobbies[lobby.Code]; exists {
		return nil, false
	}

	lh := &LobbyHub{
		code:       lobby.Code,
		log:        h.log.With("code", lobby.Code),
		lobby:      lobby,
		clients:    make(map[string]*WebSocketClient),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
	lh.op.Lock()
	lh.Publish()
	h.lobbies[lobby.Code] = lh
	go lh.run()
	return lh, true
}

func (h *Hub) Get(code string) *LobbyHub {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lobbies[code]
}

// Remove drops the entry for code if it still points at lh and stops lh.
func (h *Hub) Remove(code string, lh *LobbyHub) {
	h.mu.Lock()
	if current, ok := h.lobbies[code]; ok && current == lh {
		delete(h.lobbies, code)
	}
	h.mu.Unlock()
	lh.stop()
}

func (h *Hub) All() []*LobbyHub {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*LobbyHub, 0, len(h.lobbies))
	for _, lh := range h.lobbies {
		result = append(result, lh)
	}
	return result
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lobbies)
}

// Reset closes and forgets every lobby.
func (h *Hub) Reset() {
	h.mu.Lock()
	all := h.lobbies
	h.lobbies = make(map[string]*LobbyHub)
	h.mu.Unlock()

	for _, lh := range all {
		lh.op.Lock()
		lh.closeLocked()
		lh.op.Unlock()
		lh.stop()
	}
}

func (lh *LobbyHub) Code() string { return lh.code }

// Lock takes the lobby's operation lock. It returns false, with the lock
// released, when the lobby was closed while the caller waited.
func (lh *LobbyHub) Lock() bool {
	lh.op.Lock()
	if lh.closed {
		lh.op.Unlock()
		return false
	}
	return true
}

func (lh *LobbyHub) Unlock() { lh.op.Unlock() }

// Lobby returns the mutable lobby. Only valid while holding Lock.
func (lh *LobbyHub) Lobby() *models.Lobby { return lh.lobby }

// Replace swaps in the next lobby state and publishes it. Must hold Lock.
func (lh *LobbyHub) Replace(next *models.Lobby) {
	lh.lobby = next
	lh.Publish()
}

// Publish stores a copy of the current lobby as the readable snapshot.
// Must hold Lock, or be called before the hub is shared.
func (lh *LobbyHub) Publish() {
	lh.snapshot.Store(lh.lobby.Clone())
}

// Snapshot returns the last published lobby without taking the lock. The
// returned value is shared and must not be modified.
func (lh *LobbyHub) Snapshot() *models.Lobby {
	return lh.snapshot.Load()
}

// Close marks the lobby as gone. Must hold Lock.
func (lh *LobbyHub) Close() {
	lh.closeLocked()
}

func (lh *LobbyHub) closeLocked() {
	lh.closed = true
	lh.StopTimer()
}

// ScheduleTimer replaces any pending timer with f after d. Must hold Lock.
func (lh *LobbyHub) ScheduleTimer(d time.Duration, f func()) {
	lh.StopTimer()
	lh.timer = time.AfterFunc(d, f)
}

func (lh *LobbyHub) StopTimer() {
	if lh.timer != nil {
		lh.timer.Stop()
		lh.timer = nil
	}
}

func (lh *LobbyHub) Done() <-chan struct{} { return lh.done }

func (lh *LobbyHub) stop() {
	lh.stopOnce.Do(func() { close(lh.done) })
}

func (lh *LobbyHub) run() {
	for {
		select {
		case client := <-lh.register:
			lh.clientsMu.Lock()
			if existing, ok := lh.clients[client.ID]; ok && existing.Send != client.Send {
				lh.log.Warn("replacing duplicate websocket client", "client_id", client.ID)
				close(existing.Send)
			}
			lh.clients[client.ID] = client
			count := len(lh.clients)
			lh.clientsMu.Unlock()
			lh.log.Debug("websocket client registered", "client_id", client.ID, "player_id", client.PlayerID, "clients", count)

		case client := <-lh.unregister:
			lh.clientsMu.Lock()
			if existing, ok := lh.clients[client.ID]; ok && existing == client {
				delete(lh.clients, client.ID)
				close(client.Send)
			}
			count := len(lh.clients)
			lh.clientsMu.Unlock()
			lh.log.Debug("websocket client left", "client_id", client.ID, "player_id", client.PlayerID, "clients", count)

		case message := <-lh.broadcast:
			lh.fanOut(message)

		case <-lh.done:
			lh.drain()
			lh.hangUp()
			return
		}
	}
}

// drain delivers events queued before the lobby closed.
func (lh *LobbyHub) drain() {
	for {
		select {
		case message := <-lh.broadcast:
			lh.fanOut(message)
		default:
			return
		}
	}
}

func (lh *LobbyHub) hangUp() {
	lh.clientsMu.Lock()
	defer lh.clientsMu.Unlock()
	for id, client := range lh.clients {
		close(client.Send)
		delete(lh.clients, id)
	}
}

func (lh *LobbyHub) fanOut(message []byte) {
	var slow []*WebSocketClient
	lh.clientsMu.RLock()
	for _, client := range lh.clients {
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	lh.clientsMu.RUnlock()

	if len(slow) == 0 {
		return
	}
	lh.clientsMu.Lock()
	for _, client := range slow {
		if existing, ok := lh.clients[client.ID]; ok && existing == client {
			lh.log.Warn("dropping slow websocket client", "client_id", client.ID)
			close(client.Send)
			delete(lh.clients, client.ID)
		}
	}
	lh.clientsMu.Unlock()
}

// Register attaches a websocket client. It returns false when the lobby
// has already been removed.
func (lh *LobbyHub) Register(client *WebSocketClient) bool {
	client.Hub = lh
	client.LobbyCode = lh.code
	select {
	case lh.register <- client:
		return true
	case <-lh.done:
		return false
	}
}

func (lh *LobbyHub) Unregister(client *WebSocketClient) {
	select {
	case lh.unregister <- client:
	case <-lh.done:
	}
}

func (lh *LobbyHub) Broadcast(data []byte) {
	select {
	case lh.broadcast <- data:
	case <-lh.done:
	}
}

// BroadcastEvent encodes and queues a lobby event for every client.
func (lh *LobbyHub) BroadcastEvent(eventType string, data any) {
	event := models.GameEvent{
		Type:      eventType,
		LobbyCode: lh.code,
		Data:      data,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		lh.log.Error("encode lobby event", "type", eventType, "err", err)
		return
	}
	lh.Broadcast(payload)
}

// TrackPresence adds delta to the open socket count of playerID. onChange
// runs, still under the presence lock, only when the player goes from no
// sockets to one or drops back to none.
func (lh *LobbyHub) TrackPresence(playerID string, delta int, onChange func(connected bool)) {
	lh.presenceMu.Lock()
	defer lh.presenceMu.Unlock()
	if lh.sockets == nil {
		lh.sockets = make(map[string]int)
	}
	before := lh.sockets[playerID]
	after := max(before+delta, 0)
	if after == 0 {
		delete(lh.sockets, playerID)
	} else {
		lh.sockets[playerID] = after
	}
	switch {
	case before == 0 && after > 0:
		onChange(true)
	case before > 0 && after == 0:
		onChange(false)
	}
}

func (lh *LobbyHub) OpenSockets(playerID string) int {
	lh.presenceMu.Lock()
	defer lh.presenceMu.Unlock()
	return lh.sockets[playerID]
}

func (lh *LobbyHub) ClientCount() int {
	lh.clientsMu.RLock()
	defer lh.clientsMu.RUnlock()
	return len(lh.clients)
}
