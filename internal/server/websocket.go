package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trivia-arena/internal/hub"
	"trivia-arena/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// WebSocketMessage is what clients send over the lobby stream.
type WebSocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsReply struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// wsConn pairs a hub client with a private reply queue. Lobby events arrive
// on client.Send, which the hub may close; direct replies use replies.
type wsConn struct {
	conn    *websocket.Conn
	client  *hub.Client
	replies chan []byte
	done    chan struct{}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	code := c.Query("code")
	playerID := c.Query("player_id")
	if !services.ValidLobbyCode(code) {
		s.writeDomainError(c, services.ErrInvalidLobbyCodeFormat)
		return
	}
	lobbyHub := s.hub.Get(code)
	if lobbyHub == nil {
		s.writeDomainError(c, services.ErrLobbyNotFound)
		return
	}
	if playerID != "" && lobbyHub.Snapshot().GetPlayer(playerID) == nil {
		s.writeDomainError(c, services.ErrPlayerNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "code", code, "err", err)
		return
	}

	client := &hub.Client{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Send:     make(chan []byte, sendBuffer),
	}
	if !lobbyHub.Register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "lobby closed"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if playerID != "" {
		lobbyHub.TrackPresence(playerID, 1, func(connected bool) {
			s.setConnected(ctx, code, playerID, connected)
		})
	}

	ws := &wsConn{
		conn:    conn,
		client:  client,
		replies: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	go s.writePump(ws)
	s.readPump(ctx, ws)
}

func (s *Server) setConnected(ctx context.Context, code, playerID string, connected bool) {
	if _, err := s.gameService.UpdatePlayerConnection(ctx, code, playerID, connected); err != nil {
		if errors.Is(err, services.ErrLobbyNotFound) || errors.Is(err, services.ErrPlayerNotFound) {
			return
		}
		s.log.Warn("update player connection", "code", code, "player_id", playerID, "err", err)
	}
}

func (s *Server) readPump(ctx context.Context, ws *wsConn) {
	client := ws.client
	defer func() {
		close(ws.done)
		client.Hub.Unregister(client)
		if client.PlayerID != "" {
			client.Hub.TrackPresence(client.PlayerID, -1, func(connected bool) {
				s.setConnected(ctx, client.LobbyCode, client.PlayerID, connected)
			})
		}
		_ = ws.conn.Close()
	}()

	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WebSocketMessage
		if err := ws.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "client_id", client.ID, "err", err)
			}
			return
		}
		s.handleWebSocketMessage(ctx, ws, &msg)
	}
}

func (s *Server) writePump(ws *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.conn.Close()
	}()

	for {
		select {
		case message, ok := <-ws.client.Send:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug("websocket write error", "client_id", ws.client.ID, "err", err)
				return
			}

		case reply := <-ws.replies:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}

		case <-ticker.C:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ws.done:
			return
		}
	}
}

// reply queues a message for this client only. It is dropped if the client
// is not keeping up.
func (s *Server) reply(ws *wsConn, msgType string, data any) {
	payload, err := json.Marshal(wsReply{Type: msgType, Data: data})
	if err != nil {
		s.log.Error("encode websocket reply", "type", msgType, "err", err)
		return
	}
	select {
	case ws.replies <- payload:
	default:
	}
}

func (s *Server) replyError(ws *wsConn, err error) {
	data := map[string]any{"error": err.Error()}
	if code := services.CodeOf(err); code != "" {
		data["code"] = code
	} else {
		s.log.Error("websocket request failed", "client_id", ws.client.ID, "err", err)
		data["error"] = "internal server error"
	}
	s.reply(ws, "error", data)
}

func (s *Server) handleWebSocketMessage(ctx context.Context, ws *wsConn, msg *WebSocketMessage) {
	client := ws.client
	if client.PlayerID == "" {
		s.reply(ws, "error", map[string]any{"error": "spectators cannot send commands"})
		return
	}
	code := client.LobbyCode

	switch msg.Type {
	case "ready":
		var data struct {
			Ready bool `json:"ready"`
		}
		if !s.decodeData(ws, msg, &data) {
			return
		}
		if _, err := s.gameService.UpdatePlayerReady(ctx, code, client.PlayerID, data.Ready); err != nil {
			s.replyError(ws, err)
		}

	case "start_game":
		if _, err := s.gameService.StartGame(ctx, code, client.PlayerID); err != nil {
			s.replyError(ws, err)
		}

	case "submit_answer":
		var data struct {
			QuestionIndex int `json:"question_index"`
			Answer        int `json:"answer"`
		}
		if !s.decodeData(ws, msg, &data) {
			return
		}
		res, err := s.gameService.SubmitAnswer(ctx, code, client.PlayerID, data.QuestionIndex, data.Answer)
		if err != nil {
			s.replyError(ws, err)
			return
		}
		s.reply(ws, "answer_result", res)

	case "next_question":
		if _, err := s.gameService.AdvanceQuestion(ctx, code, client.PlayerID); err != nil {
			s.replyError(ws, err)
		}

	case "leave_lobby":
		if _, err := s.gameService.LeaveLobby(ctx, code, client.PlayerID); err != nil {
			s.replyError(ws, err)
		}

	default:
		s.reply(ws, "error", map[string]any{"error": "unknown message type " + msg.Type})
	}
}

func (s *Server) decodeData(ws *wsConn, msg *WebSocketMessage, out any) bool {
	if len(msg.Data) == 0 {
		s.reply(ws, "error", map[string]any{"error": msg.Type + " requires data"})
		return false
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		s.reply(ws, "error", map[string]any{"error": "malformed " + msg.Type + " data"})
		return false
	}
	return true
}
