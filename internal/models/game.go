package models

import (
	"time"
)

type LobbyStatus string

const (
	Waiting LobbyStatus = "waiting"
	Started LobbyStatus = "started"
	Ended   LobbyStatus = "ended"
)

// CanTransition reports whether moving from s to next keeps the status monotonic.
func (s LobbyStatus) CanTransition(next LobbyStatus) bool {
	switch s {
	case Waiting:
		return next == Started || next == Ended
	case Started:
		return next == Ended
	default:
		return false
	}
}

type Player struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Character      string    `json:"character"`
	CharacterLevel int       `json:"character_level"`
	IsHost         bool      `json:"is_host"`
	IsReady        bool      `json:"is_ready"`
	IsConnected    bool      `json:"is_connected"`
	JoinedAt       time.Time `json:"joined_at"`
}

type Settings struct {
	QuestionCount  int      `json:"question_count"`
	QuestionSetIDs []string `json:"question_set_ids"`
	TimeLimit      int      `json:"time_limit"` // seconds
	Replay         bool     `json:"replay"`
}

// SettingsPatch carries a partial settings update; nil fields are left alone.
type SettingsPatch struct {
	QuestionCount  *int     `json:"question_count,omitempty"`
	QuestionSetIDs []string `json:"question_set_ids,omitempty"`
	TimeLimit      *int     `json:"time_limit,omitempty"`
	Replay         *bool    `json:"replay,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	out := s.Clone()
	if p.QuestionCount != nil {
		out.QuestionCount = *p.QuestionCount
	}
	if p.QuestionSetIDs != nil {
		out.QuestionSetIDs = append([]string(nil), p.QuestionSetIDs...)
	}
	if p.TimeLimit != nil {
		out.TimeLimit = *p.TimeLimit
	}
	if p.Replay != nil {
		out.Replay = *p.Replay
	}
	return out
}

func (s Settings) Clone() Settings {
	s.QuestionSetIDs = append([]string(nil), s.QuestionSetIDs...)
	return s
}

type Question struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Correct    int      `json:"correct,omitempty"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	BasePoints int      `json:"base_points"`
}

// Public strips the answer so the question can be sent to clients.
func (q Question) Public() Question {
	q.Options = append([]string(nil), q.Options...)
	q.Correct = 0
	return q
}

type Lobby struct {
	Code      string      `json:"code"`
	HostID    string      `json:"host_id"`
	Players   []*Player   `json:"players"`
	Settings  Settings    `json:"settings"`
	Status    LobbyStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

type GameEvent struct {
	Type      string      `json:"type"`
	LobbyCode string      `json:"lobby_code"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewLobby(code string, host Player, settings Settings, now time.Time) *Lobby {
	host.IsHost = true
	host.IsConnected = true
	host.JoinedAt = now
	return &Lobby{
		Code:      code,
		HostID:    host.ID,
		Players:   []*Player{&host},
		Settings:  settings.Clone(),
		Status:    Waiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (l *Lobby) AddPlayer(player Player, now time.Time) *Player {
	player.IsHost = false
	player.IsReady = false
	player.IsConnected = true
	player.JoinedAt = now
	p := &player
	l.Players = append(l.Players, p)
	l.UpdatedAt = now
	return p
}

// RemovePlayer drops the player and, when the host left, promotes the
// earliest-joined remaining player. It returns the removed player and the
// new host id when a promotion happened.
func (l *Lobby) RemovePlayer(playerID string, now time.Time) (removed *Player, promoted string) {
	for i, player := range l.Players {
		if player.ID != playerID {
			continue
		}
		l.Players = append(l.Players[:i], l.Players[i+1:]...)
		l.UpdatedAt = now
		if player.IsHost && len(l.Players) > 0 {
			next := l.Players[0]
			next.IsHost = true
			l.HostID = next.ID
			promoted = next.ID
		}
		if len(l.Players) == 0 {
			l.HostID = ""
		}
		return player, promoted
	}
	return nil, ""
}

func (l *Lobby) GetPlayer(playerID string) *Player {
	for _, player := range l.Players {
		if player.ID == playerID {
			return player
		}
	}
	return nil
}

func (l *Lobby) AllReady() bool {
	for _, player := range l.Players {
		if !player.IsReady {
			return false
		}
	}
	return true
}

// StartGame moves a waiting lobby to started. It reports false and leaves
// the lobby untouched from any other status.
func (l *Lobby) StartGame(now time.Time) bool {
	if !l.Status.CanTransition(Started) {
		return false
	}
	l.Status = Started
	l.StartedAt = &now
	l.UpdatedAt = now
	return true
}

func (l *Lobby) EndGame(now time.Time) bool {
	if !l.Status.CanTransition(Ended) {
		return false
	}
	l.Status = Ended
	l.EndedAt = &now
	l.UpdatedAt = now
	return true
}

// Clone returns a deep copy that is safe to hand out while the original
// keeps being mutated.
func (l *Lobby) Clone() *Lobby {
	out := *l
	out.Settings = l.Settings.Clone()
	out.Players = make([]*Player, len(l.Players))
	for i, p := range l.Players {
		cp := *p
		out.Players[i] = &cp
	}
	if l.StartedAt != nil {
		t := *l.StartedAt
		out.StartedAt = &t
	}
	if l.EndedAt != nil {
		t := *l.EndedAt
		out.EndedAt = &t
	}
	return &out
}
