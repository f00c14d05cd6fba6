package testing

import (
	"trivia-arena/internal/models"
	"trivia-arena/internal/services"
)

// Request bodies
type PlayerRequest struct {
	PlayerID  string `json:"player_id,omitempty"`
	Username  string `json:"username"`
	Character string `json:"character,omitempty"`
}

type CreateLobbyRequest struct {
	PlayerRequest
	Settings models.Settings `json:"settings"`
}

type RequesterRequest struct {
	PlayerID string `json:"player_id"`
}

type ReadyRequest struct {
	PlayerID string `json:"player_id"`
	Ready    bool   `json:"ready"`
}

type SubmitAnswerRequest struct {
	PlayerID      string `json:"player_id"`
	QuestionIndex int    `json:"question_index"`
	Answer        int    `json:"answer"`
}

type SettingsRequest struct {
	PlayerID      string `json:"player_id"`
	QuestionCount *int   `json:"question_count,omitempty"`
	TimeLimit     *int   `json:"time_limit,omitempty"`
}

type AwardRequest struct {
	Amount int64 `json:"amount"`
}

// Responses
type LobbyResponse struct {
	Lobby  models.Lobby  `json:"lobby"`
	Player models.Player `json:"player"`
}

type LobbyListResponse struct {
	Lobbies []models.Lobby `json:"lobbies"`
}

type ResultsResponse struct {
	Results []services.PlayerResult `json:"results"`
}

type ProgressResponse struct {
	Progress    models.CharacterProgress `json:"progress"`
	NextLevelAt int64                    `json:"next_level_at"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
