package repository

import (
	"context"
	"errors"
	"time"

	"trivia-arena/internal/models"
)

var (
	ErrLobbyNotFound    = errors.New("lobby not found")
	ErrProgressNotFound = errors.New("character progress not found")
)

// Repository persists lobbies. Writes for one lobby code are issued by the
// session manager while it holds that code's lock.
type Repository interface {
	SaveLobby(ctx context.Context, lobby *models.Lobby) error
	GetLobby(ctx context.Context, code string) (*models.Lobby, error)
	DeleteLobby(ctx context.Context, code string) error
	ListLobbies(ctx context.Context, limit int) ([]*models.Lobby, error)
	DeleteFinishedLobbiesOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// ProgressStore persists character progress for the leveling engine.
type ProgressStore interface {
	GetProgress(ctx context.Context, playerID string) (models.CharacterProgress, error)
	SaveProgress(ctx context.Context, progress models.CharacterProgress) error
}
