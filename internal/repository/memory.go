package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-arena/internal/models"
)

// MemoryRepository keeps lobbies and progress in process memory. It is the
// development fallback when no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	lobbies  map[string]*models.Lobby
	progress map[string]models.CharacterProgress
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lobbies:  make(map[string]*models.Lobby),
		progress: make(map[string]models.CharacterProgress),
		now:      time.Now,
	}
}

func (r *MemoryRepository) SaveLobby(ctx context.Context, lobby *models.Lobby) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobbies[lobby.Code] = lobby.Clone()
	return nil
}

func (r *MemoryRepository) GetLobby(ctx context.Context, code string) (*models.Lobby, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	lobby, ok := r.lobbies[code]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return lobby.Clone(), nil
}

func (r *MemoryRepository) DeleteLobby(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lobbies, code)
	return nil
}

// ListLobbies returns waiting and started lobbies, newest first.
func (r *MemoryRepository) ListLobbies(ctx context.Context, limit int) ([]*models.Lobby, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*models.Lobby, 0, len(r.lobbies))
	for _, lobby := range r.lobbies {
		if lobby.Status == models.Ended {
			continue
		}
		out = append(out, lobby.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteFinishedLobbiesOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-age)
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for code, lobby := range r.lobbies {
		if lobby.Status == models.Ended && lobby.EndedAt != nil && lobby.EndedAt.Before(cutoff) {
			delete(r.lobbies, code)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemoryRepository) GetProgress(ctx context.Context, playerID string) (models.CharacterProgress, error) {
	if err := ctx.Err(); err != nil {
		return models.CharacterProgress{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progress[playerID]
	if !ok {
		return models.CharacterProgress{}, ErrProgressNotFound
	}
	return p, nil
}

func (r *MemoryRepository) SaveProgress(ctx context.Context, progress models.CharacterProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[progress.PlayerID] = progress
	return nil
}
