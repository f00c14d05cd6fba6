package leveling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trivia-arena/internal/models"
	"trivia-arena/internal/repository"
)

const DefaultDraftTimeout = 2 * time.Second

var (
	ErrNegativeExperience = errors.New("experience award must not be negative")
	ErrInvalidPlayer      = errors.New("player id is required")
)

// DraftGenerator produces the perk offer for a level a player just reached.
type DraftGenerator interface {
	GenerateDraftOffer(ctx context.Context, playerID string, level int) (models.DraftOffer, error)
}

type Result struct {
	PlayerID         string              `json:"player_id"`
	OldLevel         int                 `json:"old_level"`
	NewLevel         int                 `json:"new_level"`
	LevelUp          bool                `json:"level_up"`
	ExperiencePoints int64               `json:"experience_points"`
	PendingDrafts    []models.DraftOffer `json:"pending_drafts"`
}

type Engine struct {
	store        repository.ProgressStore
	drafts       DraftGenerator
	log          *slog.Logger
	draftTimeout time.Duration
	locks        *keyedMutex
	now          func() time.Time
}

type Option func(*Engine)

func WithDraftTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.draftTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires the engine to its store. drafts may be nil, in which case
// level-ups produce no offers.
func NewEngine(store repository.ProgressStore, drafts DraftGenerator, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		store:        store,
		drafts:       drafts,
		log:          log,
		draftTimeout: DefaultDraftTimeout,
		locks:        newKeyedMutex(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Progress returns the stored progress, or a fresh level 1 record for a
// player who has never been awarded experience.
func (e *Engine) Progress(ctx context.Context, playerID string) (models.CharacterProgress, error) {
	if strings.TrimSpace(playerID) == "" {
		return models.CharacterProgress{}, ErrInvalidPlayer
	}
	p, err := e.store.GetProgress(ctx, playerID)
	if errors.Is(err, repository.ErrProgressNotFound) {
		return models.CharacterProgress{PlayerID: playerID, Level: 1}, nil
	}
	if err != nil {
		return models.CharacterProgress{}, fmt.Errorf("load progress for %s: %w", playerID, err)
	}
	return p, nil
}

// AwardExperience adds rawXP to the player's total. Awards for one player
// are serialized; draft offers are requested after the player's lock is
// released, one per level gained.
func (e *Engine) AwardExperience(ctx context.Context, playerID string, rawXP int64) (Result, error) {
	if strings.TrimSpace(playerID) == "" {
		return Result{}, ErrInvalidPlayer
	}
	if rawXP < 0 {
		return Result{}, ErrNegativeExperience
	}

	unlock := e.locks.Lock(playerID)
	current, err := e.Progress(ctx, playerID)
	if err != nil {
		unlock()
		return Result{}, err
	}
	oldLevel := current.Level
	if oldLevel < 1 {
		oldLevel = 1
	}
	next := models.CharacterProgress{
		PlayerID:         playerID,
		ExperiencePoints: current.ExperiencePoints + rawXP,
		UpdatedAt:        e.now().UTC(),
	}
	next.Level = CalculateLevel(next.ExperiencePoints)
	if next.Level < oldLevel {
		next.Level = oldLevel
	}
	if err := e.store.SaveProgress(ctx, next); err != nil {
		unlock()
		return Result{}, fmt.Errorf("save progress for %s: %w", playerID, err)
	}
	unlock()

	result := Result{
		PlayerID:         playerID,
		OldLevel:         oldLevel,
		NewLevel:         next.Level,
		LevelUp:          next.Level > oldLevel,
		ExperiencePoints: next.ExperiencePoints,
		PendingDrafts:    []models.DraftOffer{},
	}
	if result.LevelUp {
		e.log.Info("player leveled up", "player_id", playerID, "old_level", oldLevel, "new_level", next.Level)
		result.PendingDrafts = e.requestDrafts(ctx, playerID, oldLevel, next.Level)
	}
	return result, nil
}

func (e *Engine) requestDrafts(ctx context.Context, playerID string, oldLevel, newLevel int) []models.DraftOffer {
	offers := []models.DraftOffer{}
	if e.drafts == nil {
		return offers
	}
	if newLevel > MaxLevel {
		newLevel = MaxLevel
	}
	for level := oldLevel + 1; level <= newLevel; level++ {
		offer, err := e.generate(ctx, playerID, level)
		if err != nil {
			e.log.Warn("draft offer generation failed", "player_id", playerID, "level", level, "err", err)
			continue
		}
		if !offer.Pending() {
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}

func (e *Engine) generate(ctx context.Context, playerID string, level int) (models.DraftOffer, error) {
	ctx, cancel := context.WithTimeout(ctx, e.draftTimeout)
	defer cancel()

	type outcome struct {
		offer models.DraftOffer
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		offer, err := e.drafts.GenerateDraftOffer(ctx, playerID, level)
		done <- outcome{offer: offer, err: err}
	}()

	select {
	case out := <-done:
		return out.offer, out.err
	case <-ctx.Done():
		return models.DraftOffer{}, fmt.Errorf("draft for level %d: %w", level, ctx.Err())
	}
}
