package perks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"trivia-arena/internal/models"
)

var (
	ErrPerkNotFound    = errors.New("perk not found")
	ErrUnsupportedPerk = errors.New("perk effect type is not supported")
)

// Provider is what scoring and drafting need from the catalog/loadout system.
type Provider interface {
	GetPerk(ctx context.Context, id string) (models.Perk, error)
	GetActivePerkSet(ctx context.Context, playerID string) ([]models.Perk, error)
}

// Catalog is an in-memory perk catalog with per-player loadouts.
type Catalog struct {
	mu       sync.RWMutex
	perks    map[string]models.Perk
	loadouts map[string][]string // playerID -> perk ids, equip order
}

func NewCatalog(perks []models.Perk) (*Catalog, error) {
	c := &Catalog{
		perks:    make(map[string]models.Perk, len(perks)),
		loadouts: make(map[string][]string),
	}
	for _, p := range perks {
		if !Supported(p.EffectType) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedPerk, p.ID, p.EffectType)
		}
		c.perks[p.ID] = p.Clone()
	}
	return c, nil
}

func (c *Catalog) GetPerk(ctx context.Context, id string) (models.Perk, error) {
	if err := ctx.Err(); err != nil {
		return models.Perk{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.perks[id]
	if !ok {
		return models.Perk{}, ErrPerkNotFound
	}
	return p.Clone(), nil
}

// ListPerks returns the catalog ordered by tier, then id.
func (c *Catalog) ListPerks(ctx context.Context) ([]models.Perk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	out := make([]models.Perk, 0, len(c.perks))
	for _, p := range c.perks {
		out = append(out, p.Clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Catalog) GetActivePerkSet(ctx context.Context, playerID string) ([]models.Perk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.loadouts[playerID]
	out := make([]models.Perk, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.perks[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// Equip adds a perk to the player's loadout. Equipping twice is a no-op.
func (c *Catalog) Equip(ctx context.Context, playerID, perkID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.perks[perkID]; !ok {
		return ErrPerkNotFound
	}
	for _, id := range c.loadouts[playerID] {
		if id == perkID {
			return nil
		}
	}
	c.loadouts[playerID] = append(c.loadouts[playerID], perkID)
	return nil
}

func (c *Catalog) Unequip(ctx context.Context, playerID, perkID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.loadouts[playerID]
	for i, id := range ids {
		if id == perkID {
			c.loadouts[playerID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return ErrPerkNotFound
}

// DefaultPerks is the catalog shipped with the server.
func DefaultPerks() []models.Perk {
	return []models.Perk{
		{ID: "extra-time", Name: "Extra Time", Category: "timer", EffectType: models.EffectTimeBonus, EffectConfig: map[string]any{"seconds": 5.0}, Tier: 1},
		{ID: "slow-clock", Name: "Slow Clock", Category: "timer", EffectType: models.EffectTimerSlow, EffectConfig: map[string]any{"multiplier": 0.85}, Tier: 2},
		{ID: "time-freeze", Name: "Time Freeze", Category: "timer", EffectType: models.EffectTimeFreeze, EffectConfig: map[string]any{"uses": 1.0}, Tier: 3},

		{ID: "sharp-mind", Name: "Sharp Mind", Category: "score", EffectType: models.EffectScoreMultiplier, EffectConfig: map[string]any{"multiplier": 1.1}, Tier: 1},
		{ID: "big-brain", Name: "Big Brain", Category: "score", EffectType: models.EffectScoreMultiplier, EffectConfig: map[string]any{"multiplier": 1.25}, Tier: 3},
		{ID: "steady-hand", Name: "Steady Hand", Category: "score", EffectType: models.EffectFlatBonus, EffectConfig: map[string]any{"points": 10.0}, Tier: 1},
		{ID: "quick-draw", Name: "Quick Draw", Category: "score", EffectType: models.EffectSpeedBonus, EffectConfig: map[string]any{"threshold_seconds": 5.0, "points": 20.0}, Tier: 1},
		{ID: "lightning", Name: "Lightning", Category: "score", EffectType: models.EffectSpeedBonus, EffectConfig: map[string]any{"threshold_seconds": 3.0, "points": 40.0}, Tier: 3},
		{ID: "closer", Name: "Closer", Category: "score", EffectType: models.EffectFinalStretch, EffectConfig: map[string]any{"questions": 3.0, "multiplier": 1.5}, Tier: 2},
		{ID: "flawless", Name: "Flawless", Category: "score", EffectType: models.EffectPerfectGame, EffectConfig: map[string]any{"points": 100.0}, Tier: 2},

		{ID: "momentum", Name: "Momentum", Category: "streak", EffectType: models.EffectStreakGrowth, EffectConfig: map[string]any{"rate": 0.1, "max_multiplier": 1.5}, Tier: 1},
		{ID: "on-fire", Name: "On Fire", Category: "streak", EffectType: models.EffectStreakCap, EffectConfig: map[string]any{"max_multiplier": 2.0}, Tier: 2},
		{ID: "hot-streak-xp", Name: "Hot Streak", Category: "streak", EffectType: models.EffectStreakXP, EffectConfig: map[string]any{"xp_per_streak": 2.0, "cap": 20.0}, Tier: 2},

		{ID: "second-chance", Name: "Second Chance", Category: "recovery", EffectType: models.EffectFreeWrong, EffectConfig: map[string]any{"uses": 1.0}, Tier: 1},
		{ID: "partial-credit", Name: "Partial Credit", Category: "recovery", EffectType: models.EffectPartialCredit, EffectConfig: map[string]any{"rate": 0.5}, Tier: 2},
		{ID: "shield", Name: "Streak Shield", Category: "recovery", EffectType: models.EffectStreakShield, EffectConfig: map[string]any{"uses": 1.0}, Tier: 2},
		{ID: "bounce-back", Name: "Bounce Back", Category: "recovery", EffectType: models.EffectBounceBack, EffectConfig: map[string]any{"points": 25.0}, Tier: 1},
		{ID: "underdog", Name: "Underdog", Category: "recovery", EffectType: models.EffectComeback, EffectConfig: map[string]any{"accuracy_threshold": 0.5, "points": 30.0}, Tier: 2},
		{ID: "phoenix", Name: "Phoenix", Category: "recovery", EffectType: models.EffectPhoenix, EffectConfig: map[string]any{"wrong_streak": 3.0, "multiplier": 2.0}, Tier: 3},

		{ID: "scout", Name: "Scout", Category: "info", EffectType: models.EffectRevealCategory, EffectConfig: map[string]any{"enabled": true}, Tier: 1},
		{ID: "appraiser", Name: "Appraiser", Category: "info", EffectType: models.EffectRevealDifficulty, EffectConfig: map[string]any{"enabled": true}, Tier: 1},
		{ID: "crowd-wisdom", Name: "Crowd Wisdom", Category: "info", EffectType: models.EffectAnswerStats, EffectConfig: map[string]any{"enabled": true}, Tier: 2},
		{ID: "fifty-fifty", Name: "Fifty-Fifty", Category: "info", EffectType: models.EffectFiftyFifty, EffectConfig: map[string]any{"uses": 1.0}, Tier: 2},
		{ID: "hint", Name: "Hint", Category: "info", EffectType: models.EffectHint, EffectConfig: map[string]any{"uses": 2.0}, Tier: 1},

		{ID: "scholar", Name: "Scholar", Category: "xp", EffectType: models.EffectXPMultiplier, EffectConfig: map[string]any{"multiplier": 1.2}, Tier: 1},
		{ID: "diligent", Name: "Diligent", Category: "xp", EffectType: models.EffectXPBonus, EffectConfig: map[string]any{"xp": 15.0}, Tier: 1},
		{ID: "perfectionist", Name: "Perfectionist", Category: "xp", EffectType: models.EffectPerfectXP, EffectConfig: map[string]any{"multiplier": 1.5}, Tier: 3},
	}
}
