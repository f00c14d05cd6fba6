package draft

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/google/uuid"

	"trivia-arena/internal/models"
)

const DefaultSize = 3

// Catalog is the slice of the perk catalog the generator reads.
type Catalog interface {
	ListPerks(ctx context.Context) ([]models.Perk, error)
	GetActivePerkSet(ctx context.Context, playerID string) ([]models.Perk, error)
}

// Generator builds level-up offers from the perk catalog. Offers for the
// same player and level always contain the same perks.
type Generator struct {
	catalog Catalog
	size    int
}

func NewGenerator(catalog Catalog, size int) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{catalog: catalog, size: size}
}

// MaxTier is the highest perk tier offered at level.
func MaxTier(level int) int {
	if level < 1 {
		level = 1
	}
	return 1 + level/5
}

func (g *Generator) GenerateDraftOffer(ctx context.Context, playerID string, level int) (models.DraftOffer, error) {
	all, err := g.catalog.ListPerks(ctx)
	if err != nil {
		return models.DraftOffer{}, fmt.Errorf("list perks: %w", err)
	}
	active, err := g.catalog.GetActivePerkSet(ctx, playerID)
	if err != nil {
		return models.DraftOffer{}, fmt.Errorf("load active perks for %s: %w", playerID, err)
	}
	owned := make(map[string]struct{}, len(active))
	for _, p := range active {
		owned[p.ID] = struct{}{}
	}

	limit := MaxTier(level)
	eligible := make([]models.Perk, 0, len(all))
	for _, p := range all {
		if p.Tier > limit {
			continue
		}
		if _, ok := owned[p.ID]; ok {
			continue
		}
		eligible = append(eligible, p)
	}

	rng := rand.New(rand.NewPCG(seed(playerID, level)))
	rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	if len(eligible) > g.size {
		eligible = eligible[:g.size]
	}

	return models.DraftOffer{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Level:    level,
		Perks:    eligible,
	}, nil
}

func seed(playerID string, level int) (uint64, uint64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(playerID))
	return h.Sum64(), uint64(level)
}
