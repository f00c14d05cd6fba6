package draft

import (
	"context"
	"errors"
	"testing"

	"trivia-arena/internal/models"
	"trivia-arena/internal/perks"
)

func newCatalog(t *testing.T) *perks.Catalog {
	t.Helper()
	c, err := perks.NewCatalog(perks.DefaultPerks())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestMaxTier(t *testing.T) {
	tests := []struct{ level, want int }{
		{level: 1, want: 1},
		{level: 4, want: 1},
		{level: 5, want: 2},
		{level: 10, want: 3},
		{level: 0, want: 1},
	}
	for _, tc := range tests {
		if got := MaxTier(tc.level); got != tc.want {
			t.Fatalf("MaxTier(%d) = %d want %d", tc.level, got, tc.want)
		}
	}
}

func TestGenerateDraftOfferRespectsTierAndLoadout(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(t)
	if err := catalog.Equip(ctx, "p1", "quick-draw"); err != nil {
		t.Fatalf("equip: %v", err)
	}
	gen := NewGenerator(catalog, 0)

	offer, err := gen.GenerateDraftOffer(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if offer.ID == "" || offer.PlayerID != "p1" || offer.Level != 2 {
		t.Fatalf("unexpected offer header %+v", offer)
	}
	if len(offer.Perks) != DefaultSize {
		t.Fatalf("offer has %d perks want %d", len(offer.Perks), DefaultSize)
	}
	seen := map[string]bool{}
	for _, p := range offer.Perks {
		if p.Tier > MaxTier(2) {
			t.Fatalf("perk %s tier %d above limit", p.ID, p.Tier)
		}
		if p.ID == "quick-draw" {
			t.Fatal("offer contains an already equipped perk")
		}
		if seen[p.ID] {
			t.Fatalf("duplicate perk %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestGenerateDraftOfferIsReproducible(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(newCatalog(t), 3)

	a, err := gen.GenerateDraftOffer(ctx, "p1", 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := gen.GenerateDraftOffer(ctx, "p1", 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("offers should get distinct ids")
	}
	for i := range a.Perks {
		if a.Perks[i].ID != b.Perks[i].ID {
			t.Fatalf("perk %d differs: %s vs %s", i, a.Perks[i].ID, b.Perks[i].ID)
		}
	}
}

type stubCatalog struct {
	perks []models.Perk
	err   error
}

func (s stubCatalog) ListPerks(context.Context) ([]models.Perk, error) { return s.perks, s.err }
func (s stubCatalog) GetActivePerkSet(context.Context, string) ([]models.Perk, error) {
	return nil, nil
}

func TestGenerateDraftOfferEmptyAndFailingCatalog(t *testing.T) {
	ctx := context.Background()

	offer, err := NewGenerator(stubCatalog{perks: []models.Perk{{ID: "big", Tier: 5}}}, 3).GenerateDraftOffer(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(offer.Perks) != 0 || offer.Pending() {
		t.Fatalf("expected empty offer, got %+v", offer)
	}

	boom := errors.New("boom")
	if _, err := NewGenerator(stubCatalog{err: boom}, 3).GenerateDraftOffer(ctx, "p1", 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped catalog error, got %v", err)
	}
}
