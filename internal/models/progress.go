package models

import "time"

type CharacterProgress struct {
	PlayerID         string    `json:"player_id"`
	Level            int       `json:"level"`
	ExperiencePoints int64     `json:"experience_points"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DraftOffer is a set of perks a player may pick from after levelling up.
type DraftOffer struct {
	ID       string `json:"id"`
	PlayerID string `json:"player_id"`
	Level    int    `json:"level"`
	Perks    []Perk `json:"perks"`
	Drafted  bool   `json:"drafted"`
	Dumped   bool   `json:"dumped"`
}

// Pending reports whether the offer still needs a decision from the player.
func (d DraftOffer) Pending() bool {
	return !d.Drafted && !d.Dumped && len(d.Perks) > 0
}
