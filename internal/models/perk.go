package models

import (
	"math"
	"strconv"
)

type EffectType string

const (
	EffectTimeBonus        EffectType = "time_bonus"
	EffectTimerSlow        EffectType = "timer_slow"
	EffectScoreMultiplier  EffectType = "score_multiplier"
	EffectFlatBonus        EffectType = "flat_bonus"
	EffectSpeedBonus       EffectType = "speed_bonus"
	EffectStreakGrowth     EffectType = "streak_growth"
	EffectStreakCap        EffectType = "streak_cap"
	EffectStreakXP         EffectType = "streak_xp"
	EffectFreeWrong        EffectType = "free_wrong"
	EffectPartialCredit    EffectType = "partial_credit"
	EffectStreakShield     EffectType = "streak_shield"
	EffectBounceBack       EffectType = "bounce_back"
	EffectComeback         EffectType = "comeback"
	EffectPhoenix          EffectType = "phoenix"
	EffectFinalStretch     EffectType = "final_stretch"
	EffectPerfectGame      EffectType = "perfect_game"
	EffectRevealCategory   EffectType = "reveal_category"
	EffectRevealDifficulty EffectType = "reveal_difficulty"
	EffectAnswerStats      EffectType = "answer_stats"
	EffectFiftyFifty       EffectType = "fifty_fifty"
	EffectHint             EffectType = "hint"
	EffectTimeFreeze       EffectType = "time_freeze"
	EffectXPMultiplier     EffectType = "xp_multiplier"
	EffectXPBonus          EffectType = "xp_bonus"
	EffectPerfectXP        EffectType = "perfect_xp"
)

// Perk is an immutable catalog entry.
type Perk struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Category     string         `json:"category"`
	EffectType   EffectType     `json:"effect_type"`
	EffectConfig map[string]any `json:"effect_config"`
	Tier         int            `json:"tier"`
}

// Number reads a finite numeric config value. Strings holding numbers are
// accepted since catalogs are often hand-edited JSON.
func (p Perk) Number(key string) (float64, bool) {
	raw, ok := p.EffectConfig[key]
	if !ok {
		return 0, false
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Flag reads a boolean config value. Numbers count as true when non-zero.
func (p Perk) Flag(key string) (bool, bool) {
	raw, ok := p.EffectConfig[key]
	if !ok {
		return false, false
	}
	if b, ok := raw.(bool); ok {
		return b, true
	}
	if v, ok := p.Number(key); ok {
		return v != 0, true
	}
	return false, false
}

// Clone copies the config map so callers cannot mutate catalog entries.
func (p Perk) Clone() Perk {
	if p.EffectConfig != nil {
		cfg := make(map[string]any, len(p.EffectConfig))
		for k, v := range p.EffectConfig {
			cfg[k] = v
		}
		p.EffectConfig = cfg
	}
	return p
}
