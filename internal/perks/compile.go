// Package perks folds a player's active perks into a single
// GameplayModifiers value and serves the perk catalog.
package perks

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"trivia-arena/internal/models"
)

type combinator int

const (
	combineMultiply combinator = iota
	combineAdd
	combineMax
	combineOr
	combineCount
	combinePairedMax
)

// field reads and writes one numeric modifier, whatever its Go type.
type field struct {
	get func(*models.GameplayModifiers) float64
	set func(*models.GameplayModifiers, float64)
}

func floatField(sel func(*models.GameplayModifiers) *float64) field {
	return field{
		get: func(m *models.GameplayModifiers) float64 { return *sel(m) },
		set: func(m *models.GameplayModifiers, v float64) { *sel(m) = v },
	}
}

func intField(sel func(*models.GameplayModifiers) *int) field {
	return field{
		get: func(m *models.GameplayModifiers) float64 { return float64(*sel(m)) },
		set: func(m *models.GameplayModifiers, v float64) { *sel(m) = int(v) },
	}
}

type rule struct {
	key     string
	combine combinator
	target  field
	flag    func(*models.GameplayModifiers) *bool

	// pairedMax only: the value that travels with target and is compared
	// only to break ties.
	pairKey    string
	pairTarget field
}

func multiply(key string, f field) rule { return rule{key: key, combine: combineMultiply, target: f} }
func add(key string, f field) rule      { return rule{key: key, combine: combineAdd, target: f} }
func best(key string, f field) rule     { return rule{key: key, combine: combineMax, target: f} }
func count(key string, f field) rule    { return rule{key: key, combine: combineCount, target: f} }

func flag(key string, sel func(*models.GameplayModifiers) *bool) rule {
	return rule{key: key, combine: combineOr, flag: sel}
}

func pairedBest(key string, f field, pairKey string, pair field) rule {
	return rule{key: key, combine: combinePairedMax, target: f, pairKey: pairKey, pairTarget: pair}
}

type gm = models.GameplayModifiers

// effects maps every effect type to the fields it touches and how.
var effects = map[models.EffectType][]rule{
	models.EffectTimeBonus: {add("seconds", floatField(func(m *gm) *float64 { return &m.BonusSeconds }))},
	models.EffectTimerSlow: {multiply("multiplier", floatField(func(m *gm) *float64 { return &m.TimerSpeedMultiplier }))},

	models.EffectScoreMultiplier: {multiply("multiplier", floatField(func(m *gm) *float64 { return &m.BaseScoreMultiplier }))},
	models.EffectFlatBonus:       {add("points", floatField(func(m *gm) *float64 { return &m.FlatBonusPerCorrect }))},
	models.EffectSpeedBonus: {pairedBest(
		"points", floatField(func(m *gm) *float64 { return &m.SpeedBonusPoints }),
		"threshold_seconds", floatField(func(m *gm) *float64 { return &m.SpeedThresholdSeconds }),
	)},
	models.EffectFinalStretch: {
		best("questions", intField(func(m *gm) *int { return &m.FinalQuestionsCount })),
		multiply("multiplier", floatField(func(m *gm) *float64 { return &m.FinalQuestionsMultiplier })),
	},
	models.EffectPerfectGame: {add("points", floatField(func(m *gm) *float64 { return &m.PerfectGameBonus }))},

	// A growth perk may carry its own ceiling so it works without a cap perk.
	models.EffectStreakGrowth: {
		add("rate", floatField(func(m *gm) *float64 { return &m.StreakGrowthRate })),
		best("max_multiplier", floatField(func(m *gm) *float64 { return &m.MaxStreakMultiplier })),
	},
	models.EffectStreakCap: {best("max_multiplier", floatField(func(m *gm) *float64 { return &m.MaxStreakMultiplier }))},
	models.EffectStreakXP: {
		add("xp_per_streak", floatField(func(m *gm) *float64 { return &m.StreakXPPerAnswer })),
		add("cap", floatField(func(m *gm) *float64 { return &m.StreakXPCap })),
	},

	models.EffectFreeWrong:     {count("uses", intField(func(m *gm) *int { return &m.FreeWrongAnswers }))},
	models.EffectPartialCredit: {best("rate", floatField(func(m *gm) *float64 { return &m.PartialCreditRate }))},
	models.EffectStreakShield:  {count("uses", intField(func(m *gm) *int { return &m.StreakShields }))},
	models.EffectBounceBack:    {add("points", floatField(func(m *gm) *float64 { return &m.BounceBackBonus }))},
	models.EffectComeback: {pairedBest(
		"points", floatField(func(m *gm) *float64 { return &m.ComebackBonus }),
		"accuracy_threshold", floatField(func(m *gm) *float64 { return &m.ComebackAccuracyThreshold }),
	)},
	models.EffectPhoenix: {pairedBest(
		"multiplier", floatField(func(m *gm) *float64 { return &m.PhoenixMultiplier }),
		"wrong_streak", intField(func(m *gm) *int { return &m.PhoenixWrongStreak }),
	)},

	models.EffectRevealCategory:   {flag("enabled", func(m *gm) *bool { return &m.RevealCategory })},
	models.EffectRevealDifficulty: {flag("enabled", func(m *gm) *bool { return &m.RevealDifficulty })},
	models.EffectAnswerStats:      {flag("enabled", func(m *gm) *bool { return &m.RevealAnswerStats })},
	models.EffectFiftyFifty:       {count("uses", intField(func(m *gm) *int { return &m.FiftyFiftyUses }))},
	models.EffectHint:             {count("uses", intField(func(m *gm) *int { return &m.HintUses }))},
	models.EffectTimeFreeze:       {count("uses", intField(func(m *gm) *int { return &m.TimeFreezeUses }))},

	models.EffectXPMultiplier: {multiply("multiplier", floatField(func(m *gm) *float64 { return &m.XPMultiplier }))},
	models.EffectXPBonus:      {add("xp", floatField(func(m *gm) *float64 { return &m.FlatXPBonus }))},
	models.EffectPerfectXP:    {multiply("multiplier", floatField(func(m *gm) *float64 { return &m.PerfectGameXPMultiplier }))},
}

// Supported reports whether the compiler knows how to fold an effect type.
func Supported(t models.EffectType) bool {
	_, ok := effects[t]
	return ok
}

// Compile folds the active perks into one GameplayModifiers value. The
// result does not depend on the order of perks. Unknown effect types and
// missing or malformed config values leave the neutral value untouched.
func Compile(active []models.Perk) models.GameplayModifiers {
	mods := models.NeutralModifiers()
	for _, perk := range canonicalOrder(active) {
		for _, r := range effects[perk.EffectType] {
			r.apply(&mods, perk)
		}
	}
	return mods
}

func (r rule) apply(m *models.GameplayModifiers, perk models.Perk) {
	if r.combine == combineOr {
		on, ok := perk.Flag(r.key)
		if !ok {
			// The effect type itself is the flag.
			on = true
		}
		if on {
			*r.flag(m) = true
		}
		return
	}

	v, ok := perk.Number(r.key)
	if !ok {
		return
	}
	cur := r.target.get(m)
	switch r.combine {
	case combineMultiply:
		if v > 0 {
			r.target.set(m, cur*v)
		}
	case combineAdd:
		r.target.set(m, cur+v)
	case combineMax:
		r.target.set(m, math.Max(cur, v))
	case combineCount:
		if v > 0 {
			r.target.set(m, cur+math.Floor(v))
		}
	case combinePairedMax:
		pv, ok := perk.Number(r.pairKey)
		if !ok {
			return
		}
		pcur := r.pairTarget.get(m)
		if v > cur || (v == cur && pv > pcur) {
			r.target.set(m, v)
			r.pairTarget.set(m, pv)
		}
	}
}

// canonicalOrder sorts a copy of the perks so floating point folds are
// bit-identical for every permutation of the input.
func canonicalOrder(active []models.Perk) []models.Perk {
	type keyed struct {
		perk models.Perk
		cfg  string
	}
	items := make([]keyed, len(active))
	for i, p := range active {
		items[i] = keyed{perk: p, cfg: encodeConfig(p.EffectConfig)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.perk.ID != b.perk.ID {
			return a.perk.ID < b.perk.ID
		}
		if a.perk.EffectType != b.perk.EffectType {
			return a.perk.EffectType < b.perk.EffectType
		}
		if a.perk.Tier != b.perk.Tier {
			return a.perk.Tier < b.perk.Tier
		}
		return a.cfg < b.cfg
	})
	out := make([]models.Perk, len(items))
	for i, it := range items {
		out[i] = it.perk
	}
	return out
}

func encodeConfig(cfg map[string]any) string {
	if len(cfg) == 0 {
		return ""
	}
	// encoding/json writes map keys sorted.
	raw, err := json.Marshal(cfg)
	if err != nil {
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := ""
		for _, k := range keys {
			s += fmt.Sprintf("%s=%v;", k, cfg[k])
		}
		return s
	}
	return string(raw)
}
