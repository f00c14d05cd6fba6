// Package scoring turns an answer and a player's compiled modifiers into
// points, and a finished game into experience.
package scoring

import (
	"math"

	"trivia-arena/internal/models"
)

const (
	DefaultBasePoints = 100

	// PointsPerExperience converts final score into experience.
	PointsPerExperience = 10.0
)

type BonusKind string

const (
	BonusPartialCredit BonusKind = "partial_credit"
	BonusSpeed         BonusKind = "speed"
	BonusFlat          BonusKind = "flat"
	BonusBounceBack    BonusKind = "bounce_back"
	BonusComeback      BonusKind = "comeback"
	BonusPhoenix       BonusKind = "phoenix"
)

type Bonus struct {
	Kind   BonusKind `json:"kind"`
	Points int       `json:"points"`
}

type Result struct {
	PointsAwarded       int     `json:"points_awarded"`
	StreakDelta         int     `json:"streak_delta"`
	WrongAnswerConsumed bool    `json:"wrong_answer_consumed"`
	ShieldConsumed      bool    `json:"shield_consumed"`
	Bonuses             []Bonus `json:"bonuses,omitempty"`
}

// Summary is the per-player outcome of a game used for end-game bonuses.
type Summary struct {
	CorrectAnswers int `json:"correct_answers"`
	TotalQuestions int `json:"total_questions"`
}

func (s Summary) Perfect() bool {
	return s.TotalQuestions > 0 && s.CorrectAnswers == s.TotalQuestions
}

// InFinalWindow reports whether question index (0-based) falls in the last
// n questions of the game.
func InFinalWindow(index, total, n int) bool {
	return n > 0 && total > 0 && index >= total-n
}

// ScoreAnswer scores one answer.
func ScoreAnswer(mods models.GameplayModifiers, ctx models.ScoreContext, isCorrect bool, elapsedSeconds float64) Result {
	base := ctx.BasePoints
	if base <= 0 {
		base = DefaultBasePoints
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	if !isCorrect {
		return scoreWrong(mods, ctx, base)
	}

	var res Result
	res.StreakDelta = 1

	points := float64(base)

	streakMult := 1 + float64(ctx.CurrentStreak)*mods.StreakGrowthRate
	if streakMult > mods.MaxStreakMultiplier {
		streakMult = mods.MaxStreakMultiplier
	}
	if streakMult < 1 {
		streakMult = 1
	}
	points *= mods.BaseScoreMultiplier * streakMult
	if ctx.InFinalWindow || InFinalWindow(ctx.QuestionIndex, ctx.TotalQuestions, mods.FinalQuestionsCount) {
		points *= mods.FinalQuestionsMultiplier
	}

	if mods.SpeedBonusPoints > 0 && elapsedSeconds <= mods.SpeedThresholdSeconds {
		points += mods.SpeedBonusPoints
		res.Bonuses = append(res.Bonuses, Bonus{Kind: BonusSpeed, Points: round(mods.SpeedBonusPoints)})
	}
	if mods.FlatBonusPerCorrect != 0 {
		points += mods.FlatBonusPerCorrect
		res.Bonuses = append(res.Bonuses, Bonus{Kind: BonusFlat, Points: round(mods.FlatBonusPerCorrect)})
	}

	// Recovery only applies to the answer that ends a run of misses.
	if ctx.CurrentWrongStreak >= 1 && mods.BounceBackBonus > 0 {
		points += mods.BounceBackBonus
		res.Bonuses = append(res.Bonuses, Bonus{Kind: BonusBounceBack, Points: round(mods.BounceBackBonus)})
	}
	if mods.ComebackBonus > 0 && ctx.RunningAccuracy < mods.ComebackAccuracyThreshold {
		points += mods.ComebackBonus
		res.Bonuses = append(res.Bonuses, Bonus{Kind: BonusComeback, Points: round(mods.ComebackBonus)})
	}
	if mods.PhoenixWrongStreak > 0 && mods.PhoenixMultiplier > 1 && ctx.CurrentWrongStreak >= mods.PhoenixWrongStreak {
		before := points
		points *= mods.PhoenixMultiplier
		res.Bonuses = append(res.Bonuses, Bonus{Kind: BonusPhoenix, Points: round(points - before)})
	}

	res.PointsAwarded = nonNegative(round(points))
	return res
}

func scoreWrong(mods models.GameplayModifiers, ctx models.ScoreContext, base int) Result {
	var res Result
	switch {
	case mods.FreeWrongAnswers > ctx.WrongAnswersUsed:
		res.WrongAnswerConsumed = true
		if mods.PartialCreditRate > 0 {
			pts := nonNegative(round(mods.PartialCreditRate * float64(base)))
			res.PointsAwarded = pts
			res.Bonuses = append(res.Bonuses, Bonus{Kind: BonusPartialCredit, Points: pts})
		}
	case mods.StreakShields > ctx.ShieldsUsed:
		res.ShieldConsumed = true
	default:
		res.StreakDelta = -ctx.CurrentStreak
	}
	return res
}

// ApplyEndGameBonuses must run before ExperienceForGame: experience is
// computed from the post-bonus score.
func ApplyEndGameBonuses(baseScore int, mods models.GameplayModifiers, s Summary) int {
	if s.Perfect() && mods.PerfectGameBonus > 0 {
		return baseScore + round(mods.PerfectGameBonus)
	}
	return baseScore
}

// ExperienceForGame converts a final score into experience.
func ExperienceForGame(finalScore int, mods models.GameplayModifiers, s Summary, bestStreak int) int64 {
	xp := float64(finalScore) / PointsPerExperience * mods.XPMultiplier
	if s.Perfect() {
		xp *= mods.PerfectGameXPMultiplier
	}
	xp += mods.FlatXPBonus

	streakXP := float64(bestStreak) * mods.StreakXPPerAnswer
	if mods.StreakXPCap > 0 && streakXP > mods.StreakXPCap {
		streakXP = mods.StreakXPCap
	}
	xp += streakXP

	if xp < 0 {
		return 0
	}
	return int64(math.Round(xp))
}

// EffectiveTimeLimit is how long the player actually has to answer.
func EffectiveTimeLimit(mods models.GameplayModifiers, baseSeconds int) float64 {
	speed := mods.TimerSpeedMultiplier
	if speed <= 0 {
		speed = 1
	}
	limit := (float64(baseSeconds) + mods.BonusSeconds) / speed
	if limit < 1 {
		return 1
	}
	return limit
}

func round(v float64) int {
	return int(math.Round(v))
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
