package scoring

import (
	"context"
	"testing"

	"trivia-arena/internal/models"
	"trivia-arena/internal/perks"
)

func speedPerk() models.Perk {
	return models.Perk{
		ID:           "quick-draw",
		EffectType:   models.EffectSpeedBonus,
		EffectConfig: map[string]any{"threshold_seconds": 5.0, "points": 20.0},
	}
}

func TestScoreAnswerSpeedBonus(t *testing.T) {
	mods := perks.Compile([]models.Perk{speedPerk()})
	ctx := models.ScoreContext{QuestionIndex: 0, TotalQuestions: 10, BasePoints: 100}

	fast := ScoreAnswer(mods, ctx, true, 3)
	if fast.PointsAwarded != 120 {
		t.Fatalf("fast answer got %d want 120", fast.PointsAwarded)
	}
	if fast.StreakDelta != 1 {
		t.Fatalf("streak delta got %d want 1", fast.StreakDelta)
	}

	slow := ScoreAnswer(mods, ctx, true, 6)
	if slow.PointsAwarded != 100 {
		t.Fatalf("slow answer got %d want 100", slow.PointsAwarded)
	}

	edge := ScoreAnswer(mods, ctx, true, 5)
	if edge.PointsAwarded != 120 {
		t.Fatalf("answer on the threshold got %d want 120", edge.PointsAwarded)
	}
}

func TestScoreAnswerNeutral(t *testing.T) {
	mods := models.NeutralModifiers()
	got := ScoreAnswer(mods, models.ScoreContext{}, true, 1)
	if got.PointsAwarded != DefaultBasePoints {
		t.Fatalf("got %d want %d", got.PointsAwarded, DefaultBasePoints)
	}
	if len(got.Bonuses) != 0 {
		t.Fatalf("expected no bonuses, got %+v", got.Bonuses)
	}

	wrong := ScoreAnswer(mods, models.ScoreContext{CurrentStreak: 4}, false, 1)
	if wrong.PointsAwarded != 0 || wrong.StreakDelta != -4 {
		t.Fatalf("wrong answer got %+v", wrong)
	}
}

func TestScoreAnswerStreakMultiplierIsCapped(t *testing.T) {
	mods := models.NeutralModifiers()
	mods.StreakGrowthRate = 0.25
	mods.MaxStreakMultiplier = 1.5

	tests := []struct {
		streak int
		want   int
	}{
		{streak: 0, want: 100},
		{streak: 1, want: 125},
		{streak: 2, want: 150},
		{streak: 10, want: 150},
	}
	for _, tc := range tests {
		got := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, CurrentStreak: tc.streak}, true, 10)
		if got.PointsAwarded != tc.want {
			t.Fatalf("streak=%d got %d want %d", tc.streak, got.PointsAwarded, tc.want)
		}
	}
}

func TestCatalogPerksChangeScoresOnTheirOwn(t *testing.T) {
	catalog, err := perks.NewCatalog(perks.DefaultPerks())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ctx := models.ScoreContext{BasePoints: 100, CurrentStreak: 5, TotalQuestions: 10}

	momentum, err := catalog.GetPerk(context.Background(), "momentum")
	if err != nil {
		t.Fatalf("get perk: %v", err)
	}
	got := ScoreAnswer(perks.Compile([]models.Perk{momentum}), ctx, true, 10)
	if got.PointsAwarded != 150 {
		t.Fatalf("momentum alone at streak 5 got %d want 150", got.PointsAwarded)
	}

	onFire, err := catalog.GetPerk(context.Background(), "on-fire")
	if err != nil {
		t.Fatalf("get perk: %v", err)
	}
	ctx.CurrentStreak = 10
	alone := ScoreAnswer(perks.Compile([]models.Perk{momentum}), ctx, true, 10)
	stacked := ScoreAnswer(perks.Compile([]models.Perk{momentum, onFire}), ctx, true, 10)
	if alone.PointsAwarded != 150 || stacked.PointsAwarded != 200 {
		t.Fatalf("streak 10: alone %d want 150, with on-fire %d want 200", alone.PointsAwarded, stacked.PointsAwarded)
	}
}

func TestScoreAnswerFreeWrongAndShield(t *testing.T) {
	mods := models.NeutralModifiers()
	mods.FreeWrongAnswers = 1
	mods.PartialCreditRate = 0.5
	mods.StreakShields = 1

	first := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, CurrentStreak: 3}, false, 2)
	if !first.WrongAnswerConsumed || first.PointsAwarded != 50 || first.StreakDelta != 0 {
		t.Fatalf("free wrong got %+v", first)
	}

	second := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, CurrentStreak: 3, WrongAnswersUsed: 1}, false, 2)
	if !second.ShieldConsumed || second.WrongAnswerConsumed || second.PointsAwarded != 0 || second.StreakDelta != 0 {
		t.Fatalf("shield got %+v", second)
	}

	third := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, CurrentStreak: 3, WrongAnswersUsed: 1, ShieldsUsed: 1}, false, 2)
	if third.StreakDelta != -3 || third.PointsAwarded != 0 {
		t.Fatalf("unprotected wrong got %+v", third)
	}
}

func TestScoreAnswerRecovery(t *testing.T) {
	mods := models.NeutralModifiers()
	mods.BounceBackBonus = 25
	mods.ComebackBonus = 30
	mods.ComebackAccuracyThreshold = 0.5
	mods.PhoenixMultiplier = 2
	mods.PhoenixWrongStreak = 3

	none := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, RunningAccuracy: 0.9}, true, 1)
	if none.PointsAwarded != 100 {
		t.Fatalf("no recovery expected, got %d", none.PointsAwarded)
	}

	bounce := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, RunningAccuracy: 0.9, CurrentWrongStreak: 1}, true, 1)
	if bounce.PointsAwarded != 125 {
		t.Fatalf("bounce back got %d want 125", bounce.PointsAwarded)
	}

	comeback := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, RunningAccuracy: 0.3, CurrentWrongStreak: 1}, true, 1)
	if comeback.PointsAwarded != 155 {
		t.Fatalf("comeback got %d want 155", comeback.PointsAwarded)
	}

	phoenix := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, RunningAccuracy: 0.3, CurrentWrongStreak: 3}, true, 1)
	if phoenix.PointsAwarded != 310 {
		t.Fatalf("phoenix got %d want 310", phoenix.PointsAwarded)
	}
}

func TestScoreAnswerFinalWindow(t *testing.T) {
	mods := models.NeutralModifiers()
	mods.FinalQuestionsCount = 2
	mods.FinalQuestionsMultiplier = 1.5

	early := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, QuestionIndex: 7, TotalQuestions: 10}, true, 1)
	late := ScoreAnswer(mods, models.ScoreContext{BasePoints: 100, QuestionIndex: 8, TotalQuestions: 10}, true, 1)
	if early.PointsAwarded != 100 || late.PointsAwarded != 150 {
		t.Fatalf("early=%d late=%d", early.PointsAwarded, late.PointsAwarded)
	}
}

func TestPerfectGameBonusFeedsExperience(t *testing.T) {
	mods := perks.Compile([]models.Perk{{
		ID:           "flawless",
		EffectType:   models.EffectPerfectGame,
		EffectConfig: map[string]any{"points": 100.0},
	}})

	perfect := Summary{CorrectAnswers: 10, TotalQuestions: 10}
	flawed := Summary{CorrectAnswers: 9, TotalQuestions: 10}

	if got := ApplyEndGameBonuses(1000, mods, perfect); got != 1100 {
		t.Fatalf("perfect got %d want 1100", got)
	}
	if got := ApplyEndGameBonuses(1000, mods, flawed); got != 1000 {
		t.Fatalf("flawed got %d want 1000", got)
	}

	withBonus := ExperienceForGame(ApplyEndGameBonuses(1000, mods, perfect), mods, perfect, 0)
	withoutBonus := ExperienceForGame(1000, mods, perfect, 0)
	if withBonus-withoutBonus != 10 {
		t.Fatalf("bonus should add 10 xp, got %d vs %d", withBonus, withoutBonus)
	}
}

func TestExperienceForGame(t *testing.T) {
	mods := models.NeutralModifiers()
	mods.XPMultiplier = 1.5
	mods.FlatXPBonus = 5
	mods.StreakXPPerAnswer = 2
	mods.StreakXPCap = 10

	got := ExperienceForGame(1000, mods, Summary{CorrectAnswers: 5, TotalQuestions: 10}, 8)
	// 1000/10*1.5 + 5 + min(10, 16)
	if got != 165 {
		t.Fatalf("got %d want 165", got)
	}
	if ExperienceForGame(-500, models.NeutralModifiers(), Summary{}, 0) != 0 {
		t.Fatalf("experience must not be negative")
	}
}

func TestEffectiveTimeLimit(t *testing.T) {
	mods := models.NeutralModifiers()
	if got := EffectiveTimeLimit(mods, 30); got != 30 {
		t.Fatalf("neutral got %v", got)
	}
	mods.BonusSeconds = 10
	mods.TimerSpeedMultiplier = 0.5
	if got := EffectiveTimeLimit(mods, 30); got != 80 {
		t.Fatalf("slowed got %v want 80", got)
	}
	mods.TimerSpeedMultiplier = 0
	mods.BonusSeconds = -100
	if got := EffectiveTimeLimit(mods, 30); got != 1 {
		t.Fatalf("floor got %v want 1", got)
	}
}
