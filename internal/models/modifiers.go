package models

// GameplayModifiers is the aggregate of a player's active perks. It is
// derived on every scoring evaluation and never stored.
type GameplayModifiers struct {
	// Timer
	BonusSeconds         float64 `json:"bonus_seconds"`
	TimerSpeedMultiplier float64 `json:"timer_speed_multiplier"`

	// Score
	BaseScoreMultiplier      float64 `json:"base_score_multiplier"`
	FlatBonusPerCorrect      float64 `json:"flat_bonus_per_correct"`
	SpeedThresholdSeconds    float64 `json:"speed_threshold_seconds"`
	SpeedBonusPoints         float64 `json:"speed_bonus_points"`
	FinalQuestionsCount      int     `json:"final_questions_count"`
	FinalQuestionsMultiplier float64 `json:"final_questions_multiplier"`
	PerfectGameBonus         float64 `json:"perfect_game_bonus"`

	// Streaks
	StreakGrowthRate    float64 `json:"streak_growth_rate"`
	MaxStreakMultiplier float64 `json:"max_streak_multiplier"`
	StreakXPPerAnswer   float64 `json:"streak_xp_per_answer"`
	StreakXPCap         float64 `json:"streak_xp_cap"`

	// Recovery
	FreeWrongAnswers          int     `json:"free_wrong_answers"`
	PartialCreditRate         float64 `json:"partial_credit_rate"`
	StreakShields             int     `json:"streak_shields"`
	BounceBackBonus           float64 `json:"bounce_back_bonus"`
	ComebackBonus             float64 `json:"comeback_bonus"`
	ComebackAccuracyThreshold float64 `json:"comeback_accuracy_threshold"`
	PhoenixMultiplier         float64 `json:"phoenix_multiplier"`
	PhoenixWrongStreak        int     `json:"phoenix_wrong_streak"`

	// Information
	RevealCategory    bool `json:"reveal_category"`
	RevealDifficulty  bool `json:"reveal_difficulty"`
	RevealAnswerStats bool `json:"reveal_answer_stats"`
	FiftyFiftyUses    int  `json:"fifty_fifty_uses"`
	HintUses          int  `json:"hint_uses"`
	TimeFreezeUses    int  `json:"time_freeze_uses"`

	// Experience
	XPMultiplier            float64 `json:"xp_multiplier"`
	FlatXPBonus             float64 `json:"flat_xp_bonus"`
	PerfectGameXPMultiplier float64 `json:"perfect_game_xp_multiplier"`
}

// NeutralModifiers is the value a player with no perks plays with.
func NeutralModifiers() GameplayModifiers {
	return GameplayModifiers{
		TimerSpeedMultiplier:     1,
		BaseScoreMultiplier:      1,
		FinalQuestionsMultiplier: 1,
		MaxStreakMultiplier:      1,
		PhoenixMultiplier:        1,
		XPMultiplier:             1,
		PerfectGameXPMultiplier:  1,
	}
}

// ScoreContext describes the situation a single answer is scored in.
type ScoreContext struct {
	QuestionIndex      int     `json:"question_index"`
	TotalQuestions     int     `json:"total_questions"`
	BasePoints         int     `json:"base_points"`
	RunningAccuracy    float64 `json:"running_accuracy"`
	WrongAnswersUsed   int     `json:"wrong_answers_used"`
	ShieldsUsed        int     `json:"shields_used"`
	CurrentStreak      int     `json:"current_streak"`
	CurrentWrongStreak int     `json:"current_wrong_streak"`
	InFinalWindow      bool    `json:"in_final_window"`
}
