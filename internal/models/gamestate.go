package models

import "time"

// PlayerState is one player's running tally during a game.
type PlayerState struct {
	Score            int          `json:"score"`
	Streak           int          `json:"streak"`
	BestStreak       int          `json:"best_streak"`
	WrongStreak      int          `json:"wrong_streak"`
	Correct          int          `json:"correct"`
	Answered         int          `json:"answered"`
	WrongAnswersUsed int          `json:"wrong_answers_used"`
	ShieldsUsed      int          `json:"shields_used"`
	answers          map[int]bool // question index -> answered
}

func (p *PlayerState) HasAnswered(index int) bool {
	return p.answers[index]
}

func (p *PlayerState) MarkAnswered(index int) {
	if p.answers == nil {
		p.answers = make(map[int]bool)
	}
	p.answers[index] = true
	p.Answered++
}

// Accuracy is the share of answered questions that were correct. A player
// who has not answered yet counts as fully accurate.
func (p *PlayerState) Accuracy() float64 {
	if p.Answered == 0 {
		return 1
	}
	return float64(p.Correct) / float64(p.Answered)
}

// GameState is the per-lobby gameplay state held alongside a STARTED lobby.
type GameState struct {
	Questions       []Question
	Current         int
	Window          time.Duration // how long each question stays open
	QuestionStarted time.Time
	Deadline        time.Time
	Players         map[string]*PlayerState
}

func NewGameState(questions []Question, players []*Player, now time.Time, window time.Duration) *GameState {
	g := &GameState{
		Questions:       questions,
		Window:          window,
		QuestionStarted: now,
		Deadline:        now.Add(window),
		Players:         make(map[string]*PlayerState, len(players)),
	}
	for _, p := range players {
		g.Players[p.ID] = &PlayerState{}
	}
	return g
}

// CurrentQuestion returns the active question, or false once every question
// has been played.
func (g *GameState) CurrentQuestion() (Question, bool) {
	if g == nil || g.Current < 0 || g.Current >= len(g.Questions) {
		return Question{}, false
	}
	return g.Questions[g.Current], true
}

// Advance moves to the next question and reports whether one remains.
func (g *GameState) Advance(now time.Time) bool {
	g.Current++
	g.QuestionStarted = now
	g.Deadline = now.Add(g.Window)
	return g.Current < len(g.Questions)
}

// AnsweredCount is how many players have answered the current question.
func (g *GameState) AnsweredCount() int {
	n := 0
	for _, ps := range g.Players {
		if ps.HasAnswered(g.Current) {
			n++
		}
	}
	return n
}

func (g *GameState) Player(id string) *PlayerState {
	ps, ok := g.Players[id]
	if !ok {
		ps = &PlayerState{}
		g.Players[id] = ps
	}
	return ps
}
