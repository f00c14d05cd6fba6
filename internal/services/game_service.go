package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"trivia-arena/internal/cache"
	"trivia-arena/internal/hub"
	"trivia-arena/internal/leveling"
	"trivia-arena/internal/models"
	"trivia-arena/internal/perks"
	"trivia-arena/internal/repository"
	"trivia-arena/internal/scoring"
)

const MaxListLimit = 50

// Hard limits that configuration may tighten but never relax.
const (
	LobbyCapacity    = 8
	MinQuestionFloor = 5
)

type Config struct {
	MaxLobbySize           int
	MinPlayers             int
	MinQuestionCount       int
	MaxQuestionCount       int
	DefaultQuestionCount   int
	DefaultTimeLimit       int
	MinTimeLimit           int
	MaxTimeLimit           int
	CodeAttempts           int
	CacheTTL               time.Duration
	CacheStale             time.Duration
	IdleLobbyTimeout       time.Duration
	FinishedLobbyRetention time.Duration
	AutoAdvance            bool
	AnswerGrace            time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxLobbySize:           LobbyCapacity,
		MinPlayers:             2,
		MinQuestionCount:       MinQuestionFloor,
		MaxQuestionCount:       50,
		DefaultQuestionCount:   10,
		DefaultTimeLimit:       30,
		MinTimeLimit:           5,
		MaxTimeLimit:           300,
		CodeAttempts:           10,
		CacheTTL:               2 * time.Second,
		CacheStale:             10 * time.Second,
		IdleLobbyTimeout:       30 * time.Minute,
		FinishedLobbyRetention: 10 * time.Minute,
		AnswerGrace:            2 * time.Second,
	}
}

// Leveler converts end-of-game experience into character progress.
type Leveler interface {
	AwardExperience(ctx context.Context, playerID string, rawXP int64) (leveling.Result, error)
	Progress(ctx context.Context, playerID string) (models.CharacterProgress, error)
}

type GameService struct {
	cfg       Config
	hub       *hub.Hub
	repo      repository.Repository
	questions QuestionSupply
	perks     perks.Provider
	leveler   Leveler
	log       *slog.Logger
	lobbies   *cache.Value[[]*models.Lobby]
	codes     CodeGenerator
	now       func() time.Time
}

type Option func(*GameService)

func WithQuestions(q QuestionSupply) Option {
	return func(gs *GameService) { gs.questions = q }
}

func WithPerks(p perks.Provider) Option {
	return func(gs *GameService) { gs.perks = p }
}

func WithLeveler(l Leveler) Option {
	return func(gs *GameService) { gs.leveler = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(gs *GameService) { gs.log = l }
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(gs *GameService) { gs.codes = g }
}

func WithClock(now func() time.Time) Option {
	return func(gs *GameService) { gs.now = now }
}

func NewGameService(cfg Config, h *hub.Hub, repo repository.Repository, opts ...Option) *GameService {
	gs := &GameService{
		cfg:       cfg,
		hub:       h,
		repo:      repo,
		questions: NewQuestionDatabase(),
		log:       slog.Default(),
		codes:     GenerateLobbyCode,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(gs)
	}
	gs.lobbies = cache.New(gs.loadActiveLobbies, cfg.CacheTTL, cfg.CacheStale)
	gs.lobbies.SetClock(gs.now)
	return gs
}

type LeaveResult struct {
	Lobby     *models.Lobby `json:"lobby,omitempty"`
	Deleted   bool          `json:"deleted"`
	NewHostID string        `json:"new_host_id,omitempty"`
}

type StartResult struct {
	Lobby          *models.Lobby   `json:"lobby"`
	Roster         []models.Player `json:"roster"`
	Settings       models.Settings `json:"settings"`
	TotalQuestions int             `json:"total_questions"`
	Question       QuestionView    `json:"question"`
}

type QuestionView struct {
	Index            int             `json:"index"`
	Total            int             `json:"total"`
	Question         models.Question `json:"question"`
	Deadline         time.Time       `json:"deadline"`
	TimeLimitSeconds float64         `json:"time_limit_seconds"`
	AnswersIn        *int            `json:"answers_in,omitempty"`
}

type AnswerResult struct {
	QuestionIndex int             `json:"question_index"`
	Correct       bool            `json:"correct"`
	PointsAwarded int             `json:"points_awarded"`
	Score         int             `json:"score"`
	Streak        int             `json:"streak"`
	Bonuses       []scoring.Bonus `json:"bonuses"`
}

type AdvanceResult struct {
	Finished bool           `json:"finished"`
	Question *QuestionView  `json:"question,omitempty"`
	Results  []PlayerResult `json:"results,omitempty"`
}

type PlayerResult struct {
	Player        models.Player       `json:"player"`
	Score         int                 `json:"score"`
	Correct       int                 `json:"correct"`
	BestStreak    int                 `json:"best_streak"`
	Experience    int64               `json:"experience"`
	OldLevel      int                 `json:"old_level,omitempty"`
	NewLevel      int                 `json:"new_level,omitempty"`
	LevelUp       bool                `json:"level_up"`
	PendingDrafts []models.DraftOffer `json:"pending_drafts,omitempty"`
}

// lockLobby validates code, finds its hub and takes the lobby lock.
func (gs *GameService) lockLobby(code string) (*hub.LobbyHub, error) {
	if !ValidLobbyCode(code) {
		return nil, ErrInvalidLobbyCodeFormat
	}
	lh := gs.hub.Get(code)
	if lh == nil || !lh.Lock() {
		return nil, ErrLobbyNotFound
	}
	return lh, nil
}

// commit persists next and makes it the lobby's current state.
func (gs *GameService) commit(ctx context.Context, lh *hub.LobbyHub, next *models.Lobby) error {
	if err := gs.repo.SaveLobby(ctx, next); err != nil {
		return fmt.Errorf("save lobby %s: %w", next.Code, err)
	}
	lh.Replace(next)
	return nil
}

func (gs *GameService) preparePlayer(ctx context.Context, p models.Player) (models.Player, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return models.Player{}, ErrInvalidPlayer
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CharacterLevel <= 0 {
		p.CharacterLevel = 1
		if gs.leveler != nil {
			progress, err := gs.leveler.Progress(ctx, p.ID)
			if err != nil {
				gs.log.Warn("load character level", "player_id", p.ID, "err", err)
			} else {
				p.CharacterLevel = progress.Level
			}
		}
	}
	return p, nil
}

func (gs *GameService) withDefaults(s models.Settings) models.Settings {
	s = s.Clone()
	if s.QuestionCount == 0 {
		s.QuestionCount = gs.cfg.DefaultQuestionCount
	}
	if s.TimeLimit == 0 {
		s.TimeLimit = gs.cfg.DefaultTimeLimit
	}
	if len(s.QuestionSetIDs) == 0 {
		s.QuestionSetIDs = gs.questions.KnownSets()
	}
	return s
}

func (gs *GameService) validateSettings(s models.Settings) error {
	switch {
	case s.QuestionCount < gs.cfg.MinQuestionCount:
		return invalidSettings(fmt.Sprintf("question count must be at least %d", gs.cfg.MinQuestionCount))
	case s.QuestionCount > gs.cfg.MaxQuestionCount:
		return invalidSettings(fmt.Sprintf("question count must be at most %d", gs.cfg.MaxQuestionCount))
	case len(s.QuestionSetIDs) == 0:
		return invalidSettings("at least one question set must be selected")
	case s.TimeLimit < gs.cfg.MinTimeLimit || s.TimeLimit > gs.cfg.MaxTimeLimit:
		return invalidSettings(fmt.Sprintf("time limit must be between %d and %d seconds", gs.cfg.MinTimeLimit, gs.cfg.MaxTimeLimit))
	}
	known := make(map[string]bool)
	for _, set := range gs.questions.KnownSets() {
		known[set] = true
	}
	seen := make(map[string]bool, len(s.QuestionSetIDs))
	for _, set := range s.QuestionSetIDs {
		if !known[set] {
			return invalidSettings(fmt.Sprintf("unknown question set %q", set))
		}
		if seen[set] {
			return invalidSettings(fmt.Sprintf("question set %q selected twice", set))
		}
		seen[set] = true
	}
	return nil
}

func (gs *GameService) CreateLobby(ctx context.Context, host models.Player, settings models.Settings) (*models.Lobby, error) {
	host, err := gs.preparePlayer(ctx, host)
	if err != nil {
		return nil, err
	}
	settings = gs.withDefaults(settings)
	if err := gs.validateSettings(settings); err != nil {
		return nil, err
	}

	var lh *hub.LobbyHub
	for attempt := 0; attempt < gs.cfg.CodeAttempts && lh == nil; attempt++ {
		code, err := gs.codes()
		if err != nil {
			return nil, err
		}
		if !ValidLobbyCode(code) {
			return nil, fmt.Errorf("code generator produced %q", code)
		}
		if created, ok := gs.hub.Create(models.NewLobby(code, host, settings, gs.now())); ok {
			lh = created
		}
	}
	if lh == nil {
		gs.log.Error("lobby code generation exhausted", "attempts", gs.cfg.CodeAttempts)
		return nil, ErrCodeGenerationExhausted
	}
	defer lh.Unlock()

	if err := gs.repo.SaveLobby(ctx, lh.Lobby()); err != nil {
		lh.Close()
		gs.hub.Remove(lh.Code(), lh)
		return nil, fmt.Errorf("save lobby %s: %w", lh.Code(), err)
	}
	gs.lobbies.Invalidate()

	snapshot := lh.Snapshot()
	gs.log.Info("lobby created", "code", snapshot.Code, "host_id", host.ID)
	lh.BroadcastEvent("lobby_created", payload{"lobby": snapshot})
	return snapshot.Clone(), nil
}

func (gs *GameService) JoinLobby(ctx context.Context, code string, player models.Player) (*models.Lobby, *models.Player, error) {
	if !ValidLobbyCode(code) {
		return nil, nil, ErrInvalidLobbyCodeFormat
	}
	player, err := gs.preparePlayer(ctx, player)
	if err != nil {
		return nil, nil, err
	}
	lh, err := gs.lockLobby(code)
	if err != nil {
		return nil, nil, err
	}
	defer lh.Unlock()

	current := lh.Lobby()
	switch {
	case len(current.Players) >= gs.cfg.MaxLobbySize:
		return nil, nil, ErrLobbyFull
	case current.Status != models.Waiting:
		return nil, nil, ErrNotAcceptingPlayers
	case current.GetPlayer(player.ID) != nil:
		return nil, nil, ErrAlreadyJoined
	}

	next := current.Clone()
	added := *next.AddPlayer(player, gs.now())
	if err := gs.commit(ctx, lh, next); err != nil {
		return nil, nil, err
	}

	snapshot := lh.Snapshot()
	gs.log.Info("player joined", "code", code, "player_id", added.ID, "players", len(snapshot.Players))
	lh.BroadcastEvent("player_joined", payload{"player": added, "lobby": snapshot})
	return snapshot.Clone(), &added, nil
}

func (gs *GameService) LeaveLobby(ctx context.Context, code, playerID string) (LeaveResult, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return LeaveResult{}, err
	}
	defer lh.Unlock()

	current := lh.Lobby()
	if current.GetPlayer(playerID) == nil {
		return LeaveResult{}, ErrPlayerNotFound
	}
	next := current.Clone()
	_, promoted := next.RemovePlayer(playerID, gs.now())

	if len(next.Players) == 0 {
		if err := gs.deleteLocked(ctx, lh); err != nil {
			return LeaveResult{}, err
		}
		gs.log.Info("lobby deleted after last player left", "code", code, "player_id", playerID)
		return LeaveResult{Deleted: true}, nil
	}

	if err := gs.commit(ctx, lh, next); err != nil {
		return LeaveResult{}, err
	}
	snapshot := lh.Snapshot()
	lh.BroadcastEvent("player_left", payload{"player_id": playerID, "lobby": snapshot})
	if promoted != "" {
		gs.log.Info("host promoted", "code", code, "host_id", promoted)
		lh.BroadcastEvent("host_changed", payload{"host_id": promoted})
	}
	return LeaveResult{Lobby: snapshot.Clone(), NewHostID: promoted}, nil
}

// deleteLocked removes the lobby everywhere. Must hold the lobby lock.
func (gs *GameService) deleteLocked(ctx context.Context, lh *hub.LobbyHub) error {
	if err := gs.repo.DeleteLobby(ctx, lh.Code()); err != nil {
		return fmt.Errorf("delete lobby %s: %w", lh.Code(), err)
	}
	lh.Close()
	lh.BroadcastEvent("lobby_deleted", payload{"code": lh.Code()})
	gs.hub.Remove(lh.Code(), lh)
	gs.lobbies.Invalidate()
	return nil
}

func (gs *GameService) UpdatePlayerReady(ctx context.Context, code, playerID string, ready bool) (*models.Lobby, error) {
	return gs.updatePlayer(ctx, code, playerID, "player_ready", func(p *models.Player) {
		p.IsReady = ready
	}, payload{"player_id": playerID, "is_ready": ready})
}

func (gs *GameService) UpdatePlayerConnection(ctx context.Context, code, playerID string, connected bool) (*models.Lobby, error) {
	return gs.updatePlayer(ctx, code, playerID, "player_connection", func(p *models.Player) {
		p.IsConnected = connected
	}, payload{"player_id": playerID, "is_connected": connected})
}

func (gs *GameService) updatePlayer(ctx context.Context, code, playerID, event string, mutate func(*models.Player), data payload) (*models.Lobby, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return nil, err
	}
	defer lh.Unlock()

	next := lh.Lobby().Clone()
	player := next.GetPlayer(playerID)
	if player == nil {
		return nil, ErrPlayerNotFound
	}
	mutate(player)
	next.UpdatedAt = gs.now()
	if err := gs.commit(ctx, lh, next); err != nil {
		return nil, err
	}
	lh.BroadcastEvent(event, data)
	return lh.Snapshot().Clone(), nil
}

func (gs *GameService) UpdateSettings(ctx context.Context, code, requesterID string, patch models.SettingsPatch) (*models.Lobby, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return nil, err
	}
	defer lh.Unlock()

	current := lh.Lobby()
	if requesterID == "" || requesterID != current.HostID {
		return nil, ErrPermissionDenied
	}
	if current.Status != models.Waiting {
		return nil, ErrGameAlreadyStarted
	}
	settings := patch.Apply(current.Settings)
	if err := gs.validateSettings(settings); err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Settings = settings
	next.UpdatedAt = gs.now()
	if err := gs.commit(ctx, lh, next); err != nil {
		return nil, err
	}
	lh.BroadcastEvent("settings_updated", payload{"settings": settings})
	return lh.Snapshot().Clone(), nil
}

func (gs *GameService) StartGame(ctx context.Context, code, requesterID string) (StartResult, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return StartResult{}, err
	}
	defer lh.Unlock()

	current := lh.Lobby()
	switch {
	case requesterID == "" || requesterID != current.HostID:
		return StartResult{}, ErrPermissionDenied
	case current.Status != models.Waiting:
		return StartResult{}, ErrGameAlreadyStarted
	case len(current.Players) < gs.cfg.MinPlayers:
		return StartResult{}, ErrInsufficientPlayers
	case !current.AllReady():
		return StartResult{}, ErrPlayersNotReady
	}

	questions, err := gs.questions.DrawQuestions(ctx, current.Settings)
	if err != nil {
		return StartResult{}, fmt.Errorf("draw questions for %s: %w", code, err)
	}

	now := gs.now()
	next := current.Clone()
	if !next.StartGame(now) {
		return StartResult{}, ErrGameAlreadyStarted
	}
	if err := gs.commit(ctx, lh, next); err != nil {
		return StartResult{}, err
	}
	lh.Game = models.NewGameState(questions, next.Players, now, gs.questionWindow(ctx, next))
	gs.lobbies.Invalidate()

	snapshot := lh.Snapshot()
	roster := make([]models.Player, len(snapshot.Players))
	for i, p := range snapshot.Players {
		roster[i] = *p
	}
	gs.log.Info("game started", "code", code, "players", len(roster), "questions", len(questions))
	lh.BroadcastEvent("game_started", payload{"lobby": snapshot, "total_questions": len(questions)})
	view := gs.announceQuestionLocked(ctx, lh)

	return StartResult{
		Lobby:          snapshot.Clone(),
		Roster:         roster,
		Settings:       snapshot.Settings.Clone(),
		TotalQuestions: len(questions),
		Question:       view,
	}, nil
}

// questionWindow is how long a question stays open for the whole lobby: the
// longest effective time limit among the players plus the answer grace.
func (gs *GameService) questionWindow(ctx context.Context, lobby *models.Lobby) time.Duration {
	longest := float64(lobby.Settings.TimeLimit)
	for _, p := range lobby.Players {
		if limit := scoring.EffectiveTimeLimit(gs.modifiersOrNeutral(ctx, p.ID), lobby.Settings.TimeLimit); limit > longest {
			longest = limit
		}
	}
	return time.Duration(longest*float64(time.Second)) + gs.cfg.AnswerGrace
}

func (gs *GameService) modifiers(ctx context.Context, playerID string) (models.GameplayModifiers, error) {
	if gs.perks == nil {
		return models.NeutralModifiers(), nil
	}
	active, err := gs.perks.GetActivePerkSet(ctx, playerID)
	if err != nil {
		return models.GameplayModifiers{}, fmt.Errorf("load perks for %s: %w", playerID, err)
	}
	return perks.Compile(active), nil
}

func (gs *GameService) modifiersOrNeutral(ctx context.Context, playerID string) models.GameplayModifiers {
	mods, err := gs.modifiers(ctx, playerID)
	if err != nil {
		gs.log.Warn("falling back to neutral modifiers", "player_id", playerID, "err", err)
		return models.NeutralModifiers()
	}
	return mods
}

// announceQuestionLocked broadcasts the current question and arms the
// auto-advance timer. Must hold the lobby lock.
func (gs *GameService) announceQuestionLocked(ctx context.Context, lh *hub.LobbyHub) QuestionView {
	view := gs.questionView(ctx, lh, "")
	lh.BroadcastEvent("new_question", view)
	if gs.cfg.AutoAdvance {
		code, index := lh.Code(), lh.Game.Current
		lh.ScheduleTimer(lh.Game.Window, func() { gs.onQuestionTimeout(code, lh, index) })
	}
	return view
}

// questionView hides the answer, and the category and difficulty unless
// playerID has a perk revealing them.
func (gs *GameService) questionView(ctx context.Context, lh *hub.LobbyHub, playerID string) QuestionView {
	game := lh.Game
	q, _ := game.CurrentQuestion()
	q = q.Public()
	view := QuestionView{
		Index:            game.Current,
		Total:            len(game.Questions),
		Deadline:         game.Deadline,
		TimeLimitSeconds: float64(lh.Lobby().Settings.TimeLimit),
	}

	mods := models.NeutralModifiers()
	if playerID != "" {
		mods = gs.modifiersOrNeutral(ctx, playerID)
		view.TimeLimitSeconds = scoring.EffectiveTimeLimit(mods, lh.Lobby().Settings.TimeLimit)
	}
	if !mods.RevealCategory {
		q.Category = ""
	}
	if !mods.RevealDifficulty {
		q.Difficulty = ""
	}
	if mods.RevealAnswerStats {
		n := game.AnsweredCount()
		view.AnswersIn = &n
	}
	view.Question = q
	return view
}

func (gs *GameService) CurrentQuestion(ctx context.Context, code, playerID string) (QuestionView, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return QuestionView{}, err
	}
	defer lh.Unlock()

	if lh.Lobby().Status != models.Started || lh.Game == nil {
		return QuestionView{}, ErrGameNotStarted
	}
	if playerID != "" && lh.Lobby().GetPlayer(playerID) == nil {
		return QuestionView{}, ErrPlayerNotFound
	}
	return gs.questionView(ctx, lh, playerID), nil
}

// SubmitAnswer scores one answer with the player's active perks. Elapsed
// time is measured from when the question opened.
func (gs *GameService) SubmitAnswer(ctx context.Context, code, playerID string, questionIndex, answer int) (AnswerResult, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return AnswerResult{}, err
	}
	results, ended, answerResult, err := gs.submitLocked(ctx, lh, playerID, questionIndex, answer)
	lh.Unlock()
	if err != nil {
		return AnswerResult{}, err
	}
	if ended {
		gs.finishAfterUnlock(ctx, lh, results)
	}
	return answerResult, nil
}

func (gs *GameService) submitLocked(ctx context.Context, lh *hub.LobbyHub, playerID string, questionIndex, answer int) ([]PlayerResult, bool, AnswerResult, error) {
	lobby, game := lh.Lobby(), lh.Game
	if lobby.Status != models.Started || game == nil {
		return nil, false, AnswerResult{}, ErrGameNotStarted
	}
	if lobby.GetPlayer(playerID) == nil {
		return nil, false, AnswerResult{}, ErrPlayerNotFound
	}
	q, ok := game.CurrentQuestion()
	if !ok || questionIndex != game.Current {
		return nil, false, AnswerResult{}, answerRejected("question is not active")
	}
	ps := game.Player(playerID)
	if ps.HasAnswered(questionIndex) {
		return nil, false, AnswerResult{}, answerRejected("question already answered")
	}

	mods, err := gs.modifiers(ctx, playerID)
	if err != nil {
		return nil, false, AnswerResult{}, err
	}
	now := gs.now()
	elapsed := now.Sub(game.QuestionStarted).Seconds()
	limit := scoring.EffectiveTimeLimit(mods, lobby.Settings.TimeLimit) + gs.cfg.AnswerGrace.Seconds()
	if elapsed > limit {
		return nil, false, AnswerResult{}, answerRejected("time is up")
	}

	total := len(game.Questions)
	sctx := models.ScoreContext{
		QuestionIndex:      questionIndex,
		TotalQuestions:     total,
		BasePoints:         q.BasePoints,
		RunningAccuracy:    ps.Accuracy(),
		WrongAnswersUsed:   ps.WrongAnswersUsed,
		ShieldsUsed:        ps.ShieldsUsed,
		CurrentStreak:      ps.Streak,
		CurrentWrongStreak: ps.WrongStreak,
		InFinalWindow:      scoring.InFinalWindow(questionIndex, total, mods.FinalQuestionsCount),
	}
	correct := answer == q.Correct
	res := scoring.ScoreAnswer(mods, sctx, correct, elapsed)
	applyScore(ps, res, correct)
	ps.MarkAnswered(questionIndex)

	next := lobby.Clone()
	next.UpdatedAt = now
	lh.Replace(next)

	lh.BroadcastEvent("answer_received", payload{
		"player_id":      playerID,
		"question_index": questionIndex,
	})
	answerResult := AnswerResult{
		QuestionIndex: questionIndex,
		Correct:       correct,
		PointsAwarded: res.PointsAwarded,
		Score:         ps.Score,
		Streak:        ps.Streak,
		Bonuses:       res.Bonuses,
	}

	if gs.cfg.AutoAdvance && allAnswered(next, game) {
		results, ended, err := gs.advanceLocked(ctx, lh)
		if err != nil {
			gs.log.Error("advance after last answer", "code", lobby.Code, "err", err)
			return nil, false, answerResult, nil
		}
		return results, ended, answerResult, nil
	}
	return nil, false, answerResult, nil
}

func allAnswered(lobby *models.Lobby, game *models.GameState) bool {
	for _, p := range lobby.Players {
		if !game.Player(p.ID).HasAnswered(game.Current) {
			return false
		}
	}
	return true
}

func applyScore(ps *models.PlayerState, res scoring.Result, correct bool) {
	ps.Score += res.PointsAwarded
	if res.WrongAnswerConsumed {
		ps.WrongAnswersUsed++
	}
	if res.ShieldConsumed {
		ps.ShieldsUsed++
	}
	if correct {
		ps.Correct++
		ps.Streak++
		ps.WrongStreak = 0
		if ps.Streak > ps.BestStreak {
			ps.BestStreak = ps.Streak
		}
		return
	}
	ps.Streak += res.StreakDelta
	if ps.Streak < 0 {
		ps.Streak = 0
	}
	ps.WrongStreak++
}

func (gs *GameService) AdvanceQuestion(ctx context.Context, code, requesterID string) (AdvanceResult, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return AdvanceResult{}, err
	}
	lobby := lh.Lobby()
	if requesterID == "" || requesterID != lobby.HostID {
		lh.Unlock()
		return AdvanceResult{}, ErrPermissionDenied
	}
	if lobby.Status != models.Started || lh.Game == nil {
		lh.Unlock()
		return AdvanceResult{}, ErrGameNotStarted
	}
	results, ended, err := gs.advanceLocked(ctx, lh)
	var view *QuestionView
	if err == nil && !ended {
		v := gs.questionView(ctx, lh, "")
		view = &v
	}
	lh.Unlock()
	if err != nil {
		return AdvanceResult{}, err
	}
	if ended {
		return AdvanceResult{Finished: true, Results: gs.finishAfterUnlock(ctx, lh, results)}, nil
	}
	return AdvanceResult{Question: view}, nil
}

// advanceLocked opens the next question or ends the game after the last
// one. Must hold the lobby lock.
func (gs *GameService) advanceLocked(ctx context.Context, lh *hub.LobbyHub) ([]PlayerResult, bool, error) {
	now := gs.now()
	if lh.Game.Advance(now) {
		next := lh.Lobby().Clone()
		next.UpdatedAt = now
		lh.Replace(next)
		gs.announceQuestionLocked(ctx, lh)
		return nil, false, nil
	}
	results, err := gs.endLocked(ctx, lh)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (gs *GameService) onQuestionTimeout(code string, lh *hub.LobbyHub, index int) {
	ctx := context.Background()
	if !lh.Lock() {
		return
	}
	if lh.Lobby().Status != models.Started || lh.Game == nil || lh.Game.Current != index {
		lh.Unlock()
		return
	}
	results, ended, err := gs.advanceLocked(ctx, lh)
	lh.Unlock()
	if err != nil {
		gs.log.Error("auto-advance failed", "code", code, "err", err)
		return
	}
	if ended {
		gs.finishAfterUnlock(ctx, lh, results)
	}
}

// FinishGame ends a running game, applies end-of-game bonuses and awards
// experience. Experience is awarded after the lobby lock is released.
func (gs *GameService) FinishGame(ctx context.Context, code, requesterID string) ([]PlayerResult, error) {
	lh, err := gs.lockLobby(code)
	if err != nil {
		return nil, err
	}
	lobby := lh.Lobby()
	if requesterID == "" || requesterID != lobby.HostID {
		lh.Unlock()
		return nil, ErrPermissionDenied
	}
	if lobby.Status != models.Started || lh.Game == nil {
		lh.Unlock()
		return nil, ErrGameNotStarted
	}
	results, err := gs.endLocked(ctx, lh)
	lh.Unlock()
	if err != nil {
		return nil, err
	}
	return gs.finishAfterUnlock(ctx, lh, results), nil
}

// endLocked moves the lobby to ENDED and computes final scores. Must hold
// the lobby lock.
func (gs *GameService) endLocked(ctx context.Context, lh *hub.LobbyHub) ([]PlayerResult, error) {
	now := gs.now()
	next := lh.Lobby().Clone()
	if !next.EndGame(now) {
		return nil, ErrGameNotStarted
	}
	if err := gs.commit(ctx, lh, next); err != nil {
		return nil, err
	}
	lh.StopTimer()
	gs.lobbies.Invalidate()

	game := lh.Game
	total := len(game.Questions)
	results := make([]PlayerResult, 0, len(next.Players))
	for _, p := range next.Players {
		ps := game.Player(p.ID)
		mods := gs.modifiersOrNeutral(ctx, p.ID)
		summary := scoring.Summary{CorrectAnswers: ps.Correct, TotalQuestions: total}
		final := scoring.ApplyEndGameBonuses(ps.Score, mods, summary)
		results = append(results, PlayerResult{
			Player:     *p,
			Score:      final,
			Correct:    ps.Correct,
			BestStreak: ps.BestStreak,
			Experience: scoring.ExperienceForGame(final, mods, summary, ps.BestStreak),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	gs.log.Info("game ended", "code", next.Code, "players", len(results))
	return results, nil
}

// finishAfterUnlock awards experience and announces the final standings.
// It must run without the lobby lock so slow draft generation never blocks
// the lobby.
func (gs *GameService) finishAfterUnlock(ctx context.Context, lh *hub.LobbyHub, results []PlayerResult) []PlayerResult {
	if gs.leveler != nil {
		for i := range results {
			r := &results[i]
			award, err := gs.leveler.AwardExperience(ctx, r.Player.ID, r.Experience)
			if err != nil {
				gs.log.Error("award experience", "code", lh.Code(), "player_id", r.Player.ID, "err", err)
				continue
			}
			r.OldLevel = award.OldLevel
			r.NewLevel = award.NewLevel
			r.LevelUp = award.LevelUp
			r.PendingDrafts = award.PendingDrafts
		}
	}
	lh.BroadcastEvent("game_ended", payload{"results": results})
	return results
}

// GetLobbyByCode reads the last published snapshot without taking the lobby
// lock. Lobbies no longer live in this process are looked up in storage.
func (gs *GameService) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	if !ValidLobbyCode(code) {
		return nil, ErrInvalidLobbyCodeFormat
	}
	if lh := gs.hub.Get(code); lh != nil {
		return lh.Snapshot().Clone(), nil
	}
	lobby, err := gs.repo.GetLobby(ctx, code)
	if errors.Is(err, repository.ErrLobbyNotFound) {
		return nil, ErrLobbyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lobby %s: %w", code, err)
	}
	return lobby, nil
}

// GetActiveLobbies lists waiting and started lobbies, newest first. The
// listing may lag behind writes by the cache window.
func (gs *GameService) GetActiveLobbies(ctx context.Context, limit int) ([]*models.Lobby, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	all, err := gs.lobbies.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]*models.Lobby, len(all))
	for i, l := range all {
		out[i] = l.Clone()
	}
	return out, nil
}

func (gs *GameService) loadActiveLobbies(ctx context.Context) ([]*models.Lobby, error) {
	lobbies, err := gs.repo.ListLobbies(ctx, MaxListLimit)
	if err != nil {
		return nil, fmt.Errorf("list lobbies: %w", err)
	}
	return lobbies, nil
}

// SweepIdleLobbies deletes lobbies with no activity since the idle timeout
// and ended lobbies past their retention. It returns how many were removed.
func (gs *GameService) SweepIdleLobbies(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	for _, lh := range gs.hub.All() {
		if !gs.expired(lh.Snapshot(), now) {
			continue
		}
		if !lh.Lock() {
			continue
		}
		// Activity may have happened between the snapshot and the lock.
		if !gs.expired(lh.Lobby(), now) {
			lh.Unlock()
			continue
		}
		err := gs.deleteLocked(ctx, lh)
		lh.Unlock()
		if err != nil {
			return deleted, err
		}
		gs.log.Info("swept lobby", "code", lh.Code())
		deleted++
	}

	stored, err := gs.repo.DeleteFinishedLobbiesOlderThan(ctx, gs.cfg.FinishedLobbyRetention)
	if err != nil {
		return deleted, fmt.Errorf("delete finished lobbies: %w", err)
	}
	return deleted + stored, nil
}

func (gs *GameService) expired(lobby *models.Lobby, now time.Time) bool {
	if lobby.Status == models.Ended && lobby.EndedAt != nil {
		return now.Sub(*lobby.EndedAt) > gs.cfg.FinishedLobbyRetention
	}
	return gs.cfg.IdleLobbyTimeout > 0 && now.Sub(lobby.UpdatedAt) > gs.cfg.IdleLobbyTimeout
}

// Reset drops every live lobby and the listing cache.
func (gs *GameService) Reset() {
	gs.hub.Reset()
	gs.lobbies.Reset()
}

type payload = map[string]any
