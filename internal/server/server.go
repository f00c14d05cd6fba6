package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"trivia-arena/internal/hub"
	"trivia-arena/internal/leveling"
	"trivia-arena/internal/models"
	"trivia-arena/internal/perks"
	"trivia-arena/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// PerkCatalog is the perk catalog plus per-player loadouts.
type PerkCatalog interface {
	ListPerks(ctx context.Context) ([]models.Perk, error)
	GetActivePerkSet(ctx context.Context, playerID string) ([]models.Perk, error)
	Equip(ctx context.Context, playerID, perkID string) error
	Unequip(ctx context.Context, playerID, perkID string) error
}

type Server struct {
	hub         *hub.Hub
	gameService *services.GameService
	perks       PerkCatalog
	leveler     services.Leveler
	log         *slog.Logger
	router      *gin.Engine
	upgrader    websocket.Upgrader
}

func NewServer(gameService *services.GameService, gameHub *hub.Hub, catalog PerkCatalog, leveler services.Leveler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		hub:         gameHub,
		gameService: gameService,
		perks:       catalog,
		leveler:     leveler,
		log:         log,
		router:      router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(cors())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "lobbies": s.hub.Len()})
	})

	api := s.router.Group("/api/v1")
	{
		api.POST("/lobbies", s.createLobby)
		api.GET("/lobbies", s.listLobbies)
		api.GET("/lobbies/:code", s.getLobby)
		api.POST("/lobbies/:code/join", s.joinLobby)
		api.POST("/lobbies/:code/leave", s.leaveLobby)
		api.POST("/lobbies/:code/ready", s.setReady)
		api.POST("/lobbies/:code/connection", s.setConnection)
		api.PATCH("/lobbies/:code/settings", s.updateSettings)
		api.POST("/lobbies/:code/start", s.startGame)
		api.GET("/lobbies/:code/question", s.currentQuestion)
		api.POST("/lobbies/:code/answer", s.submitAnswer)
		api.POST("/lobbies/:code/next", s.nextQuestion)
		api.POST("/lobbies/:code/finish", s.finishGame)

		api.GET("/perks", s.listPerks)
		api.GET("/players/:id/perks", s.playerPerks)
		api.POST("/players/:id/perks", s.equipPerk)
		api.DELETE("/players/:id/perks/:perk", s.unequipPerk)
		api.GET("/players/:id/progress", s.playerProgress)
		api.POST("/players/:id/experience", s.awardExperience)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

type playerRequest struct {
	PlayerID  string `json:"player_id"`
	Username  string `json:"username" binding:"required"`
	Character string `json:"character"`
}

func (r playerRequest) player() models.Player {
	return models.Player{ID: r.PlayerID, Username: r.Username, Character: r.Character}
}

type requesterRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
}

func (s *Server) createLobby(c *gin.Context) {
	var req struct {
		playerRequest
		Settings models.Settings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lobby, err := s.gameService.CreateLobby(c.Request.Context(), req.player(), req.Settings)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"lobby":  lobby,
		"player": lobby.GetPlayer(lobby.HostID),
	})
}

func (s *Server) listLobbies(c *gin.Context) {
	limit := services.MaxListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, errors.New("limit must be an integer"))
			return
		}
		limit = n
	}

	lobbies, err := s.gameService.GetActiveLobbies(c.Request.Context(), limit)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lobbies": lobbies})
}

func (s *Server) getLobby(c *gin.Context) {
	lobby, err := s.gameService.GetLobbyByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, lobby)
}

func (s *Server) joinLobby(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lobby, player, err := s.gameService.JoinLobby(c.Request.Context(), c.Param("code"), req.player())
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lobby":  lobby,
		"player": player,
	})
}

func (s *Server) leaveLobby(c *gin.Context) {
	var req requesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.gameService.LeaveLobby(c.Request.Context(), c.Param("code"), req.PlayerID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) setReady(c *gin.Context) {
	var req struct {
		PlayerID string `json:"player_id" binding:"required"`
		Ready    *bool  `json:"ready" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lobby, err := s.gameService.UpdatePlayerReady(c.Request.Context(), c.Param("code"), req.PlayerID, *req.Ready)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, lobby)
}

func (s *Server) setConnection(c *gin.Context) {
	var req struct {
		PlayerID  string `json:"player_id" binding:"required"`
		Connected *bool  `json:"connected" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lobby, err := s.gameService.UpdatePlayerConnection(c.Request.Context(), c.Param("code"), req.PlayerID, *req.Connected)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, lobby)
}

func (s *Server) updateSettings(c *gin.Context) {
	var req struct {
		PlayerID string `json:"player_id" binding:"required"`
		models.SettingsPatch
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lobby, err := s.gameService.UpdateSettings(c.Request.Context(), c.Param("code"), req.PlayerID, req.SettingsPatch)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, lobby)
}

func (s *Server) startGame(c *gin.Context) {
	var req requesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.gameService.StartGame(c.Request.Context(), c.Param("code"), req.PlayerID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) currentQuestion(c *gin.Context) {
	view, err := s.gameService.CurrentQuestion(c.Request.Context(), c.Param("code"), c.Query("player_id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) submitAnswer(c *gin.Context) {
	var req struct {
		PlayerID      string `json:"player_id" binding:"required"`
		QuestionIndex *int   `json:"question_index" binding:"required"`
		Answer        *int   `json:"answer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.gameService.SubmitAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, *req.QuestionIndex, *req.Answer)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) nextQuestion(c *gin.Context) {
	var req requesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.gameService.AdvanceQuestion(c.Request.Context(), c.Param("code"), req.PlayerID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) finishGame(c *gin.Context) {
	var req requesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results, err := s.gameService.FinishGame(c.Request.Context(), c.Param("code"), req.PlayerID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) listPerks(c *gin.Context) {
	list, err := s.perks.ListPerks(c.Request.Context())
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"perks": list})
}

func (s *Server) playerPerks(c *gin.Context) {
	active, err := s.perks.GetActivePerkSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"perks": active})
}

func (s *Server) equipPerk(c *gin.Context) {
	var req struct {
		PerkID string `json:"perk_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.perks.Equip(ctx, c.Param("id"), req.PerkID); err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.playerPerks(c)
}

func (s *Server) unequipPerk(c *gin.Context) {
	if err := s.perks.Unequip(c.Request.Context(), c.Param("id"), c.Param("perk")); err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.playerPerks(c)
}

func (s *Server) playerProgress(c *gin.Context) {
	progress, err := s.leveler.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	resp := gin.H{"progress": progress}
	if progress.Level < leveling.MaxLevel {
		resp["next_level_at"] = leveling.TotalExperienceForLevel(progress.Level + 1)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) awardExperience(c *gin.Context) {
	var req struct {
		Amount *int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.leveler.AwardExperience(c.Request.Context(), c.Param("id"), *req.Amount)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
}

// writeDomainError maps lobby and progression errors onto HTTP statuses.
// Anything unrecognised is logged and reported as a 500.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "internal server error", "code": "INTERNAL"})
		return
	}

	body := gin.H{"error": err.Error()}
	var domainErr *services.Error
	if errors.As(err, &domainErr) {
		body["code"] = domainErr.Code
		if reason := domainErr.Metadata["reason"]; reason != "" {
			body["reason"] = reason
		}
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch services.CodeOf(err) {
	case services.CodeLobbyNotFound, services.CodePlayerNotFound:
		return http.StatusNotFound
	case services.CodePermissionDenied:
		return http.StatusForbidden
	case services.CodeLobbyFull,
		services.CodeNotAcceptingPlayers,
		services.CodeAlreadyJoined,
		services.CodeGameAlreadyStarted,
		services.CodeInsufficientPlayers,
		services.CodePlayersNotReady,
		services.CodeGameNotStarted,
		services.CodeAnswerRejected:
		return http.StatusConflict
	case services.CodeInvalidSettings, services.CodeInvalidLobbyCodeFormat, services.CodeInvalidPlayer:
		return http.StatusBadRequest
	case services.CodeCodeGenerationExhausted:
		return http.StatusServiceUnavailable
	}

	switch {
	case errors.Is(err, perks.ErrPerkNotFound):
		return http.StatusNotFound
	case errors.Is(err, leveling.ErrNegativeExperience), errors.Is(err, leveling.ErrInvalidPlayer):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
