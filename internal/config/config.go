package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"trivia-arena/internal/services"
)

type Config struct {
	Port           string `env:"PORT"             envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	ProgressDBPath string `env:"PROGRESS_DB_PATH"`

	MaxLobbySize     int `env:"MAX_LOBBY_SIZE"     envDefault:"8"`
	MinQuestionCount int `env:"MIN_QUESTION_COUNT" envDefault:"5"`
	MaxQuestionCount int `env:"MAX_QUESTION_COUNT" envDefault:"50"`
	QuestionTime     int `env:"QUESTION_TIME"      envDefault:"30"` // seconds
	CodeAttempts     int `env:"LOBBY_CODE_ATTEMPTS" envDefault:"10"`

	CacheTTL               time.Duration `env:"LOBBY_CACHE_TTL"          envDefault:"2s"`
	CacheStale             time.Duration `env:"LOBBY_CACHE_STALE"        envDefault:"10s"`
	IdleLobbyTimeout       time.Duration `env:"IDLE_LOBBY_TIMEOUT"       envDefault:"30m"`
	FinishedLobbyRetention time.Duration `env:"FINISHED_LOBBY_RETENTION" envDefault:"10m"`
	SweepInterval          time.Duration `env:"SWEEP_INTERVAL"           envDefault:"1m"`

	DraftTimeout time.Duration `env:"DRAFT_TIMEOUT" envDefault:"2s"`
	DraftSize    int           `env:"DRAFT_SIZE"    envDefault:"3"`
	AutoAdvance  bool          `env:"AUTO_ADVANCE"  envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads the environment. Call Validate after applying CLI overrides.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.ProgressDBPath = strings.TrimSpace(cfg.ProgressDBPath)
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.MaxLobbySize < 2 || c.MaxLobbySize > services.LobbyCapacity {
		errs = append(errs, fmt.Errorf("max lobby size must be between 2 and %d, got %d", services.LobbyCapacity, c.MaxLobbySize))
	}
	if c.MinQuestionCount < services.MinQuestionFloor {
		errs = append(errs, fmt.Errorf("min question count must be at least %d, got %d", services.MinQuestionFloor, c.MinQuestionCount))
	}
	if c.MaxQuestionCount < c.MinQuestionCount {
		errs = append(errs, fmt.Errorf("question count bounds %d..%d are invalid", c.MinQuestionCount, c.MaxQuestionCount))
	}
	if c.QuestionTime < 5 || c.QuestionTime > 300 {
		errs = append(errs, fmt.Errorf("question time must be between 5 and 300 seconds, got %d", c.QuestionTime))
	}
	if c.CodeAttempts < 1 {
		errs = append(errs, errors.New("lobby code attempts must be positive"))
	}
	if c.CacheTTL < 0 || c.CacheStale < 0 {
		errs = append(errs, errors.New("cache windows must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.DraftTimeout <= 0 {
		errs = append(errs, errors.New("draft timeout must be positive"))
	}
	if c.DraftSize < 1 {
		errs = append(errs, errors.New("draft size must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ServiceConfig maps the environment onto the session manager's settings.
func (c *Config) ServiceConfig() services.Config {
	sc := services.DefaultConfig()
	sc.MaxLobbySize = min(c.MaxLobbySize, services.LobbyCapacity)
	sc.MinQuestionCount = max(c.MinQuestionCount, services.MinQuestionFloor)
	sc.MaxQuestionCount = c.MaxQuestionCount
	sc.DefaultTimeLimit = c.QuestionTime
	sc.CodeAttempts = c.CodeAttempts
	sc.CacheTTL = c.CacheTTL
	sc.CacheStale = c.CacheStale
	sc.IdleLobbyTimeout = c.IdleLobbyTimeout
	sc.FinishedLobbyRetention = c.FinishedLobbyRetention
	sc.AutoAdvance = c.AutoAdvance
	if sc.DefaultQuestionCount < sc.MinQuestionCount {
		sc.DefaultQuestionCount = sc.MinQuestionCount
	}
	if sc.DefaultQuestionCount > c.MaxQuestionCount {
		sc.DefaultQuestionCount = c.MaxQuestionCount
	}
	return sc
}
