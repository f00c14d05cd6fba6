package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.MaxLobbySize != 8 || cfg.QuestionTime != 30 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.CacheTTL != 2*time.Second || cfg.SweepInterval != time.Minute || !cfg.AutoAdvance {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "  postgres://localhost/trivia  ")
	t.Setenv("MAX_LOBBY_SIZE", "4")
	t.Setenv("LOBBY_CACHE_TTL", "500ms")
	t.Setenv("AUTO_ADVANCE", "false")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.DatabaseURL != "postgres://localhost/trivia" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	sc := cfg.ServiceConfig()
	if sc.MaxLobbySize != 4 || sc.CacheTTL != 500*time.Millisecond || sc.AutoAdvance {
		t.Fatalf("unexpected service config %+v", sc)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_LOBBY_SIZE", "lots")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "tiny lobby", mutate: func(c *Config) { c.MaxLobbySize = 1 }},
		{name: "lobby over capacity", mutate: func(c *Config) { c.MaxLobbySize = 12 }},
		{name: "too few questions", mutate: func(c *Config) { c.MinQuestionCount = 1 }},
		{name: "inverted question bounds", mutate: func(c *Config) { c.MinQuestionCount, c.MaxQuestionCount = 10, 5 }},
		{name: "question time", mutate: func(c *Config) { c.QuestionTime = 1 }},
		{name: "code attempts", mutate: func(c *Config) { c.CodeAttempts = 0 }},
		{name: "sweep interval", mutate: func(c *Config) { c.SweepInterval = 0 }},
		{name: "draft size", mutate: func(c *Config) { c.DraftSize = 0 }},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestServiceConfigKeepsDefaultCountInRange(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.MinQuestionCount = 12
	cfg.MaxQuestionCount = 20
	if got := cfg.ServiceConfig().DefaultQuestionCount; got != 12 {
		t.Fatalf("default question count = %d want 12", got)
	}
}

func TestServiceConfigNeverRelaxesHardLimits(t *testing.T) {
	t.Setenv("MAX_LOBBY_SIZE", "12")
	t.Setenv("MIN_QUESTION_COUNT", "1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	sc := cfg.ServiceConfig()
	if sc.MaxLobbySize != 8 || sc.MinQuestionCount != 5 {
		t.Fatalf("limits relaxed: size=%d min questions=%d", sc.MaxLobbySize, sc.MinQuestionCount)
	}
}
