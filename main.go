package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"trivia-arena/internal/config"
	"trivia-arena/internal/draft"
	"trivia-arena/internal/hub"
	"trivia-arena/internal/leveling"
	"trivia-arena/internal/logging"
	"trivia-arena/internal/perks"
	"trivia-arena/internal/repository"
	"trivia-arena/internal/server"
	"trivia-arena/internal/services"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, err := newCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmd() (*cobra.Command, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:           "trivia-arena",
		Short:         "Multiplayer trivia lobbies with perks and character progression.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on (env: PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres connection string; in-memory lobbies when empty (env: DATABASE_URL)")
	fs.StringVar(&cfg.ProgressDBPath, "progress-db", cfg.ProgressDBPath, "sqlite file for character progress when no database url is set (env: PROGRESS_DB_PATH)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (env: LOG_LEVEL)")
	fs.BoolVar(&cfg.AutoAdvance, "auto-advance", cfg.AutoAdvance, "advance questions when the timer runs out (env: AUTO_ADVANCE)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd, nil
}

type storage struct {
	lobbies  repository.Repository
	progress repository.ProgressStore
	closers  []io.Closer
}

func (s *storage) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage, error) {
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres storage")
		return &storage{lobbies: pg, progress: pg, closers: []io.Closer{pg}}, nil
	}

	mem := repository.NewMemoryRepository()
	st := &storage{lobbies: mem, progress: mem}
	if cfg.ProgressDBPath != "" {
		progress, err := repository.OpenSQLiteProgressStore(cfg.ProgressDBPath)
		if err != nil {
			return nil, err
		}
		st.progress = progress
		st.closers = append(st.closers, progress)
		log.Info("using in-memory lobbies with sqlite progress", "path", cfg.ProgressDBPath)
	} else {
		log.Warn("using in-memory storage; nothing survives a restart")
	}
	return st, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	catalog, err := perks.NewCatalog(perks.DefaultPerks())
	if err != nil {
		return fmt.Errorf("load perk catalog: %w", err)
	}
	engine := leveling.NewEngine(st.progress, draft.NewGenerator(catalog, cfg.DraftSize), log,
		leveling.WithDraftTimeout(cfg.DraftTimeout),
	)

	gameHub := hub.NewHub(log)
	gameService := services.NewGameService(cfg.ServiceConfig(), gameHub, st.lobbies,
		services.WithPerks(catalog),
		services.WithLeveler(engine),
		services.WithLogger(log),
	)
	defer gameService.Reset()

	go sweep(ctx, gameService, cfg.SweepInterval, log)

	srv := server.NewServer(gameService, gameHub, catalog, engine, log)
	httpServer := &http.Server{
		Addr:              ":" + strings.TrimPrefix(cfg.Port, ":"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("trivia arena listening", "addr", httpServer.Addr, "version", releaseVersion)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// sweep periodically removes idle and long-finished lobbies.
func sweep(ctx context.Context, gs *services.GameService, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := gs.SweepIdleLobbies(ctx, now)
			if err != nil {
				log.Error("sweep lobbies", "err", err)
				continue
			}
			if n > 0 {
				log.Info("swept lobbies", "removed", n)
			}
		}
	}
}
