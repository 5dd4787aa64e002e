// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/showguessr/server/internal/cache"
	"github.com/showguessr/server/internal/config"
	"github.com/showguessr/server/internal/content"
	"github.com/showguessr/server/internal/game"
	"github.com/showguessr/server/internal/handlers"
	"github.com/showguessr/server/internal/lobby"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "showguessr",
		Short:   "Realtime multiplayer show-guessing game server.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cfg.RegisterFlags(cmd.Flags())
	config.BindEnv(cmd.Flags(), "SHOWGUESSR")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(cfg.LogLevel, cfg.LogJSON)

	var history game.Publisher
	if cfg.RedisAddr != "" {
		q := cache.NewHistoryQueue(cfg.RedisAddr, cfg.RedisDB, cfg.HistoryQueue)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := q.Ping(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		defer q.Close()
		history = q
		logger.WithField("queue", q.Queue()).Info("publishing game history to redis")
	}

	if cfg.TMDBAPIKey == "" {
		logger.Warn("no TMDB API key; movie, tv and cartoon rounds use built-in shows")
	}
	provider := content.NewDefaultMux(cfg.TMDBAPIKey, cfg.TMDBBaseURL, cfg.AniListURL, logger)
	registry := lobby.NewRegistry(provider, logger)
	hub := handlers.NewHub(logger)

	gameCfg := game.DefaultConfig()
	gameCfg.Intermission = cfg.Intermission
	gameCfg.FetchTimeout = cfg.FetchTimeout
	gameCfg.StartAttempts = cfg.RoundStartAttempts
	router := game.NewRouter(registry, hub, history, logger, gameCfg)
	defer router.Close()

	api := &handlers.API{Registry: registry, Hub: hub, PublicURL: cfg.PublicURL, Log: logger}
	ws := handlers.WSHandler(logger, hub, router, originPatterns(cfg.CORSOrigin))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.Routes(logger, api, ws, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("Listening on http://%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	return nil
}

// originPatterns turns the CORS origin into websocket origin host patterns.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		logrus.Warnf("cors origin %q is not a URL; websocket origins restricted to same host", origin)
		return nil
	}
	return []string{u.Host}
}
