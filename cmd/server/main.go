// Command server runs the guest-support chat backend: the HTTP API serving
// both the embeddable chat widget and the admin console.
//
// @title           Support Chat API
// @version         1.0
// @description     Guest/admin support conversations for the tutoring marketplace.
// @BasePath        /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/tutorlane/support-chat-backend/docs"
	"github.com/tutorlane/support-chat-backend/internal/catalog"
	"github.com/tutorlane/support-chat-backend/internal/config"
	httpapi "github.com/tutorlane/support-chat-backend/internal/http"
	"github.com/tutorlane/support-chat-backend/internal/observability"
	"github.com/tutorlane/support-chat-backend/internal/repo"
	"github.com/tutorlane/support-chat-backend/internal/stream"
	"github.com/tutorlane/support-chat-backend/internal/support"
	"github.com/tutorlane/support-chat-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	topics, err := catalog.Load(cfg.TopicsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.TopicsPath).Msg("load topic catalog failed")
	}

	// The provider strategy is resolved once; every surface reads the same
	// answer for the rest of the process lifetime.
	provider := support.Resolve(cfg.LiveChat.Mode, cfg.LiveChat.URL)
	log.Info().
		Str("mode", provider.Mode).
		Int("topics", topics.Len()).
		Msg("live support resolved")

	r := gin.New()
	httpapi.RegisterRoutes(r, db, stream.New(), topics, provider, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// SSE transcripts are long-lived; WriteTimeout would sever them.
		WriteTimeout:   0,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
