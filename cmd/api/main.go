package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/goodimpact/backoffice-api/internal/config"
	"github.com/goodimpact/backoffice-api/internal/domain/dispatch"
	"github.com/goodimpact/backoffice-api/internal/pkg/database"
	"github.com/goodimpact/backoffice-api/internal/pkg/jwt"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("db_driver", cfg.DatabaseDriver).
		Msg("Starting back-office API")

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("Failed to connect to database")
	}
	defer database.Close(db)

	if cfg.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	// ---------- Dispatch hub ----------
	hub := dispatch.NewHub(redis)
	go hub.Run()

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, db, hub, jwtService),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// operator sessions are hijacked connections, server.Shutdown does not wait for them
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
