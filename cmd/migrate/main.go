// Command migrate applies, rolls back or lists the embedded schema migrations.
//
//	migrate [up|down|status]
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/goodimpact/backoffice-api/internal/config"
	"github.com/goodimpact/backoffice-api/internal/pkg/database"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("Failed to connect to database")
	}
	defer database.Close(db)

	switch command {
	case "up":
		err = database.Migrate(db)
	case "down":
		err = database.MigrateDown(db)
	case "status":
		err = database.MigrationStatus(db)
	default:
		log.Fatal().Str("command", command).Msg("Unknown command, expected up, down or status")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
	log.Info().Str("command", command).Msg("Migration complete")
}
