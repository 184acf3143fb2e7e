// Command devtoken prints a signed access token for local development.
//
//	devtoken -user <uuid> -role operator
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/goodimpact/backoffice-api/internal/config"
	"github.com/goodimpact/backoffice-api/internal/domain/user"
	"github.com/goodimpact/backoffice-api/internal/pkg/jwt"
)

func main() {
	userFlag := flag.String("user", "", "user id (random when empty)")
	roleFlag := flag.String("role", string(user.RoleOperator), "customer, operator or admin")
	flag.Parse()

	cfg := config.Load()
	if cfg.IsProduction() {
		log.Fatal().Msg("devtoken is disabled in production")
	}

	userID := uuid.New()
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid user id")
		}
		userID = id
	}
	if !user.IsValidRole(*roleFlag) {
		log.Fatal().Str("role", *roleFlag).Msg("Unknown role")
	}

	svc := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	token, err := svc.GenerateAccessToken(userID, *roleFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	log.Info().
		Str("user_id", userID.String()).
		Str("role", *roleFlag).
		Time("expires_at", time.Now().Add(svc.GetAccessTTL())).
		Msg("Access token issued")
	fmt.Println(token)
}
