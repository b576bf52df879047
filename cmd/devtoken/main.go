// cmd/devtoken prints a bearer token signed with JWT_SECRET for local use.
// Usage: go run ./cmd/devtoken -role admin -user dana
package main

import (
	"flag"
	"fmt"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/middleware"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	role := flag.String("role", middleware.RoleStaff, "admin or staff")
	user := flag.String("user", "dev", "username embedded in the token")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}
	if *role != middleware.RoleAdmin && *role != middleware.RoleStaff {
		log.Fatal().Str("role", *role).Msg("unknown role")
	}

	token, err := middleware.SignToken(cfg.JWTSecret, uuid.NewString(), *user, *role, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(token)
}
