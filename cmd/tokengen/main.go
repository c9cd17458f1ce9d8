// Command tokengen mints a bearer token for calling the API as a given user.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"finetune-orchestrator/internal/config"
	"finetune-orchestrator/internal/pkg/jwtutil"
)

func main() {
	userID := flag.Uint("user", 0, "user id to embed in the token")
	username := flag.String("name", "", "username to embed in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to auth.jwt_expire_minute")
	flag.Parse()

	if *userID == 0 {
		log.Fatalf("-user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	expiration := *ttl
	if expiration <= 0 {
		expiration = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
	}

	token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, expiration, uint(*userID), *username)
	if err != nil {
		log.Fatalf("generate token failed: %v", err)
	}
	fmt.Println(token)
}
