// Command devtoken mints HS256 bearer tokens for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/config"
	"laundrydesk.io/internal/obs"
)

func main() {
	_ = config.LoadEnvFiles(".env.development", ".env")
	log := obs.Component("devtoken")
	var (
		secret = flag.String("secret", os.Getenv("LAUNDRYDESK_AUTH_SECRET"), "HMAC secret shared with the API")
		issuer = flag.String("issuer", envOr("LAUNDRYDESK_AUTH_ISSUER", auth.DefaultIssuer), "Token issuer")
		user   = flag.String("user", "", "User id (sub claim)")
		email  = flag.String("email", "", "Email claim")
		ttl    = flag.Duration("ttl", 12*time.Hour, "Token lifetime")
	)
	flag.Parse()

	userID, err := auth.NormalizeUserID(*user)
	if err != nil {
		log.WithError(err).Fatal("invalid -user")
	}
	verifier, err := auth.NewTokenVerifier(*secret, auth.WithIssuer(*issuer))
	if err != nil {
		log.WithError(err).Fatal("token verifier")
	}
	token, err := verifier.GenerateToken(userID, *email, *ttl)
	if err != nil {
		log.WithError(err).Fatal("generate token")
	}
	fmt.Println(token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
