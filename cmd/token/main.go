package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"absen/internal/auth"
	"absen/internal/config"
)

// Token mints an operator bearer token for the API.
func main() {
	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to ACCESS_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireSigningKey()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	lifetime := cfg.AccessTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	tok, err := auth.Issue(*subject, auth.RoleOperator, cfg.JWTIssuer, cfg.JWTSigningKey, lifetime)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.AccessToken)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
}
