// Command gymledger-token issues a bearer token for an owner, signed with
// the same secret the API server verifies against.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/gymledger/pkg/auth"
	"github.com/platinummonkey/gymledger/pkg/config"
)

func main() {
	owner := flag.Int64("owner", 0, "Owner (user) id the token authenticates as")
	ttl := flag.Duration("ttl", 0, "Token lifetime, defaults to GYM_JWT_TTL")
	flag.Parse()

	if *owner <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -owner must be a positive id")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewHMACAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, lifetime).Issue(*owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
}
