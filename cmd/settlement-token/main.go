// Command settlement-token prints a bearer token for the settlement process
// that calls POST /enrollments/{id}/published. It signs with the same
// SETTLEMENT_* environment the server reads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"crowdfund/internal/platform/config"
	"crowdfund/internal/settlement"
)

func main() {
	subject := flag.String("subject", "settlement-worker", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	tokens := settlement.NewTokenService(cfg.Settlement.SigningKey, cfg.Settlement.Issuer, cfg.Settlement.Audience)
	token, err := tokens.Issue(*subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
