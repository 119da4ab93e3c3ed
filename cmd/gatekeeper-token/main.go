// Command gatekeeper-token issues and inspects session tokens using the same
// GATEKEEPER_TOKEN_* settings as the gate.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/config"
)

type tokenInfo struct {
	Token     string    `json:"token,omitempty"`
	Subject   string    `json:"subject"`
	Role      auth.Role `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	envFile := flag.String("env-file", "", "dotenv file to load (default: ./.env if present)")
	subject := flag.String("subject", "", "Subject id to issue a token for")
	role := flag.String("role", "", "Role to issue the token with")
	ttl := flag.Duration("ttl", 0, "Token lifetime (default: GATEKEEPER_TOKEN_TTL)")
	decode := flag.String("decode", "", "Verify and print an existing token instead of issuing one")
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tokenTTL := cfg.Token.TTL
	if *ttl > 0 {
		tokenTTL = *ttl
	}
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret: []byte(cfg.Token.Secret),
		Issuer: cfg.Token.Issuer,
		TTL:    tokenTTL,
	})
	if err != nil {
		log.Fatalf("Failed to create token codec: %v", err)
	}

	if *decode != "" {
		id, err := codec.Decode(*decode)
		if err != nil {
			log.Fatalf("Token rejected (%s): %v", accesserr.KindOf(err), err)
		}
		printJSON(tokenInfo{
			Subject:   id.Subject(),
			Role:      id.Role(),
			IssuedAt:  id.IssuedAt(),
			ExpiresAt: id.ExpiresAt(),
		})
		return
	}

	if *subject == "" || *role == "" {
		fmt.Fprintln(os.Stderr, "usage: gatekeeper-token -subject <id> -role <role> [-ttl 1h]")
		fmt.Fprintln(os.Stderr, "       gatekeeper-token -decode <token>")
		os.Exit(2)
	}
	r, err := auth.ParseRole(*role)
	if err != nil {
		log.Fatalf("Invalid role: %v", err)
	}

	token, id, err := codec.Issue(*subject, r)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	printJSON(tokenInfo{
		Token:     token,
		Subject:   id.Subject(),
		Role:      id.Role(),
		IssuedAt:  id.IssuedAt(),
		ExpiresAt: id.ExpiresAt(),
	})
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}
