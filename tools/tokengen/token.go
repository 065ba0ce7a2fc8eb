// Command tokengen mints JWTs for local development.
//
// By default it prints an access/refresh pair for -user. With -seed-dir the
// pair is also written to an encrypted secure store (MASTER_KEY env var, hex),
// so localstated starts with a logged-in session. With -operator it prints a
// token for the inspector's debug routes instead.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/giannis84/dieti-localstate/internal/auth"
	"github.com/giannis84/dieti-localstate/internal/storage"
	"github.com/giannis84/dieti-localstate/internal/tokens"
	"github.com/golang-jwt/jwt/v5"
)

func main() {
	userID := flag.String("user", "", "user ID to embed in the tokens (required unless -operator)")
	secret := flag.String("secret", "", "HMAC signing secret (or set JWT_SECRET env var); empty mints unsigned tokens")
	accessExp := flag.Duration("exp", time.Hour, "access token expiry duration (e.g. 15m, 1h)")
	refreshExp := flag.Duration("refresh-exp", 30*24*time.Hour, "refresh token expiry duration")
	seedDir := flag.String("seed-dir", "", "secure store directory to write the session into")
	account := flag.String("account", "", "account namespace for the seeded token keys")
	operator := flag.String("operator", "", "mint an inspector operator token for this name instead of a session")
	flag.Parse()

	signingSecret := *secret
	if signingSecret == "" {
		signingSecret = os.Getenv("JWT_SECRET")
	}
	now := time.Now()

	if *operator != "" {
		// INSPECTOR_SECRET wins so the token matches the running inspector.
		if v := os.Getenv("INSPECTOR_SECRET"); v != "" {
			signingSecret = v
		}
		token := mint(jwt.MapClaims{
			"sub": *operator,
			"aud": auth.InspectorAudience,
			"iat": now.Unix(),
			"exp": now.Add(*accessExp).Unix(),
		}, signingSecret)
		fmt.Fprintf(os.Stderr, "Operator token for %s (expires %s):\n", *operator, now.Add(*accessExp).Format(time.RFC3339))
		fmt.Println(token)
		return
	}

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "error: -user flag is required")
		flag.Usage()
		os.Exit(1)
	}

	session := tokens.Session{
		Access: mint(jwt.MapClaims{
			"sub": *userID,
			"typ": "access",
			"iat": now.Unix(),
			"exp": now.Add(*accessExp).Unix(),
		}, signingSecret),
		Refresh: mint(jwt.MapClaims{
			"sub": *userID,
			"typ": "refresh",
			"iat": now.Unix(),
			"exp": now.Add(*refreshExp).Unix(),
		}, signingSecret),
	}

	if *seedDir != "" {
		if err := seed(*seedDir, *account, session); err != nil {
			fmt.Fprintf(os.Stderr, "error seeding secure store: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Session written to %s\n", *seedDir)
	}

	fmt.Fprintf(os.Stderr, "Tokens for user %s (access expires %s):\n", *userID, now.Add(*accessExp).Format(time.RFC3339))
	fmt.Println(session.Access)
	fmt.Println(session.Refresh)
}

func mint(claims jwt.MapClaims, secret string) string {
	if secret == "" {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating token: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Warning: token is unsigned (alg=none); do not use in production")
		return signed
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error signing token: %v\n", err)
		os.Exit(1)
	}
	return signed
}

func seed(dir, account string, session tokens.Session) error {
	key, err := hex.DecodeString(os.Getenv("MASTER_KEY"))
	if err != nil {
		return fmt.Errorf("MASTER_KEY env var must be hex encoded: %w", err)
	}
	store, err := storage.NewSecureFileStore(dir, key)
	if err != nil {
		return err
	}
	var opts []tokens.Option
	if account != "" {
		opts = append(opts, tokens.WithAccount(account))
	}
	return tokens.NewStore(store, opts...).SaveSession(context.Background(), session)
}
