// Package auth guards the inspector's debug routes with an operator JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// InspectorAudience is the "aud" claim every operator token must carry. It
// keeps app session tokens from opening the debug routes.
const InspectorAudience = "localstate-inspector"

var (
	ErrMissingToken  = errors.New("missing or malformed Authorization header")
	ErrWrongAudience = errors.New("token is not an inspector token")
	ErrMissingSub    = errors.New("token missing sub claim")
)

type contextKey string

const operatorKey contextKey = "operator"

// OperatorMiddleware validates the bearer token of every request and places
// its "sub" claim into the request context.
//
// When secret is empty only unsigned tokens (alg=none) are accepted, for
// local development. Otherwise only HS256 tokens signed with secret are.
func OperatorMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			operator, err := authenticate(r, secret)
			if err != nil {
				logging.Log(ctx).Layer("auth").Op("OperatorMiddleware").Err(err).
					Warn("rejected inspector request")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintf(w, `{"error":%q}`, err.Error())
				return
			}

			ctx = context.WithValue(ctx, operatorKey, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext returns the operator stored by OperatorMiddleware, or
// an empty string.
func OperatorFromContext(ctx context.Context) string {
	v, _ := ctx.Value(operatorKey).(string)
	return v
}

func authenticate(r *http.Request, secret string) (string, error) {
	tokenString, ok := extractBearerToken(r)
	if !ok {
		return "", ErrMissingToken
	}
	claims, err := parseToken(tokenString, secret)
	if err != nil {
		return "", err
	}

	aud, err := claims.GetAudience()
	if err != nil || !contains(aud, InspectorAudience) {
		return "", ErrWrongAudience
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrMissingSub
	}
	return sub, nil
}

// extractBearerToken pulls the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func parseToken(tokenString, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
		if err != nil {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
		if token.Method.Alg() != "none" {
			return nil, fmt.Errorf("no inspector secret configured; only unsigned tokens (alg=none) are accepted")
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return nil, fmt.Errorf("invalid token claims")
		}
		exp, err := claims.GetExpirationTime()
		if err != nil {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
		if exp != nil && !exp.After(time.Now()) {
			return nil, fmt.Errorf("invalid token: %w", jwt.ErrTokenExpired)
		}
		return claims, nil
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
