package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoRefreshToken is returned by RefreshSession when no refresh token is stored.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// Refresher exchanges a refresh token for a new session. It is implemented by
// the API client; this package does not talk to the network.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (Session, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	return f(ctx, refreshToken)
}

// RefreshSession reads the stored refresh token, asks r for a new session and
// stores it with SaveSession. Concurrent calls share one exchange.
func (s *Store) RefreshSession(ctx context.Context, r Refresher) (Session, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		refresh, found, err := s.Get(ctx, Refresh)
		if err != nil {
			return Session{}, err
		}
		if !found {
			return Session{}, ErrNoRefreshToken
		}

		session, err := r.Refresh(ctx, refresh)
		if err != nil {
			logging.Log(ctx).Layer("tokens").Op("RefreshSession").Err(err).
				Warn("token refresh rejected")
			return Session{}, fmt.Errorf("refreshing session: %w", err)
		}
		if err := s.SaveSession(ctx, session); err != nil {
			return Session{}, err
		}

		logging.Log(ctx).Layer("tokens").Op("RefreshSession").Info("session refreshed")
		return session, nil
	})
	return v.(Session), err
}

// ExpiresAt returns the "exp" claim of a JWT without verifying its signature.
// ok is false for opaque tokens and JWTs without an expiry.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	date, err := parsed.Claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// NeedsRefresh reports whether the stored access token is missing or expires
// within leeway of now. Tokens without a readable expiry are assumed valid.
func (s *Store) NeedsRefresh(ctx context.Context, now time.Time, leeway time.Duration) (bool, error) {
	access, found, err := s.Get(ctx, Access)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	exp, ok := ExpiresAt(access)
	if !ok {
		return false, nil
	}
	return !now.Add(leeway).Before(exp), nil
}
