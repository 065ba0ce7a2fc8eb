// Package tokens keeps the session credentials (access and refresh token) in
// the device's secure store.
package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/storage"
	"golang.org/x/sync/singleflight"
)

// Kind names one of the two credentials kept per session.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// Backend keys used by the mobile app.
const (
	AccessTokenKey  = "user_auth_token"
	RefreshTokenKey = "user_refresh_token"
)

// ErrUnknownKind is returned for a Kind other than Access or Refresh.
var ErrUnknownKind = errors.New("unknown token kind")

// Store saves, reads and removes tokens. Each kind lives under its own key and
// is written independently; use SaveSession to write both together.
type Store struct {
	backend      storage.SecureStore
	account      string
	refreshGroup singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithAccount namespaces the backend keys by account ID so that sessions of
// different accounts on one device do not overwrite each other.
func WithAccount(accountID string) Option {
	return func(s *Store) { s.account = accountID }
}

// NewStore returns a Store backed by the given secure store.
func NewStore(backend storage.SecureStore, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the backend key for kind.
func (s *Store) Key(kind Kind) (string, error) {
	var key string
	switch kind {
	case Access:
		key = AccessTokenKey
	case Refresh:
		key = RefreshTokenKey
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if s.account != "" {
		key += "." + s.account
	}
	return key, nil
}

// Save stores value as the token of the given kind, replacing any previous one.
// Backend failures are returned unmodified.
func (s *Store) Save(ctx context.Context, kind Kind, value string) error {
	key, err := s.Key(kind)
	if err != nil {
		return err
	}
	if err := s.backend.SetValue(ctx, key, value); err != nil {
		logging.Log(ctx).Layer("tokens").Op("Save").TokenKind(string(kind)).
			ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to save token")
		return err
	}
	return nil
}

// Get returns the stored token of the given kind. found is false if the token
// was never saved or has been removed.
func (s *Store) Get(ctx context.Context, kind Kind) (value string, found bool, err error) {
	key, err := s.Key(kind)
	if err != nil {
		return "", false, err
	}
	value, found, err = s.backend.GetValue(ctx, key)
	if err != nil {
		logging.Log(ctx).Layer("tokens").Op("Get").TokenKind(string(kind)).
			ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to read token")
		return "", false, err
	}
	return value, found, nil
}

// Remove deletes the token of the given kind. Removing an absent token is not an error.
func (s *Store) Remove(ctx context.Context, kind Kind) error {
	key, err := s.Key(kind)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteValue(ctx, key); err != nil {
		logging.Log(ctx).Layer("tokens").Op("Remove").TokenKind(string(kind)).
			ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to remove token")
		return err
	}
	return nil
}
