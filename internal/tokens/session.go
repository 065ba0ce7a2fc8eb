package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/giannis84/dieti-localstate/internal/logging"
)

// ErrIncompleteSession is returned by SaveSession when a token is empty.
var ErrIncompleteSession = errors.New("session requires both access and refresh token")

// Session is the token pair issued at login or refresh.
type Session struct {
	Access  string
	Refresh string
}

// SaveSession writes both tokens with all-or-nothing semantics: if the refresh
// token cannot be written, the access token is restored to its previous value
// (or removed if there was none). The backend error is returned as is, joined
// with the rollback error if the rollback failed too.
func (s *Store) SaveSession(ctx context.Context, session Session) error {
	if session.Access == "" || session.Refresh == "" {
		return ErrIncompleteSession
	}

	prevAccess, hadAccess, err := s.Get(ctx, Access)
	if err != nil {
		return err
	}

	if err := s.Save(ctx, Access, session.Access); err != nil {
		return err
	}
	if err := s.Save(ctx, Refresh, session.Refresh); err != nil {
		var rbErr error
		if hadAccess {
			rbErr = s.Save(ctx, Access, prevAccess)
		} else {
			rbErr = s.Remove(ctx, Access)
		}
		if rbErr != nil {
			logging.Log(ctx).Layer("tokens").Op("SaveSession").Err(rbErr).
				Error("failed to roll back access token; session is half written")
			return errors.Join(err, fmt.Errorf("rolling back access token: %w", rbErr))
		}
		logging.Log(ctx).Layer("tokens").Op("SaveSession").Err(err).
			Warn("session not saved; access token rolled back")
		return err
	}
	return nil
}

// LoadSession returns the stored token pair. ok is true only when both tokens
// are present; a half-written session is reported with ok=false and whatever
// tokens exist.
func (s *Store) LoadSession(ctx context.Context) (session Session, ok bool, err error) {
	access, hasAccess, err := s.Get(ctx, Access)
	if err != nil {
		return Session{}, false, err
	}
	refresh, hasRefresh, err := s.Get(ctx, Refresh)
	if err != nil {
		return Session{}, false, err
	}
	return Session{Access: access, Refresh: refresh}, hasAccess && hasRefresh, nil
}

// ClearSession removes both tokens. Both removals are attempted; their errors are joined.
func (s *Store) ClearSession(ctx context.Context) error {
	return errors.Join(s.Remove(ctx, Access), s.Remove(ctx, Refresh))
}
