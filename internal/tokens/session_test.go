package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giannis84/dieti-localstate/internal/storage"
	"github.com/golang-jwt/jwt/v5"
)

// failKey makes every write to key fail.
func failKey(backend *storage.MemorySecureStore, key string) {
	backend.SetBeforeWrite(func(_ context.Context, _, k string) error {
		if k == key {
			return errors.New("secure enclave write failed")
		}
		return nil
	})
}

func TestSaveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("writes both tokens", func(t *testing.T) {
		s, _ := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"}); err != nil {
			t.Fatalf("save session: %v", err)
		}
		got, ok, err := s.LoadSession(ctx)
		if err != nil || !ok {
			t.Fatalf("expected complete session, got ok=%v err=%v", ok, err)
		}
		if got != (Session{Access: "a1", Refresh: "r1"}) {
			t.Errorf("unexpected session: %+v", got)
		}
	})

	t.Run("rejects empty token", func(t *testing.T) {
		s, _ := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "a1"}); !errors.Is(err, ErrIncompleteSession) {
			t.Errorf("expected ErrIncompleteSession, got %v", err)
		}
	})

	t.Run("removes new access token when refresh write fails", func(t *testing.T) {
		s, backend := newTestStore(t)
		failKey(backend, RefreshTokenKey)

		err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"})
		if !errors.Is(err, storage.ErrBackendUnavailable) {
			t.Fatalf("expected backend unavailable, got %v", err)
		}
		if len(backend.Snapshot()) != 0 {
			t.Errorf("expected nothing stored, got %v", backend.Snapshot())
		}
	})

	t.Run("restores previous access token when refresh write fails", func(t *testing.T) {
		s, backend := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "old-a", Refresh: "old-r"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		failKey(backend, RefreshTokenKey)

		if err := s.SaveSession(ctx, Session{Access: "new-a", Refresh: "new-r"}); err == nil {
			t.Fatal("expected error")
		}
		got, ok, _ := s.LoadSession(ctx)
		if !ok || got != (Session{Access: "old-a", Refresh: "old-r"}) {
			t.Errorf("expected old session to survive, got %+v ok=%v", got, ok)
		}
	})

	t.Run("reports failed rollback", func(t *testing.T) {
		s, backend := newTestStore(t)
		failKey(backend, RefreshTokenKey)
		backend.FailOn("DeleteValue", errors.New("locked"))

		err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"})
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.Is(err, storage.ErrBackendUnavailable) {
			t.Errorf("expected backend unavailable, got %v", err)
		}
		if _, ok, _ := s.LoadSession(ctx); ok {
			t.Error("expected half-written session to be reported incomplete")
		}
	})

	t.Run("does not write when the first write fails", func(t *testing.T) {
		s, backend := newTestStore(t)
		failKey(backend, AccessTokenKey)

		if err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"}); err == nil {
			t.Fatal("expected error")
		}
		if len(backend.Snapshot()) != 0 {
			t.Errorf("expected nothing stored, got %v", backend.Snapshot())
		}
	})
}

func TestLoadSession_HalfWritten(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if err := s.Save(ctx, Access, "only-access"); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for half-written session")
	}
	if got.Access != "only-access" || got.Refresh != "" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()

	t.Run("removes both tokens", func(t *testing.T) {
		s, backend := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "a", Refresh: "r"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if err := s.ClearSession(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if len(backend.Snapshot()) != 0 {
			t.Errorf("expected empty backend, got %v", backend.Snapshot())
		}
	})

	t.Run("works on empty store", func(t *testing.T) {
		s, _ := newTestStore(t)
		if err := s.ClearSession(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func testJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user42", "exp": exp.Unix()})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, ok := ExpiresAt(testJWT(t, exp))
	if !ok || !got.Equal(exp) {
		t.Errorf("expected %v, got %v ok=%v", exp, got, ok)
	}

	if _, ok := ExpiresAt("opaque-session-id"); ok {
		t.Error("expected ok=false for opaque token")
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user42"})
	raw, _ := noExp.SignedString([]byte("test-secret"))
	if _, ok := ExpiresAt(raw); ok {
		t.Error("expected ok=false for token without exp")
	}
}

func TestNeedsRefresh(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name   string
		access string
		want   bool
	}{
		{name: "missing access token", access: "", want: true},
		{name: "valid for an hour", access: testJWT(t, now.Add(time.Hour)), want: false},
		{name: "expires within leeway", access: testJWT(t, now.Add(10*time.Second)), want: true},
		{name: "already expired", access: testJWT(t, now.Add(-time.Minute)), want: true},
		{name: "opaque token", access: "opaque", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			if tt.access != "" {
				if err := s.Save(ctx, Access, tt.access); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			got, err := s.NeedsRefresh(ctx, now, 30*time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRefreshSession(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the new session", func(t *testing.T) {
		s, _ := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"}); err != nil {
			t.Fatalf("seed: %v", err)
		}

		var gotRefresh string
		got, err := s.RefreshSession(ctx, RefresherFunc(func(_ context.Context, refresh string) (Session, error) {
			gotRefresh = refresh
			return Session{Access: "a2", Refresh: "r2"}, nil
		}))
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if gotRefresh != "r1" {
			t.Errorf("expected refresher to receive r1, got %q", gotRefresh)
		}
		if got != (Session{Access: "a2", Refresh: "r2"}) {
			t.Errorf("unexpected session: %+v", got)
		}
		stored, ok, _ := s.LoadSession(ctx)
		if !ok || stored != got {
			t.Errorf("expected stored session %+v, got %+v", got, stored)
		}
	})

	t.Run("requires a refresh token", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.RefreshSession(ctx, RefresherFunc(func(context.Context, string) (Session, error) {
			t.Fatal("refresher must not be called")
			return Session{}, nil
		}))
		if !errors.Is(err, ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("keeps old session when refresher fails", func(t *testing.T) {
		s, _ := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		rejected := errors.New("401 refresh token revoked")
		_, err := s.RefreshSession(ctx, RefresherFunc(func(context.Context, string) (Session, error) {
			return Session{}, rejected
		}))
		if !errors.Is(err, rejected) {
			t.Errorf("expected refresher error, got %v", err)
		}
		if stored, _, _ := s.LoadSession(ctx); stored.Access != "a1" {
			t.Errorf("expected old session, got %+v", stored)
		}
	})

	t.Run("concurrent callers share one exchange", func(t *testing.T) {
		s, _ := newTestStore(t)
		if err := s.SaveSession(ctx, Session{Access: "a1", Refresh: "r1"}); err != nil {
			t.Fatalf("seed: %v", err)
		}

		var calls atomic.Int32
		release := make(chan struct{})
		r := RefresherFunc(func(context.Context, string) (Session, error) {
			calls.Add(1)
			<-release
			return Session{Access: "a2", Refresh: "r2"}, nil
		})

		const callers = 4
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RefreshSession(ctx, r)
				errs <- err
			}()
		}

		// Let every caller reach the shared exchange before releasing it.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("expected 1 refresh exchange, got %d", n)
		}
	})
}
