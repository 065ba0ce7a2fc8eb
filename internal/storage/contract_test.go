package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// runKeyValueContract exercises the behaviour every KeyValueStore must share.
// newStore must return an empty store that is not shared with other calls.
func runKeyValueContract(t *testing.T, newStore func(t *testing.T) KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("get of missing key is not found", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.GetItem(ctx, "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok || v != "" {
			t.Errorf("expected absent value, got %q found=%v", v, ok)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetItem(ctx, "a", "1"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.SetItem(ctx, "a", "2"); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		v, ok, err := s.GetItem(ctx, "a")
		if err != nil || !ok || v != "2" {
			t.Errorf("expected 2, got %q found=%v err=%v", v, ok, err)
		}
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetItem(ctx, "a", "1"); err != nil {
			t.Fatalf("set: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.RemoveItem(ctx, "a"); err != nil {
				t.Fatalf("remove #%d: %v", i+1, err)
			}
		}
		if _, ok, _ := s.GetItem(ctx, "a"); ok {
			t.Error("expected key to be gone")
		}
	})

	t.Run("bulk operations", func(t *testing.T) {
		s := newStore(t)
		err := s.SetMany(ctx, []Pair{{Key: "q", Value: "villa"}, {Key: "f", Value: "{}"}, {Key: "c", Value: "land"}})
		if err != nil {
			t.Fatalf("set many: %v", err)
		}

		items, err := s.GetMany(ctx, []string{"f", "missing", "q"})
		if err != nil {
			t.Fatalf("get many: %v", err)
		}
		want := []Item{
			{Key: "f", Value: "{}", Found: true},
			{Key: "missing"},
			{Key: "q", Value: "villa", Found: true},
		}
		if !reflect.DeepEqual(items, want) {
			t.Errorf("get many: expected %+v, got %+v", want, items)
		}

		if err := s.RemoveMany(ctx, []string{"q", "c", "never-set"}); err != nil {
			t.Fatalf("remove many: %v", err)
		}
		keys, err := s.ListKeys(ctx)
		if err != nil {
			t.Fatalf("list keys: %v", err)
		}
		if !reflect.DeepEqual(keys, []string{"f"}) {
			t.Errorf("expected [f], got %v", keys)
		}
	})

	t.Run("empty bulk calls are no-ops", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetMany(ctx, nil); err != nil {
			t.Errorf("set many: %v", err)
		}
		if err := s.RemoveMany(ctx, nil); err != nil {
			t.Errorf("remove many: %v", err)
		}
		items, err := s.GetMany(ctx, nil)
		if err != nil || len(items) != 0 {
			t.Errorf("get many: expected empty, got %v err=%v", items, err)
		}
		keys, err := s.ListKeys(ctx)
		if err != nil || len(keys) != 0 {
			t.Errorf("list keys: expected empty, got %v err=%v", keys, err)
		}
	})
}

// runSecureContract exercises the behaviour every SecureStore must share.
func runSecureContract(t *testing.T, newStore func(t *testing.T) SecureStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetValue(ctx, "user_auth_token", "abc123"); err != nil {
			t.Fatalf("set: %v", err)
		}
		v, ok, err := s.GetValue(ctx, "user_auth_token")
		if err != nil || !ok || v != "abc123" {
			t.Errorf("expected abc123, got %q found=%v err=%v", v, ok, err)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.GetValue(ctx, "user_refresh_token")
		if err != nil || ok {
			t.Errorf("expected absent, got found=%v err=%v", ok, err)
		}
	})

	t.Run("delete twice", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetValue(ctx, "k", "v"); err != nil {
			t.Fatalf("set: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.DeleteValue(ctx, "k"); err != nil {
				t.Fatalf("delete #%d: %v", i+1, err)
			}
		}
		if _, ok, _ := s.GetValue(ctx, "k"); ok {
			t.Error("expected value to be gone")
		}
	})

	t.Run("cancelled context is unavailable", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.SetValue(cctx, "k", "v")
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Errorf("expected backend unavailable, got %v", err)
		}
	})
}
