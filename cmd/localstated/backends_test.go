package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/giannis84/dieti-localstate/internal/config"
	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/storage"
)

func testMasterKey() []byte {
	key := make([]byte, storage.MasterKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		cfg         config.Config
		wantPingers int
	}{
		{
			name:        "memory",
			cfg:         config.Config{StorageBackend: config.BackendMemory, SecureBackend: config.SecureBackendMemory},
			wantPingers: 0,
		},
		{
			name: "sqlite with encrypted files",
			cfg: config.Config{
				StorageBackend: config.BackendSQLite,
				SQLitePath:     filepath.Join(t.TempDir(), "state.db"),
				SecureBackend:  config.SecureBackendFile,
				SecureStoreDir: filepath.Join(t.TempDir(), "secure"),
				MasterKey:      testMasterKey(),
			},
			wantPingers: 1,
		},
		{
			name: "redis",
			cfg: config.Config{
				StorageBackend: config.BackendRedis,
				RedisAddr:      mr.Addr(),
				SecureBackend:  config.SecureBackendMemory,
			},
			wantPingers: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logCtx := logging.NewContextWithLogger(ctx, slog.New(slog.NewJSONHandler(&buf, nil)))

			b, err := openBackends(logCtx, &tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			t.Cleanup(func() { b.Close() })

			wantField := `"backend":"` + tt.cfg.StorageBackend + `"`
			if !strings.Contains(buf.String(), wantField) {
				t.Errorf("expected log line with %s, got: %s", wantField, buf.String())
			}

			if len(b.pingers) != tt.wantPingers {
				t.Errorf("expected %d pingers, got %d", tt.wantPingers, len(b.pingers))
			}
			if err := b.kv.SetItem(ctx, "k", "v"); err != nil {
				t.Errorf("kv write: %v", err)
			}
			if err := b.secure.SetValue(ctx, "user_auth_token", "t"); err != nil {
				t.Errorf("secure write: %v", err)
			}
		})
	}
}

func TestOpenBackends_Errors(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	tests := []struct {
		name    string
		cfg     config.Config
		wantMsg string
	}{
		{
			name:    "redis unreachable",
			cfg:     config.Config{StorageBackend: config.BackendRedis, RedisAddr: addr, SecureBackend: config.SecureBackendMemory},
			wantMsg: "connecting to redis",
		},
		{
			name: "bad master key",
			cfg: config.Config{
				StorageBackend: config.BackendMemory,
				SecureBackend:  config.SecureBackendFile,
				SecureStoreDir: t.TempDir(),
				MasterKey:      []byte("short"),
			},
			wantMsg: "opening secure store",
		},
		{
			name:    "unknown backend",
			cfg:     config.Config{StorageBackend: "leveldb"},
			wantMsg: "unknown storage backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := openBackends(ctx, &tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error to mention %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}
