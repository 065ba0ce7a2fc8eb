package main

import (
	"context"
	"fmt"
	"io"

	"github.com/giannis84/dieti-localstate/internal/config"
	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/routes"
	"github.com/giannis84/dieti-localstate/internal/storage"
)

// backends holds the opened stores and what is needed to check and close them.
type backends struct {
	kv      storage.KeyValueStore
	secure  storage.SecureStore
	pingers []routes.Pinger
	closers []io.Closer
}

func (b *backends) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openBackends opens the general and secure stores selected by cfg.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		b.kv = storage.NewMemoryKeyValueStore()
	case config.BackendSQLite:
		store, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		b.kv = store
		b.pingers = append(b.pingers, store)
		b.closers = append(b.closers, store)
	case config.BackendPostgres:
		store, err := storage.OpenPostgres(cfg.PostgresConnString())
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		b.kv = store
		b.pingers = append(b.pingers, store)
		b.closers = append(b.closers, store)
	case config.BackendRedis:
		store := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
		if err := store.Ping(ctx); err != nil {
			logging.Log(ctx).Layer("main").Op("openBackends").Backend(cfg.StorageBackend).Err(err).
				Error("storage backend did not answer ping")
			store.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		b.kv = store
		b.pingers = append(b.pingers, store)
		b.closers = append(b.closers, store)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	switch cfg.SecureBackend {
	case config.SecureBackendMemory:
		b.secure = storage.NewMemorySecureStore()
	case config.SecureBackendFile:
		store, err := storage.NewSecureFileStore(cfg.SecureStoreDir, cfg.MasterKey)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening secure store: %w", err)
		}
		b.secure = store
	default:
		b.Close()
		return nil, fmt.Errorf("unknown secure backend %q", cfg.SecureBackend)
	}

	logging.Log(ctx).Layer("main").Op("openBackends").Backend(cfg.StorageBackend).
		Str("secure_backend", cfg.SecureBackend).Info("storage backends opened")
	return b, nil
}
