package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/giannis84/dieti-localstate/internal"
	"github.com/giannis84/dieti-localstate/internal/config"
	"github.com/giannis84/dieti-localstate/internal/favorites"
	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/preferences"
	"github.com/giannis84/dieti-localstate/internal/routes"
	"github.com/giannis84/dieti-localstate/internal/tokens"
	"github.com/go-chi/chi/v5"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("info").Error("failed to load configuration", slog.String(logging.ErrorKey, err.Error()))
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("configuration loaded",
		slog.String("inspector_addr", cfg.InspectorAddr()),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("secure_backend", cfg.SecureBackend),
	)

	ctx := logging.NewContextWithLogger(context.Background(), logger)

	b, err := openBackends(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", slog.String(logging.ErrorKey, err.Error()))
		os.Exit(1)
	}
	defer b.Close()
	logger.Info("storage ready")

	var tokenOpts []tokens.Option
	if cfg.AccountID != "" {
		tokenOpts = append(tokenOpts, tokens.WithAccount(cfg.AccountID))
	}
	tokenStore := tokens.NewStore(b.secure, tokenOpts...)
	cache := favorites.New(b.kv, favorites.WithLogger(logger))
	prefs := preferences.NewStore(b.kv)

	// Hydrate in the background; /health/ready reports 503 until done.
	go cache.Load(ctx)

	inspector := internal.NewService(internal.ServiceConfig{
		Addr:         cfg.InspectorAddr(),
		Logger:       logger,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Routes: func(r chi.Router) {
			routes.RegisterHealthRoutes(cache, b.pingers...)(r)
			routes.RegisterInspectorRoutes(routes.Inspector{
				Favorites:   cache,
				Tokens:      tokenStore,
				Preferences: prefs,
				Secret:      cfg.InspectorSecret,
			})(r)
		},
	})

	go func() {
		if err := inspector.ListenAndServeWrapper("inspector"); err != nil && err != http.ErrServerClosed {
			logger.Error("inspector service failed", slog.String(logging.ErrorKey, err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	logger.Info("shutting down service", slog.String("signal", receivedSignal.String()))
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := inspector.Shutdown(shutdownCtx); err != nil {
		logger.Error("inspector shutdown error", slog.String(logging.ErrorKey, err.Error()))
	}
	// Pending favorites writes land before the stores close.
	if err := cache.Close(shutdownCtx); err != nil {
		logger.Error("final favorites write failed", slog.String(logging.ErrorKey, err.Error()))
	}
	logger.Info("exiting...")
}
