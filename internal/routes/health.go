package routes

import (
	"context"
	"net/http"

	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/go-chi/chi/v5"
)

// LoadState is the part of the favorites cache readiness depends on.
type LoadState interface {
	IsLoading() bool
}

// Pinger is a backend that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealthRoutes creates the health check endpoints. The service is
// ready once the favorites cache has loaded and every backend answers.
func RegisterHealthRoutes(cache LoadState, backends ...Pinger) func(r chi.Router) {
	return func(r chi.Router) {
		r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
			if cache != nil && cache.IsLoading() {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("favorites loading"))
				return
			}
			for _, b := range backends {
				if err := b.Ping(r.Context()); err != nil {
					logging.Log(r.Context()).Layer("routes").Op("ready").Err(err).Warn("storage not ready")
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte("storage not ready"))
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Ready"))
		})
	}
}
