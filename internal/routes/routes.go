package routes

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/giannis84/dieti-localstate/internal/auth"
	"github.com/giannis84/dieti-localstate/internal/favorites"
	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/models"
	"github.com/giannis84/dieti-localstate/internal/preferences"
	"github.com/giannis84/dieti-localstate/internal/storage"
	"github.com/giannis84/dieti-localstate/internal/tokens"
	"github.com/go-chi/chi/v5"
)

// refreshLeeway is how close to expiry an access token is reported as due.
const refreshLeeway = 30 * time.Second

// Inspector holds what the debug routes expose.
type Inspector struct {
	Favorites   *favorites.Cache
	Tokens      *tokens.Store
	Preferences *preferences.Store

	// Secret verifies operator tokens; see auth.OperatorMiddleware.
	Secret string
	// Now defaults to time.Now.
	Now func() time.Time
}

// RegisterInspectorRoutes sets up the debug routes. Token values never leave
// the process; the session view reports presence and expiry only.
func RegisterInspectorRoutes(in Inspector) func(r chi.Router) {
	if in.Now == nil {
		in.Now = time.Now
	}
	return func(r chi.Router) {
		r.Route("/debug", func(r chi.Router) {
			r.Use(auth.OperatorMiddleware(in.Secret))

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", listFavoritesRoute(in.Favorites))
				r.Delete("/", clearFavoritesRoute(in.Favorites))
				r.Post("/toggle", toggleFavoriteRoute(in.Favorites))
				r.Post("/flush", flushFavoritesRoute(in.Favorites))
				r.Get("/{id}", getFavoriteRoute(in.Favorites))
			})
			r.Get("/session", getSessionRoute(in.Tokens, in.Now))
			r.Delete("/session", clearSessionRoute(in.Tokens))
			r.Get("/preferences", getPreferencesRoute(in.Preferences))
		})
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type FavoritesResponse struct {
	Count     int               `json:"count"`
	Loading   bool              `json:"loading"`
	Favorites []models.Property `json:"favorites"`
}

type ToggleResponse struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

type TokenStatus struct {
	Present   bool       `json:"present"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type SessionResponse struct {
	Access       TokenStatus `json:"accessToken"`
	Refresh      TokenStatus `json:"refreshToken"`
	NeedsRefresh bool        `json:"needsRefresh"`
}

type PreferencesResponse struct {
	State      preferences.SearchState `json:"state"`
	StoredKeys []string                `json:"storedKeys"`
}

func listFavoritesRoute(cache *favorites.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		favs := cache.Favorites()
		sort.Slice(favs, func(i, j int) bool { return favs[i].ID < favs[j].ID })

		logging.Log(ctx).Layer("routes").Op("listFavorites").Str("operator", auth.OperatorFromContext(ctx)).
			Int("count", len(favs)).Debug("favorites listed")
		respondWithJSON(w, http.StatusOK, FavoritesResponse{
			Count:     len(favs),
			Loading:   cache.IsLoading(),
			Favorites: favs,
		})
	}
}

func getFavoriteRoute(cache *favorites.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := cache.Get(id)
		if !ok {
			respondWithError(w, http.StatusNotFound, "Favorite not found", "")
			return
		}
		respondWithJSON(w, http.StatusOK, p)
	}
}

func toggleFavoriteRoute(cache *favorites.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var p models.Property
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			logging.Log(ctx).Layer("routes").Op("toggleFavorite").Err(err).
				Warn("failed to decode request body")
			respondWithError(w, http.StatusBadRequest, "Invalid request body", "")
			return
		}
		if p.ID == "" {
			respondWithError(w, http.StatusBadRequest, "Property id is required", "")
			return
		}

		favorite := cache.Toggle(p)
		logging.Log(ctx).Layer("routes").Op("toggleFavorite").Entity(p.ID).Bool("favorite", favorite).
			Str("operator", auth.OperatorFromContext(ctx)).Info("favorite toggled")
		respondWithJSON(w, http.StatusOK, ToggleResponse{ID: p.ID, Favorite: favorite})
	}
}

func flushFavoritesRoute(cache *favorites.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := cache.Flush(ctx); err != nil {
			logging.Log(ctx).Layer("routes").Op("flushFavorites").Err(err).Error("failed to flush favorites")
			respondWithStorageError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "Favorites flushed"})
	}
}

func clearFavoritesRoute(cache *favorites.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cache.Clear(ctx)
		logging.Log(ctx).Layer("routes").Op("clearFavorites").
			Str("operator", auth.OperatorFromContext(ctx)).Info("favorites cleared")
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "Favorites cleared"})
	}
}

func getSessionRoute(store *tokens.Store, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		session, _, err := store.LoadSession(ctx)
		if err != nil {
			logging.Log(ctx).Layer("routes").Op("getSession").Err(err).Error("failed to read session")
			respondWithStorageError(w, err)
			return
		}
		needsRefresh, err := store.NeedsRefresh(ctx, now(), refreshLeeway)
		if err != nil {
			respondWithStorageError(w, err)
			return
		}

		respondWithJSON(w, http.StatusOK, SessionResponse{
			Access:       tokenStatus(session.Access),
			Refresh:      tokenStatus(session.Refresh),
			NeedsRefresh: needsRefresh,
		})
	}
}

func tokenStatus(token string) TokenStatus {
	status := TokenStatus{Present: token != ""}
	if exp, ok := tokens.ExpiresAt(token); ok {
		status.ExpiresAt = &exp
	}
	return status
}

func clearSessionRoute(store *tokens.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := store.ClearSession(ctx); err != nil {
			logging.Log(ctx).Layer("routes").Op("clearSession").Err(err).Error("failed to clear session")
			respondWithStorageError(w, err)
			return
		}
		logging.Log(ctx).Layer("routes").Op("clearSession").
			Str("operator", auth.OperatorFromContext(ctx)).Info("session cleared")
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "Session cleared"})
	}
}

func getPreferencesRoute(store *preferences.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		state, err := store.Load(ctx)
		if err != nil {
			respondWithStorageError(w, err)
			return
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			respondWithStorageError(w, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		respondWithJSON(w, http.StatusOK, PreferencesResponse{State: state, StoredKeys: keys})
	}
}

// respondWithStorageError maps a storage failure to a status code by kind.
func respondWithStorageError(w http.ResponseWriter, err error) {
	kind := storage.KindOf(err)
	code := http.StatusInternalServerError
	if kind == storage.KindBackendUnavailable {
		code = http.StatusServiceUnavailable
	}
	respondWithError(w, code, err.Error(), string(kind))
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message, kind string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Kind: kind})
}
