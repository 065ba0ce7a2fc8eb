// Package favorites keeps the user's favorite listings in memory and persists
// them as a single snapshot in the general key-value store.
package favorites

import (
	"context"
	"log/slog"
	"sync"

	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/models"
	"github.com/giannis84/dieti-localstate/internal/storage"
	"golang.org/x/sync/singleflight"
)

// StorageKey is the key the mobile app stores the favorites snapshot under.
const StorageKey = "@dieti-estates:favorites"

// Cache is the in-memory favorites map. Memory is authoritative for the
// process lifetime; the backend is brought up to date by a write-behind
// worker. Backend failures are logged and never returned from the mutating
// operations.
type Cache struct {
	store  storage.KeyValueStore
	key    string
	logger *slog.Logger

	mu        sync.RWMutex
	favorites map[string]models.Property
	loading   bool

	loaded     chan struct{}
	loadedOnce sync.Once
	loadGroup  singleflight.Group

	writer *writeBehind
}

// Option configures a Cache.
type Option func(*Cache)

// WithKey overrides the storage key of the snapshot.
func WithKey(key string) Option {
	return func(c *Cache) { c.key = key }
}

// WithLogger sets the logger used by the background writer.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New returns an empty cache in the loading state and starts its writer.
// Call Close to stop the writer.
func New(store storage.KeyValueStore, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		key:       StorageKey,
		logger:    slog.Default(),
		favorites: make(map[string]models.Property),
		loading:   true,
		loaded:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.writer = newWriteBehind(logging.NewContextWithLogger(context.Background(), c.logger), c.write)
	return c
}

// Load hydrates the map from the stored snapshot, replacing what is in memory.
// A missing, unreadable or corrupted snapshot leaves the map empty; the
// failure is logged. Concurrent calls share one read.
func (c *Cache) Load(ctx context.Context) {
	ctx = logging.EnsureLogger(ctx, c.logger)
	c.loadGroup.Do("load", func() (any, error) {
		c.load(ctx)
		return nil, nil
	})
}

func (c *Cache) load(ctx context.Context) {
	defer c.markLoaded()

	favorites := make(map[string]models.Property)
	blob, found, err := c.store.GetItem(ctx, c.key)
	switch {
	case err != nil:
		logging.Log(ctx).Layer("favorites").Op("Load").Key(c.key).
			ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to read favorites; starting empty")
	case !found:
		logging.Log(ctx).Layer("favorites").Op("Load").Key(c.key).Debug("no stored favorites")
	default:
		decoded, err := decodeSnapshot(c.key, blob)
		if err != nil {
			logging.Log(ctx).Layer("favorites").Op("Load").Key(c.key).
				ErrKind(string(storage.KindOf(err))).Err(err).Error("stored favorites are corrupted; starting empty")
			break
		}
		favorites = decoded
	}

	c.mu.Lock()
	c.favorites = favorites
	c.mu.Unlock()

	logging.Log(ctx).Layer("favorites").Op("Load").Int("count", len(favorites)).Info("favorites loaded")
}

func (c *Cache) markLoaded() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	c.loadedOnce.Do(func() { close(c.loaded) })
}

// IsLoading reports whether the first Load has not finished yet.
func (c *Cache) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Loaded is closed when the first Load finishes.
func (c *Cache) Loaded() <-chan struct{} {
	return c.loaded
}

// Toggle adds a copy of p if its id is not a favorite and removes it otherwise.
// It returns the new membership state. The snapshot is written in the
// background; use Flush to wait for it. A property without an id is ignored.
func (c *Cache) Toggle(p models.Property) bool {
	if p.ID == "" {
		logging.With(c.logger).Layer("favorites").Op("Toggle").Warn("ignoring property without id")
		return false
	}

	c.mu.Lock()
	_, present := c.favorites[p.ID]
	if present {
		delete(c.favorites, p.ID)
	} else {
		c.favorites[p.ID] = p.Clone()
	}
	c.mu.Unlock()

	if !c.writer.schedule(opPersist) {
		logging.With(c.logger).Layer("favorites").Op("Toggle").Entity(p.ID).
			Warn("cache closed; change kept in memory only")
	}
	return !present
}

// IsFavorite reports whether id is a favorite.
func (c *Cache) IsFavorite(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.favorites[id]
	return ok
}

// Get returns the stored copy of a favorite.
func (c *Cache) Get(id string) (models.Property, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.favorites[id]
	if !ok {
		return models.Property{}, false
	}
	return p.Clone(), true
}

// Favorites returns a fresh, unordered copy of the current favorites.
func (c *Cache) Favorites() []models.Property {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]models.Property, 0, len(c.favorites))
	for _, p := range c.favorites {
		result = append(result, p.Clone())
	}
	return result
}

// Len returns the number of favorites.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.favorites)
}

// Clear empties the map and deletes the stored snapshot, waiting for the
// deletion. A failed deletion is logged only.
func (c *Cache) Clear(ctx context.Context) {
	ctx = logging.EnsureLogger(ctx, c.logger)
	c.mu.Lock()
	c.favorites = make(map[string]models.Property)
	c.mu.Unlock()

	if !c.writer.schedule(opRemove) {
		logging.Log(ctx).Layer("favorites").Op("Clear").Warn("cache closed; stored favorites not deleted")
		return
	}
	if err := c.writer.flush(ctx); err != nil {
		logging.Log(ctx).Layer("favorites").Op("Clear").Key(c.key).Err(err).
			Warn("stored favorites may not be deleted")
	}
}

// Flush waits until every change made before the call is written to the
// backend. It returns the error of the latest write, or ctx's error.
func (c *Cache) Flush(ctx context.Context) error {
	return c.writer.flush(ctx)
}

// Close writes pending changes and stops the writer. Later changes are kept
// in memory only.
func (c *Cache) Close(ctx context.Context) error {
	return c.writer.close(ctx)
}

// write runs on the writer goroutine.
func (c *Cache) write(ctx context.Context, op writeOp) error {
	switch op {
	case opRemove:
		if err := c.store.RemoveItem(ctx, c.key); err != nil {
			logging.Log(ctx).Layer("favorites").Op("Clear").Key(c.key).
				ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to delete stored favorites")
			return err
		}
		return nil

	case opPersist:
		c.mu.RLock()
		blob, err := encodeSnapshot(c.favorites)
		count := len(c.favorites)
		c.mu.RUnlock()
		if err != nil {
			logging.Log(ctx).Layer("favorites").Op("Persist").Key(c.key).Err(err).
				Error("failed to encode favorites")
			return storage.Corrupted("Persist", c.key, err)
		}
		if err := c.store.SetItem(ctx, c.key, blob); err != nil {
			logging.Log(ctx).Layer("favorites").Op("Persist").Key(c.key).Int("count", count).
				ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to persist favorites")
			return err
		}
		logging.Log(ctx).Layer("favorites").Op("Persist").Key(c.key).Int("count", count).
			Debug("favorites persisted")
		return nil
	}
	return nil
}
