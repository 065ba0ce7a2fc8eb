// Package preferences persists the buyer's search query, filter panel state and
// selected main category in the general key-value store.
package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giannis84/dieti-localstate/internal/logging"
	"github.com/giannis84/dieti-localstate/internal/models"
	"github.com/giannis84/dieti-localstate/internal/storage"
)

// Storage keys used by the mobile app.
const (
	QueryKey        = "searchQuery"
	FiltersKey      = "filters"
	MainCategoryKey = "selectedMainCategoryInPanel"
)

var allKeys = []string{QueryKey, FiltersKey, MainCategoryKey}

// SearchState is the persisted part of the search screen.
type SearchState struct {
	Query        string                 `json:"searchQuery"`
	Filters      models.PropertyFilters `json:"filters"`
	MainCategory models.MainCategory    `json:"selectedMainCategoryInPanel,omitempty"`
}

// DefaultState returns the state of a fresh install.
func DefaultState() SearchState {
	return SearchState{Filters: models.DefaultFilters()}
}

// ResetFilters clears the query, the filters and the selected category. With
// keepTransactionType the transaction type survives and the price range is
// reset to that type's default.
func ResetFilters(s SearchState, keepTransactionType bool) SearchState {
	reset := DefaultState()
	if keepTransactionType && s.Filters.General.TransactionType == models.ListingTypeRent {
		reset.Filters.General.TransactionType = models.ListingTypeRent
		reset.Filters.General.PriceRange = models.DefaultPriceRange(models.ListingTypeRent)
	}
	return reset
}

type Store struct {
	backend storage.KeyValueStore
}

func NewStore(backend storage.KeyValueStore) *Store {
	return &Store{backend: backend}
}

// Load reads the stored preferences. Missing keys keep their defaults. A
// corrupted filters entry is logged and deleted. On a backend failure the
// defaults are returned together with the error.
func (s *Store) Load(ctx context.Context) (SearchState, error) {
	state := DefaultState()

	items, err := s.backend.GetMany(ctx, allKeys)
	if err != nil {
		logging.Log(ctx).Layer("preferences").Op("Load").
			ErrKind(string(storage.KindOf(err))).Err(err).Error("failed to read search preferences")
		return state, fmt.Errorf("loading search preferences: %w", err)
	}

	for _, item := range items {
		if !item.Found {
			continue
		}
		switch item.Key {
		case QueryKey:
			state.Query = item.Value
		case FiltersKey:
			filters := models.DefaultFilters()
			if err := json.Unmarshal([]byte(item.Value), &filters); err != nil {
				logging.Log(ctx).Layer("preferences").Op("Load").Key(FiltersKey).Err(err).
					Warn("stored filters are corrupted; using defaults")
				s.dropCorrupted(ctx)
				continue
			}
			state.Filters = filters
		case MainCategoryKey:
			category := models.MainCategory(item.Value)
			if !category.Valid() {
				logging.Log(ctx).Layer("preferences").Op("Load").Key(MainCategoryKey).
					Str("value", item.Value).Warn("ignoring unknown main category")
				continue
			}
			state.MainCategory = category
		}
	}
	return state, nil
}

func (s *Store) dropCorrupted(ctx context.Context) {
	if err := s.backend.RemoveItem(ctx, FiltersKey); err != nil {
		logging.Log(ctx).Layer("preferences").Op("Load").Key(FiltersKey).Err(err).
			Warn("failed to delete corrupted filters")
	}
}

// Save writes state. Values equal to their default are removed instead of written.
func (s *Store) Save(ctx context.Context, state SearchState) error {
	var (
		set    []storage.Pair
		remove []string
	)

	if state.Query == "" {
		remove = append(remove, QueryKey)
	} else {
		set = append(set, storage.Pair{Key: QueryKey, Value: state.Query})
	}

	if state.Filters == models.DefaultFilters() {
		remove = append(remove, FiltersKey)
	} else {
		data, err := json.Marshal(state.Filters)
		if err != nil {
			return fmt.Errorf("marshalling filters: %w", err)
		}
		set = append(set, storage.Pair{Key: FiltersKey, Value: string(data)})
	}

	if state.MainCategory == models.MainCategoryNone {
		remove = append(remove, MainCategoryKey)
	} else {
		set = append(set, storage.Pair{Key: MainCategoryKey, Value: string(state.MainCategory)})
	}

	var errs []error
	if len(remove) > 0 {
		if err := s.backend.RemoveMany(ctx, remove); err != nil {
			errs = append(errs, err)
		}
	}
	if len(set) > 0 {
		if err := s.backend.SetMany(ctx, set); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logging.Log(ctx).Layer("preferences").Op("Save").Err(err).Error("failed to save search preferences")
		return fmt.Errorf("saving search preferences: %w", err)
	}

	logging.Log(ctx).Layer("preferences").Op("Save").Int("written", len(set)).Int("removed", len(remove)).
		Debug("search preferences saved")
	return nil
}

// Reset removes every stored preference.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.backend.RemoveMany(ctx, allKeys); err != nil {
		return fmt.Errorf("resetting search preferences: %w", err)
	}
	return nil
}

// Keys returns the preference keys currently stored, in key order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing search preferences: %w", err)
	}
	var present []string
	for _, k := range keys {
		switch k {
		case QueryKey, FiltersKey, MainCategoryKey:
			present = append(present, k)
		}
	}
	return present, nil
}
