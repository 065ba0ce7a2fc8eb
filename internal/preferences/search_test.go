package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/giannis84/dieti-localstate/internal/models"
	"github.com/giannis84/dieti-localstate/internal/storage"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	rentFilters := models.DefaultFilters()
	rentFilters.General.TransactionType = models.ListingTypeRent
	rentFilters.General.PriceRange = models.DefaultPriceRange(models.ListingTypeRent)
	rentFilters.Residential.Pool = true
	rentJSON, _ := json.Marshal(rentFilters)

	tests := []struct {
		name     string
		stored   map[string]string
		want     SearchState
		wantKeys []string
	}{
		{
			name:     "empty store gives defaults",
			stored:   nil,
			want:     DefaultState(),
			wantKeys: nil,
		},
		{
			name: "all keys stored",
			stored: map[string]string{
				QueryKey:        "Napoli centro",
				FiltersKey:      string(rentJSON),
				MainCategoryKey: "residential",
			},
			want: SearchState{
				Query:        "Napoli centro",
				Filters:      rentFilters,
				MainCategory: models.MainCategoryResidential,
			},
			wantKeys: []string{FiltersKey, QueryKey, MainCategoryKey},
		},
		{
			name:     "partial filters keep defaults for missing fields",
			stored:   map[string]string{FiltersKey: `{"land":{"category":"Edificabile"}}`},
			want:     func() SearchState { s := DefaultState(); s.Filters.Land.Category = "Edificabile"; return s }(),
			wantKeys: []string{FiltersKey},
		},
		{
			name: "corrupted filters are removed",
			stored: map[string]string{
				QueryKey:   "Roma",
				FiltersKey: `{"general": `,
			},
			want:     func() SearchState { s := DefaultState(); s.Query = "Roma"; return s }(),
			wantKeys: []string{QueryKey},
		},
		{
			name:     "unknown main category is ignored",
			stored:   map[string]string{MainCategoryKey: "castles"},
			want:     DefaultState(),
			wantKeys: []string{MainCategoryKey},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := storage.NewMemoryKeyValueStore()
			for k, v := range tt.stored {
				if err := backend.SetItem(ctx, k, v); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}
			s := NewStore(backend)

			got, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}

			keys, err := s.Keys(ctx)
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if !reflect.DeepEqual(keys, tt.wantKeys) {
				t.Errorf("expected keys %v, got %v", tt.wantKeys, keys)
			}
		})
	}
}

func TestLoad_BackendFailure(t *testing.T) {
	backend := storage.NewMemoryKeyValueStore()
	backend.FailOn("GetMany", errors.New("storage locked"))

	got, err := NewStore(backend).Load(context.Background())
	if !errors.Is(err, storage.ErrBackendUnavailable) {
		t.Errorf("expected backend unavailable, got %v", err)
	}
	if !reflect.DeepEqual(got, DefaultState()) {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults are not stored", func(t *testing.T) {
		backend := storage.NewMemoryKeyValueStore()
		backend.SetItem(ctx, QueryKey, "old query")
		backend.SetItem(ctx, MainCategoryKey, "land")
		backend.SetItem(ctx, "@dieti-estates:favorites", "{}")
		s := NewStore(backend)

		if err := s.Save(ctx, DefaultState()); err != nil {
			t.Fatalf("save: %v", err)
		}

		want := map[string]string{"@dieti-estates:favorites": "{}"}
		if got := backend.Snapshot(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		backend := storage.NewMemoryKeyValueStore()
		s := NewStore(backend)

		state := DefaultState()
		state.Query = "Milano"
		state.MainCategory = models.MainCategoryIndustrial
		state.Filters.Industrial.Category = "Capannone"
		state.Filters.Industrial.FireSystem = true
		state.Filters.General.Size = models.Range{Min: 200, Max: 800}

		if err := s.Save(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if !reflect.DeepEqual(got, state) {
			t.Errorf("expected %+v, got %+v", state, got)
		}
	})

	t.Run("only changed values are written", func(t *testing.T) {
		backend := storage.NewMemoryKeyValueStore()
		s := NewStore(backend)

		state := DefaultState()
		state.Query = "Torino"
		if err := s.Save(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}

		keys, _ := s.Keys(ctx)
		if !reflect.DeepEqual(keys, []string{QueryKey}) {
			t.Errorf("expected only the query to be stored, got %v", keys)
		}
	})

	t.Run("backend failure is returned", func(t *testing.T) {
		backend := storage.NewMemoryKeyValueStore()
		backend.FailOn("SetMany", errors.New("disk full"))

		state := DefaultState()
		state.Query = "Bari"
		err := NewStore(backend).Save(ctx, state)
		if !errors.Is(err, storage.ErrBackendUnavailable) {
			t.Errorf("expected backend unavailable, got %v", err)
		}
	})
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryKeyValueStore()
	s := NewStore(backend)

	state := DefaultState()
	state.Query = "Firenze"
	state.MainCategory = models.MainCategoryCommercial
	state.Filters.Commercial.EmergencyExit = true
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	keys, _ := s.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("expected no stored keys, got %v", keys)
	}
}

func TestResetFilters(t *testing.T) {
	rent := DefaultState()
	rent.Query = "Genova"
	rent.MainCategory = models.MainCategoryLand
	rent.Filters.General.TransactionType = models.ListingTypeRent
	rent.Filters.General.PriceRange = models.Range{Min: 500, Max: 900}
	rent.Filters.Land.Slope = "low"

	tests := []struct {
		name string
		keep bool
		want SearchState
	}{
		{
			name: "full reset",
			keep: false,
			want: DefaultState(),
		},
		{
			name: "keeps transaction type",
			keep: true,
			want: func() SearchState {
				s := DefaultState()
				s.Filters.General.TransactionType = models.ListingTypeRent
				s.Filters.General.PriceRange = models.Range{Min: 0, Max: 2000}
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResetFilters(rent, tt.keep); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
