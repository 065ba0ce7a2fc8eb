// Property model definitions and methods

package models

import "encoding/json"

type ListingType string

const (
	ListingTypeSale ListingType = "sale"
	ListingTypeRent ListingType = "rent"
)

// Property is a real-estate listing as shown on a listing card. The favorites
// cache keeps a full copy taken when the user marks it, so it can drift from
// the listing the API currently serves.
type Property struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Address     string         `json:"address,omitempty"`
	City        string         `json:"city,omitempty"`
	Price       float64        `json:"price,omitempty"`
	ListingType ListingType    `json:"listingType,omitempty"`
	Category    string         `json:"category,omitempty"`
	Rooms       int            `json:"rooms,omitempty"`
	Bathrooms   int            `json:"bathrooms,omitempty"`
	AreaSqm     float64        `json:"areaSqm,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Clone returns a deep copy of p. Details is copied recursively, so later
// changes to the caller's nested maps and slices do not reach the copy.
func (p Property) Clone() Property {
	if p.Details != nil {
		p.Details = cloneMap(p.Details)
	}
	return p
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the shapes encoding/json produces plus the common typed
// containers callers build by hand. Anything else is copied through a JSON
// round trip, which is how the cache persists it anyway.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int64, int32, uint, uint64, uint32, json.Number:
		return t
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return t
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return t
		}
		return out
	}
}
