package favorites

import (
	"encoding/json"
	"fmt"

	"github.com/giannis84/dieti-localstate/internal/models"
	"github.com/giannis84/dieti-localstate/internal/storage"
)

// encodeSnapshot serialises the favorites map as a JSON object keyed by id.
func encodeSnapshot(favorites map[string]models.Property) (string, error) {
	data, err := json.Marshal(favorites)
	if err != nil {
		return "", fmt.Errorf("marshalling favorites: %w", err)
	}
	return string(data), nil
}

// decodeSnapshot parses a stored blob. Entries without an id take their key as id.
func decodeSnapshot(key, blob string) (map[string]models.Property, error) {
	var favorites map[string]models.Property
	if err := json.Unmarshal([]byte(blob), &favorites); err != nil {
		return nil, storage.Corrupted("Load", key, fmt.Errorf("unmarshalling favorites: %w", err))
	}
	if favorites == nil {
		favorites = make(map[string]models.Property)
	}
	for id, p := range favorites {
		if p.ID == "" {
			p.ID = id
			favorites[id] = p
		}
	}
	return favorites, nil
}
