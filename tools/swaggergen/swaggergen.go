// Command swaggergen generates OpenAPI 3.0 documents (JSON and YAML)
// for the localstated inspector API and writes them to the api/ directory.
//
// Usage:
//
//	go run ./tools/swaggergen
//
// When you add or change an inspector route in internal/routes, update
// buildPaths and buildSchemas below and regenerate.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

func buildDocument() OpenAPI {
	return OpenAPI{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       "DietiEstates local state inspector",
			Description: "Loopback-only debug API over the favorites cache, the session token store and the search preferences.",
			Version:     "1.0.0",
		},
		Paths: buildPaths([]map[string][]string{{"OperatorAuth": {}}}),
		Components: Components{
			Schemas:         buildSchemas(),
			SecuritySchemes: buildSecuritySchemes(),
		},
	}
}

func buildPaths(operatorAuth []map[string][]string) map[string]*PathItem {
	return map[string]*PathItem{
		"/health/live": {
			Get: &Operation{
				Tags:        []string{"Health"},
				Summary:     "Liveness probe",
				OperationID: "healthLive",
				Responses:   map[string]Response{"200": {Description: "Process is up"}},
			},
		},
		"/health/ready": {
			Get: &Operation{
				Tags:        []string{"Health"},
				Summary:     "Readiness probe",
				Description: "503 until the favorites cache has loaded and while any storage backend fails to answer.",
				OperationID: "healthReady",
				Responses: map[string]Response{
					"200": {Description: "Ready"},
					"503": {Description: "Favorites loading or storage not ready"},
				},
			},
		},
		"/debug/favorites": {
			Get: &Operation{
				Tags:        []string{"Favorites"},
				Summary:     "List favorites",
				OperationID: "listFavorites",
				Security:    operatorAuth,
				Responses: map[string]Response{
					"200": {Description: "Current favorites ordered by id", Content: jsonContent("FavoritesResponse")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
				},
			},
			Delete: &Operation{
				Tags:        []string{"Favorites"},
				Summary:     "Clear favorites",
				Description: "Empties the cache and deletes the stored snapshot.",
				OperationID: "clearFavorites",
				Security:    operatorAuth,
				Responses: map[string]Response{
					"200": {Description: "Cleared", Content: jsonContent("SuccessMessage")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
				},
			},
		},
		"/debug/favorites/{id}": {
			Get: &Operation{
				Tags:        []string{"Favorites"},
				Summary:     "Get a favorite",
				OperationID: "getFavorite",
				Security:    operatorAuth,
				Parameters:  []Parameter{propertyIDParam()},
				Responses: map[string]Response{
					"200": {Description: "The stored copy of the property", Content: jsonContent("Property")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
					"404": {Description: "Not a favorite", Content: errContent()},
				},
			},
		},
		"/debug/favorites/toggle": {
			Post: &Operation{
				Tags:        []string{"Favorites"},
				Summary:     "Toggle a favorite",
				Description: "Adds the property if its id is not a favorite, removes it otherwise. The snapshot is written in the background.",
				OperationID: "toggleFavorite",
				Security:    operatorAuth,
				RequestBody: &RequestBody{Required: true, Content: jsonContent("Property")},
				Responses: map[string]Response{
					"200": {Description: "New membership state", Content: jsonContent("ToggleResponse")},
					"400": {Description: "Invalid body or missing id", Content: errContent()},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
				},
			},
		},
		"/debug/favorites/flush": {
			Post: &Operation{
				Tags:        []string{"Favorites"},
				Summary:     "Flush pending writes",
				OperationID: "flushFavorites",
				Security:    operatorAuth,
				Responses: map[string]Response{
					"200": {Description: "All earlier changes are stored", Content: jsonContent("SuccessMessage")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
					"503": {Description: "The latest write failed", Content: errContent()},
				},
			},
		},
		"/debug/session": {
			Get: &Operation{
				Tags:        []string{"Session"},
				Summary:     "Session status",
				Description: "Reports token presence and expiry. Token values are never returned.",
				OperationID: "getSession",
				Security:    operatorAuth,
				Responses: map[string]Response{
					"200": {Description: "Session status", Content: jsonContent("SessionResponse")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
					"503": {Description: "Secure store unavailable", Content: errContent()},
				},
			},
			Delete: &Operation{
				Tags:        []string{"Session"},
				Summary:     "Log out",
				Description: "Removes both tokens.",
				OperationID: "clearSession",
				Security:    operatorAuth,
				Responses: map[string]Response{
					"200": {Description: "Session cleared", Content: jsonContent("SuccessMessage")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
					"503": {Description: "Secure store unavailable", Content: errContent()},
				},
			},
		},
		"/debug/preferences": {
			Get: &Operation{
				Tags:        []string{"Preferences"},
				Summary:     "Search preferences",
				OperationID: "getPreferences",
				Security:    operatorAuth,
				Responses: map[string]Response{
					"200": {Description: "Effective state and the keys actually stored", Content: jsonContent("PreferencesResponse")},
					"401": {Description: "Missing or invalid operator token", Content: errContent()},
					"503": {Description: "Storage unavailable", Content: errContent()},
				},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func propertyIDParam() Parameter {
	return Parameter{
		Name:        "id",
		In:          "path",
		Description: "Property id",
		Required:    true,
		Schema:      Schema{Type: "string"},
	}
}

func ref(name string) Schema {
	return Schema{Ref: "#/components/schemas/" + name}
}

func jsonContent(schema string) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: ref(schema)}}
}

func errContent() map[string]MediaType {
	return jsonContent("ErrorResponse")
}

func buildSecuritySchemes() map[string]SecurityScheme {
	return map[string]SecurityScheme{
		"OperatorAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Operator JWT with aud 'localstate-inspector' and a 'sub' claim. Unsigned when no INSPECTOR_SECRET is set.",
		},
	}
}

func buildSchemas() map[string]Schema {
	str := Schema{Type: "string"}
	num := Schema{Type: "number"}
	boolean := Schema{Type: "boolean"}
	rng := ref("Range")

	return map[string]Schema{
		"ErrorResponse": {
			Type: "object",
			Properties: map[string]Schema{
				"error": {Type: "string", Description: "Human-readable error message"},
				"kind":  {Type: "string", Enum: []string{"backend_unavailable", "serialization", "not_found"}},
			},
			Required: []string{"error"},
		},
		"SuccessMessage": {
			Type:       "object",
			Properties: map[string]Schema{"message": str},
			Required:   []string{"message"},
		},
		"Property": {
			Type:        "object",
			Description: "A listing as stored in the favorites snapshot.",
			Properties: map[string]Schema{
				"id":          str,
				"title":       str,
				"address":     str,
				"city":        str,
				"price":       num,
				"listingType": {Type: "string", Enum: []string{"sale", "rent"}},
				"category":    str,
				"rooms":       {Type: "integer"},
				"bathrooms":   {Type: "integer"},
				"areaSqm":     num,
				"imageUrl":    str,
				"details":     {Type: "object", AdditionalProperties: &Schema{}},
			},
			Required: []string{"id"},
		},
		"FavoritesResponse": {
			Type: "object",
			Properties: map[string]Schema{
				"count":     {Type: "integer"},
				"loading":   boolean,
				"favorites": {Type: "array", Items: &Schema{Ref: "#/components/schemas/Property"}},
			},
		},
		"ToggleResponse": {
			Type:       "object",
			Properties: map[string]Schema{"id": str, "favorite": boolean},
		},
		"TokenStatus": {
			Type: "object",
			Properties: map[string]Schema{
				"present":   boolean,
				"expiresAt": {Type: "string", Format: "date-time", Description: "Only for JWT tokens with an exp claim"},
			},
		},
		"SessionResponse": {
			Type: "object",
			Properties: map[string]Schema{
				"accessToken":  ref("TokenStatus"),
				"refreshToken": ref("TokenStatus"),
				"needsRefresh": boolean,
			},
		},
		"Range": {
			Type:       "object",
			Properties: map[string]Schema{"min": num, "max": num},
		},
		"PropertyFilters": {
			Type: "object",
			Properties: map[string]Schema{
				"general": {Type: "object", Properties: map[string]Schema{
					"transactionType": {Type: "string", Enum: []string{"sale", "rent"}},
					"priceRange":      rng,
					"size":            rng,
				}},
				"residential": {Type: "object", Properties: map[string]Schema{
					"category": str, "rooms": str, "bathrooms": str, "floor": str, "elevator": boolean, "pool": boolean,
				}},
				"commercial": {Type: "object", Properties: map[string]Schema{
					"category": str, "bathrooms": str, "emergencyExit": boolean, "constructionDate": str,
				}},
				"industrial": {Type: "object", Properties: map[string]Schema{
					"category": str, "ceilingHeight": str, "fireSystem": boolean, "floorLoad": str, "offices": str, "structure": str,
				}},
				"land": {Type: "object", Properties: map[string]Schema{
					"category": str, "soilType": str, "slope": str,
				}},
			},
		},
		"PreferencesResponse": {
			Type: "object",
			Properties: map[string]Schema{
				"state": {Type: "object", Properties: map[string]Schema{
					"searchQuery":                 str,
					"filters":                     ref("PropertyFilters"),
					"selectedMainCategoryInPanel": {Type: "string", Enum: []string{"residential", "commercial", "industrial", "land"}},
				}},
				"storedKeys": {Type: "array", Items: &Schema{Type: "string"}},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// File writers
// ---------------------------------------------------------------------------

func writeJSON(doc OpenAPI, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

func writeYAML(doc OpenAPI, path string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal YAML: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func main() {
	_, src, _, _ := runtime.Caller(0)
	outDir := filepath.Join(filepath.Dir(src), "..", "..", "api")

	if err := os.MkdirAll(outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create api/ directory: %v\n", err)
		os.Exit(1)
	}

	doc := buildDocument()

	jsonPath := filepath.Join(outDir, "swagger.json")
	if err := writeJSON(doc, jsonPath); err != nil {
		fmt.Fprintf(os.Stderr, "error writing JSON: %v\n", err)
		os.Exit(1)
	}

	yamlPath := filepath.Join(outDir, "swagger.yaml")
	if err := writeYAML(doc, yamlPath); err != nil {
		fmt.Fprintf(os.Stderr, "error writing YAML: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Swagger files generated:\n  %s\n  %s\n", jsonPath, yamlPath)
}
