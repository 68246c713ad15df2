package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entity is a searchable record: a handful of fixed columns plus free-form
// JSONB properties that property filters can reach into.
type Entity struct {
	ID         uuid.UUID      `json:"id"`
	EntityType string         `json:"entityType"`
	Path       string         `json:"path"`
	Properties map[string]any `json:"properties"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NewEntity creates a new entity with a fresh ID
func NewEntity(entityType, path string, properties map[string]any) Entity {
	now := time.Now()
	return Entity{
		ID:         uuid.New(),
		EntityType: entityType,
		Path:       path,
		Properties: copyProperties(properties),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithProperty returns a copy of the entity with an added/updated property
func (e Entity) WithProperty(key string, value any) Entity {
	props := copyProperties(e.Properties)
	props[key] = value

	out := e
	out.Properties = props
	out.UpdatedAt = time.Now()
	return out
}

// PropertiesJSON encodes the properties for a JSONB column.
func (e Entity) PropertiesJSON() (json.RawMessage, error) {
	if e.Properties == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	if len(propertiesJSON) == 0 {
		return map[string]any{}, nil
	}
	var properties map[string]any
	if err := json.Unmarshal(propertiesJSON, &properties); err != nil {
		return nil, err
	}
	if properties == nil {
		properties = map[string]any{}
	}
	return properties, nil
}

func copyProperties(properties map[string]any) map[string]any {
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	return out
}
