package fhir

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var validate = validator.New()

// DecodeResource unmarshals a FHIR JSON payload into v and validates its
// structural tags (resourceType pinning and the like).
func DecodeResource(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode resource: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid resource: %w", err)
	}
	return nil
}

// ResourceTypeOf peeks at the resourceType field of a JSON payload.
func ResourceTypeOf(data []byte) (string, error) {
	var r Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("decode resource: %w", err)
	}
	if r.ResourceType == "" {
		return "", fmt.Errorf("resourceType is required")
	}
	return r.ResourceType, nil
}

// LocalID extracts the id from a reference of the form "<prefix><id>" for the
// first matching prefix. Empty ids and unknown forms report false.
func LocalID(ref string, prefixes ...string) (string, bool) {
	trimmed := strings.TrimSpace(ref)
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			id := strings.TrimSpace(strings.TrimPrefix(trimmed, p))
			return id, id != ""
		}
	}
	return "", false
}
