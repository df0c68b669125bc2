package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SearchParam describes a search parameter for use with the CapabilityBuilder.
type SearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

type CapabilityStatement struct {
	ResourceType   string                 `json:"resourceType"`
	Status         string                 `json:"status"`
	Date           string                 `json:"date"`
	Kind           string                 `json:"kind"`
	FHIRVersion    string                 `json:"fhirVersion"`
	Format         []string               `json:"format"`
	Software       CapabilitySoftware     `json:"software"`
	Implementation CapabilityImplementing `json:"implementation"`
	Rest           []CapabilityRest       `json:"rest"`
}

type CapabilitySoftware struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type CapabilityImplementing struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type CapabilityRest struct {
	Mode     string               `json:"mode"`
	Resource []CapabilityResource `json:"resource"`
}

type CapabilityResource struct {
	Type         string                  `json:"type"`
	Interaction  []CapabilityInteraction `json:"interaction"`
	Versioning   string                  `json:"versioning"`
	UpdateCreate bool                    `json:"updateCreate"`
	SearchParam  []SearchParam           `json:"searchParam,omitempty"`
}

type CapabilityInteraction struct {
	Code string `json:"code"`
}

// CapabilityBuilder accumulates resource registrations made during server
// start-up so /fhir/metadata reflects only what is actually routed.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	resources map[string]CapabilityResource
	name      string
	version   string
	baseURL   string
}

func NewCapabilityBuilder(name, baseURL, version string) *CapabilityBuilder {
	return &CapabilityBuilder{
		resources: make(map[string]CapabilityResource),
		name:      name,
		version:   version,
		baseURL:   baseURL,
	}
}

// DefaultInteractions are the interactions the definition resources support.
// PUT creates unknown ids, so updateCreate is always advertised.
func DefaultInteractions() []string {
	return []string{"read", "create", "update", "search-type"}
}

// AddResource registers a resource type. Registering a type twice merges the
// interactions and search parameters.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, params []SearchParam) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceType]
	if !ok {
		res = CapabilityResource{Type: resourceType, Versioning: "versioned", UpdateCreate: true}
	}
	for _, code := range interactions {
		if !hasInteraction(res.Interaction, code) {
			res.Interaction = append(res.Interaction, CapabilityInteraction{Code: code})
		}
	}
	for _, p := range params {
		if !hasParam(res.SearchParam, p.Name) {
			res.SearchParam = append(res.SearchParam, p)
		}
	}
	b.resources[resourceType] = res
}

func hasInteraction(list []CapabilityInteraction, code string) bool {
	for _, i := range list {
		if i.Code == code {
			return true
		}
	}
	return false
}

func hasParam(list []SearchParam, name string) bool {
	for _, p := range list {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Build returns the statement with resources sorted by type.
func (b *CapabilityBuilder) Build() *CapabilityStatement {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	resources := make([]CapabilityResource, len(types))
	for i, rt := range types {
		resources[i] = b.resources[rt]
	}

	return &CapabilityStatement{
		ResourceType:   "CapabilityStatement",
		Status:         "active",
		Date:           time.Now().UTC().Format("2006-01-02"),
		Kind:           "instance",
		FHIRVersion:    "4.0.1",
		Format:         []string{"json"},
		Software:       CapabilitySoftware{Name: b.name, Version: b.version},
		Implementation: CapabilityImplementing{Description: b.name, URL: b.baseURL},
		Rest:           []CapabilityRest{{Mode: "server", Resource: resources}},
	}
}

// MetadataHandler serves the CapabilityStatement.
func MetadataHandler(b *CapabilityBuilder) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.Build())
	}
}
