package concept

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that find no matching record.
var ErrNotFound = errors.New("not found")

// ConceptFinder looks concepts up by external id or by exact name.
type ConceptFinder interface {
	FindByFHIRID(ctx context.Context, fhirID string) (*Concept, error)
	FindByName(ctx context.Context, name, locale string) (*Concept, error)
}

// Registry resolves provisioned reference data by name.
type Registry interface {
	ClassByName(ctx context.Context, name string) (*Classification, error)
	DatatypeByName(ctx context.Context, name string) (*Datatype, error)
	MapKindByName(ctx context.Context, name string) (*MapKind, error)
}

// SourceLookup resolves an external code system by its URI.
type SourceLookup interface {
	SourceByURI(ctx context.Context, uri string) (*Source, error)
}

// SameAsIndex finds the concept holding a SAME-AS mapping to (source, code).
type SameAsIndex interface {
	ConceptWithSameAs(ctx context.Context, sourceID uuid.UUID, code string) (*Concept, error)
}

// Persister saves a concept together with the concepts created while
// translating it. Implementations save pending concepts first so relations
// can reference them.
type Persister interface {
	SaveAll(ctx context.Context, pending []*Concept, c *Concept) (*Concept, error)
}

// Store is the union of all collaborator capabilities; both the PostgreSQL
// and the in-memory implementations satisfy it.
type Store interface {
	ConceptFinder
	Registry
	SourceLookup
	SameAsIndex
	Persister
}
