package conceptsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/conceptsync/internal/domain/concept"
)

// ResolveClassification returns the registered concept class called name.
func (e *Engine) ResolveClassification(ctx context.Context, name string) (*concept.Classification, error) {
	c, err := e.registry.ClassByName(ctx, name)
	if err != nil {
		return nil, registryError(err, "concept class", name)
	}
	return c, nil
}

// ResolveDatatype returns the registered concept datatype called name.
func (e *Engine) ResolveDatatype(ctx context.Context, name string) (*concept.Datatype, error) {
	d, err := e.registry.DatatypeByName(ctx, name)
	if err != nil {
		return nil, registryError(err, "concept datatype", name)
	}
	return d, nil
}

// ResolveMapKind returns the registered mapping kind called name.
func (e *Engine) ResolveMapKind(ctx context.Context, name string) (*concept.MapKind, error) {
	k, err := e.registry.MapKindByName(ctx, name)
	if err != nil {
		return nil, registryError(err, "concept map type", name)
	}
	return k, nil
}

func registryError(err error, kind, name string) error {
	if errors.Is(err, concept.ErrNotFound) {
		return &MissingReferenceDataError{Kind: kind, Name: name}
	}
	return fmt.Errorf("lookup %s %s: %w", kind, name, err)
}
