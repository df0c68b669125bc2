// Package conceptsync reconciles FHIR definitional resources with the
// concept graph. Translators never write to the store: they return the next
// state of the concept together with any concepts created along the way and
// leave persistence to the caller.
package conceptsync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// ValueSetResolver loads a value set by its local id. Implementations return
// concept.ErrNotFound when no such value set exists.
type ValueSetResolver interface {
	ValueSetByID(ctx context.Context, id string) (*fhir.ValueSet, error)
}

// Deps are the collaborators a translation pass reads from.
type Deps struct {
	Concepts  concept.ConceptFinder
	Registry  concept.Registry
	Sources   concept.SourceLookup
	SameAs    concept.SameAsIndex
	ValueSets ValueSetResolver
}

// DepsFromStore wires every concept capability to a single store.
func DepsFromStore(store concept.Store, valueSets ValueSetResolver) Deps {
	return Deps{
		Concepts:  store,
		Registry:  store,
		Sources:   store,
		SameAs:    store,
		ValueSets: valueSets,
	}
}

// Engine translates resources to and from concepts.
type Engine struct {
	concepts  concept.ConceptFinder
	registry  concept.Registry
	sources   concept.SourceLookup
	sameAs    concept.SameAsIndex
	valueSets ValueSetResolver
	logger    zerolog.Logger
}

func NewEngine(deps Deps, logger zerolog.Logger) *Engine {
	return &Engine{
		concepts:  deps.Concepts,
		registry:  deps.Registry,
		sources:   deps.Sources,
		sameAs:    deps.SameAs,
		valueSets: deps.ValueSets,
		logger:    logger.With().Str("component", "conceptsync").Logger(),
	}
}

// Result is the outcome of one import pass.
type Result struct {
	// Concept is the next state of the translated concept. It is a copy; the
	// concept passed in by the caller is left unchanged.
	Concept *concept.Concept
	// Pending holds answer concepts created during the pass. They must be
	// saved before Concept.
	Pending  []*concept.Concept
	Warnings []Warning
}

// pass carries the state of a single translation.
type pass struct {
	ctx    context.Context
	e      *Engine
	locale string
	resID  string
	result *Result
	// created indexes the answers created in this pass by code and by their
	// name in the pass locale.
	created       map[string]*concept.Concept
	createdByName map[string]*concept.Concept
	logger        zerolog.Logger
}

func (e *Engine) newPass(ctx context.Context, locale language.Tag, resourceType, resourceID string) *pass {
	if locale == language.Und {
		locale = language.English
	}
	return &pass{
		ctx:           ctx,
		e:             e,
		locale:        locale.String(),
		resID:         resourceID,
		result:        &Result{},
		created:       make(map[string]*concept.Concept),
		createdByName: make(map[string]*concept.Concept),
		logger: e.logger.With().
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Logger(),
	}
}

func (p *pass) warn(kind WarningKind, format string, args ...interface{}) {
	w := Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
	p.result.Warnings = append(p.result.Warnings, w)
	if kind == WarningMappingConflict {
		p.logger.Warn().Str("kind", string(kind)).Msg(w.Message)
		return
	}
	p.logger.Debug().Str("kind", string(kind)).Msg(w.Message)
}

func (p *pass) finish(c *concept.Concept) *Result {
	p.result.Concept = c
	return p.result
}
