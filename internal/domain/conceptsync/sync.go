package conceptsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/internal/platform/locker"
)

// importLockKey guards every pass that may create concepts by name. Answers
// are shared across resources, so a narrower key would not prevent duplicates.
const importLockKey = "import"

// Imported is what a service hands back after an import: the resource as it
// now exports, the concept behind it and the warnings the pass raised.
type Imported[R any] struct {
	Resource R
	Concept  *concept.Concept
	// Created reports that no concept existed before the pass.
	Created  bool
	Warnings []Warning
}

// PassFunc runs one translation pass.
type PassFunc func(ctx context.Context) (*Result, error)

// Syncer persists the outcome of translation passes. Passes run one at a time
// under the import lock so that resolve-or-create by name stays race free.
type Syncer struct {
	store  concept.Store
	locker locker.Locker
	logger zerolog.Logger
}

func NewSyncer(store concept.Store, l locker.Locker, logger zerolog.Logger) *Syncer {
	if l == nil {
		l = locker.NewLocalLocker()
	}
	return &Syncer{
		store:  store,
		locker: l,
		logger: logger.With().Str("component", "syncer").Logger(),
	}
}

// Apply runs fn under the import lock and saves its result. With dryRun the
// result is returned unsaved.
func (s *Syncer) Apply(ctx context.Context, resourceType string, dryRun bool, fn PassFunc) (*Result, error) {
	unlock, err := s.locker.Lock(ctx, importLockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return res, nil
	}

	saved, err := s.store.SaveAll(ctx, res.Pending, res.Concept)
	if err != nil {
		return nil, fmt.Errorf("save %s concept: %w", resourceType, err)
	}
	res.Concept = saved

	s.logger.Info().
		Str("resource_type", resourceType).
		Str("concept_id", saved.FHIRID).
		Int("version", saved.VersionID).
		Int("created", len(res.Pending)).
		Int("warnings", len(res.Warnings)).
		Msg("concept saved")
	return res, nil
}

// Get loads a concept by its external id.
func (s *Syncer) Get(ctx context.Context, id string) (*concept.Concept, error) {
	c, err := s.store.FindByFHIRID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load concept %s: %w", id, err)
	}
	return c, nil
}

// Current returns the concept stored under id, or nil when there is none.
func (s *Syncer) Current(ctx context.Context, id string) (*concept.Concept, error) {
	if id == "" {
		return nil, nil
	}
	c, err := s.store.FindByFHIRID(ctx, id)
	if errors.Is(err, concept.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load concept %s: %w", id, err)
	}
	return c, nil
}

// CurrentAt is Current guarded by an If-Match style precondition: a non-zero
// version must equal the stored concept's version. Call it inside Apply so the
// check and the save happen under the same lock.
func (s *Syncer) CurrentAt(ctx context.Context, id string, version int) (*concept.Concept, error) {
	c, err := s.Current(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	if err := fhir.CheckVersion(version, c.VersionID); err != nil {
		return nil, err
	}
	return c, nil
}

// FindByName looks a concept up by its exact name in locale.
func (s *Syncer) FindByName(ctx context.Context, name, locale string) (*concept.Concept, error) {
	c, err := s.store.FindByName(ctx, name, locale)
	if err != nil {
		return nil, fmt.Errorf("find concept named %q: %w", name, err)
	}
	return c, nil
}

// FindByCode returns the concept holding a SAME-AS mapping to code in the
// code system identified by system.
func (s *Syncer) FindByCode(ctx context.Context, system, code string) (*concept.Concept, error) {
	src, err := s.store.SourceByURI(ctx, system)
	if err != nil {
		return nil, fmt.Errorf("code system %s: %w", system, err)
	}
	c, err := s.store.ConceptWithSameAs(ctx, src.ID, code)
	if err != nil {
		return nil, fmt.Errorf("concept for %s|%s: %w", system, code, err)
	}
	return c, nil
}
