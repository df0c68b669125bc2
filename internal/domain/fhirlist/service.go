package fhirlist

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

const resourceType = "List"

// Imported is the outcome of a panel List import.
type Imported = conceptsync.Imported[*fhir.ListResource]

type Service struct {
	engine *conceptsync.Engine
	syncer *conceptsync.Syncer
	logger zerolog.Logger
}

func NewService(engine *conceptsync.Engine, syncer *conceptsync.Syncer, logger zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		syncer: syncer,
		logger: logger.With().Str("component", "fhirlist").Logger(),
	}
}

// Import reconciles list with the LabSet concept it addresses. Entries that
// do not resolve are skipped with a warning. With dryRun nothing is saved.
func (s *Service) Import(ctx context.Context, list *fhir.ListResource, locale language.Tag, dryRun bool) (*Imported, error) {
	return s.run(ctx, list, locale, dryRun, func(context.Context) (*concept.Concept, error) { return nil, nil })
}

// Put imports list under id. The URL id wins over any id in the body; an unknown
// id creates the concept. A non-zero version must match the stored concept's
// version; it is checked under the import lock.
func (s *Service) Put(ctx context.Context, id string, list *fhir.ListResource, locale language.Tag, version int) (*Imported, error) {
	list.ID = id
	return s.run(ctx, list, locale, false, func(ctx context.Context) (*concept.Concept, error) {
		return s.syncer.CurrentAt(ctx, id, version)
	})
}

func (s *Service) run(ctx context.Context, list *fhir.ListResource, locale language.Tag, dryRun bool,
	existing func(context.Context) (*concept.Concept, error)) (*Imported, error) {
	var created bool
	res, err := s.syncer.Apply(ctx, resourceType, dryRun, func(ctx context.Context) (*conceptsync.Result, error) {
		cur, err := existing(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.ImportPanel(ctx, list, cur, locale)
		if err != nil {
			return nil, err
		}
		created = !res.Concept.Persisted()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	out, err := conceptsync.ToPanelList(res.Concept, locale)
	if err != nil {
		return nil, err
	}
	return &Imported{Resource: out, Concept: res.Concept, Created: created, Warnings: res.Warnings}, nil
}

// Get exports the concept stored under id.
func (s *Service) Get(ctx context.Context, id string, locale language.Tag) (*fhir.ListResource, *concept.Concept, error) {
	c, err := s.syncer.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := conceptsync.ToPanelList(c, locale)
	if err != nil {
		return nil, nil, err
	}
	return r, c, nil
}

// SearchByName returns the List for the concept named name, if that
// concept exports as one.
func (s *Service) SearchByName(ctx context.Context, name string, locale language.Tag) ([]*fhir.ListResource, error) {
	c, err := s.syncer.FindByName(ctx, name, locale.String())
	if err != nil {
		return nil, err
	}
	r, err := conceptsync.ToPanelList(c, locale)
	if err != nil {
		return nil, err
	}
	return []*fhir.ListResource{r}, nil
}
