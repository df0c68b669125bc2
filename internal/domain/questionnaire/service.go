package questionnaire

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

const resourceType = "Questionnaire"

// Imported is the outcome of a questionnaire import.
type Imported = conceptsync.Imported[*fhir.Questionnaire]

type Service struct {
	engine *conceptsync.Engine
	syncer *conceptsync.Syncer
	logger zerolog.Logger
}

func NewService(engine *conceptsync.Engine, syncer *conceptsync.Syncer, logger zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		syncer: syncer,
		logger: logger.With().Str("component", "questionnaire").Logger(),
	}
}

// Import reconciles q with the concept it addresses, creating one when q's id
// and title match nothing. With dryRun nothing is saved.
func (s *Service) Import(ctx context.Context, q *fhir.Questionnaire, locale language.Tag, dryRun bool) (*Imported, error) {
	return s.run(ctx, q, locale, dryRun, func(context.Context) (*concept.Concept, error) { return nil, nil })
}

// Put imports q under id. The URL id wins over any id in the body; an unknown
// id creates the concept. A non-zero version must match the stored concept's
// version; it is checked under the import lock.
func (s *Service) Put(ctx context.Context, id string, q *fhir.Questionnaire, locale language.Tag, version int) (*Imported, error) {
	q.ID = id
	return s.run(ctx, q, locale, false, func(ctx context.Context) (*concept.Concept, error) {
		return s.syncer.CurrentAt(ctx, id, version)
	})
}

func (s *Service) run(ctx context.Context, q *fhir.Questionnaire, locale language.Tag, dryRun bool,
	existing func(context.Context) (*concept.Concept, error)) (*Imported, error) {
	var created bool
	res, err := s.syncer.Apply(ctx, resourceType, dryRun, func(ctx context.Context) (*conceptsync.Result, error) {
		cur, err := existing(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.ImportQuestionnaire(ctx, q, cur, locale)
		if err != nil {
			return nil, err
		}
		created = !res.Concept.Persisted()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	out, err := conceptsync.ToQuestionnaire(res.Concept, locale)
	if err != nil {
		return nil, err
	}
	return &Imported{Resource: out, Concept: res.Concept, Created: created, Warnings: res.Warnings}, nil
}

// Get exports the concept stored under id.
func (s *Service) Get(ctx context.Context, id string, locale language.Tag) (*fhir.Questionnaire, *concept.Concept, error) {
	c, err := s.syncer.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	q, err := conceptsync.ToQuestionnaire(c, locale)
	if err != nil {
		return nil, nil, err
	}
	return q, c, nil
}

// SearchByName returns the questionnaire for the concept named name, if that
// concept exports as one.
func (s *Service) SearchByName(ctx context.Context, name string, locale language.Tag) ([]*fhir.Questionnaire, error) {
	c, err := s.syncer.FindByName(ctx, name, locale.String())
	if err != nil {
		return nil, err
	}
	q, err := conceptsync.ToQuestionnaire(c, locale)
	if err != nil {
		return nil, err
	}
	return []*fhir.Questionnaire{q}, nil
}
