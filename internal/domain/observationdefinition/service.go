package observationdefinition

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

const resourceType = "ObservationDefinition"

// Imported is the outcome of an ObservationDefinition import.
type Imported = conceptsync.Imported[*fhir.ObservationDefinition]

type Service struct {
	engine *conceptsync.Engine
	syncer *conceptsync.Syncer
	logger zerolog.Logger
}

func NewService(engine *conceptsync.Engine, syncer *conceptsync.Syncer, logger zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		syncer: syncer,
		logger: logger.With().Str("component", "observationdefinition").Logger(),
	}
}

// Import reconciles od with the Test concept it addresses. A definition
// without a matching id may reuse a Test concept of the same name and
// datatype. With dryRun nothing is saved.
func (s *Service) Import(ctx context.Context, od *fhir.ObservationDefinition, locale language.Tag, dryRun bool) (*Imported, error) {
	return s.run(ctx, od, locale, dryRun, func(context.Context) (*concept.Concept, error) { return nil, nil })
}

// Put imports od under id. The URL id wins over any id in the body; an unknown
// id creates the concept. A non-zero version must match the stored concept's
// version; it is checked under the import lock.
func (s *Service) Put(ctx context.Context, id string, od *fhir.ObservationDefinition, locale language.Tag, version int) (*Imported, error) {
	od.ID = id
	return s.run(ctx, od, locale, false, func(ctx context.Context) (*concept.Concept, error) {
		return s.syncer.CurrentAt(ctx, id, version)
	})
}

func (s *Service) run(ctx context.Context, od *fhir.ObservationDefinition, locale language.Tag, dryRun bool,
	existing func(context.Context) (*concept.Concept, error)) (*Imported, error) {
	var created bool
	res, err := s.syncer.Apply(ctx, resourceType, dryRun, func(ctx context.Context) (*conceptsync.Result, error) {
		cur, err := existing(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.ImportObservationDefinition(ctx, od, cur, locale)
		if err != nil {
			return nil, err
		}
		created = !res.Concept.Persisted()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	out, err := conceptsync.ToObservationDefinition(res.Concept, locale)
	if err != nil {
		return nil, err
	}
	return &Imported{Resource: out, Concept: res.Concept, Created: created, Warnings: res.Warnings}, nil
}

// Get exports the concept stored under id.
func (s *Service) Get(ctx context.Context, id string, locale language.Tag) (*fhir.ObservationDefinition, *concept.Concept, error) {
	c, err := s.syncer.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := conceptsync.ToObservationDefinition(c, locale)
	if err != nil {
		return nil, nil, err
	}
	return r, c, nil
}

// SearchByName returns the ObservationDefinition for the concept named name, if that
// concept exports as one.
func (s *Service) SearchByName(ctx context.Context, name string, locale language.Tag) ([]*fhir.ObservationDefinition, error) {
	c, err := s.syncer.FindByName(ctx, name, locale.String())
	if err != nil {
		return nil, err
	}
	r, err := conceptsync.ToObservationDefinition(c, locale)
	if err != nil {
		return nil, err
	}
	return []*fhir.ObservationDefinition{r}, nil
}

// SearchByCode resolves a "system|code" token through the SAME-AS index. A
// bare code is looked up in LOINC.
func (s *Service) SearchByCode(ctx context.Context, token string, locale language.Tag) ([]*fhir.ObservationDefinition, error) {
	system, code := concept.SystemLOINC, token
	if i := strings.Index(token, "|"); i >= 0 {
		system, code = token[:i], token[i+1:]
	}
	c, err := s.syncer.FindByCode(ctx, system, code)
	if err != nil {
		return nil, err
	}
	r, err := conceptsync.ToObservationDefinition(c, locale)
	if err != nil {
		return nil, err
	}
	return []*fhir.ObservationDefinition{r}, nil
}
