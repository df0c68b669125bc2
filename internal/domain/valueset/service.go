package valueset

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

type Service struct {
	repo   ValueSetRepository
	logger zerolog.Logger
}

func NewService(repo ValueSetRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "valueset").Logger()}
}

var validValueSetStatuses = map[string]bool{
	"draft": true, "active": true, "retired": true, "unknown": true,
}

var (
	// ErrInvalid wraps validation failures of a submitted value set.
	ErrInvalid   = errors.New("invalid value set")
	ErrDuplicate = errors.New("value set already exists")
)

func validate(vs *ValueSet) error {
	if !validValueSetStatuses[vs.Status] {
		return fmt.Errorf("%w: invalid status: %s", ErrInvalid, vs.Status)
	}
	return nil
}

func (s *Service) CreateValueSet(ctx context.Context, vs *ValueSet) error {
	if vs.Status == "" {
		vs.Status = "active"
	}
	if err := validate(vs); err != nil {
		return err
	}
	if vs.FHIRID != "" {
		if _, err := s.repo.GetByFHIRID(ctx, vs.FHIRID); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, vs.FHIRID)
		} else if !errors.Is(err, concept.ErrNotFound) {
			return err
		}
	}
	if err := s.repo.Create(ctx, vs); err != nil {
		return err
	}
	s.logger.Info().Str("value_set_id", vs.FHIRID).Msg("value set created")
	return nil
}

func (s *Service) GetValueSetByFHIRID(ctx context.Context, fhirID string) (*ValueSet, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

// PutValueSet replaces the value set with the given id, creating it when it
// does not exist yet. The boolean reports whether it was created.
func (s *Service) PutValueSet(ctx context.Context, fhirID string, vs *ValueSet) (bool, error) {
	vs.FHIRID = fhirID
	existing, err := s.repo.GetByFHIRID(ctx, fhirID)
	if errors.Is(err, concept.ErrNotFound) {
		return true, s.CreateValueSet(ctx, vs)
	}
	if err != nil {
		return false, err
	}
	if vs.Status == "" {
		vs.Status = existing.Status
	}
	if err := validate(vs); err != nil {
		return false, err
	}
	vs.ID = existing.ID
	if err := s.repo.Update(ctx, vs); err != nil {
		return false, err
	}
	s.logger.Info().Str("value_set_id", vs.FHIRID).Int("version", vs.VersionID).Msg("value set updated")
	return false, nil
}

func (s *Service) ListValueSets(ctx context.Context, limit, offset int) ([]*ValueSet, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ValueSetByID resolves the value set an ObservationDefinition references.
func (s *Service) ValueSetByID(ctx context.Context, id string) (*fhir.ValueSet, error) {
	vs, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	return vs.ToFHIR(), nil
}
