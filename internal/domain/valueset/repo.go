package valueset

import (
	"context"
)

type ValueSetRepository interface {
	Create(ctx context.Context, vs *ValueSet) error
	GetByFHIRID(ctx context.Context, fhirID string) (*ValueSet, error)
	Update(ctx context.Context, vs *ValueSet) error
	List(ctx context.Context, limit, offset int) ([]*ValueSet, int, error)
}
