package valueset

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/conceptsync/internal/domain/concept"
)

type valueSetRepoMem struct {
	mu    sync.RWMutex
	items map[string]*ValueSet
}

// NewValueSetRepoMem returns an in-process repository for development mode
// and tests.
func NewValueSetRepoMem() ValueSetRepository {
	return &valueSetRepoMem{items: make(map[string]*ValueSet)}
}

func (r *valueSetRepoMem) Create(_ context.Context, vs *ValueSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs.ID = uuid.New()
	if vs.FHIRID == "" {
		vs.FHIRID = vs.ID.String()
	}
	if _, ok := r.items[vs.FHIRID]; ok {
		return fmt.Errorf("value set %s already exists", vs.FHIRID)
	}
	now := time.Now().UTC()
	vs.VersionID = 1
	vs.CreatedAt = now
	vs.UpdatedAt = now
	cp := *vs
	r.items[vs.FHIRID] = &cp
	return nil
}

func (r *valueSetRepoMem) GetByFHIRID(_ context.Context, fhirID string) (*ValueSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs, ok := r.items[fhirID]
	if !ok {
		return nil, concept.ErrNotFound
	}
	cp := *vs
	return &cp, nil
}

func (r *valueSetRepoMem) Update(_ context.Context, vs *ValueSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[vs.FHIRID]
	if !ok || existing.ID != vs.ID {
		return concept.ErrNotFound
	}
	vs.VersionID = existing.VersionID + 1
	vs.CreatedAt = existing.CreatedAt
	vs.UpdatedAt = time.Now().UTC()
	cp := *vs
	r.items[vs.FHIRID] = &cp
	return nil
}

func (r *valueSetRepoMem) List(_ context.Context, limit, offset int) ([]*ValueSet, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*ValueSet, 0, len(r.items))
	for _, vs := range r.items {
		cp := *vs
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
