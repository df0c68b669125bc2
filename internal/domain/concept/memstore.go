package concept

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Code system URIs seeded as concept sources.
const (
	SystemLOINC  = "http://loinc.org"
	SystemSNOMED = "http://snomed.info/sct"
	SystemCIEL   = "https://cielterminology.org"
)

// MemoryStore is an in-process Store. It is used for development mode, dry-run
// imports and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	concepts  map[string]*Concept
	classes   map[string]*Classification
	datatypes map[string]*Datatype
	mapKinds  map[string]*MapKind
	sources   map[string]*Source
	saves     int
}

// NewMemoryStore creates a store seeded with the default registry records.
func NewMemoryStore() *MemoryStore {
	s := NewEmptyMemoryStore()
	for _, n := range []string{ClassTest, ClassLabSet, ClassMisc} {
		s.AddClass(n)
	}
	for _, n := range []string{DatatypeCoded, DatatypeNumeric, DatatypeText, DatatypeNA} {
		s.AddDatatype(n)
	}
	s.AddMapKind(MapKindSameAs)
	s.AddSource("LOINC", SystemLOINC)
	s.AddSource("SNOMED CT", SystemSNOMED)
	s.AddSource("CIEL", SystemCIEL)
	return s
}

// NewEmptyMemoryStore creates a store with no registry records.
func NewEmptyMemoryStore() *MemoryStore {
	return &MemoryStore{
		concepts:  make(map[string]*Concept),
		classes:   make(map[string]*Classification),
		datatypes: make(map[string]*Datatype),
		mapKinds:  make(map[string]*MapKind),
		sources:   make(map[string]*Source),
	}
}

func (s *MemoryStore) AddClass(name string) *Classification {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Classification{ID: uuid.New(), Name: name}
	s.classes[strings.ToLower(name)] = c
	return c
}

func (s *MemoryStore) AddDatatype(name string) *Datatype {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Datatype{ID: uuid.New(), Name: name}
	s.datatypes[strings.ToLower(name)] = d
	return d
}

func (s *MemoryStore) AddMapKind(name string) *MapKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := &MapKind{ID: uuid.New(), Name: name}
	s.mapKinds[strings.ToLower(name)] = k
	return k
}

func (s *MemoryStore) AddSource(name, uri string) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := &Source{ID: uuid.New(), Name: name, URI: uri}
	s.sources[uri] = src
	return src
}

// Saves returns the number of concepts written so far.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Len returns the number of stored concepts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.concepts)
}

func (s *MemoryStore) FindByFHIRID(_ context.Context, fhirID string) (*Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[fhirID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// FindByName matches names exactly. Names in locale win; among equals the
// earliest created concept is returned, as the PostgreSQL store does.
func (s *MemoryStore) FindByName(_ context.Context, name, locale string) (*Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Concept
	bestLocal := false
	for _, c := range s.concepts {
		match, local := false, false
		for _, n := range c.Names {
			if n.Name == name {
				match = true
				local = local || n.Locale == locale
			}
		}
		if !match {
			continue
		}
		if best == nil || (local && !bestLocal) || (local == bestLocal && earlier(c, best)) {
			best, bestLocal = c, local
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func earlier(a, b *Concept) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.FHIRID < b.FHIRID
}

func (s *MemoryStore) ClassByName(_ context.Context, name string) (*Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.classes[strings.ToLower(name)]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DatatypeByName(_ context.Context, name string) (*Datatype, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.datatypes[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) MapKindByName(_ context.Context, name string) (*MapKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.mapKinds[strings.ToLower(name)]; ok {
		return k, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SourceByURI(_ context.Context, uri string) (*Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if src, ok := s.sources[uri]; ok {
		return src, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ConceptWithSameAs(_ context.Context, sourceID uuid.UUID, code string) (*Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.concepts {
		for _, m := range c.FindSameAs(sourceID) {
			if strings.EqualFold(m.Term.Code, code) {
				return c, nil
			}
		}
	}
	return nil, ErrNotFound
}

// SaveAll validates every id before writing anything, so a failed save
// leaves the store as it was.
func (s *MemoryStore) SaveAll(_ context.Context, pending []*Concept, c *Concept) (*Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.FHIRID == "" {
		c.FHIRID = uuid.NewString()
	}
	seen := make(map[string]bool, len(pending)+1)
	for _, p := range pending {
		if existing, ok := s.concepts[p.FHIRID]; (ok && existing != p) || seen[p.FHIRID] {
			return nil, fmt.Errorf("concept %s already exists", p.FHIRID)
		}
		seen[p.FHIRID] = true
	}
	if existing, ok := s.concepts[c.FHIRID]; (ok && existing.ID != c.ID) || seen[c.FHIRID] {
		return nil, fmt.Errorf("concept %s already exists", c.FHIRID)
	}

	for _, p := range pending {
		s.put(p)
	}
	s.put(c)
	return c, nil
}

// put assigns keys to c and its children and stores it. Callers hold s.mu.
func (s *MemoryStore) put(c *Concept) {
	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
		c.CreatedAt = now
		c.VersionID = 1
	} else {
		c.VersionID++
	}
	c.UpdatedAt = now
	for i := range c.Names {
		if c.Names[i].ID == uuid.Nil {
			c.Names[i].ID = uuid.New()
		}
	}
	for _, a := range c.Answers {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
	}
	for _, m := range c.Members {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
	}
	for _, m := range c.Mappings {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.Term != nil && m.Term.ID == uuid.Nil {
			m.Term.ID = uuid.New()
		}
	}
	s.concepts[c.FHIRID] = c
	s.saves++
}
