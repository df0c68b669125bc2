package concept

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_RegistrySeeded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{ClassTest, ClassLabSet, ClassMisc} {
		if _, err := s.ClassByName(ctx, name); err != nil {
			t.Errorf("class %s: %v", name, err)
		}
	}
	for _, name := range []string{DatatypeCoded, DatatypeNumeric, DatatypeText, DatatypeNA} {
		if _, err := s.DatatypeByName(ctx, name); err != nil {
			t.Errorf("datatype %s: %v", name, err)
		}
	}
	if _, err := s.MapKindByName(ctx, "same-as"); err != nil {
		t.Errorf("map kind lookup should be case-insensitive: %v", err)
	}
	if _, err := s.SourceByURI(ctx, SystemLOINC); err != nil {
		t.Errorf("LOINC source: %v", err)
	}
}

func TestMemoryStore_EmptyRegistry(t *testing.T) {
	s := NewEmptyMemoryStore()
	if _, err := s.ClassByName(context.Background(), ClassTest); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SaveAssignsKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	answer := &Concept{FHIRID: "yes", Names: []Name{{Name: "Yes", Locale: "en", Preferred: true}}}
	c := &Concept{
		FHIRID:  "q1",
		Names:   []Name{{Name: "Question", Locale: "en", Preferred: true}},
		Answers: []*AnswerRelation{{Answer: answer}},
	}
	saved, err := s.SaveAll(ctx, []*Concept{answer}, c)
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if saved.ID == uuid.Nil || answer.ID == uuid.Nil {
		t.Fatal("expected ids to be assigned")
	}
	if saved.Names[0].ID == uuid.Nil || saved.Answers[0].ID == uuid.Nil {
		t.Error("expected child ids to be assigned")
	}
	if saved.VersionID != 1 {
		t.Errorf("expected version 1, got %d", saved.VersionID)
	}
	if s.Len() != 2 || s.Saves() != 2 {
		t.Errorf("expected 2 concepts and 2 saves, got %d/%d", s.Len(), s.Saves())
	}

	saved, err = s.SaveAll(ctx, nil, saved)
	if err != nil {
		t.Fatalf("second SaveAll: %v", err)
	}
	if saved.VersionID != 2 {
		t.Errorf("expected version 2, got %d", saved.VersionID)
	}
}

func TestMemoryStore_SaveGeneratesFHIRID(t *testing.T) {
	s := NewMemoryStore()
	saved, err := s.SaveAll(context.Background(), nil, &Concept{})
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if _, err := uuid.Parse(saved.FHIRID); err != nil {
		t.Errorf("expected uuid fhir id, got %q", saved.FHIRID)
	}
}

func TestMemoryStore_SaveRejectsDuplicateFHIRID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.SaveAll(ctx, nil, &Concept{FHIRID: "dup"}); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if _, err := s.SaveAll(ctx, nil, &Concept{FHIRID: "dup"}); err == nil {
		t.Error("expected error for a second unsaved concept with the same id")
	}
	if _, err := s.SaveAll(ctx, []*Concept{{FHIRID: "dup"}}, &Concept{FHIRID: "other"}); err == nil {
		t.Error("expected error for a pending concept with an existing id")
	}
}

func TestMemoryStore_FailedSaveWritesNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.SaveAll(ctx, nil, &Concept{FHIRID: "dup"}); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	fresh := &Concept{FHIRID: "fresh"}
	if _, err := s.SaveAll(ctx, []*Concept{fresh}, &Concept{FHIRID: "dup"}); err == nil {
		t.Fatal("expected error for a concept with an existing id")
	}
	if _, err := s.FindByFHIRID(ctx, "fresh"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pending concept must not be stored after a failed save, got %v", err)
	}
	if fresh.ID != uuid.Nil {
		t.Error("pending concept must not be assigned an id after a failed save")
	}
	if s.Len() != 1 || s.Saves() != 1 {
		t.Errorf("expected store unchanged, got %d concepts and %d saves", s.Len(), s.Saves())
	}

	if _, err := s.SaveAll(ctx, []*Concept{{FHIRID: "twin"}}, &Concept{FHIRID: "twin"}); err == nil {
		t.Error("expected error when pending and concept share an id")
	}
}

func TestMemoryStore_FindByNamePrefersEarliest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	named := func(id, locale string) *Concept {
		return &Concept{FHIRID: id, Names: []Name{{Name: "Normal", Locale: locale}}}
	}
	for _, c := range []*Concept{named("b", "en"), named("a", "en"), named("c", "en"), named("fr", "fr")} {
		if _, err := s.SaveAll(ctx, nil, c); err != nil {
			t.Fatalf("SaveAll: %v", err)
		}
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	set := func(id string, at time.Time) {
		c, _ := s.FindByFHIRID(ctx, id)
		c.CreatedAt = at
	}
	set("fr", base)
	set("b", base.Add(time.Minute))
	set("a", base.Add(2*time.Minute))
	set("c", base.Add(time.Minute))

	// Repeated lookups cover map iteration order.
	for i := 0; i < 20; i++ {
		got, err := s.FindByName(ctx, "Normal", "en")
		if err != nil {
			t.Fatalf("FindByName: %v", err)
		}
		if got.FHIRID != "b" {
			t.Fatalf("expected earliest en concept b, got %s", got.FHIRID)
		}
	}
	if got, _ := s.FindByName(ctx, "Normal", "de"); got.FHIRID != "fr" {
		t.Errorf("without a locale match the earliest concept should win, got %s", got.FHIRID)
	}
}

func TestMemoryStore_FindByNamePrefersLocale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	fr := &Concept{FHIRID: "fr", Names: []Name{{Name: "Glucose", Locale: "fr"}}}
	en := &Concept{FHIRID: "en", Names: []Name{{Name: "Glucose", Locale: "en"}}}
	if _, err := s.SaveAll(ctx, []*Concept{fr}, en); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	got, err := s.FindByName(ctx, "Glucose", "en")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if got.FHIRID != "en" {
		t.Errorf("expected en concept, got %s", got.FHIRID)
	}
	if _, err := s.FindByName(ctx, "glucose", "en"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected exact name matching, got %v", err)
	}
}

func TestMemoryStore_ConceptWithSameAs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	loinc, _ := s.SourceByURI(ctx, SystemLOINC)
	sameAs, _ := s.MapKindByName(ctx, MapKindSameAs)

	c := &Concept{FHIRID: "glucose", Mappings: []*MappingRelation{{
		Kind: sameAs,
		Term: &ReferenceTerm{Source: loinc, Code: "2345-7"},
	}}}
	if _, err := s.SaveAll(ctx, nil, c); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if c.Mappings[0].Term.ID == uuid.Nil {
		t.Error("expected term id to be assigned")
	}

	got, err := s.ConceptWithSameAs(ctx, loinc.ID, "2345-7")
	if err != nil {
		t.Fatalf("ConceptWithSameAs: %v", err)
	}
	if got.FHIRID != "glucose" {
		t.Errorf("expected glucose, got %s", got.FHIRID)
	}
	if _, err := s.ConceptWithSameAs(ctx, loinc.ID, "0000-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
