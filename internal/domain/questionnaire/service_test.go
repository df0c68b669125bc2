package questionnaire

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

func newTestService() (*Service, *concept.MemoryStore) {
	store := concept.NewMemoryStore()
	engine := conceptsync.NewEngine(conceptsync.DepsFromStore(store, nil), zerolog.Nop())
	syncer := conceptsync.NewSyncer(store, nil, zerolog.Nop())
	return NewService(engine, syncer, zerolog.Nop()), store
}

func smokerQuestionnaire(id string) *fhir.Questionnaire {
	return &fhir.Questionnaire{
		ResourceType: "Questionnaire",
		ID:           id,
		Title:        "Smoker",
		Item: []fhir.QuestionnaireItem{{
			LinkID: "1",
			Type:   fhir.QuestionnaireItemChoice,
			AnswerOption: []fhir.QuestionnaireAnswerOption{
				{ValueCoding: &fhir.Coding{Code: "yes", Display: "Yes"}},
				{ValueCoding: &fhir.Coding{Code: "no", Display: "No"}},
			},
		}},
	}
}

func TestService_Import(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	res, err := svc.Import(ctx, smokerQuestionnaire("smoker"), language.English, false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !res.Created || res.Concept.VersionID != 1 {
		t.Errorf("expected a created concept at version 1, got created=%v v%d", res.Created, res.Concept.VersionID)
	}
	if res.Resource.ID != "smoker" || len(res.Resource.Item[0].AnswerOption) != 2 {
		t.Errorf("unexpected export %+v", res.Resource)
	}
	if res.Resource.Meta == nil || res.Resource.Meta.VersionID != "1" {
		t.Errorf("expected meta version 1, got %+v", res.Resource.Meta)
	}
	if store.Len() != 3 {
		t.Errorf("expected question and two answers, got %d", store.Len())
	}

	res, err = svc.Import(ctx, smokerQuestionnaire("smoker"), language.English, false)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if res.Created || res.Concept.VersionID != 2 {
		t.Errorf("expected update to version 2, got created=%v v%d", res.Created, res.Concept.VersionID)
	}
	if store.Len() != 3 {
		t.Errorf("re-import must not create concepts, got %d", store.Len())
	}
}

func TestService_ImportDryRun(t *testing.T) {
	svc, store := newTestService()
	res, err := svc.Import(context.Background(), smokerQuestionnaire("smoker"), language.English, true)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !res.Created || res.Concept.Persisted() || res.Resource.Meta != nil {
		t.Errorf("expected an unsaved concept, got %+v", res.Concept)
	}
	if store.Saves() != 0 {
		t.Errorf("expected no saves, got %d", store.Saves())
	}
}

func TestService_ImportValidationError(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Import(context.Background(), &fhir.Questionnaire{ResourceType: "Questionnaire"}, language.English, false)
	var invalid *conceptsync.ValidationError
	if !errors.As(err, &invalid) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestService_PutUsesURLID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Put(ctx, "smoking-status", smokerQuestionnaire("other"), language.English, 0)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !res.Created || res.Concept.FHIRID != "smoking-status" {
		t.Errorf("expected smoking-status to be created, got %s created=%v", res.Concept.FHIRID, res.Created)
	}

	q := smokerQuestionnaire("")
	q.Item[0].AnswerOption = q.Item[0].AnswerOption[:1]
	res, err = svc.Put(ctx, "smoking-status", q, language.English, 0)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if res.Created || len(res.Concept.Answers) != 1 {
		t.Errorf("expected update with one answer, got created=%v answers=%d", res.Created, len(res.Concept.Answers))
	}
}

func TestService_PutChecksVersionUnderLock(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	if _, err := svc.Put(ctx, "smoker", smokerQuestionnaire(""), language.English, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Version 1 is current, so the first conditional write wins.
	res, err := svc.Put(ctx, "smoker", smokerQuestionnaire(""), language.English, 1)
	if err != nil {
		t.Fatalf("conditional Put: %v", err)
	}
	if res.Concept.VersionID != 2 {
		t.Errorf("expected version 2, got %d", res.Concept.VersionID)
	}

	// A second writer still holding version 1 is rejected and nothing is saved.
	saves := store.Saves()
	stale := smokerQuestionnaire("")
	stale.Title = "Tobacco use"
	_, err = svc.Put(ctx, "smoker", stale, language.English, 1)
	var conflict *fhir.VersionConflictError
	if !errors.As(err, &conflict) || conflict.Current != 2 {
		t.Fatalf("expected conflict against version 2, got %v", err)
	}
	if store.Saves() != saves {
		t.Errorf("expected no saves after a conflict, got %d", store.Saves()-saves)
	}
	c, _ := store.FindByFHIRID(ctx, "smoker")
	if c.DisplayName("en") != "Smoker" {
		t.Errorf("expected name to be unchanged, got %q", c.DisplayName("en"))
	}
}

func TestService_Get(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Import(ctx, smokerQuestionnaire("smoker"), language.English, false)

	q, c, err := svc.Get(ctx, "smoker", language.English)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Title != "Smoker" || c.FHIRID != "smoker" {
		t.Errorf("unexpected export %+v", q)
	}

	if _, _, err := svc.Get(ctx, "missing", language.English); !errors.Is(err, concept.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Answer concepts are N/A and do not export as questionnaires.
	if _, _, err := svc.Get(ctx, "yes", language.English); !errors.Is(err, conceptsync.ErrNotApplicable) {
		t.Errorf("expected ErrNotApplicable, got %v", err)
	}
}

func TestService_SearchByName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Import(ctx, smokerQuestionnaire("smoker"), language.English, false)

	found, err := svc.SearchByName(ctx, "Smoker", language.English)
	if err != nil || len(found) != 1 || found[0].ID != "smoker" {
		t.Errorf("expected smoker, got %v, %v", found, err)
	}
	if _, err := svc.SearchByName(ctx, "Drinker", language.English); !errors.Is(err, concept.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
