package fhirlist

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

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := concept.NewMemoryStore()
	for _, id := range []string{"glucose", "sodium"} {
		if _, err := store.SaveAll(context.Background(), nil, &concept.Concept{FHIRID: id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	engine := conceptsync.NewEngine(conceptsync.DepsFromStore(store, nil), zerolog.Nop())
	return NewService(engine, conceptsync.NewSyncer(store, nil, zerolog.Nop()), zerolog.Nop())
}

func panel(id, title string, members ...string) *fhir.ListResource {
	l := &fhir.ListResource{ResourceType: "List", ID: id, Title: title}
	for _, m := range members {
		l.Entry = append(l.Entry, fhir.ListEntry{Item: &fhir.Reference{Reference: m}})
	}
	return l
}

func TestService_Import(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Import(context.Background(),
		panel("chem", "Chemistry", "ObservationDefinition/glucose", "ObservationDefinition/missing", "Patient/1"),
		language.English, false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !res.Created || len(res.Concept.Members) != 1 {
		t.Errorf("expected a new panel with one member, got %+v", res.Concept)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", res.Warnings)
	}
	if len(res.Resource.Entry) != 1 || res.Resource.Entry[0].Item.Reference != "ObservationDefinition/glucose" {
		t.Errorf("unexpected entries %+v", res.Resource.Entry)
	}
}

func TestService_PutReplacesMembers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Put(ctx, "chem", panel("", "Chemistry", "ObservationDefinition/glucose"), language.English, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	res, err := svc.Put(ctx, "chem", panel("", "Chemistry", "ObservationDefinition/sodium"), language.English, 0)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if res.Created || len(res.Concept.Members) != 1 || res.Concept.Members[0].Member.FHIRID != "sodium" {
		t.Errorf("expected sodium to replace glucose, got %+v", res.Concept.Members)
	}
	if res.Concept.VersionID != 2 {
		t.Errorf("expected version 2, got %d", res.Concept.VersionID)
	}
}

func TestService_GetRejectsNonPanel(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.Get(context.Background(), "glucose", language.English); !errors.Is(err, conceptsync.ErrNotApplicable) {
		t.Errorf("expected ErrNotApplicable, got %v", err)
	}
}
