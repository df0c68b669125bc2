package valueset

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

func newTestService() *Service {
	return NewService(NewValueSetRepoMem(), zerolog.Nop())
}

func yesNoCompose() *fhir.ValueSetCompose {
	return &fhir.ValueSetCompose{Include: []fhir.ValueSetInclude{{
		Concept: []fhir.ValueSetConceptRef{{Code: "yes", Display: "Yes"}, {Code: "no", Display: "No"}},
	}}}
}

func TestService_CreateValueSet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	vs := &ValueSet{FHIRID: "yes-no", Compose: yesNoCompose()}
	if err := svc.CreateValueSet(ctx, vs); err != nil {
		t.Fatalf("CreateValueSet: %v", err)
	}
	if vs.Status != "active" || vs.VersionID != 1 {
		t.Errorf("expected active v1, got %s v%d", vs.Status, vs.VersionID)
	}

	if err := svc.CreateValueSet(ctx, &ValueSet{FHIRID: "yes-no"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestService_CreateValueSet_InvalidStatus(t *testing.T) {
	svc := newTestService()
	err := svc.CreateValueSet(context.Background(), &ValueSet{Status: "bogus"})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestService_CreateValueSet_GeneratesID(t *testing.T) {
	svc := newTestService()
	vs := &ValueSet{}
	if err := svc.CreateValueSet(context.Background(), vs); err != nil {
		t.Fatalf("CreateValueSet: %v", err)
	}
	if vs.FHIRID == "" {
		t.Error("expected generated fhir id")
	}
}

func TestService_PutValueSet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.PutValueSet(ctx, "yes-no", &ValueSet{Compose: yesNoCompose()})
	if err != nil || !created {
		t.Fatalf("expected create, got created=%v err=%v", created, err)
	}

	updated := &ValueSet{FHIRID: "ignored", Status: "retired"}
	created, err = svc.PutValueSet(ctx, "yes-no", updated)
	if err != nil || created {
		t.Fatalf("expected update, got created=%v err=%v", created, err)
	}
	if updated.FHIRID != "yes-no" || updated.VersionID != 2 {
		t.Errorf("expected yes-no v2, got %s v%d", updated.FHIRID, updated.VersionID)
	}

	got, _ := svc.GetValueSetByFHIRID(ctx, "yes-no")
	if got.Status != "retired" || got.Compose != nil {
		t.Errorf("expected a full replacement, got %+v", got)
	}
}

func TestService_PutValueSet_KeepsStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.CreateValueSet(ctx, &ValueSet{FHIRID: "vs", Status: "draft"})

	vs := &ValueSet{}
	if _, err := svc.PutValueSet(ctx, "vs", vs); err != nil {
		t.Fatalf("PutValueSet: %v", err)
	}
	if vs.Status != "draft" {
		t.Errorf("expected status to be kept, got %s", vs.Status)
	}
}

func TestService_ValueSetByID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.CreateValueSet(ctx, &ValueSet{FHIRID: "yes-no", Compose: yesNoCompose()})

	r, err := svc.ValueSetByID(ctx, "yes-no")
	if err != nil {
		t.Fatalf("ValueSetByID: %v", err)
	}
	if r.ResourceType != "ValueSet" || len(r.Compose.Include[0].Concept) != 2 {
		t.Errorf("unexpected resource %+v", r)
	}
	if r.Meta == nil || r.Meta.VersionID != "1" {
		t.Errorf("expected meta version 1, got %+v", r.Meta)
	}

	if _, err := svc.ValueSetByID(ctx, "missing"); !errors.Is(err, concept.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListValueSets(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		svc.CreateValueSet(ctx, &ValueSet{FHIRID: id})
	}
	items, total, err := svc.ListValueSets(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListValueSets: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("expected 2 of 3, got %d of %d", len(items), total)
	}
	items, _, _ = svc.ListValueSets(ctx, 2, 5)
	if len(items) != 0 {
		t.Errorf("expected empty page, got %d", len(items))
	}
}

func TestFromFHIR_RoundTrip(t *testing.T) {
	r := &fhir.ValueSet{ResourceType: "ValueSet", ID: "vs", URL: "http://example.org/vs", Name: "VS", Status: "active"}
	got := FromFHIR(r).ToFHIR()
	if got.URL != r.URL || got.Name != r.Name || got.Title != "" || got.Meta != nil {
		t.Errorf("unexpected round trip %+v", got)
	}
}
