package conceptsync

import (
	"context"
	"errors"
	"testing"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

func panelList(id, title string, refs ...string) *fhir.ListResource {
	l := &fhir.ListResource{ResourceType: "List", ID: id, Title: title}
	for _, r := range refs {
		l.Entry = append(l.Entry, fhir.ListEntry{Item: &fhir.Reference{Reference: r}})
	}
	return l
}

func seedTests(t *testing.T, store *concept.MemoryStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := store.SaveAll(context.Background(), nil, &concept.Concept{
			FHIRID: id,
			Names:  []concept.Name{{Name: id, Locale: "en"}},
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func memberIDs(c *concept.Concept) []string {
	var ids []string
	for _, m := range c.Members {
		ids = append(ids, m.Member.FHIRID)
	}
	return ids
}

func TestImportPanel_ResolvesMembers(t *testing.T) {
	store := concept.NewMemoryStore()
	seedTests(t, store, "glucose", "sodium")
	e, _ := newTestEngine(store)

	res, err := e.ImportPanel(context.Background(), panelList("chem", "Chemistry",
		"ObservationDefinition/glucose",
		"urn:uuid:sodium",
		"ObservationDefinition/missing",
		"Observation/glucose",
		"ObservationDefinition/chem",
		""), nil, en)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := res.Concept
	if !c.IsSet || c.ClassName() != concept.ClassLabSet || c.DatatypeName() != concept.DatatypeNA {
		t.Errorf("expected LabSet set with N/A datatype, got set=%v %s/%s", c.IsSet, c.ClassName(), c.DatatypeName())
	}
	if ids := memberIDs(c); len(ids) != 2 || ids[0] != "glucose" || ids[1] != "sodium" {
		t.Errorf("expected glucose and sodium, got %v", ids)
	}
	if w := warningsOf(res, WarningUnresolvedReference); len(w) != 2 {
		t.Errorf("expected 2 unresolved references, got %v", res.Warnings)
	}
	if len(res.Pending) != 0 {
		t.Error("members are never created")
	}
	if c.DisplayName("en") != "Chemistry" {
		t.Errorf("unexpected name %q", c.DisplayName("en"))
	}
}

func TestImportPanel_ReconcilesMembers(t *testing.T) {
	store := concept.NewMemoryStore()
	seedTests(t, store, "a", "b", "c")
	e, _ := newTestEngine(store)
	ctx := context.Background()

	first, err := e.ImportPanel(ctx, panelList("p1", "Panel", "urn:uuid:a", "urn:uuid:b"), nil, en)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	save(t, store, first)
	existing := load(t, store, "p1")

	res, err := e.ImportPanel(ctx, panelList("p1", "Panel", "urn:uuid:b", "urn:uuid:c"), existing, en)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if ids := memberIDs(res.Concept); len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("expected b and c, got %v", ids)
	}
	if res.Concept.Members[0] != existing.Members[1] {
		t.Error("relation to b must be the same instance")
	}

	save(t, store, res)
	existing = load(t, store, "p1")
	again, err := e.ImportPanel(ctx, panelList("p1", "Panel", "urn:uuid:b", "urn:uuid:c"), existing, en)
	if err != nil {
		t.Fatalf("third import: %v", err)
	}
	for i := range existing.Members {
		if again.Concept.Members[i] != existing.Members[i] {
			t.Errorf("member %d was recreated", i)
		}
	}
}

func TestImportPanel_KeepsExistingDatatype(t *testing.T) {
	store := concept.NewMemoryStore()
	e, _ := newTestEngine(store)
	coded, _ := store.DatatypeByName(context.Background(), concept.DatatypeCoded)
	existing := &concept.Concept{FHIRID: "p2", Datatype: coded}

	res, err := e.ImportPanel(context.Background(), panelList("p2", "Panel"), existing, en)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Concept.DatatypeName() != concept.DatatypeCoded {
		t.Errorf("datatype must only default when absent, got %s", res.Concept.DatatypeName())
	}
}

func TestImportPanel_NameFromID(t *testing.T) {
	e, _ := newTestEngine(concept.NewMemoryStore())
	res, err := e.ImportPanel(context.Background(), panelList("cbc", "  "), nil, en)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Concept.DisplayName("en") != "cbc" {
		t.Errorf("expected name from id, got %q", res.Concept.DisplayName("en"))
	}

	_, err = e.ImportPanel(context.Background(), panelList("", ""), nil, en)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestImportPanel_MissingLabSet(t *testing.T) {
	store := concept.NewEmptyMemoryStore()
	e, _ := newTestEngine(store)
	_, err := e.ImportPanel(context.Background(), panelList("p3", "Panel"), nil, en)
	var missing *MissingReferenceDataError
	if !errors.As(err, &missing) || missing.Name != concept.ClassLabSet {
		t.Fatalf("expected missing LabSet class, got %v", err)
	}
}
