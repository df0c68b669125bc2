package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewSearchBundle(t *testing.T) {
	resources := []interface{}{
		&Questionnaire{ResourceType: "Questionnaire", ID: "1"},
		&Questionnaire{ResourceType: "Questionnaire", ID: "2"},
	}

	bundle, err := NewSearchBundle(resources, 10, "/fhir/Questionnaire")
	if err != nil {
		t.Fatalf("NewSearchBundle: %v", err)
	}
	if bundle.ResourceType != "Bundle" {
		t.Errorf("expected resourceType Bundle, got %s", bundle.ResourceType)
	}
	if bundle.Type != "searchset" {
		t.Errorf("expected type searchset, got %s", bundle.Type)
	}
	if *bundle.Total != 10 {
		t.Errorf("expected total 10, got %d", *bundle.Total)
	}
	if len(bundle.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(bundle.Entry))
	}
	if bundle.Entry[0].Search == nil || bundle.Entry[0].Search.Mode != "match" {
		t.Error("expected search mode 'match'")
	}
	if bundle.Timestamp == nil {
		t.Error("expected timestamp to be set")
	}
	if len(bundle.Link) != 1 || bundle.Link[0].Relation != "self" || bundle.Link[0].URL != "/fhir/Questionnaire" {
		t.Errorf("unexpected links: %+v", bundle.Link)
	}
}

func TestNewSearchBundle_FullURL(t *testing.T) {
	bundle, err := NewSearchBundle([]interface{}{
		&ListResource{ResourceType: "List", ID: "abc-123"},
		map[string]string{"resourceType": "List"},
	}, 2, "/fhir/List")
	if err != nil {
		t.Fatalf("NewSearchBundle: %v", err)
	}
	if bundle.Entry[0].FullURL != "List/abc-123" {
		t.Errorf("expected fullUrl 'List/abc-123', got %q", bundle.Entry[0].FullURL)
	}
	if bundle.Entry[1].FullURL != "" {
		t.Errorf("expected no fullUrl without an id, got %q", bundle.Entry[1].FullURL)
	}
}

func TestNewSearchBundle_Empty(t *testing.T) {
	bundle, err := NewSearchBundle(nil, 0, "/fhir/List")
	if err != nil {
		t.Fatalf("NewSearchBundle: %v", err)
	}
	if *bundle.Total != 0 || len(bundle.Entry) != 0 {
		t.Errorf("expected empty bundle, got total=%d entries=%d", *bundle.Total, len(bundle.Entry))
	}

	data, _ := json.Marshal(bundle)
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := parsed["entry"]; ok {
		t.Error("expected entry to be omitted")
	}
}

func TestNewSearchBundle_ResourceSerialization(t *testing.T) {
	bundle, err := NewSearchBundle([]interface{}{
		&ObservationDefinition{ResourceType: "ObservationDefinition", ID: "glucose", PermittedDataType: []string{DataTypeQuantity}},
	}, 1, "/fhir/ObservationDefinition")
	if err != nil {
		t.Fatalf("NewSearchBundle: %v", err)
	}
	var od ObservationDefinition
	if err := json.Unmarshal(bundle.Entry[0].Resource, &od); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if od.ID != "glucose" || !od.HasPermittedDataType(DataTypeQuantity) {
		t.Errorf("unexpected entry resource: %+v", od)
	}
}
