package fhir

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCapabilityBuilder_AddResource(t *testing.T) {
	b := NewCapabilityBuilder("conceptsync", "http://localhost/fhir", "0.1.0")
	b.AddResource("Questionnaire", DefaultInteractions(), []SearchParam{{Name: "name", Type: "string"}})
	b.AddResource("List", []string{"read"}, nil)
	b.AddResource("Questionnaire", []string{"read", "vread"}, []SearchParam{{Name: "name", Type: "string"}, {Name: "_id", Type: "token"}})

	cs := b.Build()
	if cs.ResourceType != "CapabilityStatement" || cs.FHIRVersion != "4.0.1" {
		t.Errorf("unexpected header %+v", cs)
	}
	res := cs.Rest[0].Resource
	if len(res) != 2 || res[0].Type != "List" || res[1].Type != "Questionnaire" {
		t.Fatalf("expected sorted resources, got %+v", res)
	}
	q := res[1]
	if len(q.Interaction) != 5 {
		t.Errorf("expected merged interactions, got %+v", q.Interaction)
	}
	if len(q.SearchParam) != 2 {
		t.Errorf("expected merged search params, got %+v", q.SearchParam)
	}
	if !q.UpdateCreate || q.Versioning != "versioned" {
		t.Errorf("unexpected flags %+v", q)
	}
}

func TestMetadataHandler(t *testing.T) {
	b := NewCapabilityBuilder("conceptsync", "http://localhost/fhir", "0.1.0")
	b.AddResource("ValueSet", DefaultInteractions(), nil)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil), rec)
	if err := MetadataHandler(b)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["kind"] != "instance" || body["software"].(map[string]interface{})["name"] != "conceptsync" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
