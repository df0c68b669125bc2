package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/config"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/internal/platform/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:          "8000",
		Env:           "development",
		Store:         config.StoreMemory,
		ImportLockTTL: time.Second,
		DefaultLocale: "en",
		CORSOrigins:   []string{"*"},
		BodyLimit:     "1M",
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_EndToEnd(t *testing.T) {
	e, err := newTestApp(t, testConfig()).newServer()
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	rec := do(t, e, http.MethodPut, "/fhir/ValueSet/hiv-results", `{"resourceType":"ValueSet",
		"compose":{"include":[{"concept":[{"code":"pos","display":"Positive"},{"code":"neg","display":"Negative"}]}]}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT ValueSet: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodPost, "/fhir/ObservationDefinition", `{"resourceType":"ObservationDefinition","id":"hiv",
		"code":{"text":"HIV test"},"permittedDataType":["CodeableConcept"],
		"validCodedValueSet":{"reference":"ValueSet/hiv-results"}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST ObservationDefinition: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	rec = do(t, e, http.MethodGet, "/fhir/Questionnaire/hiv", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET Questionnaire: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var q fhir.Questionnaire
	json.Unmarshal(rec.Body.Bytes(), &q)
	if len(q.Item) != 1 || len(q.Item[0].AnswerOption) != 2 {
		t.Errorf("expected the coded test to export its value-set answers, got %s", rec.Body.String())
	}
	if rec.Header().Get("Content-Language") != "en" {
		t.Errorf("expected Content-Language en, got %q", rec.Header().Get("Content-Language"))
	}

	rec = do(t, e, http.MethodPost, "/fhir/List", `{"resourceType":"List","id":"hiv-panel","title":"HIV panel",
		"entry":[{"item":{"reference":"ObservationDefinition/hiv"}}]}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST List: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/fhir/List?title=HIV%20panel", "", nil)
	var bundle fhir.Bundle
	json.Unmarshal(rec.Body.Bytes(), &bundle)
	if bundle.Total == nil || *bundle.Total != 1 {
		t.Errorf("expected the panel to be found by title, got %s", rec.Body.String())
	}
}

func TestServer_MetadataAndHealth(t *testing.T) {
	e, err := newTestApp(t, testConfig()).newServer()
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	rec := do(t, e, http.MethodGet, "/fhir/metadata", "", nil)
	var cs fhir.CapabilityStatement
	json.Unmarshal(rec.Body.Bytes(), &cs)
	if rec.Code != http.StatusOK || len(cs.Rest) != 1 || len(cs.Rest[0].Resource) != 4 {
		t.Errorf("unexpected metadata %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"memory"`) {
		t.Errorf("unexpected health %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RequiresTokenOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "test-secret"
	e, err := newTestApp(t, cfg).newServer()
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	rec := do(t, e, http.MethodGet, "/fhir/Questionnaire/x", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/fhir/metadata", "", nil); rec.Code != http.StatusOK {
		t.Errorf("metadata should stay public, got %d", rec.Code)
	}
}

func TestNewApp_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	a := newTestApp(t, cfg)
	if a.redis == nil || len(a.healthChecks()) != 1 {
		t.Fatal("expected a redis client and health check")
	}

	res, _, err := importResource(context.Background(), a,
		[]byte(`{"resourceType":"List","id":"empty","title":"Empty panel"}`), "", language.English, false)
	if err != nil {
		t.Fatalf("importResource: %v", err)
	}
	if res.(*fhir.ListResource).ID != "empty" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("expected the import lock to be released, got %v", mr.Keys())
	}
}

func TestNewApp_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "not-a-url"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected an error for an invalid redis url")
	}
}

func TestImportAndExport(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()
	data := []byte(`{"resourceType":"Questionnaire","id":"smoker","title":"Smoker",
		"item":[{"linkId":"1","type":"choice","answerOption":[{"valueCoding":{"code":"yes","display":"Yes"}}]}]}`)

	if _, _, err := importResource(ctx, a, data, "", language.English, true); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := exportResource(ctx, a, "Questionnaire", "smoker", language.English); err == nil {
		t.Fatal("dry run must not save")
	}

	if _, _, err := importResource(ctx, a, data, "questionnaire", language.English, false); err != nil {
		t.Fatalf("import: %v", err)
	}
	res, err := exportResource(ctx, a, "ObservationDefinition", "smoker", language.English)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	od := res.(*fhir.ObservationDefinition)
	if od.Code.Text != "Smoker" || od.PermittedDataType[0] != fhir.DataTypeCodeableConcept {
		t.Errorf("unexpected export %+v", od)
	}

	if _, _, err := importResource(ctx, a, data, "Patient", language.English, false); err == nil {
		t.Error("expected unsupported kind error")
	}
	if _, _, err := importResource(ctx, a, []byte(`{}`), "", language.English, false); err == nil {
		t.Error("expected missing resourceType error")
	}
	if _, err := exportResource(ctx, a, "Patient", "smoker", language.English); err == nil {
		t.Error("expected unsupported kind error")
	}
}

func TestImportValueSet(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()
	data := []byte(`{"resourceType":"ValueSet","id":"yes-no","compose":{"include":[{"concept":[{"code":"yes"}]}]}}`)
	for i := 0; i < 2; i++ {
		if _, _, err := importResource(ctx, a, data, "", language.English, false); err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
	}
	res, err := exportResource(ctx, a, "ValueSet", "yes-no", language.English)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if vs := res.(*fhir.ValueSet); vs.Meta == nil || vs.Meta.VersionID != "2" {
		t.Errorf("expected version 2 after re-import, got %+v", vs.Meta)
	}
}
