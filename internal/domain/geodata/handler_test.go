package geodata

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newGeoTestHandler() (*Handler, *echo.Echo) {
	svc := NewService(NewMemRepo(), 0, zerolog.Nop())
	return NewHandler(svc), echo.New()
}

func importSample(t *testing.T, h *Handler, e *echo.Echo) Summary {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/import/geojson?name=sites", strings.NewReader(sampleCollection))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ImportGeoJSON(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var summary Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return summary
}

func TestHandler_ImportGeoJSON_RawBody(t *testing.T) {
	h, e := newGeoTestHandler()
	summary := importSample(t, h, e)

	if summary.Name != "sites" {
		t.Errorf("expected name sites, got %s", summary.Name)
	}
	if summary.FeatureCount != 3 {
		t.Errorf("expected 3 features, got %d", summary.FeatureCount)
	}
	if summary.Version != 1 {
		t.Errorf("expected version 1, got %d", summary.Version)
	}
}

func TestHandler_ImportGeoJSON_Multipart(t *testing.T) {
	h, e := newGeoTestHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "wells.geojson")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, sampleCollection); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/import/geojson", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ImportGeoJSON(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var summary Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	// No name given anywhere: it falls back to the uploaded filename.
	if summary.Name != "wells" {
		t.Errorf("expected name derived from filename, got %s", summary.Name)
	}
	if summary.SourceFile != "wells.geojson" {
		t.Errorf("expected source file recorded, got %s", summary.SourceFile)
	}
}

func TestHandler_ImportGeoJSON_InvalidGeometry(t *testing.T) {
	h, e := newGeoTestHandler()

	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-97,38],[-96,38]]]},"properties":{}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/import/geojson?name=bad", strings.NewReader(doc))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ImportGeoJSON(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", httpErr.Code)
	}
}

func TestHandler_ImportGeoJSON_MalformedDocument(t *testing.T) {
	h, e := newGeoTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/import/geojson?name=bad", strings.NewReader(`{"type":"Point"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ImportGeoJSON(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_ListDatasets(t *testing.T) {
	h, e := newGeoTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/geo/datasets", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListDatasets(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var empty []Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected an empty list, got %d", len(empty))
	}

	importSample(t, h, e)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/geo/datasets", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.ListDatasets(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "sites" {
		t.Errorf("expected one dataset named sites, got %v", list)
	}
}

func TestHandler_GetDataset(t *testing.T) {
	h, e := newGeoTestHandler()
	summary := importSample(t, h, e)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(summary.ID.String())

	if err := h.GetDataset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if got.ID != summary.ID || got.FeatureCount != 3 {
		t.Errorf("expected the imported dataset, got %+v", got)
	}
}

func TestHandler_GetDataset_NotFound(t *testing.T) {
	h, e := newGeoTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetDataset(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}

func TestHandler_GetDataset_InvalidID(t *testing.T) {
	h, e := newGeoTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetDataset(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_GetDatasetGeoJSON(t *testing.T) {
	h, e := newGeoTestHandler()
	summary := importSample(t, h, e)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(summary.ID.String())

	if err := h.GetDatasetGeoJSON(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/geo+json" {
		t.Errorf("expected geo+json content type, got %s", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"FeatureCollection"`)) {
		t.Error("expected a FeatureCollection body")
	}
}

func TestHandler_DeleteDataset(t *testing.T) {
	h, e := newGeoTestHandler()
	summary := importSample(t, h, e)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(summary.ID.String())

	if err := h.DeleteDataset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	// Deleting again misses.
	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(summary.ID.String())

	err := h.DeleteDataset(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}
