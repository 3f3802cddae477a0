package analysis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, uuid.UUID) {
	t.Helper()
	svc, ds := newTestService(t)
	h := NewHandler(svc, 1000)
	e := echo.New()
	return h, e, ds.ID
}

func TestHandler_Analyze_Success(t *testing.T) {
	h, e, datasetID := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+datasetID.String()+"&buffer_distance=5000", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Analyze(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.BufferMeters != 5000 {
		t.Errorf("expected buffer 5000, got %v", report.BufferMeters)
	}
	if report.DatasetID != datasetID {
		t.Errorf("expected dataset %s, got %s", datasetID, report.DatasetID)
	}
}

func TestHandler_Analyze_DefaultBuffer(t *testing.T) {
	h, e, datasetID := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+datasetID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Analyze(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report Report
	json.Unmarshal(rec.Body.Bytes(), &report)
	if report.BufferMeters != 1000 {
		t.Errorf("expected default buffer 1000, got %v", report.BufferMeters)
	}
}

func TestHandler_Analyze_NegativeBuffer(t *testing.T) {
	h, e, datasetID := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+datasetID.String()+"&buffer_distance=-100", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Analyze(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_Analyze_ZeroBufferNotDefaulted(t *testing.T) {
	h, e, datasetID := newTestHandler(t)

	// An explicit zero must reach the engine and be rejected, not be
	// silently replaced by the default.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+datasetID.String()+"&buffer_distance=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Analyze(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_Analyze_NonNumericBuffer(t *testing.T) {
	h, e, datasetID := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+datasetID.String()+"&buffer_distance=abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Analyze(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_Analyze_UnknownDataset(t *testing.T) {
	h, e, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Analyze(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}

func TestHandler_Latest(t *testing.T) {
	h, e, datasetID := newTestHandler(t)

	// No run yet.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(datasetID.String())

	err := h.Latest(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %v", err)
	}

	// Run, then the report is retrievable.
	runReq := httptest.NewRequest(http.MethodPost, "/api/v1/geo/analyze?dataset_id="+datasetID.String(), nil)
	runRec := httptest.NewRecorder()
	if err := h.Analyze(e.NewContext(runReq, runRec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(datasetID.String())

	if err := h.Latest(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Latest_InvalidID(t *testing.T) {
	h, e, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Latest(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}
