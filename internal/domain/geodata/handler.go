package geodata

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/geofhir/geofhir/internal/geo"
)

// Handler provides REST endpoints for dataset management.
type Handler struct {
	svc *Service
}

// NewHandler creates a new geodata handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers dataset routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/geo")
	g.POST("/import/geojson", h.ImportGeoJSON)
	g.GET("/datasets", h.ListDatasets)
	g.GET("/datasets/:id", h.GetDataset)
	g.GET("/datasets/:id/geojson", h.GetDatasetGeoJSON)
	g.DELETE("/datasets/:id", h.DeleteDataset)
}

// ImportGeoJSON handles POST /api/v1/geo/import/geojson. The document
// arrives either as a multipart "file" part or as the raw request body;
// the dataset name comes from the form, the query string, or the uploaded
// filename, in that order.
func (h *Handler) ImportGeoJSON(c echo.Context) error {
	var (
		body       io.ReadCloser
		sourceFile string
	)
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
		}
		body = f
		sourceFile = file.Filename
	} else {
		body = c.Request().Body
	}
	defer body.Close()

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		name = strings.TrimSpace(c.QueryParam("name"))
	}
	if name == "" && sourceFile != "" {
		name = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(sourceFile), ".geojson"), ".json")
	}
	if name == "" {
		name = "default"
	}
	description := c.FormValue("description")
	if description == "" {
		description = c.QueryParam("description")
	}

	ds, err := h.svc.ImportGeoJSON(c.Request().Context(), name, description, sourceFile, body)
	if err != nil {
		return importError(err)
	}
	return c.JSON(http.StatusCreated, ds.Summary())
}

// importError maps import failures onto HTTP statuses: invalid geometry is
// a well-formed but unprocessable document, everything else the client sent
// wrong is a bad request.
func importError(err error) error {
	var geomErr *geo.InvalidGeometryError
	switch {
	case errors.As(err, &geomErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, geomErr.Error())
	case errors.Is(err, ErrInvalidGeoJSON), errors.Is(err, ErrNameRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "import failed")
	}
}

// ListDatasets handles GET /api/v1/geo/datasets.
func (h *Handler) ListDatasets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.List())
}

// GetDataset handles GET /api/v1/geo/datasets/:id.
func (h *Handler) GetDataset(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dataset id")
	}
	ds, ok := h.svc.Dataset(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
	}
	return c.JSON(http.StatusOK, ds.Summary())
}

// GetDatasetGeoJSON handles GET /api/v1/geo/datasets/:id/geojson.
func (h *Handler) GetDatasetGeoJSON(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dataset id")
	}
	doc, err := h.svc.GeoJSON(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed")
	}
	return c.Blob(http.StatusOK, "application/geo+json", doc)
}

// DeleteDataset handles DELETE /api/v1/geo/datasets/:id.
func (h *Handler) DeleteDataset(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dataset id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}
