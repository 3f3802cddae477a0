package analysis

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler provides the analysis REST endpoints.
type Handler struct {
	svc           *Service
	defaultBuffer float64
}

// NewHandler creates an analysis handler. defaultBuffer is applied when a
// request omits buffer_distance; an explicit value, including zero, is
// passed through for the engine to judge.
func NewHandler(svc *Service, defaultBuffer float64) *Handler {
	return &Handler{svc: svc, defaultBuffer: defaultBuffer}
}

// RegisterRoutes registers analysis routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/geo")
	g.POST("/analyze", h.Analyze)
	g.GET("/analyze/:id/latest", h.Latest)
}

// Analyze handles POST /api/v1/geo/analyze?dataset_id=&buffer_distance=.
func (h *Handler) Analyze(c echo.Context) error {
	ref := c.QueryParam("dataset_id")
	if ref == "" {
		ref = c.QueryParam("dataset")
	}

	buffer := h.defaultBuffer
	if raw := c.QueryParam("buffer_distance"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "buffer_distance must be a number of meters")
		}
		buffer = v
	}

	report, err := h.svc.Run(c.Request().Context(), ref, buffer)
	if err != nil {
		return analyzeError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func analyzeError(err error) error {
	var paramErr *InvalidParameterError
	var engErr *EngineError
	switch {
	case errors.Is(err, ErrDatasetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &paramErr):
		return echo.NewHTTPError(http.StatusBadRequest, paramErr.Error())
	case errors.As(err, &engErr):
		return echo.NewHTTPError(http.StatusInternalServerError, engErr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	}
}

// Latest handles GET /api/v1/geo/analyze/:id/latest.
func (h *Handler) Latest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dataset id")
	}
	report, ok := h.svc.Latest(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no report for dataset")
	}
	return c.JSON(http.StatusOK, report)
}
