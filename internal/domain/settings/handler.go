// Package settings exposes runtime configuration and aggregate health for
// operators. Secrets never leave the process: the database URL is redacted
// before it is serialized.
package settings

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/geofhir/geofhir/internal/config"
	"github.com/geofhir/geofhir/internal/domain/fhirdata"
	"github.com/geofhir/geofhir/internal/domain/geodata"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// CurrentSettings is the sanitized configuration view.
type CurrentSettings struct {
	Env                 string  `json:"env"`
	Port                string  `json:"port"`
	Storage             string  `json:"storage"`
	DatabaseURL         string  `json:"database_url,omitempty"`
	DefaultBufferMeters float64 `json:"default_buffer_meters"`
	GridCellSizeDeg     float64 `json:"grid_cell_size_deg"`
	CorrelationWorkers  int     `json:"correlation_workers"`
	ImportBodyLimit     string  `json:"import_body_limit"`
}

// HealthReport aggregates server, store and dataset state.
type HealthReport struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
	Datasets      int    `json:"datasets"`
	Features      int    `json:"features"`
	Patients      int    `json:"patients"`
	Observations  int    `json:"observations"`
	Locations     int    `json:"locations"`
}

type Handler struct {
	cfg     *config.Config
	pool    *pgxpool.Pool // nil when running on in-memory storage
	geo     *geodata.Service
	fhir    *fhirdata.Service
	started time.Time
}

func NewHandler(cfg *config.Config, pool *pgxpool.Pool, geo *geodata.Service, fhir *fhirdata.Service) *Handler {
	return &Handler{
		cfg:     cfg,
		pool:    pool,
		geo:     geo,
		fhir:    fhir,
		started: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/settings")
	g.GET("/current", h.Current)
	g.GET("/database/test", h.DatabaseTest)
	g.GET("/health", h.Health)
}

// Current handles GET /api/v1/settings/current.
func (h *Handler) Current(c echo.Context) error {
	storage := StorageMemory
	if h.pool != nil {
		storage = StoragePostgres
	}
	return c.JSON(http.StatusOK, CurrentSettings{
		Env:                 h.cfg.Env,
		Port:                h.cfg.Port,
		Storage:             storage,
		DatabaseURL:         redactDSN(h.cfg.DatabaseURL),
		DefaultBufferMeters: h.cfg.DefaultBufferMeters,
		GridCellSizeDeg:     h.cfg.GridCellSizeDeg,
		CorrelationWorkers:  h.cfg.CorrelationWorkers,
		ImportBodyLimit:     h.cfg.ImportBodyLimit,
	})
}

// DatabaseTest handles GET /api/v1/settings/database/test. It reports the
// outcome as data, not as an HTTP error: an unreachable database is a valid
// answer to the question being asked.
func (h *Handler) DatabaseTest(c echo.Context) error {
	if h.pool == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"connected": false,
			"storage":   StorageMemory,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.pool.Ping(ctx); err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"connected": false,
			"storage":   StoragePostgres,
			"error":     err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"connected":  true,
		"storage":    StoragePostgres,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// Health handles GET /api/v1/settings/health.
func (h *Handler) Health(c echo.Context) error {
	report := HealthReport{
		Status:        "up",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Database:      "not_configured",
		Datasets:      h.geo.DatasetCount(),
	}
	for _, ds := range h.geo.List() {
		report.Features += ds.FeatureCount
	}

	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			report.Database = "down"
			report.Status = "degraded"
		} else {
			report.Database = "up"
		}
	}

	if sum, err := h.fhir.Summary(c.Request().Context()); err == nil {
		report.Patients = sum.Patients
		report.Observations = sum.Observations
		report.Locations = sum.Locations
	}

	status := http.StatusOK
	if report.Status != "up" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// redactDSN strips the password from a connection URL so the settings view
// can show where the server points without leaking credentials. Key/value
// DSNs can embed a password anywhere, so anything that is not a URL is
// hidden entirely.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return ""
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
	}
	return u.String()
}
