package fhirdata

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geofhir/geofhir/internal/platform/fhir"
	"github.com/geofhir/geofhir/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	api.POST("/fhir/import", h.Import)
	api.GET("/fhir/summary", h.Summary)
	api.GET("/fhir/export", h.Export)
	api.DELETE("/fhir/resources", h.Clear)

	fhirGroup.GET("/Patient", h.SearchPatientsFHIR)
	fhirGroup.GET("/Patient/:id", h.GetPatientFHIR)
	fhirGroup.GET("/Observation", h.SearchObservationsFHIR)
	fhirGroup.GET("/Observation/:id", h.GetObservationFHIR)
	fhirGroup.GET("/Location", h.SearchLocationsFHIR)
	fhirGroup.GET("/Location/:id", h.GetLocationFHIR)
}

// -- Import / store management --

func (h *Handler) Import(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)

	// Multipart uploads carry the payload in a "file" part; raw posts carry
	// it in the body.
	body := c.Request().Body
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
		}
		defer f.Close()
		body = f
		contentType = file.Header.Get(echo.HeaderContentType)
	}

	sum, err := h.svc.Import(c.Request().Context(), contentType, body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Export(c echo.Context) error {
	resourceType := c.QueryParam("type")
	if resourceType == "" {
		resourceType = TypePatient
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/fhir+ndjson")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := h.svc.ExportNDJSON(c.Request().Context(), resourceType, c.Response()); err != nil {
		return err
	}
	return nil
}

func (h *Handler) Clear(c echo.Context) error {
	if err := h.svc.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- FHIR read endpoints --

func (h *Handler) SearchPatientsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"name", "gender", "identifier"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}

	patients, total, err := h.svc.SearchPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	resources := make([]interface{}, len(patients))
	for i, p := range patients {
		resources[i] = p
	}
	bundle := fhir.NewSearchBundle(resources, total, "/fhir/Patient")
	addPageLinks(bundle, "/fhir/Patient", pg, total)
	return c.JSON(http.StatusOK, bundle)
}

// addPageLinks appends next/previous navigation to a search bundle.
func addPageLinks(b *fhir.Bundle, base string, pg pagination.Params, total int) {
	if pg.HasNext(total) {
		b.Link = append(b.Link, fhir.BundleLink{
			Relation: "next",
			URL:      fmt.Sprintf("%s?_offset=%d&_count=%d", base, pg.NextOffset(), pg.Limit),
		})
	}
	if pg.HasPrevious() {
		b.Link = append(b.Link, fhir.BundleLink{
			Relation: "previous",
			URL:      fmt.Sprintf("%s?_offset=%d&_count=%d", base, pg.PreviousOffset(), pg.Limit),
		})
	}
}

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(TypePatient, c.Param("id")))
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchObservationsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID := c.QueryParam("patient")
	if subject := c.QueryParam("subject"); subject != "" && patientID == "" {
		// Accept the reference form too: ?subject=Patient/p1. Only patients
		// can be subjects in this store.
		rt, id := fhir.ParseReference(subject)
		if rt != "" && rt != TypePatient {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("subject must reference a Patient"))
		}
		if id != "" {
			patientID = id
		} else {
			patientID = subject
		}
	}

	observations, total, err := h.svc.ListObservations(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	resources := make([]interface{}, len(observations))
	for i, o := range observations {
		resources[i] = o
	}
	bundle := fhir.NewSearchBundle(resources, total, "/fhir/Observation")
	addPageLinks(bundle, "/fhir/Observation", pg, total)
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetObservationFHIR(c echo.Context) error {
	o, err := h.svc.GetObservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(TypeObservation, c.Param("id")))
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) SearchLocationsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	locations, total, err := h.svc.ListLocations(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	resources := make([]interface{}, len(locations))
	for i, l := range locations {
		resources[i] = l
	}
	bundle := fhir.NewSearchBundle(resources, total, "/fhir/Location")
	addPageLinks(bundle, "/fhir/Location", pg, total)
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetLocationFHIR(c echo.Context) error {
	l, err := h.svc.GetLocation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(TypeLocation, c.Param("id")))
	}
	return c.JSON(http.StatusOK, l)
}
