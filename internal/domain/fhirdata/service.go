package fhirdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geofhir/geofhir/internal/domain/analysis"
	"github.com/geofhir/geofhir/internal/platform/fhir"
	"github.com/geofhir/geofhir/internal/platform/metrics"
)

// maxImportErrors caps the error detail an import summary carries. Beyond
// that the summary only counts.
const maxImportErrors = 20

// ImportSummary reports the outcome of one ingest call. Resources the
// importer cannot place are counted, never fatal.
type ImportSummary struct {
	Patients     int      `json:"patients"`
	Observations int      `json:"observations"`
	Locations    int      `json:"locations"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors,omitempty"`
}

func (s *ImportSummary) total() int {
	return s.Patients + s.Observations + s.Locations
}

func (s *ImportSummary) addError(msg string) {
	s.Skipped++
	if len(s.Errors) < maxImportErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// StoreSummary reports current store contents plus geocoding coverage.
type StoreSummary struct {
	Patients     int `json:"patients"`
	Observations int `json:"observations"`
	Locations    int `json:"locations"`
	Geocoded     int `json:"geocoded_patients"`
	Ungeocoded   int `json:"ungeocoded_patients"`
}

type Service struct {
	patients     PatientRepository
	observations ObservationRepository
	locations    LocationRepository
	logger       zerolog.Logger
}

func NewService(patients PatientRepository, observations ObservationRepository, locations LocationRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients:     patients,
		observations: observations,
		locations:    locations,
		logger:       logger.With().Str("component", "fhirdata").Logger(),
	}
}

// Import ingests FHIR resources from r. The payload may be a single
// resource, a Bundle of any type, a bare JSON array of resources, or
// NDJSON (one resource per line, selected by content type or an
// unparseable-as-JSON body). Individual bad resources are skipped and
// reported in the summary; only an unreadable payload is an error.
func (s *Service) Import(ctx context.Context, contentType string, r io.Reader) (*ImportSummary, error) {
	sum := &ImportSummary{}

	if isNDJSON(contentType) {
		if err := fhir.ReadNDJSON(r, func(raw json.RawMessage) error {
			s.ingestResource(ctx, raw, sum)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("read ndjson: %w", err)
		}
		s.logImport(sum)
		return sum, nil
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	switch {
	case body[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("parse resource array: %w", err)
		}
		for _, raw := range items {
			s.ingestResource(ctx, raw, sum)
		}
	case body[0] == '{' && json.Valid(body):
		raw := json.RawMessage(body)
		if fhir.ResourceType(raw) == TypeBundle {
			var bundle fhir.Bundle
			if err := json.Unmarshal(body, &bundle); err != nil {
				return nil, fmt.Errorf("parse bundle: %w", err)
			}
			for _, entry := range bundle.Entry {
				if len(entry.Resource) == 0 {
					continue
				}
				s.ingestResource(ctx, entry.Resource, sum)
			}
		} else {
			s.ingestResource(ctx, raw, sum)
		}
	default:
		// Not a single JSON document; NDJSON files are sometimes posted
		// without their content type.
		if err := fhir.ReadNDJSON(strings.NewReader(string(body)), func(raw json.RawMessage) error {
			s.ingestResource(ctx, raw, sum)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("payload is neither JSON nor ndjson: %w", err)
		}
	}

	s.logImport(sum)
	return sum, nil
}

func (s *Service) logImport(sum *ImportSummary) {
	metrics.ResourcesIngestedTotal.WithLabelValues(TypePatient).Add(float64(sum.Patients))
	metrics.ResourcesIngestedTotal.WithLabelValues(TypeObservation).Add(float64(sum.Observations))
	metrics.ResourcesIngestedTotal.WithLabelValues(TypeLocation).Add(float64(sum.Locations))
	metrics.ResourcesSkippedTotal.Add(float64(sum.Skipped))
	s.logger.Info().
		Int("patients", sum.Patients).
		Int("observations", sum.Observations).
		Int("locations", sum.Locations).
		Int("skipped", sum.Skipped).
		Msg("fhir import complete")
}

func (s *Service) ingestResource(ctx context.Context, raw json.RawMessage, sum *ImportSummary) {
	switch rt := fhir.ResourceType(raw); rt {
	case TypePatient:
		var p Patient
		if err := json.Unmarshal(raw, &p); err != nil {
			sum.addError(fmt.Sprintf("patient: %v", err))
			return
		}
		p.ResourceType = TypePatient
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := s.patients.Save(ctx, &p); err != nil {
			sum.addError(fmt.Sprintf("patient %s: %v", p.ID, err))
			return
		}
		sum.Patients++
	case TypeObservation:
		var o Observation
		if err := json.Unmarshal(raw, &o); err != nil {
			sum.addError(fmt.Sprintf("observation: %v", err))
			return
		}
		o.ResourceType = TypeObservation
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if err := s.observations.Save(ctx, &o); err != nil {
			sum.addError(fmt.Sprintf("observation %s: %v", o.ID, err))
			return
		}
		sum.Observations++
	case TypeLocation:
		var l Location
		if err := json.Unmarshal(raw, &l); err != nil {
			sum.addError(fmt.Sprintf("location: %v", err))
			return
		}
		l.ResourceType = TypeLocation
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if err := s.locations.Save(ctx, &l); err != nil {
			sum.addError(fmt.Sprintf("location %s: %v", l.ID, err))
			return
		}
		sum.Locations++
	case "":
		sum.addError("resource without resourceType")
	default:
		s.logger.Debug().Str("resource_type", rt).Msg("skipping unsupported resource type")
		sum.Skipped++
	}
}

// PatientPoints returns one point per stored patient, geocoded through the
// address geolocation extension. Patients without a usable coordinate come
// back with a nil coordinate; each skip is logged at debug level.
func (s *Service) PatientPoints(ctx context.Context) ([]analysis.PatientPoint, error) {
	patients, err := s.patients.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	points := make([]analysis.PatientPoint, 0, len(patients))
	for _, p := range patients {
		point := analysis.PatientPoint{ID: p.ID, Name: p.DisplayName()}
		if c, ok := p.Coordinate(); ok {
			coord := c
			point.Coord = &coord
		} else {
			s.logger.Debug().Str("patient_id", p.ID).Msg("patient has no usable geolocation")
		}
		points = append(points, point)
	}
	return points, nil
}

// Summary reports store counts and geocoding coverage.
func (s *Service) Summary(ctx context.Context) (*StoreSummary, error) {
	patients, err := s.patients.All(ctx)
	if err != nil {
		return nil, err
	}
	observations, err := s.observations.Count(ctx)
	if err != nil {
		return nil, err
	}
	locations, err := s.locations.Count(ctx)
	if err != nil {
		return nil, err
	}

	sum := &StoreSummary{
		Patients:     len(patients),
		Observations: observations,
		Locations:    locations,
	}
	for _, p := range patients {
		if _, ok := p.Coordinate(); ok {
			sum.Geocoded++
		} else {
			sum.Ungeocoded++
		}
	}
	return sum, nil
}

// Clear empties the whole store.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.patients.Clear(ctx); err != nil {
		return err
	}
	if err := s.observations.Clear(ctx); err != nil {
		return err
	}
	if err := s.locations.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("fhir store cleared")
	return nil
}

// ExportNDJSON writes every resource of resourceType to w as NDJSON.
func (s *Service) ExportNDJSON(ctx context.Context, resourceType string, w io.Writer) (int, error) {
	nw := fhir.NewNDJSONWriter(w)
	count := 0

	switch resourceType {
	case TypePatient:
		patients, err := s.patients.All(ctx)
		if err != nil {
			return 0, err
		}
		for _, p := range patients {
			if err := nw.WriteResource(p); err != nil {
				return count, err
			}
			count++
		}
	case TypeObservation:
		observations, _, err := s.observations.List(ctx, 0, 0)
		if err != nil {
			return 0, err
		}
		for _, o := range observations {
			if err := nw.WriteResource(o); err != nil {
				return count, err
			}
			count++
		}
	case TypeLocation:
		locations, _, err := s.locations.List(ctx, 0, 0)
		if err != nil {
			return 0, err
		}
		for _, l := range locations {
			if err := nw.WriteResource(l); err != nil {
				return count, err
			}
			count++
		}
	default:
		return 0, fmt.Errorf("unsupported resource type %q", resourceType)
	}

	return count, nw.Flush()
}

func isNDJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "ndjson") || strings.Contains(ct, "x-ndjson")
}

// Repositories the read handlers serve from.

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

func (s *Service) GetObservation(ctx context.Context, id string) (*Observation, error) {
	return s.observations.GetByID(ctx, id)
}

func (s *Service) ListObservations(ctx context.Context, patientID string, limit, offset int) ([]*Observation, int, error) {
	if patientID != "" {
		return s.observations.ListByPatient(ctx, patientID, limit, offset)
	}
	return s.observations.List(ctx, limit, offset)
}

func (s *Service) GetLocation(ctx context.Context, id string) (*Location, error) {
	return s.locations.GetByID(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, limit, offset int) ([]*Location, int, error) {
	return s.locations.List(ctx, limit, offset)
}
