package analysis

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/geofhir/geofhir/internal/domain/geodata"
	"github.com/geofhir/geofhir/internal/platform/metrics"
)

// PatientSource supplies the engine's view of the patient store.
type PatientSource interface {
	PatientPoints(ctx context.Context) ([]PatientPoint, error)
}

// DatasetSource resolves datasets from the live registry.
type DatasetSource interface {
	Dataset(id uuid.UUID) (*geodata.Dataset, bool)
	DatasetByName(name string) (*geodata.Dataset, bool)
}

// Service runs correlations and retains the most recent report per
// dataset. Retained reports are superseded by the next run and vanish on
// restart; they are deliberately never persisted.
type Service struct {
	engine   *Engine
	datasets DatasetSource
	patients PatientSource
	logger   zerolog.Logger

	mu     sync.RWMutex
	latest map[uuid.UUID]*Report
}

// NewService creates an analysis service.
func NewService(engine *Engine, datasets DatasetSource, patients PatientSource, logger zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		datasets: datasets,
		patients: patients,
		logger:   logger.With().Str("component", "analysis").Logger(),
		latest:   make(map[uuid.UUID]*Report),
	}
}

// Run resolves datasetRef (a dataset UUID, or a dataset name as a
// fallback), gathers patient points from the store, and correlates them
// within bufferMeters. The report is retained as the dataset's latest.
func (s *Service) Run(ctx context.Context, datasetRef string, bufferMeters float64) (*Report, error) {
	if datasetRef == "" {
		metrics.AnalysisRunsTotal.WithLabelValues("invalid").Inc()
		return nil, &InvalidParameterError{Name: "dataset_id", Value: datasetRef, Reason: "dataset id or name is required"}
	}

	ds, ok := s.resolve(datasetRef)
	if !ok {
		metrics.AnalysisRunsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrDatasetNotFound
	}

	points, err := s.patients.PatientPoints(ctx)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	timer := prometheus.NewTimer(metrics.AnalysisDuration)
	report, err := s.engine.Correlate(ctx, ds, points, bufferMeters)
	timer.ObserveDuration()
	if err != nil {
		var paramErr *InvalidParameterError
		if errors.As(err, &paramErr) {
			metrics.AnalysisRunsTotal.WithLabelValues("invalid").Inc()
		} else {
			metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.AnalysisRunsTotal.WithLabelValues("ok").Inc()
	metrics.AnalysisPatients.Observe(float64(report.TotalPatients))

	s.mu.Lock()
	s.latest[ds.ID] = report
	s.mu.Unlock()
	return report, nil
}

func (s *Service) resolve(ref string) (*geodata.Dataset, bool) {
	if id, err := uuid.Parse(ref); err == nil {
		if ds, ok := s.datasets.Dataset(id); ok {
			return ds, true
		}
	}
	return s.datasets.DatasetByName(ref)
}

// Latest returns the retained report for a dataset, if one exists.
func (s *Service) Latest(datasetID uuid.UUID) (*Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.latest[datasetID]
	return report, ok
}
