package analysis

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/geofhir/geofhir/internal/domain/geodata"
	"github.com/geofhir/geofhir/internal/geo"
)

// Engine runs proximity correlation between patient points and a dataset's
// feature index. Patients are processed across a bounded worker pool; the
// index is read-only, so workers share it without locking. Per-patient
// results land in a slice indexed by input position and aggregation runs
// sequentially, which keeps the report independent of scheduling.
type Engine struct {
	workers int
	logger  zerolog.Logger
}

// NewEngine creates an engine with the given worker count; zero or negative
// selects GOMAXPROCS.
func NewEngine(workers int, logger zerolog.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		workers: workers,
		logger:  logger.With().Str("component", "correlation").Logger(),
	}
}

// patientResult is one patient's outcome. matches is nil for ungeocoded
// patients and empty for geocoded patients with nothing in range.
type patientResult struct {
	matches []ProximityMatch
	err     error
}

// Correlate runs one correlation pass and returns the aggregated report.
//
// bufferMeters must be a positive, finite number; anything else returns an
// *InvalidParameterError before any query executes. An empty patient list
// or an empty dataset produces a zero-filled report, not an error. Any
// internal failure aborts the whole run with an *EngineError; no partial
// report is returned.
func (e *Engine) Correlate(ctx context.Context, ds *geodata.Dataset, patients []PatientPoint, bufferMeters float64) (*Report, error) {
	if ds == nil {
		return nil, &InvalidParameterError{Name: "dataset", Value: nil, Reason: "dataset is required"}
	}
	if math.IsNaN(bufferMeters) || math.IsInf(bufferMeters, 0) || bufferMeters <= 0 {
		return nil, &InvalidParameterError{Name: "buffer_meters", Value: bufferMeters, Reason: "must be a positive number of meters"}
	}

	index := ds.Index()
	results := make([]patientResult, len(patients))

	workers := e.workers
	if workers > len(patients) {
		workers = len(patients)
	}
	if workers > 0 {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					results[i] = correlatePatient(index, patients[i], bufferMeters)
				}
			}()
		}

	feed:
		for i := range patients {
			select {
			case jobs <- i:
			case <-ctx.Done():
				break feed
			}
		}
		close(jobs)
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.err != nil {
			e.logger.Error().Err(r.err).Msg("correlation run aborted")
			return nil, r.err
		}
	}

	report := aggregate(ds, patients, results, bufferMeters)
	e.logger.Info().
		Str("dataset", ds.Name).
		Int("dataset_version", ds.Version).
		Float64("buffer_meters", bufferMeters).
		Int("total_patients", report.TotalPatients).
		Int("matched", report.MatchedPatients).
		Int("ungeocoded", report.UngeocodedPatients).
		Msg("correlation run complete")
	return report, nil
}

// correlatePatient queries the index once and keeps the nearest feature per
// category. Query results arrive sorted by distance with ties broken by
// feature ID, so the first hit per category is the match.
func correlatePatient(index *geo.Index, p PatientPoint, bufferMeters float64) patientResult {
	if p.Coord == nil {
		return patientResult{}
	}

	hits, err := index.Query(*p.Coord, bufferMeters)
	if err != nil {
		var igErr *geo.InvalidGeometryError
		featureID := ""
		if errors.As(err, &igErr) {
			featureID = igErr.FeatureID
		}
		return patientResult{err: &EngineError{FeatureID: featureID, PatientID: p.ID, Err: err}}
	}

	matched := make(map[string]bool)
	matches := make([]ProximityMatch, 0, 4)
	for _, h := range hits {
		if matched[h.Feature.Category] {
			continue
		}
		matched[h.Feature.Category] = true
		matches = append(matches, ProximityMatch{
			PatientID:      p.ID,
			PatientName:    p.Name,
			FeatureID:      h.Feature.ID,
			Category:       h.Feature.Category,
			DistanceMeters: h.Distance,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Category < matches[j].Category })
	return patientResult{matches: matches}
}
