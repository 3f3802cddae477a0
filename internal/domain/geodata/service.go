package geodata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geofhir/geofhir/internal/platform/metrics"
)

// ErrNotFound is returned when a dataset lookup misses.
var ErrNotFound = errors.New("dataset not found")

// ErrNameRequired is returned when an import carries no dataset name.
var ErrNameRequired = errors.New("dataset name is required")

// Service coordinates GeoJSON imports, the live registry and persistence.
type Service struct {
	registry *Registry
	repo     Repository
	cellSize float64
	logger   zerolog.Logger

	// importMu serializes imports so concurrent uploads of the same name
	// cannot interleave the persist and the registry swap.
	importMu sync.Mutex
}

// NewService creates a geodata service. cellSize is the grid cell edge in
// degrees used for every dataset index.
func NewService(repo Repository, cellSize float64, logger zerolog.Logger) *Service {
	return &Service{
		registry: NewRegistry(),
		repo:     repo,
		cellSize: cellSize,
		logger:   logger.With().Str("component", "geodata").Logger(),
	}
}

// ImportGeoJSON decodes and validates a FeatureCollection, persists it, and
// only then publishes it in the registry. Validation is wholesale: any
// invalid geometry rejects the upload and the currently registered version,
// if any, stays live. An empty collection imports as an empty dataset.
func (s *Service) ImportGeoJSON(ctx context.Context, name, description, sourceFile string, r io.Reader) (*Dataset, error) {
	if name == "" {
		return nil, ErrNameRequired
	}

	records, err := DecodeGeoJSON(r, name)
	if err != nil {
		return nil, err
	}

	s.importMu.Lock()
	defer s.importMu.Unlock()

	id, version := s.registry.NextIdentity(name)
	ds := NewDataset(id, name, version, records, s.cellSize)
	ds.Description = description
	ds.SourceFile = sourceFile

	if err := s.repo.SaveDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("persist dataset %s: %w", name, err)
	}
	s.registry.Replace(ds)
	s.updateGauges()

	s.logger.Info().
		Str("dataset", ds.Name).
		Int("version", ds.Version).
		Int("features", ds.FeatureCount()).
		Strs("categories", ds.Categories()).
		Msg("dataset imported")
	return ds, nil
}

// List returns summaries of all registered datasets, sorted by name.
func (s *Service) List() []Summary {
	datasets := s.registry.List()
	out := make([]Summary, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, ds.Summary())
	}
	return out
}

// Dataset returns the dataset with the given ID.
func (s *Service) Dataset(id uuid.UUID) (*Dataset, bool) {
	return s.registry.Get(id)
}

// DatasetByName returns the current version of the named dataset.
func (s *Service) DatasetByName(name string) (*Dataset, bool) {
	return s.registry.GetByName(name)
}

// DatasetCount returns the number of registered datasets.
func (s *Service) DatasetCount() int {
	return s.registry.Len()
}

// GeoJSON re-exports a dataset as a FeatureCollection document.
func (s *Service) GeoJSON(id uuid.UUID) ([]byte, error) {
	ds, ok := s.registry.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return EncodeGeoJSON(ds.Records())
}

// Delete removes a dataset from the registry and the store.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ds, ok := s.registry.Remove(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.repo.DeleteDataset(ctx, id); err != nil {
		return fmt.Errorf("delete dataset %s: %w", ds.Name, err)
	}
	s.updateGauges()
	s.logger.Info().Str("dataset", ds.Name).Msg("dataset deleted")
	return nil
}

// LoadFromStore fills the registry from the repository at boot and returns
// the number of datasets restored.
func (s *Service) LoadFromStore(ctx context.Context) (int, error) {
	datasets, err := s.repo.LoadAll(ctx, s.cellSize)
	if err != nil {
		return 0, fmt.Errorf("load datasets: %w", err)
	}
	for _, ds := range datasets {
		s.registry.Replace(ds)
	}
	s.updateGauges()
	if len(datasets) > 0 {
		s.logger.Info().Int("datasets", len(datasets)).Msg("datasets restored from store")
	}
	return len(datasets), nil
}

func (s *Service) updateGauges() {
	datasets := s.registry.List()
	features := 0
	for _, ds := range datasets {
		features += ds.FeatureCount()
	}
	metrics.DatasetsRegistered.Set(float64(len(datasets)))
	metrics.FeaturesIndexed.Set(float64(features))
}
