// Package geodata manages imported geographic datasets: GeoJSON decoding
// and validation, the in-memory registry the correlation engine reads
// from, and Postgres persistence so datasets survive a restart.
package geodata

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/geofhir/geofhir/internal/geo"
)

// FeatureRecord pairs an indexed feature with the GeoJSON properties it
// arrived with. Ordinal is the feature's position in the source document.
type FeatureRecord struct {
	Feature    *geo.Feature
	Properties map[string]interface{}
	Ordinal    int
}

// Dataset is one imported, validated and indexed feature collection.
//
// A dataset is immutable after construction. Re-importing the same name
// builds a new Dataset (same ID, bumped Version) and swaps it into the
// registry; correlation runs holding the old pointer finish undisturbed.
type Dataset struct {
	ID          uuid.UUID
	Name        string
	Description string
	SourceFile  string
	Version     int
	CreatedAt   time.Time

	records    []FeatureRecord
	categories []string
	index      *geo.Index
}

// NewDataset builds a dataset and its grid index from validated records.
// cellSize is the grid cell edge in degrees; zero or negative selects the
// default.
func NewDataset(id uuid.UUID, name string, version int, records []FeatureRecord, cellSize float64) *Dataset {
	features := make([]*geo.Feature, len(records))
	seen := make(map[string]struct{})
	var categories []string
	for i, rec := range records {
		features[i] = rec.Feature
		if _, ok := seen[rec.Feature.Category]; !ok {
			seen[rec.Feature.Category] = struct{}{}
			categories = append(categories, rec.Feature.Category)
		}
	}
	sort.Strings(categories)

	return &Dataset{
		ID:         id,
		Name:       name,
		Version:    version,
		CreatedAt:  time.Now().UTC(),
		records:    records,
		categories: categories,
		index:      geo.NewIndex(features, cellSize),
	}
}

// Index returns the dataset's grid index. The index is read-only and safe
// for concurrent queries.
func (d *Dataset) Index() *geo.Index {
	return d.index
}

// Records returns the dataset's features in source order. Callers must not
// mutate the returned slice.
func (d *Dataset) Records() []FeatureRecord {
	return d.records
}

// Categories returns the sorted distinct feature categories.
func (d *Dataset) Categories() []string {
	return d.categories
}

// FeatureCount returns the number of features in the dataset.
func (d *Dataset) FeatureCount() int {
	return len(d.records)
}

// Bounds returns the bounding box of all features, or the zero box for an
// empty dataset.
func (d *Dataset) Bounds() geo.BBox {
	return d.index.Bounds()
}

// Summary is the list and detail view of a dataset.
type Summary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	SourceFile   string    `json:"source_file,omitempty"`
	Version      int       `json:"version"`
	FeatureCount int       `json:"feature_count"`
	Categories   []string  `json:"categories"`
	Bounds       geo.BBox  `json:"bounds"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary returns the dataset's list/detail view.
func (d *Dataset) Summary() Summary {
	return Summary{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		SourceFile:   d.SourceFile,
		Version:      d.Version,
		FeatureCount: d.FeatureCount(),
		Categories:   d.Categories(),
		Bounds:       d.Bounds(),
		CreatedAt:    d.CreatedAt,
	}
}
