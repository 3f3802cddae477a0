// Package analysis correlates geocoded patients against a dataset's
// feature index and aggregates the matches into a report. Reports live in
// memory until the next run for the same dataset supersedes them; they are
// never persisted.
package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/geofhir/geofhir/internal/geo"
)

// PatientPoint is the engine's view of a patient: an identifier, a display
// name for the report, and, when geocoding succeeded, a coordinate. A nil
// Coord marks the patient as ungeocoded; the engine counts it and moves on.
type PatientPoint struct {
	ID    string
	Name  string
	Coord *geo.Coordinate
}

// ProximityMatch links one patient to the nearest feature of one category
// within the run's buffer distance.
type ProximityMatch struct {
	PatientID      string  `json:"patient_id"`
	PatientName    string  `json:"patient_name,omitempty"`
	FeatureID      string  `json:"feature_id"`
	Category       string  `json:"category"`
	DistanceMeters float64 `json:"distance_meters"`
}

// CategoryStats summarizes matches within one feature category.
//
// MatchRate is matched patients over geocoded patients. AssociationSignal
// compares that rate against the share of geocoded patients inside the
// dataset's buffer-expanded bounding region; it is a descriptive ratio,
// not a statistical test.
type CategoryStats struct {
	Category          string  `json:"category"`
	MatchCount        int     `json:"match_count"`
	MatchRate         float64 `json:"match_rate"`
	AssociationSignal float64 `json:"association_signal"`
}

// FeatureStats counts the patients matched to one feature.
type FeatureStats struct {
	FeatureID  string `json:"feature_id"`
	Category   string `json:"category"`
	MatchCount int    `json:"match_count"`
}

// Report is the outcome of one correlation run. Given the same dataset
// version, patient set and buffer, every field except GeneratedAt is
// reproduced exactly on a re-run.
type Report struct {
	DatasetID          uuid.UUID        `json:"dataset_id"`
	DatasetName        string           `json:"dataset_name"`
	DatasetVersion     int              `json:"dataset_version"`
	BufferMeters       float64          `json:"buffer_meters"`
	TotalPatients      int              `json:"total_patients"`
	GeocodedPatients   int              `json:"geocoded_patients"`
	UngeocodedPatients int              `json:"ungeocoded_patients"`
	MatchedPatients    int              `json:"matched_patients"`
	Categories         []CategoryStats  `json:"categories"`
	Features           []FeatureStats   `json:"features"`
	Matches            []ProximityMatch `json:"matches"`
	SignalBasis        string           `json:"signal_basis"`
	GeneratedAt        time.Time        `json:"generated_at"`
}
