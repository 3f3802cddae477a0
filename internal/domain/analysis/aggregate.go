package analysis

import (
	"sort"
	"time"

	"github.com/geofhir/geofhir/internal/domain/geodata"
)

// SignalBasisDescriptive labels how AssociationSignal is computed: the
// observed category match rate over the share of geocoded patients inside
// the dataset's buffer-expanded bounding region.
const SignalBasisDescriptive = "descriptive"

// aggregate folds per-patient results into a report. Patients are walked
// in input order, every dataset category appears even with zero matches,
// and the category and feature slices come out sorted, so the same inputs
// always produce the same report.
func aggregate(ds *geodata.Dataset, patients []PatientPoint, results []patientResult, bufferMeters float64) *Report {
	report := &Report{
		DatasetID:      ds.ID,
		DatasetName:    ds.Name,
		DatasetVersion: ds.Version,
		BufferMeters:   bufferMeters,
		TotalPatients:  len(patients),
		SignalBasis:    SignalBasisDescriptive,
		GeneratedAt:    time.Now().UTC(),
	}

	categoryCounts := make(map[string]int)
	for _, c := range ds.Categories() {
		categoryCounts[c] = 0
	}
	featureCounts := make(map[string]*FeatureStats)

	region := ds.Index().Bounds().ExpandByMeters(bufferMeters)
	inRegion := 0

	for i, p := range patients {
		if p.Coord == nil {
			report.UngeocodedPatients++
			continue
		}
		report.GeocodedPatients++
		if ds.FeatureCount() > 0 && region.Contains(*p.Coord) {
			inRegion++
		}

		matches := results[i].matches
		if len(matches) > 0 {
			report.MatchedPatients++
		}
		for _, m := range matches {
			categoryCounts[m.Category]++
			fs, ok := featureCounts[m.FeatureID]
			if !ok {
				fs = &FeatureStats{FeatureID: m.FeatureID, Category: m.Category}
				featureCounts[m.FeatureID] = fs
			}
			fs.MatchCount++
			report.Matches = append(report.Matches, m)
		}
	}

	// The baseline is how often a geocoded patient lands inside the grown
	// bounding region at all. A category whose match rate beats it is
	// matching more than mere residence in the area would predict.
	baseline := 0.0
	if report.GeocodedPatients > 0 {
		baseline = float64(inRegion) / float64(report.GeocodedPatients)
	}

	report.Categories = make([]CategoryStats, 0, len(categoryCounts))
	for category, count := range categoryCounts {
		stats := CategoryStats{Category: category, MatchCount: count}
		if report.GeocodedPatients > 0 {
			stats.MatchRate = float64(count) / float64(report.GeocodedPatients)
		}
		if baseline > 0 {
			stats.AssociationSignal = stats.MatchRate / baseline
		}
		report.Categories = append(report.Categories, stats)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Category < report.Categories[j].Category
	})

	report.Features = make([]FeatureStats, 0, len(featureCounts))
	for _, fs := range featureCounts {
		report.Features = append(report.Features, *fs)
	}
	sort.Slice(report.Features, func(i, j int) bool {
		if report.Features[i].MatchCount != report.Features[j].MatchCount {
			return report.Features[i].MatchCount > report.Features[j].MatchCount
		}
		return report.Features[i].FeatureID < report.Features[j].FeatureID
	})

	return report
}
