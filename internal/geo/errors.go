package geo

import "fmt"

// InvalidGeometryError reports a feature whose geometry failed validation.
// A dataset load that hits one is rejected wholesale; no partial datasets
// are ever built.
type InvalidGeometryError struct {
	FeatureID string
	Reason    string
}

func (e *InvalidGeometryError) Error() string {
	if e.FeatureID == "" {
		return fmt.Sprintf("invalid geometry: %s", e.Reason)
	}
	return fmt.Sprintf("invalid geometry in feature %q: %s", e.FeatureID, e.Reason)
}
