package geo

import (
	"fmt"
	"math"
)

// GeometryType enumerates the geometry kinds a Feature can carry.
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
)

// DefaultCategory is assigned to features whose source carries no category
// property.
const DefaultCategory = "uncategorized"

// Feature is a single geographic feature: an identifier, a category label,
// and one geometry. Features are immutable once constructed; the index and
// the correlation engine share them freely across goroutines.
type Feature struct {
	ID       string
	Category string
	Type     GeometryType
	Coords   []Coordinate
	BBox     BBox
}

// NewFeature validates the geometry and returns an immutable feature.
// Every vertex must be a valid WGS84 coordinate. LineStrings need at least
// two coordinates; polygon rings need at least three distinct vertices.
// Polygon rings may arrive open or closed (first == last); open rings are
// closed implicitly. Any violation returns an *InvalidGeometryError.
func NewFeature(id, category string, typ GeometryType, coords []Coordinate) (*Feature, error) {
	if category == "" {
		category = DefaultCategory
	}
	for _, c := range coords {
		if !c.Valid() {
			return nil, &InvalidGeometryError{
				FeatureID: id,
				Reason:    fmt.Sprintf("coordinate out of range: lat=%v lng=%v", c.Lat, c.Lng),
			}
		}
	}

	switch typ {
	case GeometryPoint:
		if len(coords) != 1 {
			return nil, &InvalidGeometryError{FeatureID: id, Reason: "point must have exactly one coordinate"}
		}
	case GeometryLineString:
		if len(coords) < 2 {
			return nil, &InvalidGeometryError{FeatureID: id, Reason: "linestring must have at least two coordinates"}
		}
	case GeometryPolygon:
		coords = closeRing(coords)
		if distinctVertices(coords) < 3 {
			return nil, &InvalidGeometryError{FeatureID: id, Reason: "polygon ring must have at least three distinct vertices"}
		}
	default:
		return nil, &InvalidGeometryError{FeatureID: id, Reason: fmt.Sprintf("unsupported geometry type %q", typ)}
	}

	return &Feature{
		ID:       id,
		Category: category,
		Type:     typ,
		Coords:   coords,
		BBox:     computeBBox(coords),
	}, nil
}

// DistanceTo returns the distance in meters from p to the nearest point of
// the feature. Points inside a polygon are at distance zero. A feature with
// a geometry type NewFeature would have rejected yields NaN, which the
// index surfaces as an error.
func (f *Feature) DistanceTo(p Coordinate) float64 {
	switch f.Type {
	case GeometryPoint:
		return Distance(p, f.Coords[0])
	case GeometryLineString:
		return minEdgeDistance(p, f.Coords)
	case GeometryPolygon:
		if PointInPolygon(p, f.Coords) {
			return 0
		}
		return minEdgeDistance(p, f.Coords)
	}
	return math.NaN()
}

func minEdgeDistance(p Coordinate, coords []Coordinate) float64 {
	min := math.Inf(1)
	for i := 0; i+1 < len(coords); i++ {
		if d := DistanceToSegment(p, coords[i], coords[i+1]); d < min {
			min = d
		}
	}
	return min
}

// closeRing appends the first vertex when the ring does not end on it.
func closeRing(coords []Coordinate) []Coordinate {
	if len(coords) == 0 {
		return coords
	}
	if coords[0] == coords[len(coords)-1] {
		return coords
	}
	closed := make([]Coordinate, len(coords)+1)
	copy(closed, coords)
	closed[len(coords)] = coords[0]
	return closed
}

// distinctVertices counts unique vertices in a closed ring, ignoring the
// closing duplicate.
func distinctVertices(coords []Coordinate) int {
	seen := make(map[Coordinate]struct{}, len(coords))
	for _, c := range coords {
		seen[c] = struct{}{}
	}
	return len(seen)
}
