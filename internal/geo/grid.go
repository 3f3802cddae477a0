package geo

import (
	"math"
	"sort"
)

// DefaultCellSize is the grid cell edge in degrees, roughly one kilometer
// of latitude.
const DefaultCellSize = 0.01

// minMetersPerDegree converts a buffer in meters to a padding in degrees.
// It sits below the smallest real meters-per-degree value (about 110574 at
// the equator), so the padded candidate box is always a superset of the
// exact answer and the grid never drops a feature the buffer reaches.
const minMetersPerDegree = 109000.0

// Hit is a feature returned by an index query together with its exact
// distance from the query point.
type Hit struct {
	Feature  *Feature
	Distance float64
}

type cellKey struct {
	x, y int
}

// Index is a uniform grid over the bounding region of a feature set. A
// feature lands in every cell its bounding box overlaps; a query collects
// candidates from the cells its padded box overlaps and filters them by
// exact distance. The index is built once per dataset version and is
// read-only afterward, so concurrent queries need no locking.
type Index struct {
	cellSize float64
	bounds   BBox
	maxCell  cellKey
	cells    map[cellKey][]*Feature
	features []*Feature
}

// NewIndex builds a grid index over features. cellSize is the cell edge in
// degrees; zero or negative selects DefaultCellSize. An empty feature set
// yields an index that answers every query with no hits.
func NewIndex(features []*Feature, cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	idx := &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]*Feature),
		features: features,
	}
	if len(features) == 0 {
		return idx
	}

	bounds := features[0].BBox
	for _, f := range features[1:] {
		bounds = bounds.Union(f.BBox)
	}
	idx.bounds = bounds
	idx.maxCell.x, idx.maxCell.y = idx.cellOf(bounds.MaxLng, bounds.MaxLat)

	for _, f := range features {
		minX, minY := idx.cellOf(f.BBox.MinLng, f.BBox.MinLat)
		maxX, maxY := idx.cellOf(f.BBox.MaxLng, f.BBox.MaxLat)
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				k := cellKey{x, y}
				idx.cells[k] = append(idx.cells[k], f)
			}
		}
	}
	return idx
}

func (idx *Index) cellOf(lng, lat float64) (int, int) {
	x := int(math.Floor((lng - idx.bounds.MinLng) / idx.cellSize))
	y := int(math.Floor((lat - idx.bounds.MinLat) / idx.cellSize))
	return x, y
}

// Bounds returns the bounding box of the indexed features. The zero box is
// returned for an empty index.
func (idx *Index) Bounds() BBox {
	return idx.bounds
}

// Query returns every feature within bufferMeters of p, sorted by ascending
// distance with ties broken by ascending feature ID. The result membership
// is identical to a brute-force scan over all features. A feature whose
// distance computes to a non-finite value aborts the query with an
// *InvalidGeometryError naming it.
func (idx *Index) Query(p Coordinate, bufferMeters float64) ([]Hit, error) {
	if len(idx.features) == 0 || bufferMeters < 0 {
		return nil, nil
	}

	latPad := bufferMeters / minMetersPerDegree
	absLat := math.Abs(p.Lat) + latPad
	if absLat > 89.5 {
		absLat = 89.5
	}
	lngPad := bufferMeters / (minMetersPerDegree * math.Cos(absLat*math.Pi/180))

	minX, minY := idx.cellOf(p.Lng-lngPad, p.Lat-latPad)
	maxX, maxY := idx.cellOf(p.Lng+lngPad, p.Lat+latPad)

	// Cells outside the grid's own occupied range are necessarily empty.
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > idx.maxCell.x {
		maxX = idx.maxCell.x
	}
	if maxY > idx.maxCell.y {
		maxY = idx.maxCell.y
	}
	if minX > maxX || minY > maxY {
		return nil, nil
	}

	seen := make(map[*Feature]struct{})
	var hits []Hit
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for _, f := range idx.cells[cellKey{x, y}] {
				if _, ok := seen[f]; ok {
					continue
				}
				seen[f] = struct{}{}

				d := f.DistanceTo(p)
				if math.IsNaN(d) || math.IsInf(d, 0) {
					return nil, &InvalidGeometryError{FeatureID: f.ID, Reason: "distance computation produced a non-finite value"}
				}
				if d <= bufferMeters {
					hits = append(hits, Hit{Feature: f, Distance: d})
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Feature.ID < hits[j].Feature.ID
	})
	return hits, nil
}
