// Package geo implements the spatial primitives the correlation engine is
// built on: WGS84 coordinates, haversine distances, point-to-segment and
// point-in-polygon tests, and a uniform grid index over feature sets.
//
// All distances are in meters. The segment and polygon-edge computations use
// a local planar approximation around the query point, which holds up well
// at the regional scales (meters to a few hundred kilometers) proximity
// buffers work at. Geodesic edge cases such as antimeridian-crossing
// features are out of scope.
package geo

import "math"

// earthRadiusMeters is the IUGG mean Earth radius.
const earthRadiusMeters = 6371008.8

// metersPerDegreeLat approximates one degree of latitude. Longitude degrees
// shrink by cos(lat).
const metersPerDegreeLat = 111320.0

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is a usable position: latitude in
// [-90, 90], longitude in [-180, 180], neither NaN nor infinite.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula. It is symmetric and zero for
// identical coordinates.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceToSegment returns the minimum distance in meters from p to the
// segment ab. The segment endpoints are projected onto a plane centered on
// p, the projection parameter is clamped to the segment, and the distance
// to the nearest point is measured with the haversine formula.
func DistanceToSegment(p, a, b Coordinate) float64 {
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	ax := (a.Lng - p.Lng) * metersPerDegreeLat * cosLat
	ay := (a.Lat - p.Lat) * metersPerDegreeLat
	bx := (b.Lng - p.Lng) * metersPerDegreeLat * cosLat
	by := (b.Lat - p.Lat) * metersPerDegreeLat

	dx := bx - ax
	dy := by - ay
	segLen2 := dx*dx + dy*dy
	if segLen2 == 0 {
		return Distance(p, a)
	}

	// p sits at the projection origin, so the parameter of its foot on the
	// segment is -(a . d) / |d|^2.
	t := -(ax*dx + ay*dy) / segLen2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	nearest := Coordinate{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
	return Distance(p, nearest)
}

// PointInPolygon reports whether p falls inside the ring using the ray
// casting rule. The ring may be open or closed; the edge back to the first
// vertex is always considered. Rings with fewer than three vertices contain
// nothing.
func PointInPolygon(p Coordinate, ring []Coordinate) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			x := vi.Lng + (p.Lat-vi.Lat)/(vj.Lat-vi.Lat)*(vj.Lng-vi.Lng)
			if p.Lng < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether c falls inside the box, borders included.
func (b BBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MinLng: math.Min(b.MinLng, o.MinLng),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MaxLng: math.Max(b.MaxLng, o.MaxLng),
	}
}

// Expand grows the box by latPad degrees of latitude and lngPad degrees of
// longitude on every side.
func (b BBox) Expand(latPad, lngPad float64) BBox {
	return BBox{
		MinLat: b.MinLat - latPad,
		MinLng: b.MinLng - lngPad,
		MaxLat: b.MaxLat + latPad,
		MaxLng: b.MaxLng + lngPad,
	}
}

// ExpandByMeters grows the box by meters on every side. The conversion to
// degrees uses the same conservative factor as index queries, so the grown
// box always covers everything within that distance of the original.
func (b BBox) ExpandByMeters(meters float64) BBox {
	if meters <= 0 {
		return b
	}
	latPad := meters / minMetersPerDegree
	absLat := math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat)) + latPad
	if absLat > 89.5 {
		absLat = 89.5
	}
	lngPad := meters / (minMetersPerDegree * math.Cos(absLat*math.Pi/180))
	return b.Expand(latPad, lngPad)
}

func computeBBox(coords []Coordinate) BBox {
	b := BBox{
		MinLat: coords[0].Lat, MinLng: coords[0].Lng,
		MaxLat: coords[0].Lat, MaxLng: coords[0].Lng,
	}
	for _, c := range coords[1:] {
		if c.Lat < b.MinLat {
			b.MinLat = c.Lat
		}
		if c.Lat > b.MaxLat {
			b.MaxLat = c.Lat
		}
		if c.Lng < b.MinLng {
			b.MinLng = c.Lng
		}
		if c.Lng > b.MaxLng {
			b.MaxLng = c.Lng
		}
	}
	return b
}
