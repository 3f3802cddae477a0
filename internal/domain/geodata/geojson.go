package geodata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/geofhir/geofhir/internal/geo"
)

// ErrInvalidGeoJSON marks a document that could not be parsed as a GeoJSON
// FeatureCollection. Geometry-level violations are reported separately as
// *geo.InvalidGeometryError.
var ErrInvalidGeoJSON = errors.New("invalid geojson document")

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	ID         interface{}            `json:"id,omitempty"`
	Geometry   *geoJSONGeometry       `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// DecodeGeoJSON parses a FeatureCollection into feature records, in file
// order. Validation is wholesale: the first invalid geometry rejects the
// entire document and nothing is returned.
//
// Positions are GeoJSON order, longitude first; a third (altitude) element
// is ignored. For polygons only the exterior ring is kept. Features without
// an id member get one derived from idPrefix and their position in the
// file. A duplicate id anywhere in the document is rejected.
func DecodeGeoJSON(r io.Reader, idPrefix string) ([]FeatureRecord, error) {
	var doc geoJSONCollection
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: type %q, want FeatureCollection", ErrInvalidGeoJSON, doc.Type)
	}

	records := make([]FeatureRecord, 0, len(doc.Features))
	seen := make(map[string]struct{}, len(doc.Features))
	for i, raw := range doc.Features {
		if raw.Type != "Feature" {
			return nil, fmt.Errorf("%w: member %d has type %q, want Feature", ErrInvalidGeoJSON, i, raw.Type)
		}

		id := resolveFeatureID(raw, idPrefix, i)
		if _, dup := seen[id]; dup {
			return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: "duplicate feature id"}
		}
		seen[id] = struct{}{}

		if raw.Geometry == nil {
			return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: "feature has no geometry"}
		}
		coords, err := decodeCoordinates(id, raw.Geometry)
		if err != nil {
			return nil, err
		}

		feature, err := geo.NewFeature(id, featureCategory(raw.Properties), geo.GeometryType(raw.Geometry.Type), coords)
		if err != nil {
			return nil, err
		}
		records = append(records, FeatureRecord{
			Feature:    feature,
			Properties: raw.Properties,
			Ordinal:    i,
		})
	}
	return records, nil
}

// decodeCoordinates unpacks the geometry's coordinate array for its
// declared type. Geometry types the engine cannot index are rejected here
// before any coordinate parsing.
func decodeCoordinates(id string, g *geoJSONGeometry) ([]geo.Coordinate, error) {
	switch geo.GeometryType(g.Type) {
	case geo.GeometryPoint:
		var pos []float64
		if err := json.Unmarshal(g.Coordinates, &pos); err != nil {
			return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: "malformed point coordinates"}
		}
		c, err := toCoordinate(id, pos)
		if err != nil {
			return nil, err
		}
		return []geo.Coordinate{c}, nil

	case geo.GeometryLineString:
		var positions [][]float64
		if err := json.Unmarshal(g.Coordinates, &positions); err != nil {
			return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: "malformed linestring coordinates"}
		}
		return toCoordinates(id, positions)

	case geo.GeometryPolygon:
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: "malformed polygon coordinates"}
		}
		if len(rings) == 0 {
			return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: "polygon has no rings"}
		}
		// Interior rings (holes) are not modeled; the exterior ring decides
		// containment.
		return toCoordinates(id, rings[0])

	default:
		return nil, &geo.InvalidGeometryError{FeatureID: id, Reason: fmt.Sprintf("unsupported geometry type %q", g.Type)}
	}
}

func toCoordinates(id string, positions [][]float64) ([]geo.Coordinate, error) {
	coords := make([]geo.Coordinate, len(positions))
	for i, pos := range positions {
		c, err := toCoordinate(id, pos)
		if err != nil {
			return nil, err
		}
		coords[i] = c
	}
	return coords, nil
}

func toCoordinate(id string, pos []float64) (geo.Coordinate, error) {
	if len(pos) < 2 {
		return geo.Coordinate{}, &geo.InvalidGeometryError{FeatureID: id, Reason: "position needs longitude and latitude"}
	}
	return geo.Coordinate{Lng: pos[0], Lat: pos[1]}, nil
}

// resolveFeatureID prefers the feature's own id member, then properties.id,
// then a deterministic ordinal-based id.
func resolveFeatureID(raw geoJSONFeature, prefix string, ordinal int) string {
	if id := stringifyID(raw.ID); id != "" {
		return id
	}
	if raw.Properties != nil {
		if id := stringifyID(raw.Properties["id"]); id != "" {
			return id
		}
	}
	return fmt.Sprintf("%s-%06d", prefix, ordinal)
}

func stringifyID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	}
	return ""
}

// featureCategory reads the category from properties, falling back to the
// commonly seen "type" property. NewFeature applies the default when both
// are absent.
func featureCategory(props map[string]interface{}) string {
	if props == nil {
		return ""
	}
	if c, ok := props["category"].(string); ok && c != "" {
		return c
	}
	if c, ok := props["type"].(string); ok && c != "" {
		return c
	}
	return ""
}

// EncodeGeoJSON renders records back into a FeatureCollection document.
// Geometry comes from the validated features (polygon rings closed), while
// properties pass through as imported.
func EncodeGeoJSON(records []FeatureRecord) ([]byte, error) {
	doc := geoJSONCollection{
		Type:     "FeatureCollection",
		Features: make([]geoJSONFeature, 0, len(records)),
	}
	for _, rec := range records {
		coords, err := encodeCoordinates(rec.Feature)
		if err != nil {
			return nil, err
		}
		props := rec.Properties
		if props == nil {
			props = map[string]interface{}{}
		}
		doc.Features = append(doc.Features, geoJSONFeature{
			Type: "Feature",
			ID:   rec.Feature.ID,
			Geometry: &geoJSONGeometry{
				Type:        string(rec.Feature.Type),
				Coordinates: coords,
			},
			Properties: props,
		})
	}
	return json.Marshal(doc)
}

func encodeCoordinates(f *geo.Feature) (json.RawMessage, error) {
	switch f.Type {
	case geo.GeometryPoint:
		return json.Marshal(position(f.Coords[0]))
	case geo.GeometryLineString:
		return json.Marshal(positions(f.Coords))
	case geo.GeometryPolygon:
		return json.Marshal([][][]float64{positions(f.Coords)})
	}
	return nil, fmt.Errorf("encode feature %s: unsupported geometry type %q", f.ID, f.Type)
}

func position(c geo.Coordinate) []float64 {
	return []float64{c.Lng, c.Lat}
}

func positions(coords []geo.Coordinate) [][]float64 {
	out := make([][]float64, len(coords))
	for i, c := range coords {
		out[i] = position(c)
	}
	return out
}
