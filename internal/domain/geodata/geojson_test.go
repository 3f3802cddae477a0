package geodata

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/geofhir/geofhir/internal/geo"
)

const sampleCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "well-7",
      "geometry": {"type": "Point", "coordinates": [-97.5, 38.2]},
      "properties": {"category": "well", "operator": "acme"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[-97.0, 38.0], [-97.0, 39.0]]},
      "properties": {"category": "pipeline"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[-97.1, 38.1], [-97.1, 38.3], [-96.9, 38.3], [-96.9, 38.1], [-97.1, 38.1]]]},
      "properties": {"type": "zone"}
    }
  ]
}`

func TestDecodeGeoJSON(t *testing.T) {
	records, err := DecodeGeoJSON(strings.NewReader(sampleCollection), "sites")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	// Explicit id wins.
	if records[0].Feature.ID != "well-7" {
		t.Errorf("expected id well-7, got %s", records[0].Feature.ID)
	}
	if records[0].Feature.Category != "well" {
		t.Errorf("expected category well, got %s", records[0].Feature.Category)
	}
	if records[0].Feature.Type != geo.GeometryPoint {
		t.Errorf("expected Point, got %s", records[0].Feature.Type)
	}
	// Longitude comes first on the wire.
	if c := records[0].Feature.Coords[0]; c.Lat != 38.2 || c.Lng != -97.5 {
		t.Errorf("expected lat 38.2 lng -97.5, got %+v", c)
	}
	if records[0].Properties["operator"] != "acme" {
		t.Errorf("expected properties to pass through, got %v", records[0].Properties)
	}

	// No id member: derived from prefix and position.
	if records[1].Feature.ID != "sites-000001" {
		t.Errorf("expected derived id sites-000001, got %s", records[1].Feature.ID)
	}

	// Category falls back to the "type" property.
	if records[2].Feature.Category != "zone" {
		t.Errorf("expected category zone, got %s", records[2].Feature.Category)
	}
	if records[2].Ordinal != 2 {
		t.Errorf("expected ordinal 2, got %d", records[2].Ordinal)
	}
}

func TestDecodeGeoJSON_DefaultCategory(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-97,38]},"properties":{}}
	]}`
	records, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Feature.Category != geo.DefaultCategory {
		t.Errorf("expected default category, got %s", records[0].Feature.Category)
	}
}

func TestDecodeGeoJSON_NumericID(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":42,"geometry":{"type":"Point","coordinates":[-97,38]},"properties":null}
	]}`
	records, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Feature.ID != "42" {
		t.Errorf("expected id 42, got %s", records[0].Feature.ID)
	}
}

func TestDecodeGeoJSON_AltitudeIgnored(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-97,38,412.5]},"properties":{}}
	]}`
	records, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := records[0].Feature.Coords[0]; c.Lat != 38 || c.Lng != -97 {
		t.Errorf("expected altitude dropped, got %+v", c)
	}
}

func TestDecodeGeoJSON_TwoVertexRing(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-97,38],[-96,38]]]},"properties":{}}
	]}`
	_, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	var geomErr *geo.InvalidGeometryError
	if !errors.As(err, &geomErr) {
		t.Fatalf("expected InvalidGeometryError, got %v", err)
	}
}

func TestDecodeGeoJSON_UnsupportedGeometry(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[]},"properties":{}}
	]}`
	_, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	var geomErr *geo.InvalidGeometryError
	if !errors.As(err, &geomErr) {
		t.Fatalf("expected InvalidGeometryError, got %v", err)
	}
}

func TestDecodeGeoJSON_MissingGeometry(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{}}
	]}`
	_, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	var geomErr *geo.InvalidGeometryError
	if !errors.As(err, &geomErr) {
		t.Fatalf("expected InvalidGeometryError, got %v", err)
	}
}

func TestDecodeGeoJSON_OutOfRangeCoordinate(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-197,38]},"properties":{}}
	]}`
	_, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	var geomErr *geo.InvalidGeometryError
	if !errors.As(err, &geomErr) {
		t.Fatalf("expected InvalidGeometryError, got %v", err)
	}
}

func TestDecodeGeoJSON_DuplicateIDs(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"f1","geometry":{"type":"Point","coordinates":[-97,38]},"properties":{}},
		{"type":"Feature","id":"f1","geometry":{"type":"Point","coordinates":[-96,38]},"properties":{}}
	]}`
	_, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	var geomErr *geo.InvalidGeometryError
	if !errors.As(err, &geomErr) {
		t.Fatalf("expected InvalidGeometryError, got %v", err)
	}
	if geomErr.FeatureID != "f1" {
		t.Errorf("expected offending id f1, got %s", geomErr.FeatureID)
	}
}

func TestDecodeGeoJSON_RejectsWholesale(t *testing.T) {
	// One good feature does not survive a bad sibling.
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"ok","geometry":{"type":"Point","coordinates":[-97,38]},"properties":{}},
		{"type":"Feature","id":"bad","geometry":{"type":"LineString","coordinates":[[-97,38]]},"properties":{}}
	]}`
	records, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	if err == nil {
		t.Fatal("expected error")
	}
	if records != nil {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestDecodeGeoJSON_NotFeatureCollection(t *testing.T) {
	doc := `{"type":"Feature","geometry":{"type":"Point","coordinates":[-97,38]},"properties":{}}`
	_, err := DecodeGeoJSON(strings.NewReader(doc), "d")
	if !errors.Is(err, ErrInvalidGeoJSON) {
		t.Errorf("expected ErrInvalidGeoJSON, got %v", err)
	}
}

func TestDecodeGeoJSON_MalformedJSON(t *testing.T) {
	_, err := DecodeGeoJSON(strings.NewReader(`{"type": "FeatureCollection", "feat`), "d")
	if !errors.Is(err, ErrInvalidGeoJSON) {
		t.Errorf("expected ErrInvalidGeoJSON, got %v", err)
	}
}

func TestEncodeGeoJSON_RoundTrip(t *testing.T) {
	records, err := DecodeGeoJSON(strings.NewReader(sampleCollection), "sites")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := EncodeGeoJSON(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(doc, []byte(`"FeatureCollection"`)) {
		t.Error("expected a FeatureCollection document")
	}

	again, err := DecodeGeoJSON(bytes.NewReader(doc), "sites")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != len(records) {
		t.Fatalf("expected %d records after round trip, got %d", len(records), len(again))
	}
	for i := range records {
		if again[i].Feature.ID != records[i].Feature.ID {
			t.Errorf("record %d: id changed to %s", i, again[i].Feature.ID)
		}
		if again[i].Feature.Type != records[i].Feature.Type {
			t.Errorf("record %d: type changed to %s", i, again[i].Feature.Type)
		}
		if again[i].Feature.Category != records[i].Feature.Category {
			t.Errorf("record %d: category changed to %s", i, again[i].Feature.Category)
		}
	}

	// The polygon ring comes back closed.
	poly := again[2].Feature
	if poly.Coords[0] != poly.Coords[len(poly.Coords)-1] {
		t.Error("expected closed polygon ring in export")
	}
}

func TestEncodeGeoJSON_Empty(t *testing.T) {
	doc, err := EncodeGeoJSON(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(doc, []byte(`"features":[]`)) {
		t.Errorf("expected empty features array, got %s", doc)
	}
}
