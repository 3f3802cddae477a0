package fhirdata

import (
	"github.com/geofhir/geofhir/internal/geo"
	"github.com/geofhir/geofhir/internal/platform/fhir"
)

// GeolocationExtensionURL is the FHIR extension that carries a latitude and
// longitude on an address.
const GeolocationExtensionURL = "http://hl7.org/fhir/StructureDefinition/geolocation"

// Coordinate extracts the patient's position from the first address that
// carries the geolocation extension. The second return is false when no
// address has the extension, or when the first one that does is malformed
// (missing latitude or longitude sub-extensions) or out of range. A patient
// without a coordinate is skipped by the correlation engine, never an
// error.
func (p *Patient) Coordinate() (geo.Coordinate, bool) {
	for _, addr := range p.Address {
		ext, ok := findGeolocation(addr.Extension)
		if !ok {
			continue
		}
		// The first address with the extension decides; a broken one does
		// not fall through to later addresses.
		return readGeolocation(ext)
	}
	return geo.Coordinate{}, false
}

func findGeolocation(exts []fhir.Extension) (fhir.Extension, bool) {
	for _, ext := range exts {
		if ext.URL == GeolocationExtensionURL {
			return ext, true
		}
	}
	return fhir.Extension{}, false
}

func readGeolocation(ext fhir.Extension) (geo.Coordinate, bool) {
	var lat, lng *float64
	for _, sub := range ext.Extension {
		switch sub.URL {
		case "latitude":
			lat = sub.ValueDecimal
		case "longitude":
			lng = sub.ValueDecimal
		}
	}
	if lat == nil || lng == nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Lat: *lat, Lng: *lng}
	if !c.Valid() {
		return geo.Coordinate{}, false
	}
	return c, true
}
