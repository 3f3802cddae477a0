// Package fhirdata holds the FHIR resources the correlation pipeline works
// on: Patient, Observation and Location, ingested from FHIR R4 JSON and
// kept in an in-memory store. Patients carry the optional geolocation
// address extension the geocoder reads.
package fhirdata

import (
	"github.com/geofhir/geofhir/internal/platform/fhir"
)

// Resource type names this store accepts.
const (
	TypePatient     = "Patient"
	TypeObservation = "Observation"
	TypeLocation    = "Location"
	TypeBundle      = "Bundle"
)

// Patient is the subset of FHIR R4 Patient this service reads. The struct
// is shaped like the wire resource, so ingested JSON round-trips without a
// mapping layer.
type Patient struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Identifier   []fhir.Identifier `json:"identifier,omitempty"`
	Active       *bool             `json:"active,omitempty"`
	Name         []fhir.HumanName  `json:"name,omitempty"`
	Gender       string            `json:"gender,omitempty"`
	BirthDate    string            `json:"birthDate,omitempty"`
	Address      []fhir.Address    `json:"address,omitempty"`
}

// DisplayName returns the first name entry formatted family-first, or the
// name text when structured parts are absent.
func (p *Patient) DisplayName() string {
	if len(p.Name) == 0 {
		return ""
	}
	n := p.Name[0]
	if n.Family == "" && len(n.Given) == 0 {
		return n.Text
	}
	out := n.Family
	for _, g := range n.Given {
		if out != "" {
			out += " "
		}
		out += g
	}
	return out
}

// Observation is the subset of FHIR R4 Observation this service reads.
type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id"`
	Status            string                 `json:"status,omitempty"`
	Category          []fhir.CodeableConcept `json:"category,omitempty"`
	Code              *fhir.CodeableConcept  `json:"code,omitempty"`
	Subject           *fhir.Reference        `json:"subject,omitempty"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	ValueQuantity     *fhir.Quantity         `json:"valueQuantity,omitempty"`
	ValueString       string                 `json:"valueString,omitempty"`
}

// PatientID resolves the subject reference to a patient id, or "" when the
// observation points elsewhere.
func (o *Observation) PatientID() string {
	if o.Subject == nil {
		return ""
	}
	rt, id := fhir.ParseReference(o.Subject.Reference)
	if rt != TypePatient {
		return ""
	}
	return id
}

// Location is the subset of FHIR R4 Location this service reads.
type Location struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id"`
	Status       string                 `json:"status,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Type         []fhir.CodeableConcept `json:"type,omitempty"`
	Address      *fhir.Address          `json:"address,omitempty"`
	Position     *Position              `json:"position,omitempty"`
}

// Position is the Location.position backbone element. Note the GeoJSON-like
// longitude-first field order on the wire.
type Position struct {
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}
