package fhirdata

import "context"

// PatientRepository stores patients keyed by FHIR id. Save replaces any
// existing resource with the same id (FHIR update semantics). List returns
// resources ordered by id so pagination is stable.
type PatientRepository interface {
	Save(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
	All(ctx context.Context) ([]*Patient, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// ObservationRepository stores observations keyed by FHIR id.
type ObservationRepository interface {
	Save(ctx context.Context, o *Observation) error
	GetByID(ctx context.Context, id string) (*Observation, error)
	List(ctx context.Context, limit, offset int) ([]*Observation, int, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Observation, int, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// LocationRepository stores locations keyed by FHIR id.
type LocationRepository interface {
	Save(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, id string) (*Location, error)
	List(ctx context.Context, limit, offset int) ([]*Location, int, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
