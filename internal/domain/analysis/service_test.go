package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geofhir/geofhir/internal/domain/geodata"
	"github.com/geofhir/geofhir/internal/geo"
)

type stubDatasets struct {
	ds *geodata.Dataset
}

func (s stubDatasets) Dataset(id uuid.UUID) (*geodata.Dataset, bool) {
	if s.ds != nil && s.ds.ID == id {
		return s.ds, true
	}
	return nil, false
}

func (s stubDatasets) DatasetByName(name string) (*geodata.Dataset, bool) {
	if s.ds != nil && s.ds.Name == name {
		return s.ds, true
	}
	return nil, false
}

type stubPatients struct {
	points []PatientPoint
	err    error
}

func (s stubPatients) PatientPoints(context.Context) ([]PatientPoint, error) {
	return s.points, s.err
}

func newTestService(t *testing.T) (*Service, *geodata.Dataset) {
	t.Helper()
	ds := buildDataset(t, buildFeature(t, "well-1", "well", geo.GeometryPoint, []geo.Coordinate{{Lat: 38, Lng: -97}}))
	svc := NewService(
		NewEngine(2, zerolog.Nop()),
		stubDatasets{ds: ds},
		stubPatients{points: []PatientPoint{at("p1", 38, -97)}},
		zerolog.Nop(),
	)
	return svc, ds
}

func TestService_Run_ByID(t *testing.T) {
	svc, ds := newTestService(t)

	report, err := svc.Run(context.Background(), ds.ID.String(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.MatchedPatients != 1 {
		t.Errorf("expected 1 matched patient, got %d", report.MatchedPatients)
	}

	latest, ok := svc.Latest(ds.ID)
	if !ok {
		t.Fatal("expected latest report to be retained")
	}
	if latest != report {
		t.Error("expected Latest to return the retained report")
	}
}

func TestService_Run_ByName(t *testing.T) {
	svc, ds := newTestService(t)

	report, err := svc.Run(context.Background(), ds.Name, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.DatasetID != ds.ID {
		t.Errorf("expected dataset %s, got %s", ds.ID, report.DatasetID)
	}
}

func TestService_Run_UnknownDataset(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Run(context.Background(), uuid.NewString(), 1000)
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestService_Run_EmptyRef(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Run(context.Background(), "", 1000)
	var paramErr *InvalidParameterError
	if !errors.As(err, &paramErr) {
		t.Errorf("expected InvalidParameterError, got %v", err)
	}
}

func TestService_Run_InvalidBufferRejected(t *testing.T) {
	svc, ds := newTestService(t)

	_, err := svc.Run(context.Background(), ds.Name, -100)
	var paramErr *InvalidParameterError
	if !errors.As(err, &paramErr) {
		t.Fatalf("expected InvalidParameterError, got %v", err)
	}
	if _, ok := svc.Latest(ds.ID); ok {
		t.Error("expected no report retained after a rejected run")
	}
}

func TestService_Run_SupersedesLatest(t *testing.T) {
	svc, ds := newTestService(t)

	if _, err := svc.Run(context.Background(), ds.Name, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Run(context.Background(), ds.Name, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, ok := svc.Latest(ds.ID)
	if !ok {
		t.Fatal("expected a retained report")
	}
	if latest.BufferMeters != 2000 || latest != second {
		t.Error("expected the second run to supersede the first")
	}
}

func TestService_Run_PatientSourceError(t *testing.T) {
	ds := buildDataset(t, buildFeature(t, "well-1", "well", geo.GeometryPoint, []geo.Coordinate{{Lat: 38, Lng: -97}}))
	srcErr := errors.New("store unavailable")
	svc := NewService(NewEngine(1, zerolog.Nop()), stubDatasets{ds: ds}, stubPatients{err: srcErr}, zerolog.Nop())

	_, err := svc.Run(context.Background(), ds.Name, 1000)
	if !errors.Is(err, srcErr) {
		t.Errorf("expected patient source error to propagate, got %v", err)
	}
}

func TestService_Latest_Missing(t *testing.T) {
	svc, _ := newTestService(t)
	if _, ok := svc.Latest(uuid.New()); ok {
		t.Error("expected no report for unknown dataset")
	}
}
