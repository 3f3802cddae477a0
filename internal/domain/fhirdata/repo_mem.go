package fhirdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// In-memory repositories. The store of record for FHIR resources is process
// memory: imports populate it, correlation runs read it, and a restart
// starts empty. All three repos are safe for concurrent use.

// -- Patient --

type memPatientRepo struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

func NewMemPatientRepo() PatientRepository {
	return &memPatientRepo{patients: make(map[string]*Patient)}
}

func (r *memPatientRepo) Save(_ context.Context, p *Patient) error {
	if p.ID == "" {
		return fmt.Errorf("patient id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
	return nil
}

func (r *memPatientRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s not found", id)
	}
	return p, nil
}

func (r *memPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sortedLocked()
	return pagePatients(all, limit, offset), len(all), nil
}

func (r *memPatientRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Patient
	for _, p := range r.sortedLocked() {
		if matchesPatient(p, params) {
			matched = append(matched, p)
		}
	}
	return pagePatients(matched, limit, offset), len(matched), nil
}

func (r *memPatientRepo) All(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(), nil
}

func (r *memPatientRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patients), nil
}

func (r *memPatientRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients = make(map[string]*Patient)
	return nil
}

func (r *memPatientRepo) sortedLocked() []*Patient {
	out := make([]*Patient, 0, len(r.patients))
	for _, p := range r.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchesPatient(p *Patient, params map[string]string) bool {
	if gender, ok := params["gender"]; ok && !strings.EqualFold(p.Gender, gender) {
		return false
	}
	if name, ok := params["name"]; ok {
		needle := strings.ToLower(name)
		found := false
		for _, n := range p.Name {
			hay := strings.ToLower(n.Family + " " + strings.Join(n.Given, " ") + " " + n.Text)
			if strings.Contains(hay, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ident, ok := params["identifier"]; ok {
		system, value := "", ident
		if i := strings.Index(ident, "|"); i >= 0 {
			system, value = ident[:i], ident[i+1:]
		}
		found := false
		for _, id := range p.Identifier {
			if id.Value == value && (system == "" || id.System == system) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func pagePatients(all []*Patient, limit, offset int) []*Patient {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// -- Observation --

type memObservationRepo struct {
	mu           sync.RWMutex
	observations map[string]*Observation
}

func NewMemObservationRepo() ObservationRepository {
	return &memObservationRepo{observations: make(map[string]*Observation)}
}

func (r *memObservationRepo) Save(_ context.Context, o *Observation) error {
	if o.ID == "" {
		return fmt.Errorf("observation id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations[o.ID] = o
	return nil
}

func (r *memObservationRepo) GetByID(_ context.Context, id string) (*Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.observations[id]
	if !ok {
		return nil, fmt.Errorf("observation %s not found", id)
	}
	return o, nil
}

func (r *memObservationRepo) List(_ context.Context, limit, offset int) ([]*Observation, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sortedLocked(func(*Observation) bool { return true })
	return pageObservations(all, limit, offset), len(all), nil
}

func (r *memObservationRepo) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*Observation, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sortedLocked(func(o *Observation) bool { return o.PatientID() == patientID })
	return pageObservations(all, limit, offset), len(all), nil
}

func (r *memObservationRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observations), nil
}

func (r *memObservationRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = make(map[string]*Observation)
	return nil
}

func (r *memObservationRepo) sortedLocked(keep func(*Observation) bool) []*Observation {
	out := make([]*Observation, 0, len(r.observations))
	for _, o := range r.observations {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func pageObservations(all []*Observation, limit, offset int) []*Observation {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// -- Location --

type memLocationRepo struct {
	mu        sync.RWMutex
	locations map[string]*Location
}

func NewMemLocationRepo() LocationRepository {
	return &memLocationRepo{locations: make(map[string]*Location)}
}

func (r *memLocationRepo) Save(_ context.Context, l *Location) error {
	if l.ID == "" {
		return fmt.Errorf("location id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[l.ID] = l
	return nil
}

func (r *memLocationRepo) GetByID(_ context.Context, id string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locations[id]
	if !ok {
		return nil, fmt.Errorf("location %s not found", id)
	}
	return l, nil
}

func (r *memLocationRepo) List(_ context.Context, limit, offset int) ([]*Location, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Location, 0, len(r.locations))
	for _, l := range r.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (r *memLocationRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locations), nil
}

func (r *memLocationRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = make(map[string]*Location)
	return nil
}
