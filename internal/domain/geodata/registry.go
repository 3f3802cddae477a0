package geodata

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry holds the live datasets the correlation engine resolves against.
// Replacement is copy-on-write: a new dataset version is built completely
// before the pointer swap, so readers never observe a partially loaded
// dataset and in-flight runs keep the version they started with.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Dataset
	byName map[string]*Dataset
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*Dataset),
		byName: make(map[string]*Dataset),
	}
}

// Get returns the dataset with the given ID.
func (r *Registry) Get(id uuid.UUID) (*Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.byID[id]
	return ds, ok
}

// GetByName returns the current version of the named dataset.
func (r *Registry) GetByName(name string) (*Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.byName[name]
	return ds, ok
}

// List returns all datasets sorted by name.
func (r *Registry) List() []*Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Dataset, 0, len(r.byName))
	for _, ds := range r.byName {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NextIdentity returns the identity a new import of name should carry: the
// existing dataset's ID with its version bumped, or a fresh ID at version
// one for an unknown name.
func (r *Registry) NextIdentity(name string) (uuid.UUID, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ds, ok := r.byName[name]; ok {
		return ds.ID, ds.Version + 1
	}
	return uuid.New(), 1
}

// Replace swaps ds in as the current version of its name, superseding any
// prior version.
func (r *Registry) Replace(ds *Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byName[ds.Name]; ok {
		delete(r.byID, old.ID)
	}
	r.byName[ds.Name] = ds
	r.byID[ds.ID] = ds
}

// Remove drops the dataset with the given ID and reports whether it was
// present.
func (r *Registry) Remove(id uuid.UUID) (*Dataset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	delete(r.byName, ds.Name)
	return ds, true
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
