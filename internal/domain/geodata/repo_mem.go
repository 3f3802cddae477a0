package geodata

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memRepo is the DB-less repository used when no DATABASE_URL is
// configured. Datasets persist for the lifetime of the process only.
type memRepo struct {
	mu       sync.RWMutex
	datasets map[uuid.UUID]*Dataset
}

// NewMemRepo creates an in-memory dataset repository.
func NewMemRepo() Repository {
	return &memRepo{datasets: make(map[uuid.UUID]*Dataset)}
}

func (r *memRepo) SaveDataset(_ context.Context, ds *Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[ds.ID] = ds
	return nil
}

func (r *memRepo) DeleteDataset(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.datasets, id)
	return nil
}

func (r *memRepo) LoadAll(_ context.Context, _ float64) ([]*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		out = append(out, ds)
	}
	return out, nil
}
