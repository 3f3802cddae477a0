package geodata

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists datasets so they survive a restart. The registry is
// the read path at runtime; the repository is written on import and read
// once at boot.
type Repository interface {
	// SaveDataset stores the dataset and its features, replacing any prior
	// version stored under the same ID.
	SaveDataset(ctx context.Context, ds *Dataset) error

	// DeleteDataset removes the dataset and its features.
	DeleteDataset(ctx context.Context, id uuid.UUID) error

	// LoadAll rebuilds every stored dataset, indexing with cellSize.
	LoadAll(ctx context.Context, cellSize float64) ([]*Dataset, error)
}
