package geodata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geofhir/geofhir/internal/geo"
	"github.com/geofhir/geofhir/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgRepo struct{ pool *pgxpool.Pool }

// NewPGRepo creates a Postgres-backed dataset repository.
func NewPGRepo(pool *pgxpool.Pool) Repository { return &pgRepo{pool: pool} }

func (r *pgRepo) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *pgRepo) SaveDataset(ctx context.Context, ds *Dataset) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// A restored dataset can hold the name under a different ID; clear it
	// before the upsert so the name stays unique.
	if _, err := tx.Exec(ctx,
		`DELETE FROM geo_datasets WHERE name = $1 AND id <> $2`, ds.Name, ds.ID); err != nil {
		return fmt.Errorf("clear stale dataset: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO geo_datasets (id, name, description, source_file, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, description = EXCLUDED.description,
		     source_file = EXCLUDED.source_file, version = EXCLUDED.version,
		     created_at = EXCLUDED.created_at`,
		ds.ID, ds.Name, ds.Description, ds.SourceFile, ds.Version, ds.CreatedAt); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM geo_features WHERE dataset_id = $1`, ds.ID); err != nil {
		return fmt.Errorf("clear dataset features: %w", err)
	}

	batch := &pgx.Batch{}
	for _, rec := range ds.Records() {
		coords, err := json.Marshal(positions(rec.Feature.Coords))
		if err != nil {
			return fmt.Errorf("marshal coordinates for %s: %w", rec.Feature.ID, err)
		}
		var props []byte
		if rec.Properties != nil {
			if props, err = json.Marshal(rec.Properties); err != nil {
				return fmt.Errorf("marshal properties for %s: %w", rec.Feature.ID, err)
			}
		}
		batch.Queue(
			`INSERT INTO geo_features (dataset_id, ordinal, feature_id, category, geometry_type, coordinates, properties)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ds.ID, rec.Ordinal, rec.Feature.ID, rec.Feature.Category,
			string(rec.Feature.Type), coords, props)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save dataset features: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *pgRepo) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM geo_datasets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return nil
}

func (r *pgRepo) LoadAll(ctx context.Context, cellSize float64) ([]*Dataset, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, COALESCE(description,''), COALESCE(source_file,''), version, created_at
		 FROM geo_datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load datasets: %w", err)
	}
	defer rows.Close()

	var headers []*Dataset
	for rows.Next() {
		h := &Dataset{}
		if err := rows.Scan(&h.ID, &h.Name, &h.Description, &h.SourceFile, &h.Version, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}

	datasets := make([]*Dataset, 0, len(headers))
	for _, h := range headers {
		records, err := r.loadFeatures(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		ds := NewDataset(h.ID, h.Name, h.Version, records, cellSize)
		ds.Description = h.Description
		ds.SourceFile = h.SourceFile
		ds.CreatedAt = h.CreatedAt
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (r *pgRepo) loadFeatures(ctx context.Context, datasetID uuid.UUID) ([]FeatureRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT ordinal, feature_id, category, geometry_type, coordinates, properties
		 FROM geo_features WHERE dataset_id = $1 ORDER BY ordinal`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load features for %s: %w", datasetID, err)
	}
	defer rows.Close()

	var records []FeatureRecord
	for rows.Next() {
		var (
			ordinal    int
			featureID  string
			category   string
			typ        string
			coordsJSON []byte
			propsJSON  []byte
		)
		if err := rows.Scan(&ordinal, &featureID, &category, &typ, &coordsJSON, &propsJSON); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}

		var stored [][]float64
		if err := json.Unmarshal(coordsJSON, &stored); err != nil {
			return nil, fmt.Errorf("decode coordinates for %s: %w", featureID, err)
		}
		coords, err := toCoordinates(featureID, stored)
		if err != nil {
			return nil, err
		}

		var props map[string]interface{}
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &props); err != nil {
				return nil, fmt.Errorf("decode properties for %s: %w", featureID, err)
			}
		}

		feature, err := geo.NewFeature(featureID, category, geo.GeometryType(typ), coords)
		if err != nil {
			return nil, fmt.Errorf("rebuild feature %s: %w", featureID, err)
		}
		records = append(records, FeatureRecord{Feature: feature, Properties: props, Ordinal: ordinal})
	}
	return records, rows.Err()
}
