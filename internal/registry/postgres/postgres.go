// Package postgres is the Postgres registry backend.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Redliana/critical-minerals-data-tools/internal/registry"
)

// Repo implements registry.Repository for Postgres using a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	registry.Register("postgres", New)
}

func New(ctx context.Context, cfg registry.Config) (registry.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id BIGSERIAL PRIMARY KEY,
			resource_id TEXT NOT NULL,
			url TEXT,
			success BOOLEAN NOT NULL,
			format TEXT,
			delimiter TEXT,
			partial_download BOOLEAN NOT NULL,
			bytes_fetched BIGINT NOT NULL,
			column_count INT NOT NULL,
			error TEXT,
			detected_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_resource
			ON detections (resource_id, id)`,
		`CREATE TABLE IF NOT EXISTS detection_columns (
			detection_id BIGINT NOT NULL REFERENCES detections (id),
			position INT NOT NULL,
			name TEXT NOT NULL,
			col_type TEXT NOT NULL,
			nullable BOOLEAN NOT NULL,
			max_length INT,
			precision_class TEXT,
			PRIMARY KEY (detection_id, position)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) SaveDetection(ctx context.Context, rec registry.DetectionRecord) (int64, error) {
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now().UTC()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO detections
			(resource_id, url, success, format, delimiter, partial_download,
			 bytes_fetched, column_count, error, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.ResourceID, rec.URL, rec.Success, rec.Format, rec.Delimiter,
		rec.PartialDownload, rec.BytesFetched, rec.ColumnCount, rec.Error,
		rec.DetectedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert detection: %w", err)
	}

	for _, c := range rec.Columns {
		if _, err := tx.Exec(ctx,
			`INSERT INTO detection_columns
				(detection_id, position, name, col_type, nullable, max_length, precision_class)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, c.Position, c.Name, c.Type, c.Nullable, c.MaxLength, c.Precision,
		); err != nil {
			return 0, fmt.Errorf("postgres: insert column %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return id, nil
}

func (r *Repo) LatestDetection(ctx context.Context, resourceID string) (registry.DetectionRecord, bool, error) {
	var rec registry.DetectionRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, resource_id, url, success, format, delimiter,
			partial_download, bytes_fetched, column_count, error, detected_at
		 FROM detections WHERE resource_id = $1 ORDER BY id DESC LIMIT 1`,
		resourceID,
	).Scan(&rec.ID, &rec.ResourceID, &rec.URL, &rec.Success, &rec.Format,
		&rec.Delimiter, &rec.PartialDownload, &rec.BytesFetched,
		&rec.ColumnCount, &rec.Error, &rec.DetectedAt)
	if err == pgx.ErrNoRows {
		return registry.DetectionRecord{}, false, nil
	}
	if err != nil {
		return registry.DetectionRecord{}, false, fmt.Errorf("postgres: latest detection: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT position, name, col_type, nullable, max_length, precision_class
		 FROM detection_columns WHERE detection_id = $1 ORDER BY position`,
		rec.ID,
	)
	if err != nil {
		return registry.DetectionRecord{}, false, fmt.Errorf("postgres: load columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c registry.ColumnRecord
		if err := rows.Scan(&c.Position, &c.Name, &c.Type, &c.Nullable, &c.MaxLength, &c.Precision); err != nil {
			return registry.DetectionRecord{}, false, fmt.Errorf("postgres: scan column: %w", err)
		}
		rec.Columns = append(rec.Columns, c)
	}
	return rec, true, rows.Err()
}

func (r *Repo) ListDetections(ctx context.Context, limit, offset int) ([]registry.DetectionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, resource_id, url, success, format, delimiter,
			partial_download, bytes_fetched, column_count, error, detected_at
		 FROM detections ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list detections: %w", err)
	}
	defer rows.Close()

	var out []registry.DetectionRecord
	for rows.Next() {
		var rec registry.DetectionRecord
		if err := rows.Scan(&rec.ID, &rec.ResourceID, &rec.URL, &rec.Success,
			&rec.Format, &rec.Delimiter, &rec.PartialDownload, &rec.BytesFetched,
			&rec.ColumnCount, &rec.Error, &rec.DetectedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan detection: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
