// Package sqlite is the SQLite registry backend, intended for local runs and
// tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Redliana/critical-minerals-data-tools/internal/registry"
)

// Repo implements registry.Repository for SQLite.
//
// SQLite has no timezone-aware timestamp type; detected_at is stored as an
// RFC3339Nano string for reliable round-trip behavior and easy debugging.
type Repo struct {
	db *sql.DB
}

func init() {
	registry.Register("sqlite", New)
}

func New(ctx context.Context, cfg registry.Config) (registry.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id TEXT NOT NULL,
			url TEXT,
			success INTEGER NOT NULL,
			format TEXT,
			delimiter TEXT,
			partial_download INTEGER NOT NULL,
			bytes_fetched INTEGER NOT NULL,
			column_count INTEGER NOT NULL,
			error TEXT,
			detected_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_resource
			ON detections (resource_id, id)`,
		`CREATE TABLE IF NOT EXISTS detection_columns (
			detection_id INTEGER NOT NULL REFERENCES detections (id),
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			col_type TEXT NOT NULL,
			nullable INTEGER NOT NULL,
			max_length INTEGER,
			precision_class TEXT,
			PRIMARY KEY (detection_id, position)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) SaveDetection(ctx context.Context, rec registry.DetectionRecord) (int64, error) {
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO detections
			(resource_id, url, success, format, delimiter, partial_download,
			 bytes_fetched, column_count, error, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ResourceID, rec.URL, rec.Success, rec.Format, rec.Delimiter,
		rec.PartialDownload, rec.BytesFetched, rec.ColumnCount, rec.Error,
		rec.DetectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert detection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: last insert id: %w", err)
	}

	for _, c := range rec.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO detection_columns
				(detection_id, position, name, col_type, nullable, max_length, precision_class)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, c.Position, c.Name, c.Type, c.Nullable, c.MaxLength, c.Precision,
		); err != nil {
			return 0, fmt.Errorf("sqlite: insert column %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return id, nil
}

func (r *Repo) LatestDetection(ctx context.Context, resourceID string) (registry.DetectionRecord, bool, error) {
	var rec registry.DetectionRecord
	var detectedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, resource_id, url, success, format, delimiter,
			partial_download, bytes_fetched, column_count, error, detected_at
		 FROM detections WHERE resource_id = ? ORDER BY id DESC LIMIT 1`,
		resourceID,
	).Scan(&rec.ID, &rec.ResourceID, &rec.URL, &rec.Success, &rec.Format,
		&rec.Delimiter, &rec.PartialDownload, &rec.BytesFetched,
		&rec.ColumnCount, &rec.Error, &detectedAt)
	if err == sql.ErrNoRows {
		return registry.DetectionRecord{}, false, nil
	}
	if err != nil {
		return registry.DetectionRecord{}, false, fmt.Errorf("sqlite: latest detection: %w", err)
	}
	rec.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)

	rows, err := r.db.QueryContext(ctx,
		`SELECT position, name, col_type, nullable, max_length, precision_class
		 FROM detection_columns WHERE detection_id = ? ORDER BY position`,
		rec.ID,
	)
	if err != nil {
		return registry.DetectionRecord{}, false, fmt.Errorf("sqlite: load columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c registry.ColumnRecord
		if err := rows.Scan(&c.Position, &c.Name, &c.Type, &c.Nullable, &c.MaxLength, &c.Precision); err != nil {
			return registry.DetectionRecord{}, false, fmt.Errorf("sqlite: scan column: %w", err)
		}
		rec.Columns = append(rec.Columns, c)
	}
	return rec, true, rows.Err()
}

func (r *Repo) ListDetections(ctx context.Context, limit, offset int) ([]registry.DetectionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, resource_id, url, success, format, delimiter,
			partial_download, bytes_fetched, column_count, error, detected_at
		 FROM detections ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list detections: %w", err)
	}
	defer rows.Close()

	var out []registry.DetectionRecord
	for rows.Next() {
		var rec registry.DetectionRecord
		var detectedAt string
		if err := rows.Scan(&rec.ID, &rec.ResourceID, &rec.URL, &rec.Success,
			&rec.Format, &rec.Delimiter, &rec.PartialDownload, &rec.BytesFetched,
			&rec.ColumnCount, &rec.Error, &detectedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan detection: %w", err)
		}
		rec.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
