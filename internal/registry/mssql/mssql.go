// Package mssql is the Microsoft SQL Server registry backend.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/Redliana/critical-minerals-data-tools/internal/registry"
)

// Repo implements registry.Repository for SQL Server via database/sql and the
// "sqlserver" driver.
type Repo struct {
	db *sql.DB
}

func init() {
	registry.Register("mssql", New)
}

func New(ctx context.Context, cfg registry.Config) (registry.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
		`IF OBJECT_ID(N'detections', N'U') IS NULL
		CREATE TABLE detections (
			id BIGINT IDENTITY(1,1) PRIMARY KEY,
			resource_id NVARCHAR(256) NOT NULL,
			url NVARCHAR(2048),
			success BIT NOT NULL,
			format NVARCHAR(32),
			delimiter NVARCHAR(8),
			partial_download BIT NOT NULL,
			bytes_fetched BIGINT NOT NULL,
			column_count INT NOT NULL,
			error NVARCHAR(MAX),
			detected_at DATETIMEOFFSET NOT NULL
		)`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_detections_resource')
		CREATE INDEX idx_detections_resource ON detections (resource_id, id)`,
		`IF OBJECT_ID(N'detection_columns', N'U') IS NULL
		CREATE TABLE detection_columns (
			detection_id BIGINT NOT NULL REFERENCES detections (id),
			position INT NOT NULL,
			name NVARCHAR(512) NOT NULL,
			col_type NVARCHAR(32) NOT NULL,
			nullable BIT NOT NULL,
			max_length INT,
			precision_class NVARCHAR(32),
			PRIMARY KEY (detection_id, position)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("mssql: ensure schema: %w", err)
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
		return 0, fmt.Errorf("mssql: begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO detections
			(resource_id, url, success, format, delimiter, partial_download,
			 bytes_fetched, column_count, error, detected_at)
		 OUTPUT INSERTED.id
		 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10)`,
		rec.ResourceID, rec.URL, rec.Success, rec.Format, rec.Delimiter,
		rec.PartialDownload, rec.BytesFetched, rec.ColumnCount, rec.Error,
		rec.DetectedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("mssql: insert detection: %w", err)
	}

	for _, c := range rec.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO detection_columns
				(detection_id, position, name, col_type, nullable, max_length, precision_class)
			 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)`,
			id, c.Position, c.Name, c.Type, c.Nullable, c.MaxLength, c.Precision,
		); err != nil {
			return 0, fmt.Errorf("mssql: insert column %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return id, nil
}

func (r *Repo) LatestDetection(ctx context.Context, resourceID string) (registry.DetectionRecord, bool, error) {
	var rec registry.DetectionRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT TOP 1 id, resource_id, url, success, format, delimiter,
			partial_download, bytes_fetched, column_count, error, detected_at
		 FROM detections WHERE resource_id = @p1 ORDER BY id DESC`,
		resourceID,
	).Scan(&rec.ID, &rec.ResourceID, &rec.URL, &rec.Success, &rec.Format,
		&rec.Delimiter, &rec.PartialDownload, &rec.BytesFetched,
		&rec.ColumnCount, &rec.Error, &rec.DetectedAt)
	if err == sql.ErrNoRows {
		return registry.DetectionRecord{}, false, nil
	}
	if err != nil {
		return registry.DetectionRecord{}, false, fmt.Errorf("mssql: latest detection: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT position, name, col_type, nullable, max_length, precision_class
		 FROM detection_columns WHERE detection_id = @p1 ORDER BY position`,
		rec.ID,
	)
	if err != nil {
		return registry.DetectionRecord{}, false, fmt.Errorf("mssql: load columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c registry.ColumnRecord
		if err := rows.Scan(&c.Position, &c.Name, &c.Type, &c.Nullable, &c.MaxLength, &c.Precision); err != nil {
			return registry.DetectionRecord{}, false, fmt.Errorf("mssql: scan column: %w", err)
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
		 FROM detections ORDER BY id DESC
		 OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("mssql: list detections: %w", err)
	}
	defer rows.Close()

	var out []registry.DetectionRecord
	for rows.Next() {
		var rec registry.DetectionRecord
		if err := rows.Scan(&rec.ID, &rec.ResourceID, &rec.URL, &rec.Success,
			&rec.Format, &rec.Delimiter, &rec.PartialDownload, &rec.BytesFetched,
			&rec.ColumnCount, &rec.Error, &rec.DetectedAt); err != nil {
			return nil, fmt.Errorf("mssql: scan detection: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
