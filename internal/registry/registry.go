// Package registry persists schema detection results so repeated scans of the
// same resources can be compared and served without refetching.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Redliana/critical-minerals-data-tools/internal/headerdetect"
)

// Config selects and configures a backend.
//
// Kind must match a registered backend ("postgres", "sqlite", "mssql").
// DSN is passed through to the backend factory; validation is
// backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// ColumnRecord is one detected column, positioned within its detection.
type ColumnRecord struct {
	Position  int    `json:"position"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Nullable  bool   `json:"nullable"`
	MaxLength int    `json:"max_length,omitempty"`
	Precision string `json:"precision,omitempty"`
}

// DetectionRecord is one stored detection run.
type DetectionRecord struct {
	ID              int64          `json:"id,omitempty"`
	ResourceID      string         `json:"resource_id"`
	URL             string         `json:"url,omitempty"`
	Success         bool           `json:"success"`
	Format          string         `json:"format,omitempty"`
	Delimiter       string         `json:"delimiter,omitempty"`
	PartialDownload bool           `json:"partial_download"`
	BytesFetched    int64          `json:"bytes_fetched"`
	ColumnCount     int            `json:"column_count"`
	Error           string         `json:"error,omitempty"`
	DetectedAt      time.Time      `json:"detected_at"`
	Columns         []ColumnRecord `json:"columns,omitempty"`
}

// FromResult converts a detection result into a storable record. Sheet
// results flatten to the first sheet's columns; DetectedAt is stamped by the
// backend when zero.
func FromResult(url string, res headerdetect.DetectionResult) DetectionRecord {
	rec := DetectionRecord{
		ResourceID:      res.ResourceID,
		URL:             url,
		Success:         res.Success,
		Format:          res.Format,
		Delimiter:       res.Delimiter,
		PartialDownload: res.PartialDownload,
		BytesFetched:    int64(res.BytesFetched),
		ColumnCount:     res.ColumnCount,
		Error:           res.Error,
		DetectedAt:      time.Now().UTC(),
	}

	cols := res.ColumnTypes
	if len(cols) == 0 && len(res.SheetNames) > 0 {
		first := res.Sheets[res.SheetNames[0]]
		cols = first.ColumnTypes
		if rec.ColumnCount == 0 {
			rec.ColumnCount = first.ColumnCount
		}
	}
	for i, c := range cols {
		rec.Columns = append(rec.Columns, ColumnRecord{
			Position:  i,
			Name:      c.Name,
			Type:      string(c.Type),
			Nullable:  c.Nullable,
			MaxLength: c.MaxLength,
			Precision: c.Precision,
		})
	}
	return rec
}

// Repository stores and retrieves detection records.
//
// Each backend implements these semantics in its own idiomatic way (Postgres
// RETURNING, SQLite last_insert_rowid, MSSQL OUTPUT INSERTED).
type Repository interface {
	// Close releases backend resources. Treat as call-once.
	Close()

	// EnsureSchema creates the detections and detection_columns tables when
	// they do not exist. Idempotent.
	EnsureSchema(ctx context.Context) error

	// SaveDetection stores a record with its columns and returns the new id.
	SaveDetection(ctx context.Context, rec DetectionRecord) (int64, error)

	// LatestDetection returns the most recent record for a resource id, with
	// columns loaded. ok is false when none exists.
	LatestDetection(ctx context.Context, resourceID string) (rec DetectionRecord, ok bool, err error)

	// ListDetections returns recent records, newest first, without columns.
	ListDetections(ctx context.Context, limit, offset int) ([]DetectionRecord, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind. Called from backend
// package init functions.
//
// Panics on empty kind, nil factory, or duplicate registration; ambiguous
// backend selection should fail fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("registry: Register called with empty kind")
	}
	if f == nil {
		panic("registry: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("registry: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Repository using the registered backend factory.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("registry: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("registry: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
