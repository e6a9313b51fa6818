package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Redliana/critical-minerals-data-tools/internal/registry"
)

func newRepo(t *testing.T) registry.Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := registry.Open(ctx, registry.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	t.Cleanup(repo.Close)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() err=%v", err)
	}
	// Idempotent on second call.
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() second call err=%v", err)
	}
	return repo
}

func sampleRecord(resourceID string) registry.DetectionRecord {
	return registry.DetectionRecord{
		ResourceID:      resourceID,
		URL:             "https://example.test/" + resourceID + "/download",
		Success:         true,
		Format:          "CSV",
		Delimiter:       ",",
		PartialDownload: true,
		BytesFetched:    8192,
		ColumnCount:     2,
		DetectedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Columns: []registry.ColumnRecord{
			{Position: 0, Name: "site", Type: "string", MaxLength: 12},
			{Position: 1, Name: "grade", Type: "float", Nullable: true, Precision: "double"},
		},
	}
}

func TestSaveAndLatestDetection(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	ctx := context.Background()

	id, err := repo.SaveDetection(ctx, sampleRecord("r1"))
	if err != nil {
		t.Fatalf("SaveDetection() err=%v", err)
	}
	if id == 0 {
		t.Fatal("SaveDetection() id=0")
	}

	// A second save for the same resource becomes the latest.
	second := sampleRecord("r1")
	second.BytesFetched = 65536
	second.DetectedAt = time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	if _, err := repo.SaveDetection(ctx, second); err != nil {
		t.Fatalf("SaveDetection() second err=%v", err)
	}

	got, ok, err := repo.LatestDetection(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("LatestDetection() ok=%v err=%v", ok, err)
	}
	if got.BytesFetched != 65536 {
		t.Errorf("BytesFetched = %d, want the newer record", got.BytesFetched)
	}
	if !got.DetectedAt.Equal(second.DetectedAt) {
		t.Errorf("DetectedAt = %v, want %v", got.DetectedAt, second.DetectedAt)
	}
	if len(got.Columns) != 2 {
		t.Fatalf("columns = %+v", got.Columns)
	}
	if got.Columns[1].Name != "grade" || !got.Columns[1].Nullable || got.Columns[1].Precision != "double" {
		t.Errorf("columns[1] = %+v", got.Columns[1])
	}
}

func TestLatestDetectionMissing(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	_, ok, err := repo.LatestDetection(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LatestDetection() err=%v", err)
	}
	if ok {
		t.Fatal("LatestDetection() ok=true for unknown resource")
	}
}

func TestListDetectionsNewestFirst(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := repo.SaveDetection(ctx, sampleRecord(id)); err != nil {
			t.Fatalf("SaveDetection(%s) err=%v", id, err)
		}
	}

	got, err := repo.ListDetections(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListDetections() err=%v", err)
	}
	if len(got) != 2 || got[0].ResourceID != "c" || got[1].ResourceID != "b" {
		t.Fatalf("list = %+v", got)
	}

	rest, err := repo.ListDetections(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListDetections() offset err=%v", err)
	}
	if len(rest) != 1 || rest[0].ResourceID != "a" {
		t.Fatalf("rest = %+v", rest)
	}
}

func TestSaveDetectionStampsZeroTime(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	rec := sampleRecord("r9")
	rec.DetectedAt = time.Time{}
	if _, err := repo.SaveDetection(context.Background(), rec); err != nil {
		t.Fatalf("SaveDetection() err=%v", err)
	}
	got, ok, err := repo.LatestDetection(context.Background(), "r9")
	if err != nil || !ok {
		t.Fatalf("LatestDetection() ok=%v err=%v", ok, err)
	}
	if got.DetectedAt.IsZero() {
		t.Fatal("DetectedAt not stamped on save")
	}
}
