package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/Redliana/critical-minerals-data-tools/internal/metrics"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	if _, err := parseFlags(nil); err == nil {
		t.Fatal("parseFlags accepted neither -i nor -dataset")
	}
	if _, err := parseFlags([]string{"-i", "f", "-dataset", "d"}); err == nil {
		t.Fatal("parseFlags accepted both -i and -dataset")
	}
	if _, err := parseFlags([]string{"-i", "f", "-registry", "sqlite"}); err == nil {
		t.Fatal("parseFlags accepted -registry without -registry-dsn")
	}
	cfg, err := parseFlags([]string{"-i", "urls.txt", "-n", "8"})
	if err != nil {
		t.Fatalf("parseFlags err=%v", err)
	}
	if cfg.Workers != 8 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestReadURLsSkipsBlanksAndComments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte("# header\nhttp://a\n\n  http://b  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	urls, err := readURLs(path)
	if err != nil {
		t.Fatalf("readURLs err=%v", err)
	}
	if len(urls) != 2 || urls[0] != "http://a" || urls[1] != "http://b" {
		t.Fatalf("urls = %v", urls)
	}
}

func TestRunEmitsJSONLPerURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.csv":
			w.Write([]byte("a,b\n1,2\n"))
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "urls.txt")
	content := srv.URL + "/good.csv\n" + srv.URL + "/missing.csv\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-i", path, "-n", "2"}, deps{Stdout: &stdout, Stderr: &stderr})
	if code != 1 {
		t.Fatalf("run() = %d, want 1 (one failure), stderr=%s", code, stderr.String())
	}

	var recs []logRecord
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		var rec logRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSONL line %q: %v", sc.Text(), err)
		}
		recs = append(recs, rec)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].URL < recs[j].URL })
	good, bad := recs[0], recs[1]
	if !good.Success || good.Delimiter != "," || good.ColumnCount != 2 {
		t.Errorf("good = %+v", good)
	}
	if bad.Success || bad.Error != "HTTP 404" {
		t.Errorf("bad = %+v", bad)
	}
}

type recordingBackend struct {
	mu      sync.Mutex
	samples map[string][]float64
	labels  map[string]metrics.Labels
}

func (b *recordingBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.labels[name] = labels
}

func (b *recordingBackend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[name] = append(b.samples[name], value)
	b.labels[name] = labels
}

// TestRunRecordsDetectionMetrics verifies each attempt reaches the metrics
// facade with the fetched byte count and format/status labels intact.
func TestRunRecordsDetectionMetrics(t *testing.T) {
	payload := []byte("a,b\n1,2\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	backend := &recordingBackend{
		samples: make(map[string][]float64),
		labels:  make(map[string]metrics.Labels),
	}
	metrics.SetBackend(backend)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(srv.URL+"/a.csv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if code := run(context.Background(), []string{"-i", path}, deps{Stdout: &stdout}); code != 0 {
		t.Fatalf("run() = %d, want 0", code)
	}

	got := backend.samples[metrics.MetricDetectBytesFetched]
	if len(got) != 1 || got[0] != float64(len(payload)) {
		t.Fatalf("bytes-fetched samples = %v, want [%d]", got, len(payload))
	}
	l := backend.labels[metrics.MetricDetectBytesFetched]
	if l["format"] != "CSV" || l["status"] != "ok" {
		t.Fatalf("labels = %v", l)
	}
}

func TestRunAllSuccessExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x,y\n1,2\n"))
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(srv.URL+"/a.csv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-i", path}, deps{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("run() = %d, want 0", code)
	}
}

func TestRunPersistsToRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a,b\n1,2\n"))
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(srv.URL+"/a.csv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dsn := filepath.Join(t.TempDir(), "detections.db")

	var stdout bytes.Buffer
	code := run(context.Background(),
		[]string{"-i", path, "-registry", "sqlite", "-registry-dsn", dsn},
		deps{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("run() = %d", code)
	}

	var rec logRecord
	if err := json.Unmarshal(stdout.Bytes(), &rec); err != nil {
		t.Fatalf("output: %v", err)
	}
	if rec.RegistryID == 0 {
		t.Fatalf("rec = %+v, want registry id set", rec)
	}
}

func TestRunEmptyURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte("# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-i", path}, deps{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("run() = %d, want 2", code)
	}
}
