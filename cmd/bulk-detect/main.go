// Command bulk-detect runs schema detection across many resources with a
// bounded worker pool and emits one JSONL record per resource to stdout.
//
// Inputs are either a file of download URLs (-i, one per line) or an EDX
// submission id (-dataset), in which case the submission's tabular resources
// are resolved through the EDX API.
//
// Results can optionally be persisted to a detection registry
// (-registry postgres|sqlite|mssql with -registry-dsn) and reported to
// Datadog (-metrics, credentials from the standard DD_* environment
// variables).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Redliana/critical-minerals-data-tools/internal/config"
	"github.com/Redliana/critical-minerals-data-tools/internal/edx"
	"github.com/Redliana/critical-minerals-data-tools/internal/headerdetect"
	"github.com/Redliana/critical-minerals-data-tools/internal/metrics"
	"github.com/Redliana/critical-minerals-data-tools/internal/metrics/datadog"
	"github.com/Redliana/critical-minerals-data-tools/internal/registry"
	_ "github.com/Redliana/critical-minerals-data-tools/internal/registry/all"
)

// logRecord is emitted as JSONL to stdout for each detection.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type logRecord struct {
	Timestamp    string `json:"ts"`
	ResourceID   string `json:"resource_id,omitempty"`
	URL          string `json:"url"`
	Success      bool   `json:"success"`
	Format       string `json:"format,omitempty"`
	Delimiter    string `json:"delimiter,omitempty"`
	ColumnCount  int    `json:"column_count,omitempty"`
	BytesFetched int    `json:"bytes_fetched"`
	Partial      bool   `json:"partial_download"`
	DurationMs   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
	RegistryID   int64  `json:"registry_id,omitempty"`
}

// backendCloser is the minimal interface this command needs from a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	OpenRegistry   func(ctx context.Context, cfg registry.Config) (registry.Repository, error)
	Now            func() time.Time
}

type runConfig struct {
	URLFile      string
	Dataset      string
	Workers      int
	Timeout      time.Duration
	JobName      string
	CSVBytes     int
	SheetBytes   int
	Metrics      bool
	DDTagsCSV    string
	FlushEvery   time.Duration
	RegistryKind string
	RegistryDSN  string
}

type detectJob struct {
	ResourceID string
	URL        string
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		OpenRegistry: registry.Open,
		Now:          time.Now,
	})
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: every detection succeeded.
//   - 1: at least one detection failed.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OpenRegistry == nil {
		d.OpenRegistry = registry.Open
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	settings, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(d.Stderr, "configuration error: %v\n", err)
		return 2
	}
	if cfg.CSVBytes > 0 {
		settings.CSVFetchBytes = cfg.CSVBytes
	}
	if cfg.SheetBytes > 0 {
		settings.SheetFetchBytes = cfg.SheetBytes
	}
	if cfg.Timeout > 0 {
		settings.HTTPTimeout = cfg.Timeout
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(d.Stderr, "configuration error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var header http.Header
	var jobs []detectJob
	if cfg.Dataset != "" {
		client, err := edx.New(edx.Options{
			BaseURL:   settings.EDXBaseURL,
			APIKey:    settings.EDXAPIKey,
			Group:     settings.EDXGroup,
			UserAgent: settings.UserAgent,
			Client:    &http.Client{Timeout: settings.HTTPTimeout},
		})
		if err != nil {
			fmt.Fprintln(d.Stderr, err.Error())
			return 2
		}
		sub, err := client.GetSubmission(ctx, cfg.Dataset)
		if err != nil {
			fmt.Fprintf(d.Stderr, "loading dataset: %v\n", err)
			return 2
		}
		for _, r := range edx.TabularResources(sub.Resources) {
			jobs = append(jobs, detectJob{ResourceID: r.ID, URL: client.DownloadURL(r.ID)})
		}
		header = client.AuthHeader()
	} else {
		urls, err := readURLs(cfg.URLFile)
		if err != nil {
			fmt.Fprintf(d.Stderr, "error reading urls: %v\n", err)
			return 2
		}
		for _, u := range urls {
			jobs = append(jobs, detectJob{URL: u})
		}
	}
	if len(jobs) == 0 {
		fmt.Fprintln(d.Stderr, "no resources to detect")
		return 2
	}

	if cfg.Metrics {
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "tool:bulk_detect")
		backend, err := d.BackendFactory(ctx, cfg.JobName, tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = metrics.Flush()
			_ = backend.Close()
		}()
	}

	var repo registry.Repository
	if cfg.RegistryKind != "" {
		repo, err = d.OpenRegistry(ctx, registry.Config{Kind: cfg.RegistryKind, DSN: cfg.RegistryDSN})
		if err != nil {
			fmt.Fprintf(d.Stderr, "registry init failed: %v\n", err)
			return 2
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(d.Stderr, "registry schema: %v\n", err)
			return 2
		}
	}

	detector := headerdetect.New(headerdetect.Options{
		CSVFetchBytes:   settings.CSVFetchBytes,
		SheetFetchBytes: settings.SheetFetchBytes,
		Header:          header,
		Client:          &http.Client{Timeout: settings.HTTPTimeout},
	})

	jobCh := make(chan detectJob)
	logCh := make(chan logRecord, 256)

	var failMu sync.Mutex
	failed := false

	var logWG sync.WaitGroup
	logWG.Add(1)
	go func() {
		defer logWG.Done()
		writeJSONLines(d.Stdout, logCh)
	}()

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobCh {
				rec := detectOne(ctx, detector, repo, job, d.Now)
				if !rec.Success {
					failMu.Lock()
					failed = true
					failMu.Unlock()
				}
				select {
				case logCh <- rec:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()
	close(logCh)
	logWG.Wait()

	_ = metrics.Flush()

	failMu.Lock()
	defer failMu.Unlock()
	if failed {
		return 1
	}
	return 0
}

// detectOne runs one detection, records metrics, and optionally persists the
// result.
func detectOne(ctx context.Context, detector *headerdetect.Detector, repo registry.Repository, job detectJob, now func() time.Time) logRecord {
	start := now()
	res := detector.Detect(ctx, headerdetect.Request{URL: job.URL, ResourceID: job.ResourceID})
	dur := now().Sub(start)

	status := "ok"
	if !res.Success {
		status = "failed"
	}
	format := res.Format
	if format == "" && res.Delimiter != "" {
		format = "CSV"
	}
	metrics.RecordDetection(format, status, dur, int64(res.BytesFetched))

	rec := logRecord{
		Timestamp:    start.UTC().Format(time.RFC3339),
		ResourceID:   job.ResourceID,
		URL:          job.URL,
		Success:      res.Success,
		Format:       format,
		Delimiter:    res.Delimiter,
		ColumnCount:  res.ColumnCount,
		BytesFetched: res.BytesFetched,
		Partial:      res.PartialDownload,
		DurationMs:   dur.Milliseconds(),
		Error:        res.Error,
	}

	if repo != nil {
		id, err := repo.SaveDetection(ctx, registry.FromResult(job.URL, res))
		if err != nil {
			// Persistence problems should not hide the detection outcome.
			if rec.Error == "" {
				rec.Error = fmt.Sprintf("registry: %v", err)
			}
		} else {
			rec.RegistryID = id
		}
	}
	return rec
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("bulk-detect", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.URLFile, "i", "", "Path to file containing download URLs (one per line)")
	fs.StringVar(&cfg.Dataset, "dataset", "", "EDX submission id; detects all its tabular resources")
	fs.IntVar(&cfg.Workers, "n", 4, "Number of concurrent workers")
	fs.DurationVar(&cfg.Timeout, "t", 0, "HTTP timeout per request (default from env/30s)")
	fs.StringVar(&cfg.JobName, "name", "bulk_detect", "Logical job name used in metrics tags")
	fs.IntVar(&cfg.CSVBytes, "csv-bytes", 0, "Bytes to fetch for CSV detection")
	fs.IntVar(&cfg.SheetBytes, "sheet-bytes", 0, "Bytes to fetch for spreadsheet detection")
	fs.BoolVar(&cfg.Metrics, "metrics", false, "Report metrics to Datadog (DD_* env credentials)")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:detect)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", time.Minute, "Datadog flush interval")
	fs.StringVar(&cfg.RegistryKind, "registry", "", "Persist results: postgres|sqlite|mssql")
	fs.StringVar(&cfg.RegistryDSN, "registry-dsn", "", "Registry DSN")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if (cfg.URLFile == "") == (cfg.Dataset == "") {
		return runConfig{}, errors.New("exactly one of -i <url_file> or -dataset <id> is required")
	}
	if cfg.Workers <= 0 {
		return runConfig{}, errors.New("-n must be > 0")
	}
	if cfg.RegistryKind != "" && cfg.RegistryDSN == "" {
		return runConfig{}, errors.New("-registry requires -registry-dsn")
	}
	return cfg, nil
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

// writeJSONLines drains logCh, writing one JSON object per line.
func writeJSONLines(w io.Writer, logCh <-chan logRecord) {
	enc := json.NewEncoder(w)
	for rec := range logCh {
		_ = enc.Encode(rec)
	}
}
