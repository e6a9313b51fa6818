// Command detect-headers infers the schema of a remote tabular file from a
// small byte prefix and prints the result as JSON.
//
// The input is either a direct URL (-url) or an EDX resource id (-resource).
// Resource ids are resolved to the EDX download endpoint and fetched with the
// API key from EDX_API_KEY.
//
// Only a bounded prefix of the file is downloaded (Range requests when the
// server honors them), so detection stays fast and cheap even for large
// files. Spreadsheets need a larger prefix than CSVs; both budgets are
// tunable.
//
// Detection failures are part of the JSON output (success=false with an
// error message), not process failures: the exit code is 0 whenever a result
// was produced, 1 when detection reported failure, and 2 for usage or
// configuration errors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Redliana/critical-minerals-data-tools/internal/config"
	"github.com/Redliana/critical-minerals-data-tools/internal/edx"
	"github.com/Redliana/critical-minerals-data-tools/internal/headerdetect"
)

type runConfig struct {
	URL        string
	ResourceID string
	Format     string
	Delimiter  string
	CSVBytes   int
	SheetBytes int
	Timeout    time.Duration
	Pretty     bool
	Text       bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	settings, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
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
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 2
	}

	format, err := headerdetect.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	req := headerdetect.Request{
		URL:        cfg.URL,
		ResourceID: cfg.ResourceID,
		Format:     format,
	}
	if cfg.Delimiter != "" {
		req.Delimiter = []rune(cfg.Delimiter)[0]
	}

	var header http.Header
	if cfg.URL == "" {
		// Resolve the resource id through EDX.
		client, err := edx.New(edx.Options{
			BaseURL:   settings.EDXBaseURL,
			APIKey:    settings.EDXAPIKey,
			Group:     settings.EDXGroup,
			UserAgent: settings.UserAgent,
		})
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		req.URL = client.DownloadURL(cfg.ResourceID)
		header = client.AuthHeader()
	}

	detector := headerdetect.New(headerdetect.Options{
		CSVFetchBytes:   settings.CSVFetchBytes,
		SheetFetchBytes: settings.SheetFetchBytes,
		Header:          header,
		Client:          &http.Client{Timeout: settings.HTTPTimeout},
	})

	ctx, cancel := context.WithTimeout(ctx, settings.HTTPTimeout)
	defer cancel()
	result := detector.Detect(ctx, req)

	if cfg.Text {
		printText(stdout, result)
	} else {
		enc := json.NewEncoder(stdout)
		if cfg.Pretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(stderr, "encoding result: %v\n", err)
			return 2
		}
	}

	if !result.Success {
		return 1
	}
	return 0
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("detect-headers", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.URL, "url", "", "Direct URL of the file to inspect")
	fs.StringVar(&cfg.ResourceID, "resource", "", "EDX resource id (resolved to its download URL)")
	fs.StringVar(&cfg.Format, "format", "", "Format hint: csv|tsv|xlsx|xls (default: auto-detect)")
	fs.StringVar(&cfg.Delimiter, "delimiter", "", "CSV delimiter override (single character)")
	fs.IntVar(&cfg.CSVBytes, "csv-bytes", 0, "Bytes to fetch for CSV detection (default from env/8192)")
	fs.IntVar(&cfg.SheetBytes, "sheet-bytes", 0, "Bytes to fetch for spreadsheet detection (default from env/65536)")
	fs.DurationVar(&cfg.Timeout, "t", 0, "HTTP timeout (default from env/30s)")
	fs.BoolVar(&cfg.Pretty, "pretty", true, "Pretty-print JSON output")
	fs.BoolVar(&cfg.Text, "text", false, "Print a plain-text summary instead of JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.URL == "" && cfg.ResourceID == "" {
		return runConfig{}, errors.New("one of -url or -resource is required")
	}
	if n := len([]rune(cfg.Delimiter)); n > 1 {
		return runConfig{}, errors.New("-delimiter must be a single character")
	}
	return cfg, nil
}

// printText renders a compact human-readable summary.
func printText(w io.Writer, res headerdetect.DetectionResult) {
	if !res.Success {
		fmt.Fprintf(w, "detection failed: %s\n", res.Error)
		if res.Suggestion != "" {
			fmt.Fprintf(w, "hint: %s\n", res.Suggestion)
		}
		return
	}

	if len(res.SheetNames) > 0 {
		fmt.Fprintf(w, "format: %s  sheets: %d  partial: %v  bytes: %d\n",
			res.Format, len(res.SheetNames), res.PartialDownload, res.BytesFetched)
		for _, name := range res.SheetNames {
			sheet := res.Sheets[name]
			fmt.Fprintf(w, "\nsheet %q (%d columns):\n", name, sheet.ColumnCount)
			printColumns(w, sheet.ColumnTypes)
		}
		return
	}

	fmt.Fprintf(w, "delimiter: %q  columns: %d  rows sampled: %d  partial: %v  bytes: %d\n",
		res.Delimiter, res.ColumnCount, res.RowsSampled, res.PartialDownload, res.BytesFetched)
	printColumns(w, res.ColumnTypes)
}

func printColumns(w io.Writer, cols []headerdetect.ColumnSchema) {
	for _, c := range cols {
		nullable := ""
		if c.Nullable {
			nullable = " nullable"
		}
		extra := ""
		if c.MaxLength > 0 {
			extra = fmt.Sprintf(" max_length=%d", c.MaxLength)
		}
		if c.Precision != "" {
			extra += " precision=" + c.Precision
		}
		fmt.Fprintf(w, "  %-30s %s%s%s\n", c.Name, c.Type, nullable, extra)
	}
}
