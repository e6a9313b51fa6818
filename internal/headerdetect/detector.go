// Package headerdetect infers tabular schemas (delimiter, column headers,
// per-column types, nullability, sample values) from a small byte prefix of a
// remote CSV or spreadsheet file fetched via HTTP Range requests.
//
// Every failure mode is returned as a DetectionResult with Success=false;
// the package never panics on remote data and never retries. Inference runs
// over at most five sample rows and is documented best-effort: a column that
// happens to sample like a date is reported as a date.
package headerdetect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Byte budgets used when Options leaves them zero. CSV headers almost always
// fit in the first 8 KiB; zip-container spreadsheets need a larger prefix
// before the workbook structure is readable at all.
const (
	DefaultCSVFetchBytes   = 8192
	DefaultSheetFetchBytes = 65536
)

// Format identifies the declared file format of a resource.
type Format int

const (
	FormatUnknown Format = iota // absent hint: CSV first, then spreadsheet
	FormatCSV
	FormatTSV
	FormatXLSX
	FormatXLS
)

// ParseFormat maps a free-form format string ("csv", "XLSX", ...) onto a
// Format. The empty string means no declared format. Unrecognized strings are
// an error so callers can refuse them before any fetch happens.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return FormatUnknown, nil
	case "CSV":
		return FormatCSV, nil
	case "TSV":
		return FormatTSV, nil
	case "XLSX", "XLSM":
		return FormatXLSX, nil
	case "XLS":
		return FormatXLS, nil
	default:
		return FormatUnknown, fmt.Errorf("unsupported format: %s", strings.ToUpper(strings.TrimSpace(s)))
	}
}

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "CSV"
	case FormatTSV:
		return "TSV"
	case FormatXLSX:
		return "XLSX"
	case FormatXLS:
		return "XLS"
	default:
		return "unknown"
	}
}

// ColumnType is the inferred semantic type of a column.
type ColumnType string

const (
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
	TypeBoolean  ColumnType = "boolean"
	TypeString   ColumnType = "string"
	TypeUnknown  ColumnType = "unknown"
)

// ColumnSchema describes one detected column. SampleValues holds up to three
// raw non-empty cells. Nullable is true when any sampled cell in the column
// was blank (rows shorter than the header count as blank trailing cells).
type ColumnSchema struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Nullable     bool       `json:"nullable"`
	SampleValues []string   `json:"sample_values,omitempty"`

	// Type-specific metadata.
	MaxLength int    `json:"max_length,omitempty"` // string columns: longest observed value, in runes
	Precision string `json:"precision,omitempty"`  // float columns: numeric precision class
}

// SheetSchema is the per-sheet detection output on the spreadsheet path.
type SheetSchema struct {
	Headers     []string       `json:"headers"`
	ColumnCount int            `json:"column_count"`
	SampleRows  [][]string     `json:"sample_rows"`
	ColumnTypes []ColumnSchema `json:"column_types,omitempty"`
}

// DetectionResult is the sole output of a detection call. Failures are data:
// Success=false with Error set, never a panic or a Go error for remote-data
// problems.
type DetectionResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`

	PartialDownload bool `json:"partial_download"`
	BytesFetched    int  `json:"bytes_fetched"`

	// CSV path.
	Delimiter   string         `json:"delimiter,omitempty"`
	ColumnCount int            `json:"column_count,omitempty"`
	Headers     []string       `json:"headers,omitempty"`
	ColumnTypes []ColumnSchema `json:"column_types,omitempty"`
	SampleRows  [][]string     `json:"sample_rows,omitempty"`
	RowsSampled int            `json:"rows_sampled,omitempty"`

	// Spreadsheet path.
	Format     string                 `json:"format,omitempty"`
	Sheets     map[string]SheetSchema `json:"sheets,omitempty"`
	SheetNames []string               `json:"sheet_names,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
}

// Request identifies one resource to detect. URL is the already-resolved
// download URL; ResourceID is echoed into the result for callers that track
// results by id. Delimiter, when nonzero, skips delimiter auto-detection.
type Request struct {
	URL        string
	ResourceID string
	Format     Format
	Delimiter  rune
}

// Options configures a Detector. Zero values get defaults in New.
type Options struct {
	CSVFetchBytes   int
	SheetFetchBytes int

	// Header is attached to every outbound request (API key, User-Agent).
	Header http.Header

	// Client must already carry the caller's timeout policy.
	Client *http.Client
}

// Detector performs schema detection. It is stateless between calls and safe
// for concurrent use.
type Detector struct {
	opts Options

	// fetch seam for tests.
	fetchFn func(ctx context.Context, url string, budget int) (fetchOutcome, error)
}

// New builds a Detector, applying defaults for unset options.
func New(opts Options) *Detector {
	if opts.CSVFetchBytes <= 0 {
		opts.CSVFetchBytes = DefaultCSVFetchBytes
	}
	if opts.SheetFetchBytes <= 0 {
		opts.SheetFetchBytes = DefaultSheetFetchBytes
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	d := &Detector{opts: opts}
	d.fetchFn = d.fetchPrefix
	return d
}

// Detect is the entry point: it dispatches on the declared format. Explicit
// CSV/TSV failures are terminal. With no declared format the CSV path runs
// first, except that a fetched prefix starting with the zip local-file magic
// goes straight to the spreadsheet path; any other CSV-path failure falls
// back to the spreadsheet path.
func (d *Detector) Detect(ctx context.Context, req Request) DetectionResult {
	switch req.Format {
	case FormatCSV:
		return d.DetectCSV(ctx, req)
	case FormatTSV:
		if req.Delimiter == 0 {
			req.Delimiter = '\t'
		}
		return d.DetectCSV(ctx, req)
	case FormatXLSX, FormatXLS:
		return d.DetectSheet(ctx, req)
	case FormatUnknown:
		out, err := d.fetchFn(ctx, req.URL, d.opts.CSVFetchBytes)
		if err != nil {
			return failed(req.ResourceID, err)
		}
		if isZipPrefix(out.body) {
			return d.DetectSheet(ctx, req)
		}
		res := d.parseCSVBytes(req, out)
		if res.Success {
			return res
		}
		return d.DetectSheet(ctx, req)
	default:
		return Unsupported(req.ResourceID, req.Format.String())
	}
}

// DetectCSV runs only the CSV path: fetch the CSV byte budget, then parse.
func (d *Detector) DetectCSV(ctx context.Context, req Request) DetectionResult {
	out, err := d.fetchFn(ctx, req.URL, d.opts.CSVFetchBytes)
	if err != nil {
		return failed(req.ResourceID, err)
	}
	return d.parseCSVBytes(req, out)
}

// DetectSheet runs only the spreadsheet path: fetch the larger byte budget
// and attempt to open the truncated buffer as a workbook.
func (d *Detector) DetectSheet(ctx context.Context, req Request) DetectionResult {
	out, err := d.fetchFn(ctx, req.URL, d.opts.SheetFetchBytes)
	if err != nil {
		return failed(req.ResourceID, err)
	}
	return parseWorkbook(req.ResourceID, out)
}

// Unsupported builds the no-fetch failure for a format outside the known set.
func Unsupported(resourceID, format string) DetectionResult {
	return DetectionResult{
		Success:    false,
		Error:      fmt.Sprintf("unsupported format: %s", format),
		ResourceID: resourceID,
	}
}

func failed(resourceID string, err error) DetectionResult {
	return DetectionResult{
		Success:    false,
		Error:      err.Error(),
		ResourceID: resourceID,
	}
}

// isZipPrefix reports whether b starts with the zip local-file header magic.
// XLSX workbooks are zip containers, so this prefix means the CSV parse can
// only misread binary data.
func isZipPrefix(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 0x03 && b[3] == 0x04
}
