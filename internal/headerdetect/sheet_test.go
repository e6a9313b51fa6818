package headerdetect

import (
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes a single-sheet workbook and returns its bytes.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, cell := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName: %v", err)
			}
			if err := f.SetCellValue("Sheet1", name, cell); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	t.Parallel()

	body := buildWorkbook(t, [][]any{
		{"commodity", "year", "tonnes"},
		{"Lithium", 2023, 500},
		{"Cobalt", 2022, 300},
		{"Nickel", 2021, 144},
		{"Graphite", 2020, 90},
		{"Manganese", 2019, 75},
		{"Tin", 2018, 60}, // seventh row: beyond the six-row read window
	})

	res := parseWorkbook("res-5", fetchOutcome{body: body})
	if !res.Success {
		t.Fatalf("Success = false, error %q", res.Error)
	}
	if res.Format != "XLSX" {
		t.Errorf("Format = %q, want XLSX", res.Format)
	}
	if len(res.SheetNames) != 1 || res.SheetNames[0] != "Sheet1" {
		t.Fatalf("SheetNames = %v", res.SheetNames)
	}
	sheet := res.Sheets["Sheet1"]
	if sheet.ColumnCount != 3 {
		t.Errorf("ColumnCount = %d, want 3", sheet.ColumnCount)
	}
	if got, want := sheet.Headers[0], "commodity"; got != want {
		t.Errorf("Headers[0] = %q, want %q", got, want)
	}
	if len(sheet.SampleRows) != 5 {
		t.Fatalf("SampleRows = %d rows, want 5 (six-row window minus header)", len(sheet.SampleRows))
	}
	if sheet.SampleRows[0][0] != "Lithium" {
		t.Errorf("first sample = %v", sheet.SampleRows[0])
	}
	if len(sheet.ColumnTypes) != 3 {
		t.Fatalf("ColumnTypes = %d, want 3", len(sheet.ColumnTypes))
	}
	if sheet.ColumnTypes[1].Type != TypeInteger {
		t.Errorf("year type = %q, want %q", sheet.ColumnTypes[1].Type, TypeInteger)
	}
	if res.BytesFetched != len(body) {
		t.Errorf("BytesFetched = %d, want %d", res.BytesFetched, len(body))
	}
}

// TestParseWorkbookTruncated: a cut-off archive must come back as a failed
// result with an explanatory message and the byte count, never a panic.
func TestParseWorkbookTruncated(t *testing.T) {
	t.Parallel()

	body := buildWorkbook(t, [][]any{
		{"commodity", "tonnes"},
		{"Lithium", 500},
	})
	truncated := body[:len(body)/2]

	res := parseWorkbook("res-6", fetchOutcome{body: truncated, partial: true})
	if res.Success {
		t.Fatal("Success = true for a truncated archive")
	}
	if res.Error == "" || !strings.Contains(res.Error, "may need full file") {
		t.Fatalf("Error = %q, want full-file suggestion", res.Error)
	}
	if res.BytesFetched != len(truncated) || res.BytesFetched == 0 {
		t.Fatalf("BytesFetched = %d, want %d", res.BytesFetched, len(truncated))
	}
	if res.Suggestion == "" {
		t.Fatal("Suggestion is empty")
	}
}

func TestParseWorkbookGarbage(t *testing.T) {
	t.Parallel()

	res := parseWorkbook("res-8", fetchOutcome{body: []byte("PK\x03\x04 not really a zip")})
	if res.Success {
		t.Fatal("Success = true for garbage bytes")
	}
	if res.Error == "" {
		t.Fatal("Error is empty")
	}
}
