package headerdetect

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// fullDownloadSuggestion accompanies every container-parse failure: a
// truncated zip archive usually has no readable central directory, so the
// caller's best move is fetching the whole file.
const fullDownloadSuggestion = "spreadsheet files often require a full download for reliable parsing"

// parseWorkbook attempts to open a fetched prefix as a workbook and read up
// to six rows per sheet (headers plus five samples). Failing to open a
// deliberately truncated archive is the expected common outcome, reported as
// a recoverable result rather than an error.
func parseWorkbook(resourceID string, out fetchOutcome) DetectionResult {
	f, err := excelize.OpenReader(bytes.NewReader(out.body))
	if err != nil {
		return sheetParseFailure(resourceID, out, err)
	}
	defer f.Close()

	sheets := make(map[string]SheetSchema)
	var names []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return sheetParseFailure(resourceID, out, err)
		}
		if len(rows) == 0 {
			continue
		}
		if len(rows) > 6 {
			rows = rows[:6]
		}
		headers := rows[0]
		samples := rows[1:]
		sheets[name] = SheetSchema{
			Headers:     headers,
			ColumnCount: len(headers),
			SampleRows:  samples,
			ColumnTypes: inferColumns(headers, samples),
		}
		names = append(names, name)
	}

	return DetectionResult{
		Success:         true,
		ResourceID:      resourceID,
		Format:          "XLSX",
		PartialDownload: out.partial,
		BytesFetched:    len(out.body),
		Sheets:          sheets,
		SheetNames:      names,
	}
}

func sheetParseFailure(resourceID string, out fetchOutcome, err error) DetectionResult {
	return DetectionResult{
		Success:      false,
		Error:        fmt.Sprintf("spreadsheet parse error (may need full file): %v", err),
		ResourceID:   resourceID,
		BytesFetched: len(out.body),
		Suggestion:   fullDownloadSuggestion,
	}
}
