package headerdetect

import (
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Candidate delimiters in tie-break order. The first candidate with the
// maximum count in the header line wins; comma when all counts are zero.
var delimiterCandidates = []rune{',', '\t', ';', '|'}

// parseCSVBytes decodes a fetched prefix as UTF-8 text and extracts headers,
// sample rows, and per-column schemas. The prefix may end mid-row or even
// mid-quoted-field; that is an accepted consequence of partial fetching, not
// an error to special-case.
func (d *Detector) parseCSVBytes(req Request, out fetchOutcome) DetectionResult {
	text, err := decodeText(out.body)
	if err != nil {
		return failed(req.ResourceID, err)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return DetectionResult{
			Success:    false,
			Error:      "empty content",
			ResourceID: req.ResourceID,
		}
	}

	delim := req.Delimiter
	if delim == 0 {
		firstLine, _, _ := strings.Cut(trimmed, "\n")
		delim = detectDelimiter(firstLine)
	}

	r := csv.NewReader(strings.NewReader(trimmed))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return DetectionResult{
			Success:    false,
			Error:      fmt.Sprintf("CSV parse error: %v", err),
			ResourceID: req.ResourceID,
		}
	}
	if len(rows) == 0 {
		return DetectionResult{
			Success:    false,
			Error:      "no rows parsed",
			ResourceID: req.ResourceID,
		}
	}

	headers := rows[0]
	samples := rows[1:]
	if len(samples) > 5 {
		samples = samples[:5]
	}

	return DetectionResult{
		Success:         true,
		ResourceID:      req.ResourceID,
		PartialDownload: out.partial,
		BytesFetched:    len(out.body),
		Delimiter:       string(delim),
		ColumnCount:     len(headers),
		Headers:         headers,
		ColumnTypes:     inferColumns(headers, samples),
		SampleRows:      samples,
		RowsSampled:     len(samples),
	}
}

// decodeText strips a UTF-8 BOM and rejects byte sequences that are not
// valid UTF-8 (binary content reaching the CSV path).
func decodeText(b []byte) (string, error) {
	b = trimIncompleteRune(b)
	if !utf8.Valid(b) {
		return "", fmt.Errorf("decode error: content is not valid UTF-8")
	}
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), b)
	if err != nil {
		return "", fmt.Errorf("decode error: %v", err)
	}
	return string(decoded), nil
}

// trimIncompleteRune drops a multibyte rune the byte budget cut short at the
// end of the buffer. Invalid bytes anywhere else are left for the validity
// check to reject.
func trimIncompleteRune(b []byte) []byte {
	for cut := 1; cut <= utf8.UTFMax && cut <= len(b); cut++ {
		lead := b[len(b)-cut]
		if lead&0xC0 == 0x80 { // continuation byte, keep walking back
			continue
		}
		if need := utf8SeqLen(lead); need > cut {
			return b[:len(b)-cut]
		}
		return b
	}
	return b
}

func utf8SeqLen(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 1 // invalid lead byte; validity check will reject it
	}
}

// detectDelimiter counts candidate occurrences in the header line. Ties keep
// the earlier candidate; all-zero counts default to comma.
func detectDelimiter(line string) rune {
	best := ','
	bestCount := 0
	for _, cand := range delimiterCandidates {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}
