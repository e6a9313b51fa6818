package headerdetect

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// inferColumns builds one ColumnSchema per header. Sample rows shorter than
// the header are treated as having empty trailing cells; a blank cell counts
// toward nullability and is excluded from the type-inference value set.
func inferColumns(headers []string, samples [][]string) []ColumnSchema {
	cols := make([]ColumnSchema, 0, len(headers))

	if len(samples) == 0 {
		for _, h := range headers {
			cols = append(cols, ColumnSchema{Name: h, Type: TypeUnknown})
		}
		return cols
	}

	for i, h := range headers {
		var values []string
		nullable := false
		for _, row := range samples {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			if strings.TrimSpace(cell) == "" {
				nullable = true
				continue
			}
			values = append(values, cell)
		}

		col := inferType(values)
		col.Name = h
		col.Nullable = nullable
		if len(values) > 3 {
			values = values[:3]
		}
		col.SampleValues = values
		cols = append(cols, col)
	}
	return cols
}

// inferType classifies a column from its non-empty sample values. Best-effort
// over at most five samples: a string column whose samples all look like
// dates is classified as a date. That trade-off is inherent to inferring from
// a byte prefix and is not corrected by scanning more data.
func inferType(values []string) ColumnSchema {
	if len(values) == 0 {
		return ColumnSchema{Type: TypeUnknown}
	}

	allNumeric := true
	anyFloat := false
	for _, v := range values {
		v = strings.ReplaceAll(strings.TrimSpace(v), ",", "") // thousands separator
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allNumeric = false
			break
		}
		if strings.ContainsAny(v, ".eE") {
			anyFloat = true
		}
	}
	if allNumeric {
		if anyFloat {
			return ColumnSchema{Type: TypeFloat, Precision: "double"}
		}
		return ColumnSchema{Type: TypeInteger}
	}

	allDated := true
	allClocked := true
	for _, v := range values {
		if !strings.ContainsAny(v, "-/") {
			allDated = false
			break
		}
		if !strings.Contains(v, ":") {
			allClocked = false
		}
	}
	if allDated {
		if allClocked {
			return ColumnSchema{Type: TypeDatetime}
		}
		return ColumnSchema{Type: TypeDate}
	}

	allBool := true
	for _, v := range values {
		if !isBoolWord(v) {
			allBool = false
			break
		}
	}
	if allBool {
		return ColumnSchema{Type: TypeBoolean}
	}

	maxLen := 0
	for _, v := range values {
		if n := utf8.RuneCountInString(v); n > maxLen {
			maxLen = n
		}
	}
	return ColumnSchema{Type: TypeString, MaxLength: maxLen}
}

func isBoolWord(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "false", "yes", "no", "1", "0", "t", "f", "y", "n":
		return true
	default:
		return false
	}
}
