package headerdetect

import (
	"reflect"
	"testing"
)

// TestInferType pins the classification ladder: numeric before date before
// boolean before string. Reordering the ladder silently changes every
// downstream schema, so each rung gets its own case.
func TestInferType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
		want   ColumnType
	}{
		{"empty set", nil, TypeUnknown},
		{"integers", []string{"1", "42", "-7"}, TypeInteger},
		{"integers with thousands separators", []string{"1,200", "3,400,000"}, TypeInteger},
		{"floats", []string{"1.5", "2.25"}, TypeFloat},
		{"mixed int and float", []string{"500", "300.5"}, TypeFloat},
		{"exponent notation", []string{"1e5", "2E-3"}, TypeFloat},
		{"dates with dashes", []string{"2023-01-02", "2024-11-30"}, TypeDate},
		{"dates with slashes", []string{"01/02/2023", "11/30/2024"}, TypeDate},
		{"datetimes", []string{"2023-01-02 10:30:00", "2024-11-30 23:59:59"}, TypeDatetime},
		{"date and datetime mixed stays date", []string{"2023-01-02", "2024-11-30 23:59:59"}, TypeDate},
		{"booleans mixed case", []string{"Yes", "No", "yes", "NO"}, TypeBoolean},
		{"booleans t f", []string{"t", "F", "y", "n"}, TypeBoolean},
		{"zero one is integer not boolean", []string{"0", "1", "0"}, TypeInteger},
		{"plain strings", []string{"Lithium", "Cobalt"}, TypeString},
		{"numeric-looking with one string", []string{"500", "n/a"}, TypeString},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := inferType(tt.values)
			if got.Type != tt.want {
				t.Fatalf("inferType(%v).Type = %q, want %q", tt.values, got.Type, tt.want)
			}
		})
	}
}

func TestInferTypeStringMaxLength(t *testing.T) {
	t.Parallel()

	got := inferType([]string{"Li", "Cobalt", "Néodyme"})
	if got.Type != TypeString {
		t.Fatalf("Type = %q, want %q", got.Type, TypeString)
	}
	// Length is counted in runes, not bytes.
	if got.MaxLength != 7 {
		t.Fatalf("MaxLength = %d, want 7", got.MaxLength)
	}
}

func TestInferTypeFloatPrecision(t *testing.T) {
	t.Parallel()

	got := inferType([]string{"1.5"})
	if got.Type != TypeFloat || got.Precision != "double" {
		t.Fatalf("got %+v, want float with double precision", got)
	}
}

// TestInferColumnsShortRows verifies the padding invariant: rows shorter than
// the header contribute empty trailing cells, which mark the column nullable
// but never shift neighboring columns or fail the call.
func TestInferColumnsShortRows(t *testing.T) {
	t.Parallel()

	headers := []string{"name", "year", "qty"}
	samples := [][]string{
		{"Lithium", "2023", "500"},
		{"Cobalt", "2022"}, // truncated row: qty missing
	}
	cols := inferColumns(headers, samples)
	if len(cols) != len(headers) {
		t.Fatalf("len(cols) = %d, want %d", len(cols), len(headers))
	}
	if cols[2].Type != TypeInteger {
		t.Errorf("qty type = %q, want %q", cols[2].Type, TypeInteger)
	}
	if !cols[2].Nullable {
		t.Error("qty should be nullable: one sampled cell was missing")
	}
	if cols[0].Nullable || cols[1].Nullable {
		t.Error("fully populated columns must not be nullable")
	}
}

func TestInferColumnsNoSamples(t *testing.T) {
	t.Parallel()

	cols := inferColumns([]string{"a", "b"}, nil)
	want := []ColumnSchema{
		{Name: "a", Type: TypeUnknown},
		{Name: "b", Type: TypeUnknown},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("inferColumns = %+v, want %+v", cols, want)
	}
}

func TestInferColumnsSampleValuesCapped(t *testing.T) {
	t.Parallel()

	samples := [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}
	cols := inferColumns([]string{"col"}, samples)
	if len(cols[0].SampleValues) != 3 {
		t.Fatalf("SampleValues = %v, want 3 entries", cols[0].SampleValues)
	}
	if got, want := cols[0].SampleValues[0], "a"; got != want {
		t.Fatalf("SampleValues[0] = %q, want %q", got, want)
	}
}

func TestInferColumnsBlankCellsExcludedFromTyping(t *testing.T) {
	t.Parallel()

	samples := [][]string{{"10"}, {""}, {"  "}, {"30"}}
	cols := inferColumns([]string{"qty"}, samples)
	if cols[0].Type != TypeInteger {
		t.Errorf("Type = %q, want %q (blanks must not break the numeric test)", cols[0].Type, TypeInteger)
	}
	if !cols[0].Nullable {
		t.Error("Nullable = false, want true")
	}
	if !reflect.DeepEqual(cols[0].SampleValues, []string{"10", "30"}) {
		t.Errorf("SampleValues = %v, want [10 30]", cols[0].SampleValues)
	}
}
