package factsync_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/RxDataLab/go-factsync"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestFiscalYearOf(t *testing.T) {
	tests := []struct {
		in   any
		want factsync.FiscalYear
	}{
		{2023, factsync.KnownYear(2023)},
		{int32(2023), factsync.KnownYear(2023)},
		{int64(2023), factsync.KnownYear(2023)},
		{2023.0, factsync.KnownYear(2023)},
		{2023.7, factsync.KnownYear(2023)},
		{float32(2023), factsync.KnownYear(2023)},
		{"2023", factsync.KnownYear(2023)},
		{"2023.0", factsync.KnownYear(2023)},
		{" 2023 ", factsync.KnownYear(2023)},
		{json.Number("2023"), factsync.KnownYear(2023)},
		{json.Number(""), factsync.FiscalYear{}},
		{math.NaN(), factsync.FiscalYear{}},
		{math.Inf(1), factsync.FiscalYear{}},
		{"", factsync.FiscalYear{}},
		{"FY2023", factsync.FiscalYear{}},
		{nil, factsync.FiscalYear{}},
		{[]int{2023}, factsync.FiscalYear{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, factsync.FiscalYearOf(tt.in), "FiscalYearOf(%#v)", tt.in)
	}
}

func TestFiscalYearString(t *testing.T) {
	assert.Equal(t, "2023", factsync.KnownYear(2023).String())
	assert.Equal(t, "", factsync.FiscalYear{}.String())
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-02-01", " 2024-02-01 ", "2024-02-01T00:00:00", "2024-02-01 00:00:00"} {
		d, ok := factsync.ParseDate(s)
		assert.True(t, ok, s)
		assert.Equal(t, "2024-02-01", d.Format(factsync.DateLayout), s)
	}
	for _, s := range []string{"", "NaT", "02/01/2024", "2024-13-01"} {
		_, ok := factsync.ParseDate(s)
		assert.False(t, ok, s)
	}
}

func TestSortCanonical(t *testing.T) {
	unknownYear := fact("ACME", "Revenues", 0, "FY", "2024-02-01", "1")
	unknownYear.FiscalYear = factsync.FiscalYear{}
	undated := fact("ACME", "Revenues", 2023, "FY", "", "2")

	in := []factsync.Fact{
		fact("ZETA", "Revenues", 2020, "FY", "2021-02-01", "3"),
		unknownYear,
		undated,
		fact("ACME", "Revenues", 2023, "FY", "2024-02-01", "4"),
		fact("ACME", "Assets", 2023, "FY", "2024-02-01", "5"),
		fact("ACME", "Revenues", 2023, "Q1", "2023-05-01", "6"),
		fact("ACME", "Revenues", 2022, "FY", "2023-02-01", "7"),
	}
	got := factsync.SortCanonical(in)

	values := make([]string, len(got))
	for i, f := range got {
		values[i] = f.Value.Decimal.String()
	}
	want := []string{"7", "5", "4", "2", "6", "1", "3"}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("SortCanonical order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "3", in[0].Value.Decimal.String(), "input is not modified")
}
