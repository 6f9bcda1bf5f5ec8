package factsync

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Long-form CSV header, one column per Fact attribute
var LongColumns = []string{
	"Ticker",
	"CIK",
	"Metric",
	"GAAPTag",
	"Value",
	"Fiscal Year",
	"Period",
	"Filing Date",
	"Form",
	"Unit",
}

// Fixed leading columns of the wide CSV; metric columns follow
var WideKeyColumns = []string{
	"Ticker",
	"Fiscal Year",
	"Period",
	"Filing Date",
}

// headerAliases maps accepted header spellings to the canonical long column
var headerAliases = map[string]string{
	"ticker":       "Ticker",
	"entity_id":    "Ticker",
	"cik":          "CIK",
	"registry_id":  "CIK",
	"metric":       "Metric",
	"display_name": "Metric",
	"gaaptag":      "GAAPTag",
	"item":         "GAAPTag",
	"value":        "Value",
	"fiscal year":  "Fiscal Year",
	"fiscal_year":  "Fiscal Year",
	"period":       "Period",
	"period_type":  "Period",
	"filing date":  "Filing Date",
	"filing_date":  "Filing Date",
	"form":         "Form",
	"unit":         "Unit",
}

func canonicalHeader(h string) string {
	h = CleanText(h)
	if c, ok := headerAliases[strings.ToLower(h)]; ok {
		return c
	}
	return h
}

// ReadLongCSV reads a long-form fact collection.
// Columns are matched by header name, so column order does not matter and
// missing columns read as empty. Malformed values become unknown rather than
// failing the read; only a broken CSV stream is an error.
func ReadLongCSV(r io.Reader) ([]Fact, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read long csv header")
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[canonicalHeader(h)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := pos[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var facts []Fact
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read long csv record %d", len(facts)+1)
		}
		f := Fact{
			EntityID:    CleanText(field(rec, "Ticker")),
			RegistryID:  NormalizeCIK(field(rec, "CIK")),
			DisplayName: CleanText(field(rec, "Metric")),
			Item:        CleanText(field(rec, "GAAPTag")),
			Value:       parseValue(field(rec, "Value")),
			FiscalYear:  ParseFiscalYear(field(rec, "Fiscal Year")),
			PeriodType:  CleanText(field(rec, "Period")),
			Form:        CleanText(field(rec, "Form")),
			Unit:        CleanText(field(rec, "Unit")),
		}
		if d, ok := ParseDate(field(rec, "Filing Date")); ok {
			f.FilingDate = d
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// WriteLongCSV writes facts in the order given
func WriteLongCSV(w io.Writer, facts []Fact) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LongColumns); err != nil {
		return eris.Wrap(err, "write long csv header")
	}
	for _, f := range facts {
		rec := []string{
			f.EntityID,
			f.RegistryID,
			f.DisplayName,
			f.Item,
			formatValue(f.Value),
			f.FiscalYear.String(),
			f.PeriodType,
			f.FilingDateString(),
			f.Form,
			f.Unit,
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "write long csv record")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush long csv")
}

// WriteWideCSV writes the wide projection: key columns then one column per metric
func WriteWideCSV(w io.Writer, table WideTable) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, WideKeyColumns...), table.Columns...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "write wide csv header")
	}
	for _, row := range table.Rows {
		rec := make([]string, 0, len(header))
		date := ""
		if !row.FilingDate.IsZero() {
			date = row.FilingDate.Format(DateLayout)
		}
		rec = append(rec, row.EntityID, row.FiscalYear.String(), row.PeriodType, date)
		for _, c := range table.Columns {
			rec = append(rec, formatValue(row.Values[c]))
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "write wide csv record")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush wide csv")
}

// ReadWideCSV reads a table written by WriteWideCSV
func ReadWideCSV(r io.Reader) (WideTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return WideTable{}, nil
	}
	if err != nil {
		return WideTable{}, eris.Wrap(err, "read wide csv header")
	}
	if len(header) < len(WideKeyColumns) {
		return WideTable{}, eris.Errorf("wide csv header has %d columns, want at least %d", len(header), len(WideKeyColumns))
	}
	for i, want := range WideKeyColumns {
		if canonicalHeader(header[i]) != want {
			return WideTable{}, eris.Errorf("wide csv column %d is %q, want %q", i+1, header[i], want)
		}
	}

	n := len(WideKeyColumns)
	table := WideTable{Columns: make([]string, 0, len(header)-n)}
	for _, h := range header[n:] {
		table.Columns = append(table.Columns, CleanText(h))
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return WideTable{}, eris.Wrapf(err, "read wide csv record %d", len(table.Rows)+1)
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		row := WideRow{
			EntityID:   CleanText(rec[0]),
			FiscalYear: ParseFiscalYear(rec[1]),
			PeriodType: CleanText(rec[2]),
			Values:     make(map[string]decimal.NullDecimal, len(table.Columns)),
		}
		if d, ok := ParseDate(rec[3]); ok {
			row.FilingDate = d
		}
		for i, c := range table.Columns {
			row.Values[c] = parseValue(rec[n+i])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// parseValue reads a decimal cell; blanks and NaN-like markers are null
func parseValue(s string) decimal.NullDecimal {
	s = CleanText(s)
	switch strings.ToLower(s) {
	case "", "nan", "<na>", "null", "none":
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func formatValue(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}
