package factsync

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WideRow is one reporting period of one entity with a value per metric
type WideRow struct {
	EntityID   string
	FiscalYear FiscalYear
	PeriodType string
	FilingDate time.Time                      // Latest filing date among the row's facts
	Values     map[string]decimal.NullDecimal // Keyed by column (display name)
}

// Value returns the cell for column, invalid when the row has none
func (r WideRow) Value(column string) decimal.NullDecimal {
	return r.Values[column]
}

// WideTable is the denormalized projection of a fact collection
type WideTable struct {
	Columns []string // Distinct display names, sorted
	Rows    []WideRow
}

// columnName returns the wide column a fact contributes to
func columnName(f Fact) string {
	if name := CleanText(f.DisplayName); name != "" {
		return name
	}
	return CleanText(f.Item)
}

// Assemble projects facts into one row per entity, fiscal year and period
// type with one column per display name. Facts are visited in canonical
// order and when two facts land in the same cell the later one wins, unless
// it has no value and the cell already holds one.
func Assemble(facts []Fact) WideTable {
	sorted := SortCanonical(facts)

	index := make(map[string]int)
	columns := make(map[string]struct{})
	var rows []WideRow
	for _, f := range sorted {
		k := PeriodKey(f)
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, WideRow{
				EntityID:   CleanText(f.EntityID),
				FiscalYear: f.FiscalYear,
				PeriodType: CleanText(f.PeriodType),
				Values:     make(map[string]decimal.NullDecimal),
			})
		}
		row := &rows[i]
		col := columnName(f)
		columns[col] = struct{}{}
		if cur, ok := row.Values[col]; !ok || f.Value.Valid || !cur.Valid {
			row.Values[col] = f.Value
		}
		if filingAfter(f.FilingDate, row.FilingDate) {
			row.FilingDate = f.FilingDate
		}
	}

	table := WideTable{Columns: make([]string, 0, len(columns)), Rows: rows}
	for c := range columns {
		table.Columns = append(table.Columns, c)
	}
	sort.Strings(table.Columns)
	return table
}
