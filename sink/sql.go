package sink

import (
	"fmt"
	"strings"
)

// dialect captures the SQL differences between drivers
type dialect struct {
	name        string
	placeholder func(n int) string // n is one-based
	numericType string
	dateType    string
}

var (
	postgresDialect = dialect{
		name:        DriverPostgres,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		numericType: "NUMERIC",
		dateType:    "DATE",
	}
	sqliteDialect = dialect{
		name:        DriverSQLite,
		placeholder: func(int) string { return "?" },
		numericType: "NUMERIC",
		dateType:    "TEXT",
	}
)

// quoteIdent quotes an identifier so metric names such as "R&D Expense" are
// usable as column names
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d dialect) createTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ticker TEXT NOT NULL,
	fiscal_year INTEGER NOT NULL,
	period TEXT NOT NULL,
	filing_date %s,
	PRIMARY KEY (ticker, fiscal_year, period)
)`, quoteIdent(table), d.dateType)
}

func (d dialect) addColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(column), d.numericType)
}

// upsert returns a single-row upsert for the key columns followed by metrics
func (d dialect) upsert(table string, metrics []string) string {
	cols := make([]string, 0, len(keyColumns)+len(metrics))
	for _, c := range keyColumns {
		cols = append(cols, quoteIdent(c))
	}
	for _, m := range metrics {
		cols = append(cols, quoteIdent(m))
	}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = d.placeholder(i + 1)
	}
	// Everything but the conflict target is refreshed
	sets := make([]string, 0, len(cols)-3)
	for _, c := range cols[3:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (ticker, fiscal_year, period) DO UPDATE SET %s",
		quoteIdent(table),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ", "))
	return b.String()
}

// missingColumns returns the metrics not present in existing, in input order
func missingColumns(existing map[string]bool, metrics []string) []string {
	var out []string
	seen := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		if existing[m] || seen[m] {
			continue
		}
		for _, k := range keyColumns {
			if strings.EqualFold(m, k) {
				m = ""
				break
			}
		}
		if m == "" {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
