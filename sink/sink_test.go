package sink

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/RxDataLab/go-factsync"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func date(s string) time.Time {
	t, _ := time.Parse(factsync.DateLayout, s)
	return t
}

func sampleTable() factsync.WideTable {
	return factsync.WideTable{
		Columns: []string{"R&D Expense", "Revenue"},
		Rows: []factsync.WideRow{
			{
				EntityID: "AXON", FiscalYear: factsync.KnownYear(2023), PeriodType: "FY",
				FilingDate: date("2023-12-31"),
				Values:     map[string]decimal.NullDecimal{"Revenue": dec("1563391000"), "R&D Expense": dec("304000000")},
			},
			{
				EntityID: "AXON", FiscalYear: factsync.KnownYear(2024), PeriodType: "Q1",
				FilingDate: date("2024-03-31"),
				Values:     map[string]decimal.NullDecimal{"Revenue": dec("460700000")},
			},
			{
				// no fiscal year: cannot be keyed
				EntityID: "GE", PeriodType: "FY",
				Values: map[string]decimal.NullDecimal{"Revenue": dec("1")},
			},
		},
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"Revenue"`, quoteIdent("Revenue"))
	assert.Equal(t, `"R&D Expense"`, quoteIdent("R&D Expense"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestUpsertStatement(t *testing.T) {
	got := postgresDialect.upsert("fundamentals_wide", []string{"Revenue"})
	want := `INSERT INTO "fundamentals_wide" ("ticker", "fiscal_year", "period", "filing_date", "Revenue") ` +
		`VALUES ($1, $2, $3, $4, $5) ON CONFLICT (ticker, fiscal_year, period) ` +
		`DO UPDATE SET "filing_date" = excluded."filing_date", "Revenue" = excluded."Revenue"`
	assert.Equal(t, want, got)

	got = sqliteDialect.upsert("t", nil)
	assert.Contains(t, got, "VALUES (?, ?, ?, ?)")
}

func TestMissingColumns(t *testing.T) {
	existing := map[string]bool{"ticker": true, "Revenue": true}
	got := missingColumns(existing, []string{"Revenue", "Net Income", "Net Income", "Period", "EBIT"})
	assert.Equal(t, []string{"Net Income", "EBIT"}, got)
}

func TestPrepareRows(t *testing.T) {
	records, dropped := prepareRows(sampleTable())
	require.Len(t, records, 2)
	assert.Equal(t, 1, dropped)

	assert.Equal(t, record{"AXON", 2023, "FY", "2023-12-31", "304000000", "1563391000"}, records[0])
	assert.Equal(t, record{"AXON", 2024, "Q1", "2024-03-31", nil, "460700000"}, records[1])
}

func TestUpsertBatchesStopsAtFailingBatch(t *testing.T) {
	records := make([]record, 7)
	boom := errors.New("boom")
	var calls []int
	res, err := upsertBatches(context.Background(), zap.NewNop(), records, 3, func(_ context.Context, chunk []record) error {
		calls = append(calls, len(chunk))
		if len(calls) == 2 {
			return boom
		}
		return nil
	})

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, 3, batchErr.Size)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Result{Rows: 3, Batches: 1}, res)
	assert.Equal(t, []int{3, 3}, calls)
}

func TestUpsertBatchesSizes(t *testing.T) {
	var sizes []int
	res, err := upsertBatches(context.Background(), zap.NewNop(), make([]record, 1001), 500, func(_ context.Context, chunk []record) error {
		sizes = append(sizes, len(chunk))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{500, 500, 1}, sizes)
	assert.Equal(t, Result{Rows: 1001, Batches: 3}, res)
}

func TestSQLiteUpsert(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "factsync.db")
	s, err := NewSQLite(ctx, path, Options{BatchSize: 1})
	require.NoError(t, err)
	defer s.Close()

	table := sampleTable()
	require.NoError(t, s.EnsureTable(ctx, table.Columns))
	res, err := s.Upsert(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 2, Dropped: 1, Batches: 2}, res)

	var revenue sql.NullFloat64
	var filing sql.NullString
	err = s.DB().QueryRowContext(ctx,
		`SELECT "Revenue", filing_date FROM fundamentals_wide WHERE ticker = ? AND fiscal_year = ? AND period = ?`,
		"AXON", 2023, "FY").Scan(&revenue, &filing)
	require.NoError(t, err)
	assert.Equal(t, 1563391000.0, revenue.Float64)
	assert.Equal(t, "2023-12-31", filing.String)

	// Second push updates in place and adds the new column
	table.Columns = append(table.Columns, "Net Income")
	table.Rows[0].Values["Revenue"] = dec("1600000000")
	table.Rows[0].Values["Net Income"] = dec("174000000")
	require.NoError(t, s.EnsureTable(ctx, table.Columns))
	_, err = s.Upsert(ctx, table)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM fundamentals_wide`).Scan(&count))
	assert.Equal(t, 2, count)

	var netIncome sql.NullFloat64
	err = s.DB().QueryRowContext(ctx,
		`SELECT "Revenue", "Net Income" FROM fundamentals_wide WHERE ticker = 'AXON' AND fiscal_year = 2023`).Scan(&revenue, &netIncome)
	require.NoError(t, err)
	assert.Equal(t, 1600000000.0, revenue.Float64)
	assert.Equal(t, 174000000.0, netIncome.Float64)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), "", Options{})
	assert.Error(t, err)
}
