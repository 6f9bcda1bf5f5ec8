package sink

import (
	"context"

	"github.com/RxDataLab/go-factsync"
	"go.uber.org/zap"
)

// Key columns of the sink table, in order
var keyColumns = []string{"ticker", "fiscal_year", "period", "filing_date"}

// record is one row ready for binding: key values then one value per metric
type record []any

// prepareRows converts wide rows into records in table column order.
// Rows without a ticker, fiscal year or period cannot be keyed and are dropped.
func prepareRows(table factsync.WideTable) ([]record, int) {
	records := make([]record, 0, len(table.Rows))
	dropped := 0
	for _, row := range table.Rows {
		ticker := factsync.CleanText(row.EntityID)
		period := factsync.CleanText(row.PeriodType)
		if ticker == "" || period == "" || !row.FiscalYear.Valid {
			dropped++
			continue
		}
		rec := make(record, 0, len(keyColumns)+len(table.Columns))
		rec = append(rec, ticker, row.FiscalYear.Year, period)
		if row.FilingDate.IsZero() {
			rec = append(rec, nil)
		} else {
			rec = append(rec, row.FilingDate.Format(factsync.DateLayout))
		}
		for _, col := range table.Columns {
			v := row.Value(col)
			if !v.Valid {
				rec = append(rec, nil)
				continue
			}
			rec = append(rec, v.Decimal.String())
		}
		records = append(records, rec)
	}
	return records, dropped
}

// upsertBatches splits records into batches of size and hands each to exec.
// The first failing batch stops the run with a *BatchError.
func upsertBatches(ctx context.Context, log *zap.Logger, records []record, size int, exec func(context.Context, []record) error) (Result, error) {
	var res Result
	total := (len(records) + size - 1) / size
	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		chunk := records[i:end]
		batch := i / size
		if err := exec(ctx, chunk); err != nil {
			return res, &BatchError{Index: batch, Size: len(chunk), Err: err}
		}
		res.Batches++
		res.Rows += len(chunk)
		if (batch+1)%10 == 0 || batch+1 == total {
			log.Info("upserted batch",
				zap.Int("batch", batch+1),
				zap.Int("batches", total),
				zap.Int("rows", len(chunk)))
		}
	}
	return res, nil
}
