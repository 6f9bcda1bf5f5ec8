// Package sink pushes the wide projection into a relational table, one row
// per (ticker, fiscal_year, period), upserting on that key.
package sink

import (
	"context"
	"fmt"

	"github.com/RxDataLab/go-factsync"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultTable     = "fundamentals_wide"
	DefaultBatchSize = 500
)

// Sink receives wide tables
type Sink interface {
	// EnsureTable creates the table when missing and adds any metric column
	// it does not have yet
	EnsureTable(ctx context.Context, metrics []string) error
	// Upsert writes every row with a complete key in batches. Rows already
	// present are replaced column by column.
	Upsert(ctx context.Context, table factsync.WideTable) (Result, error)
	Close() error
}

// Options are shared by all drivers
type Options struct {
	Table     string // Default DefaultTable
	BatchSize int    // Rows per batch, default DefaultBatchSize
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Table == "" {
		o.Table = DefaultTable
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Result summarizes an Upsert
type Result = factsync.PushResult

// BatchError reports the batch that failed. Batches before Index were
// committed and stay applied.
type BatchError struct {
	Index int // Zero-based batch number
	Size  int // Rows in the failed batch
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert batch %d (%d rows): %v", e.Index+1, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Driver names accepted by Open
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and configures a Sink
type Config struct {
	Driver string // postgres|sqlite
	DSN    string // Connection string for postgres
	Path   string // Database file for sqlite
	Options
}

// Open returns the Sink selected by cfg.Driver
func Open(ctx context.Context, cfg Config) (Sink, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DSN, cfg.Options)
	case DriverSQLite:
		return NewSQLite(ctx, cfg.Path, cfg.Options)
	default:
		return nil, eris.Errorf("unknown sink driver %q", cfg.Driver)
	}
}
