package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/RxDataLab/go-factsync"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLite upserts into a table of a local SQLite database
type SQLite struct {
	db   *sql.DB
	opts Options
}

// NewSQLite opens (creating if needed) the database file at path
func NewSQLite(ctx context.Context, path string, opts Options) (*SQLite, error) {
	if path == "" {
		path = "factsync.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, eris.Wrapf(err, "create dirs for %s", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "open sqlite")
	}
	return &SQLite{db: db, opts: opts.withDefaults()}, nil
}

func (s *SQLite) EnsureTable(ctx context.Context, metrics []string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDialect.createTable(s.opts.Table)); err != nil {
		return eris.Wrapf(err, "create table %s", s.opts.Table)
	}
	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}
	for _, col := range missingColumns(existing, metrics) {
		if _, err := s.db.ExecContext(ctx, sqliteDialect.addColumn(s.opts.Table, col)); err != nil {
			return eris.Wrapf(err, "add column %q", col)
		}
		s.opts.Logger.Info("added sink column", zap.String("table", s.opts.Table), zap.String("column", col))
	}
	return nil
}

func (s *SQLite) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, s.opts.Table)
	if err != nil {
		return nil, eris.Wrapf(err, "list columns of %s", s.opts.Table)
	}
	defer func() { _ = rows.Close() }()
	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "scan column name")
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Upsert writes each batch in its own transaction with a prepared statement
func (s *SQLite) Upsert(ctx context.Context, table factsync.WideTable) (Result, error) {
	records, dropped := prepareRows(table)
	if dropped > 0 {
		s.opts.Logger.Warn("dropped rows with incomplete key", zap.Int("rows", dropped))
	}
	query := sqliteDialect.upsert(s.opts.Table, table.Columns)

	res, err := upsertBatches(ctx, s.opts.Logger, records, s.opts.BatchSize, func(ctx context.Context, chunk []record) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer func() { _ = stmt.Close() }()
		for _, rec := range chunk {
			if _, err := stmt.ExecContext(ctx, rec...); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	res.Dropped = dropped
	return res, err
}

// DB exposes the underlying handle for reads
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error { return s.db.Close() }
