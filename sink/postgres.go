package sink

import (
	"context"

	"github.com/RxDataLab/go-factsync"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Postgres upserts into a PostgreSQL table through a pgx pool
type Postgres struct {
	pool *pgxpool.Pool
	opts Options
	own  bool
}

// NewPostgres connects to dsn and verifies the connection
func NewPostgres(ctx context.Context, dsn string, opts Options) (*Postgres, error) {
	if dsn == "" {
		return nil, eris.New("postgres sink requires DATABASE_URL")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "parse database config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, eris.Wrap(err, "connect to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping postgres")
	}
	p := NewPostgresFromPool(pool, opts)
	p.own = true
	return p, nil
}

// NewPostgresFromPool uses an existing pool; Close leaves it open
func NewPostgresFromPool(pool *pgxpool.Pool, opts Options) *Postgres {
	return &Postgres{pool: pool, opts: opts.withDefaults()}
}

func (p *Postgres) EnsureTable(ctx context.Context, metrics []string) error {
	if _, err := p.pool.Exec(ctx, postgresDialect.createTable(p.opts.Table)); err != nil {
		return eris.Wrapf(err, "create table %s", p.opts.Table)
	}
	rows, err := p.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
		p.opts.Table)
	if err != nil {
		return eris.Wrapf(err, "list columns of %s", p.opts.Table)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return eris.Wrapf(err, "list columns of %s", p.opts.Table)
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}
	for _, col := range missingColumns(existing, metrics) {
		if _, err := p.pool.Exec(ctx, postgresDialect.addColumn(p.opts.Table, col)); err != nil {
			return eris.Wrapf(err, "add column %q", col)
		}
		p.opts.Logger.Info("added sink column", zap.String("table", p.opts.Table), zap.String("column", col))
	}
	return nil
}

// Upsert sends each batch as a pgx.Batch inside its own transaction
func (p *Postgres) Upsert(ctx context.Context, table factsync.WideTable) (Result, error) {
	records, dropped := prepareRows(table)
	if dropped > 0 {
		p.opts.Logger.Warn("dropped rows with incomplete key", zap.Int("rows", dropped))
	}
	query := postgresDialect.upsert(p.opts.Table, table.Columns)

	res, err := upsertBatches(ctx, p.opts.Logger, records, p.opts.BatchSize, func(ctx context.Context, chunk []record) error {
		return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, rec := range chunk {
				batch.Queue(query, rec...)
			}
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	res.Dropped = dropped
	return res, err
}

func (p *Postgres) Close() error {
	if p.own {
		p.pool.Close()
	}
	return nil
}
