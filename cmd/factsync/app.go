package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RxDataLab/go-factsync"
	"github.com/RxDataLab/go-factsync/sink"
	"github.com/RxDataLab/go-factsync/store"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Global flags, shared by every subcommand
var (
	envFile      = flag.String("env", ".env", "Path to a .env file loaded before reading the environment.")
	universeFile = flag.String("universe", "", "YAML file listing tickers and CIKs (default: built-in list, or FACTSYNC_UNIVERSE).")
	tickers      = flag.String("tickers", "", "Comma separated subset of the universe to process.")
	email        = flag.String("email", "", "Email for the SEC User-Agent header (or use SEC_EMAIL).")
	verbose      = flag.Bool("v", false, "Verbose (development) logging.")
)

type app struct {
	cfg     factsync.Config
	log     *zap.Logger
	metrics *factsync.Metrics
	updater *factsync.Updater
	sink    sink.Sink
}

type appOptions struct {
	client bool // Build the SEC client
	sink   bool // Open the configured sink
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	if *email != "" {
		if err := os.Setenv(factsync.SecEmailEnvVar, *email); err != nil {
			return nil, err
		}
	}
	cfg, err := factsync.LoadConfig(*envFile)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(*verbose)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, metrics: factsync.NewMetrics()}

	path := cfg.UniverseFile
	if *universeFile != "" {
		path = *universeFile
	}
	universe, err := factsync.LoadUniverse(path)
	if err != nil {
		return nil, err
	}
	if *tickers != "" {
		universe = universe.Filter(strings.Split(*tickers, ",")...)
		if len(universe.Companies) == 0 {
			return nil, eris.Errorf("no company in the universe matches -tickers %q", *tickers)
		}
	}

	blobs, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, err
	}

	a.updater = &factsync.Updater{
		Snapshots: factsync.NewSnapshotStore(blobs, cfg.LongKey, cfg.WideKey, log),
		Universe:  universe,
		Batch: factsync.BatchOptions{
			Concepts:    factsync.DefaultConcepts(),
			Extract:     factsync.ExtractOptions{Forms: cfg.Forms},
			Concurrency: cfg.Concurrency,
		},
		Reconcile: factsync.ReconcileOptions{Prefilter: cfg.PrefilterPolicy()},
		Metrics:   a.metrics,
		Logger:    log,
	}

	if opts.client {
		client, err := factsync.NewClient(cfg.ClientConfig(log))
		if err != nil {
			return nil, err
		}
		a.updater.Retriever = client
	}
	if opts.sink {
		if cfg.SinkDriver == "" {
			return nil, eris.New("no sink configured: set FACTSYNC_SINK_DRIVER to postgres or sqlite")
		}
		s, err := sink.Open(ctx, sink.Config{
			Driver: cfg.SinkDriver,
			DSN:    cfg.DatabaseURL,
			Path:   cfg.SQLitePath,
			Options: sink.Options{
				Table:     cfg.SinkTable,
				BatchSize: cfg.SinkBatchSize,
				Logger:    log,
			},
		})
		if err != nil {
			return nil, err
		}
		a.sink = s
		a.updater.Sink = s
	}
	return a, nil
}

// close flushes logs, closes the sink and writes the metrics textfile
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.log.Warn("metrics not written", zap.Error(err))
	}
	if a.sink != nil {
		_ = a.sink.Close()
	}
	_ = a.log.Sync()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func printReport(r *factsync.RunReport) {
	fmt.Printf("Run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Printf("  Loaded %d existing rows", r.Existing)
	if r.LoadCollapsed > 0 {
		fmt.Printf(" (%d duplicate periods removed)", r.LoadCollapsed)
	}
	fmt.Println()
	fmt.Printf("  Fetched %d facts", r.Fetched)
	if len(r.FetchErrors) > 0 {
		fmt.Printf(", %d companies failed", len(r.FetchErrors))
	}
	fmt.Println()
	for _, err := range r.FetchErrors {
		fmt.Printf("    %v\n", err)
	}
	if r.Reconcile.Candidates == 0 {
		fmt.Println("  No new fundamentals; long dataset unchanged")
	} else {
		fmt.Printf("  %d new facts\n", r.Reconcile.Candidates)
		for _, t := range factsync.SortedKeys(r.NewData.ByEntity) {
			fmt.Printf("    %s: %d\n", t, r.NewData.ByEntity[t])
		}
	}
	m := r.Merge
	if m.Processed() > 0 {
		fmt.Printf("  Inserted: %d  Updated: %d  Skipped: %d  Superseded: %d  Collapsed: %d\n",
			m.Inserted, m.Updated, m.Skipped, m.Superseded, m.Collapsed)
	}
	fmt.Printf("  Long rows: %d  Wide rows: %d\n", r.Rows, r.WideRows)
	if r.Pushed != nil {
		fmt.Printf("  Pushed %d rows in %d batches (%d dropped)\n", r.Pushed.Rows, r.Pushed.Batches, r.Pushed.Dropped)
	}
}
