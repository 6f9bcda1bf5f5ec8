package factsync

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Retriever fetches the facts of a universe; *Client implements it
type Retriever interface {
	FetchAll(ctx context.Context, u Universe, opts BatchOptions) (*BatchResult, error)
}

// PushResult summarizes a push of the wide table to a sink
type PushResult struct {
	Rows    int // Rows written
	Dropped int // Rows skipped for an incomplete key
	Batches int // Batches committed
}

// WideSink receives the wide projection
type WideSink interface {
	EnsureTable(ctx context.Context, metrics []string) error
	Upsert(ctx context.Context, table WideTable) (PushResult, error)
}

// Updater runs the incremental update and the related maintenance flows
type Updater struct {
	Retriever Retriever
	Snapshots *SnapshotStore
	Universe  Universe
	Batch     BatchOptions
	Reconcile ReconcileOptions
	Sink      WideSink // Optional
	Metrics   *Metrics // Optional
	Logger    *zap.Logger
}

// RunReport describes one run
type RunReport struct {
	RunID         string
	Started       time.Time
	Duration      time.Duration
	Existing      int     // Persisted rows after load-time collapse
	LoadCollapsed int     // Persisted rows removed by load-time collapse
	Fetched       int     // Facts retrieved
	FetchErrors   []error // Companies that could not be retrieved
	Reconcile     ReconcileReport
	Merge         MergeStats
	NewData       NewDataSummary
	Rows          int // Long rows after the run
	WideRows      int
	Pushed        *PushResult // Nil unless pushed
}

func (u *Updater) logger() *zap.Logger {
	if u.Logger == nil {
		return zap.NewNop()
	}
	return u.Logger
}

func (u *Updater) start() (*RunReport, *zap.Logger) {
	report := &RunReport{RunID: uuid.NewString(), Started: time.Now()}
	return report, u.logger().With(zap.String("run_id", report.RunID))
}

func (u *Updater) finish(report *RunReport, log *zap.Logger, err error) {
	report.Duration = time.Since(report.Started)
	u.Metrics.observeRun(report.Rows, report.Duration, err == nil)
	if err != nil {
		log.Error("run failed", zap.Duration("took", report.Duration), zap.Error(err))
		return
	}
	log.Info("run complete",
		zap.Duration("took", report.Duration),
		zap.Int("rows", report.Rows),
		zap.Int("wide_rows", report.WideRows))
}

func (u *Updater) fetch(ctx context.Context, opts BatchOptions, report *RunReport, log *zap.Logger) ([]Fact, error) {
	if u.Retriever == nil {
		return nil, eris.New("updater has no retriever")
	}
	batch, err := u.Retriever.FetchAll(ctx, u.Universe, opts)
	if err != nil {
		return nil, eris.Wrap(err, "fetch company facts")
	}
	u.Metrics.observeFetch(batch)
	report.Fetched = len(batch.Facts)
	report.FetchErrors = batch.Errors
	log.Info("fetched facts",
		zap.Int("facts", len(batch.Facts)),
		zap.Int("companies", batch.Fetched),
		zap.Int("failed", len(batch.Errors)))
	return batch.Facts, nil
}

// Run performs one incremental update: load the snapshot, fetch, reconcile,
// merge, save the long dataset, rebuild the wide view and, when push is set
// and a sink is configured, upsert it. A run that finds no new facts leaves
// the long snapshot untouched, unless loading removed duplicate periods, and
// still rebuilds the wide view.
func (u *Updater) Run(ctx context.Context, push bool) (report *RunReport, err error) {
	report, log := u.start()
	defer func() { u.finish(report, log, err) }()

	existing, collapsed, err := u.Snapshots.LoadLong(ctx)
	if err != nil {
		return report, err
	}
	report.Existing = len(existing)
	report.LoadCollapsed = collapsed
	fields := []zap.Field{zap.Int("rows", len(existing))}
	if latest := latestOf(existing); !latest.IsZero() {
		fields = append(fields, zap.String("latest_filing", latest.Format(DateLayout)))
	}
	log.Info("loaded existing dataset", fields...)

	fresh, err := u.fetch(ctx, u.Batch, report, log)
	if err != nil {
		return report, err
	}

	candidates, rr := Reconcile(existing, fresh, u.Reconcile)
	report.Reconcile = rr
	u.Metrics.observeReconcile(rr)
	log.Info("reconciled",
		zap.Stringer("prefilter", u.Reconcile.Prefilter),
		zap.Int("incoming", rr.Incoming),
		zap.Int("date_filtered", rr.DateFiltered),
		zap.Int("known", rr.Known),
		zap.Int("duplicates", rr.Duplicates),
		zap.Int("candidates", rr.Candidates))
	if rr.LateRestatements > 0 {
		log.Warn("facts newer than their period's persisted filing were dropped by the entity prefilter",
			zap.Int("facts", rr.LateRestatements))
	}

	updated := existing
	if len(candidates) == 0 {
		if collapsed > 0 {
			if err := u.Snapshots.SaveLong(ctx, SortCanonical(existing)); err != nil {
				return report, err
			}
			log.Info("no new facts, long dataset rewritten without duplicate periods")
		} else {
			log.Info("no new facts, long dataset unchanged")
		}
	} else {
		report.NewData = SummarizeNew(candidates)
		report.NewData.Log(log)

		result := Merge(existing, candidates)
		report.Merge = result.Stats
		u.Metrics.observeMerge(result.Stats)
		log.Info("merged",
			zap.Int("inserted", result.Stats.Inserted),
			zap.Int("updated", result.Stats.Updated),
			zap.Int("skipped", result.Stats.Skipped),
			zap.Int("superseded", result.Stats.Superseded),
			zap.Int("collapsed", result.Stats.Collapsed))

		updated = SortCanonical(result.Facts)
		if err := u.Snapshots.SaveLong(ctx, updated); err != nil {
			return report, err
		}
	}
	report.Rows = len(updated)

	table, err := u.rebuildWide(ctx, updated, log)
	if err != nil {
		return report, err
	}
	report.WideRows = len(table.Rows)

	if push {
		res, err := u.push(ctx, table, log)
		report.Pushed = res
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// Backfill rebuilds the long dataset from scratch using everything the
// registry returns up to cutoff (zero for no cutoff), replacing the snapshot
func (u *Updater) Backfill(ctx context.Context, cutoff time.Time, push bool) (report *RunReport, err error) {
	report, log := u.start()
	defer func() { u.finish(report, log, err) }()

	opts := u.Batch
	opts.Extract.Cutoff = cutoff
	if !cutoff.IsZero() {
		log.Info("backfilling", zap.String("cutoff", cutoff.Format(DateLayout)))
	}
	fresh, err := u.fetch(ctx, opts, report, log)
	if err != nil {
		return report, err
	}

	candidates, rr := Reconcile(nil, fresh, ReconcileOptions{})
	report.Reconcile = rr
	result := Merge(nil, candidates)
	report.Merge = result.Stats
	u.Metrics.observeMerge(result.Stats)

	facts := SortCanonical(result.Facts)
	report.Rows = len(facts)
	if err := u.Snapshots.SaveLong(ctx, facts); err != nil {
		return report, err
	}
	table, err := u.rebuildWide(ctx, facts, log)
	if err != nil {
		return report, err
	}
	report.WideRows = len(table.Rows)

	if push {
		res, err := u.push(ctx, table, log)
		report.Pushed = res
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// Pivot rebuilds the wide snapshot from the persisted long snapshot
func (u *Updater) Pivot(ctx context.Context) (WideTable, error) {
	facts, _, err := u.Snapshots.LoadLong(ctx)
	if err != nil {
		return WideTable{}, err
	}
	return u.rebuildWide(ctx, facts, u.logger())
}

// Push sends the persisted wide snapshot to the sink
func (u *Updater) Push(ctx context.Context) (*PushResult, error) {
	table, err := u.Snapshots.LoadWide(ctx)
	if err != nil {
		return nil, err
	}
	return u.push(ctx, table, u.logger())
}

func (u *Updater) rebuildWide(ctx context.Context, facts []Fact, log *zap.Logger) (WideTable, error) {
	if len(facts) == 0 {
		log.Info("no long-format data available, wide dataset not regenerated")
		return WideTable{}, nil
	}
	table := Assemble(facts)
	if err := u.Snapshots.SaveWide(ctx, table); err != nil {
		return WideTable{}, err
	}
	return table, nil
}

func (u *Updater) push(ctx context.Context, table WideTable, log *zap.Logger) (*PushResult, error) {
	if u.Sink == nil {
		return nil, eris.New("no sink configured")
	}
	if len(table.Rows) == 0 {
		log.Info("wide table is empty, nothing to push")
		return &PushResult{}, nil
	}
	if err := u.Sink.EnsureTable(ctx, table.Columns); err != nil {
		return nil, eris.Wrap(err, "prepare sink table")
	}
	res, err := u.Sink.Upsert(ctx, table)
	u.Metrics.observeSink(res.Rows)
	if err != nil {
		return &res, eris.Wrap(err, "push wide table")
	}
	log.Info("pushed wide table",
		zap.Int("rows", res.Rows),
		zap.Int("dropped", res.Dropped),
		zap.Int("batches", res.Batches))
	return &res, nil
}

func latestOf(facts []Fact) time.Time {
	var latest time.Time
	for _, f := range facts {
		if filingAfter(f.FilingDate, latest) {
			latest = f.FilingDate
		}
	}
	return latest
}

// NewDataSummary breaks down the candidates of a run
type NewDataSummary struct {
	Facts        int
	ByEntity     map[string]int
	ByMetric     map[string]int
	ByFiscalYear map[string]int // "" for unknown
	Filings      []FilingRef    // Distinct filings, canonical order
}

// FilingRef identifies one filing contributing new facts
type FilingRef struct {
	EntityID   string
	FiscalYear FiscalYear
	PeriodType string
	FilingDate time.Time
	Form       string
}

// SummarizeNew groups new facts by entity, metric, fiscal year and filing
func SummarizeNew(facts []Fact) NewDataSummary {
	s := NewDataSummary{
		Facts:        len(facts),
		ByEntity:     make(map[string]int),
		ByMetric:     make(map[string]int),
		ByFiscalYear: make(map[string]int),
	}
	seen := make(map[FilingRef]bool)
	for _, f := range SortCanonical(facts) {
		s.ByEntity[f.EntityID]++
		s.ByMetric[columnName(f)]++
		s.ByFiscalYear[f.FiscalYear.String()]++
		ref := FilingRef{
			EntityID:   f.EntityID,
			FiscalYear: f.FiscalYear,
			PeriodType: f.PeriodType,
			FilingDate: f.FilingDate,
			Form:       f.Form,
		}
		if !seen[ref] {
			seen[ref] = true
			s.Filings = append(s.Filings, ref)
		}
	}
	return s
}

// Log writes the summary: totals at info level, one line per filing at debug
func (s NewDataSummary) Log(log *zap.Logger) {
	log.Info("new data",
		zap.Int("facts", s.Facts),
		zap.Any("by_entity", s.ByEntity),
		zap.Any("by_metric", s.ByMetric),
		zap.Any("by_fiscal_year", s.ByFiscalYear),
		zap.Int("filings", len(s.Filings)))
	for _, f := range s.Filings {
		date := ""
		if !f.FilingDate.IsZero() {
			date = f.FilingDate.Format(DateLayout)
		}
		log.Debug("new filing",
			zap.String("entity", f.EntityID),
			zap.String("fiscal_year", f.FiscalYear.String()),
			zap.String("period", f.PeriodType),
			zap.String("filing_date", date),
			zap.String("form", f.Form))
	}
}

// SortedKeys returns the keys of a count map ordered by count descending,
// then key
func SortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
