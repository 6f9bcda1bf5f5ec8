package factsync_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RxDataLab/go-factsync"
	"github.com/RxDataLab/go-factsync/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRetriever struct {
	facts []factsync.Fact
	err   error
	calls []factsync.BatchOptions
}

func (r *fakeRetriever) FetchAll(_ context.Context, u factsync.Universe, opts factsync.BatchOptions) (*factsync.BatchResult, error) {
	r.calls = append(r.calls, opts)
	if r.err != nil {
		return nil, r.err
	}
	res := &factsync.BatchResult{
		Facts:      append([]factsync.Fact(nil), r.facts...),
		PerEntity:  make(map[string]int),
		TotalFound: len(u.Companies),
		Fetched:    len(u.Companies),
	}
	for _, f := range r.facts {
		res.PerEntity[f.EntityID]++
	}
	return res, nil
}

type fakeSink struct {
	ensured [][]string
	tables  []factsync.WideTable
	err     error
}

func (s *fakeSink) EnsureTable(_ context.Context, metrics []string) error {
	s.ensured = append(s.ensured, metrics)
	return nil
}

func (s *fakeSink) Upsert(_ context.Context, table factsync.WideTable) (factsync.PushResult, error) {
	if s.err != nil {
		return factsync.PushResult{}, s.err
	}
	s.tables = append(s.tables, table)
	return factsync.PushResult{Rows: len(table.Rows), Batches: 1}, nil
}

// countingStore records how often each key is written
type countingStore struct {
	*store.Memory
	puts map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory(), puts: make(map[string]int)}
}

func (s *countingStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (store.Info, error) {
	s.puts[key]++
	return s.Memory.Put(ctx, key, r, contentType)
}

func newTestUpdater(r factsync.Retriever, s store.Store) *factsync.Updater {
	return &factsync.Updater{
		Retriever: r,
		Snapshots: factsync.NewSnapshotStore(s, "", "", nil),
		Universe: factsync.Universe{Companies: []factsync.Company{
			{Ticker: "ACME", CIK: "0000000001"},
			{Ticker: "ZETA", CIK: "0000000002"},
		}},
	}
}

func firstRound() []factsync.Fact {
	return []factsync.Fact{
		fact("ACME", "Revenue", 2023, "FY", "2024-02-01", "100"),
		fact("ACME", "Assets", 2023, "FY", "2024-02-01", "500"),
		fact("ZETA", "Revenue", 2023, "FY", "2024-03-01", "9"),
	}
}

func readLong(t *testing.T, s store.Store) []factsync.Fact {
	t.Helper()
	rc, err := s.Get(context.Background(), factsync.DefaultLongKey)
	require.NoError(t, err)
	defer rc.Close()
	facts, err := factsync.ReadLongCSV(rc)
	require.NoError(t, err)
	return facts
}

func TestRunIncremental(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	r := &fakeRetriever{facts: firstRound()}
	u := newTestUpdater(r, s)

	report, err := u.Run(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, factsync.MergeStats{Inserted: 3}, report.Merge)
	assert.Equal(t, 3, report.NewData.Facts)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 2, report.WideRows)
	assert.Nil(t, report.Pushed)

	// same data again: nothing new, long snapshot untouched, wide rebuilt
	report, err = u.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Existing)
	assert.Equal(t, 3, report.Reconcile.DateFiltered)
	assert.Zero(t, report.Reconcile.Candidates)
	assert.Zero(t, report.Merge.Processed())
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 1, s.puts[factsync.DefaultLongKey])
	assert.Equal(t, 2, s.puts[factsync.DefaultWideKey])

	// an amended value and a new quarter
	r.facts = append(firstRound(),
		fact("ACME", "Revenue", 2023, "FY", "2024-08-15", "110"),
		fact("ACME", "Revenue", 2024, "Q1", "2024-09-01", "30"),
	)
	report, err = u.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, factsync.MergeStats{Inserted: 1, Updated: 1}, report.Merge)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 3, report.WideRows)

	long := readLong(t, s)
	require.Len(t, long, 4)
	for _, f := range long {
		if f.EntityID == "ACME" && f.Item == "Revenue" && f.PeriodType == "FY" {
			assert.Equal(t, "110", f.Value.Decimal.String())
			assert.Equal(t, "2024-08-15", f.FilingDateString())
		}
	}

	table, err := u.Snapshots.LoadWide(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets", "Revenue"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "110", table.Rows[0].Value("Revenue").Decimal.String())
}

func TestRunLogsLateRestatements(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	s := store.NewMemory()
	require.NoError(t, factsync.NewSnapshotStore(s, "", "", nil).SaveLong(ctx, []factsync.Fact{
		fact("ACME", "Assets", 2023, "FY", "2024-02-01", "500"),
		fact("ACME", "Revenue", 2024, "Q1", "2024-09-01", "30"),
	}))

	r := &fakeRetriever{facts: []factsync.Fact{
		fact("ACME", "Assets", 2023, "FY", "2024-04-01", "505"),
	}}
	u := newTestUpdater(r, s)
	u.Logger = zap.New(core)

	report, err := u.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reconcile.LateRestatements)
	assert.Zero(t, report.Reconcile.Candidates)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterMessage("no new facts, long dataset unchanged").Len())

	u.Reconcile.Prefilter = factsync.PrefilterPeriod
	report, err = u.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, factsync.MergeStats{Updated: 1}, report.Merge)
}

func TestRunCollapsesLoadedSnapshot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var buf bytes.Buffer
	require.NoError(t, factsync.WriteLongCSV(&buf, []factsync.Fact{
		fact("ACME", "Revenue", 2023, "FY", "2024-02-01", "100"),
		fact("ACME", "Revenue", 2023, "FY", "2024-06-01", "98"),
	}))
	_, err := s.Put(ctx, factsync.DefaultLongKey, &buf, "text/csv")
	require.NoError(t, err)

	u := newTestUpdater(&fakeRetriever{}, s)
	report, err := u.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LoadCollapsed)
	assert.Equal(t, 1, report.Existing)
	assert.Equal(t, 1, report.WideRows)

	long := readLong(t, s)
	require.Len(t, long, 1)
	assert.Equal(t, "2024-06-01", long[0].FilingDateString())

	report, err = u.Run(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, report.LoadCollapsed)
}

func TestRunFetchError(t *testing.T) {
	u := newTestUpdater(&fakeRetriever{err: context.DeadlineExceeded}, store.NewMemory())
	_, err := u.Run(context.Background(), false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	u.Retriever = nil
	_, err = u.Run(context.Background(), false)
	assert.Error(t, err)
}

func TestRunPush(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	u := newTestUpdater(&fakeRetriever{facts: firstRound()}, store.NewMemory())
	u.Sink = sink

	report, err := u.Run(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, report.Pushed)
	assert.Equal(t, 2, report.Pushed.Rows)
	require.Len(t, sink.ensured, 1)
	assert.Equal(t, []string{"Assets", "Revenue"}, sink.ensured[0])

	res, err := u.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	require.Len(t, sink.tables, 2)
	assert.Equal(t, "500", sink.tables[1].Rows[0].Value("Assets").Decimal.String())

	sink.err = errors.New("connection reset")
	_, err = u.Push(ctx)
	assert.Error(t, err)
}

func TestRunReportsPartialPush(t *testing.T) {
	ctx := context.Background()
	sink := &partialSink{applied: factsync.PushResult{Rows: 500, Batches: 1}}
	u := newTestUpdater(&fakeRetriever{facts: firstRound()}, store.NewMemory())
	u.Sink = sink

	report, err := u.Run(ctx, true)
	require.Error(t, err)
	require.NotNil(t, report.Pushed)
	assert.Equal(t, 500, report.Pushed.Rows)
	assert.Equal(t, 1, report.Pushed.Batches)

	report, err = u.Backfill(ctx, time.Time{}, true)
	require.Error(t, err)
	require.NotNil(t, report.Pushed)
	assert.Equal(t, 500, report.Pushed.Rows)
}

// partialSink commits some batches before failing
type partialSink struct {
	applied factsync.PushResult
}

func (s *partialSink) EnsureTable(context.Context, []string) error { return nil }

func (s *partialSink) Upsert(context.Context, factsync.WideTable) (factsync.PushResult, error) {
	return s.applied, errors.New("batch 2 failed")
}

func TestPushWithoutSink(t *testing.T) {
	u := newTestUpdater(&fakeRetriever{facts: firstRound()}, store.NewMemory())
	_, err := u.Run(context.Background(), true)
	assert.Error(t, err)
}

func TestPushEmptyWide(t *testing.T) {
	sink := &fakeSink{}
	u := newTestUpdater(nil, store.NewMemory())
	u.Sink = sink
	res, err := u.Push(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, sink.ensured)
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	u := newTestUpdater(&fakeRetriever{facts: firstRound()}, s)
	_, err := u.Run(ctx, false)
	require.NoError(t, err)

	dup := fact("ZETA", "Assets", 2022, "FY", "2023-03-01", "70")
	r := &fakeRetriever{facts: []factsync.Fact{dup, dup}}
	u.Retriever = r
	cutoff := day("2023-12-31")
	report, err := u.Backfill(ctx, cutoff, false)
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, cutoff, r.calls[0].Extract.Cutoff)
	assert.Equal(t, 1, report.Reconcile.Duplicates)
	assert.Equal(t, 1, report.Rows)

	long := readLong(t, s)
	require.Len(t, long, 1)
	assert.Equal(t, "ZETA", long[0].EntityID)
}

func TestPivot(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	u := newTestUpdater(nil, s)

	table, err := u.Pivot(ctx)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.Zero(t, s.puts[factsync.DefaultWideKey])

	require.NoError(t, u.Snapshots.SaveLong(ctx, []factsync.Fact{
		fact("ACME", "Revenue", 2023, "FY", "2024-02-01", "100"),
		fact("ACME", "Revenue", 2023, "FY", "2024-06-01", "98"),
	}))
	table, err = u.Pivot(ctx)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "98", table.Rows[0].Value("Revenue").Decimal.String())
	assert.Equal(t, 1, s.puts[factsync.DefaultWideKey])
}

func TestRunMetrics(t *testing.T) {
	u := newTestUpdater(&fakeRetriever{facts: firstRound()}, store.NewMemory())
	u.Metrics = factsync.NewMetrics()
	_, err := u.Run(context.Background(), false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "factsync.prom")
	require.NoError(t, u.Metrics.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `factsync_merge_outcomes_total{outcome="inserted"} 3`)
	assert.Contains(t, text, `factsync_facts_fetched_total{entity="ACME"} 2`)
	assert.Contains(t, text, "factsync_dataset_rows 3")

	var nilMetrics *factsync.Metrics
	assert.NoError(t, nilMetrics.WriteTextfile(path))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	u := newTestUpdater(nil, store.NewMemory())

	report, err := u.Check(ctx, 2024, "")
	require.NoError(t, err)
	assert.Zero(t, report.Rows)

	require.NoError(t, u.Snapshots.SaveLong(ctx, firstRound()))
	report, err = u.Check(ctx, 2024, "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 3, report.FiledInYear)

	report, err = u.Check(ctx, 2024, "Revenue")
	require.NoError(t, err)
	assert.Equal(t, "Revenue", report.Metric)
	assert.Equal(t, 2, report.Rows)

	_, err = u.Check(ctx, 2024, "Market Cap")
	assert.ErrorContains(t, err, "Total Assets")
}

func TestFilterMetric(t *testing.T) {
	byTag := fact("ACME", "Revenues", 2023, "FY", "2024-02-01", "1")
	byTag.DisplayName = ""
	facts := []factsync.Fact{
		byTag,
		fact("ACME", "Assets", 2023, "FY", "2024-02-01", "2"),
		fact("ZETA", "Revenue", 2023, "FY", "2024-02-01", "3"),
	}
	got, err := factsync.FilterMetric(facts, factsync.DefaultConcepts(), "Revenue")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Revenues", got[0].Item)
	assert.Equal(t, "ZETA", got[1].EntityID)
}

func TestCheckDates(t *testing.T) {
	unknownYear := fact("ZETA", "Revenue", 0, "FY", "2022-03-01", "1")
	unknownYear.FiscalYear = factsync.FiscalYear{}
	facts := []factsync.Fact{
		fact("ACME", "Revenue", 2023, "FY", "2024-02-01", "1"),
		fact("ACME", "Revenue", 2024, "Q1", "2024-05-01", "2"),
		fact("ACME", "Revenue", 2024, "Q2", "", "3"),
		unknownYear,
	}

	r := factsync.CheckDates(facts, 2024)
	assert.Equal(t, 4, r.Rows)
	assert.Equal(t, day("2022-03-01"), r.FirstFiling)
	assert.Equal(t, day("2024-05-01"), r.LastFiling)
	assert.Equal(t, 2, r.FiledInYear)
	assert.Len(t, r.FiledInYearSample, 2)
	assert.Equal(t, factsync.KnownYear(2023), r.FirstFiscalYear)
	assert.Equal(t, factsync.KnownYear(2024), r.LastFiscalYear)
	assert.Equal(t, []int{2023, 2024}, r.RecentYears)
	assert.Equal(t, 2, r.FiscalYearRows)
	assert.Equal(t, [2]time.Time{day("2024-05-01"), day("2024-05-01")}, r.FiscalYearFiling)
}

func TestCheckDatesRecentYears(t *testing.T) {
	var facts []factsync.Fact
	for y := 2010; y <= 2021; y++ {
		facts = append(facts, fact("ACME", "Revenue", y, "FY", "", "1"))
	}
	r := factsync.CheckDates(facts, 2030)
	assert.Len(t, r.RecentYears, 10)
	assert.Equal(t, 2012, r.RecentYears[0])
	assert.Equal(t, factsync.KnownYear(2010), r.FirstFiscalYear)
	assert.True(t, r.FirstFiling.IsZero())
	assert.Zero(t, r.FiscalYearRows)
	assert.Len(t, r.FiscalYearSample, 0)
}

func TestSummarizeNew(t *testing.T) {
	unknownYear := fact("ZETA", "Assets", 0, "FY", "2024-05-01", "4")
	unknownYear.FiscalYear = factsync.FiscalYear{}
	s := factsync.SummarizeNew([]factsync.Fact{
		fact("ACME", "Revenue", 2023, "FY", "2024-02-01", "1"),
		fact("ACME", "Assets", 2023, "FY", "2024-02-01", "2"),
		fact("ZETA", "Revenue", 2024, "Q1", "2024-05-01", "3"),
		unknownYear,
	})

	assert.Equal(t, 4, s.Facts)
	assert.Equal(t, map[string]int{"ACME": 2, "ZETA": 2}, s.ByEntity)
	assert.Equal(t, map[string]int{"Revenue": 2, "Assets": 2}, s.ByMetric)
	assert.Equal(t, map[string]int{"2023": 2, "2024": 1, "": 1}, s.ByFiscalYear)
	require.Len(t, s.Filings, 3)
	assert.Equal(t, "ACME", s.Filings[0].EntityID)
	assert.Equal(t, "Q1", s.Filings[1].PeriodType)
	assert.False(t, s.Filings[2].FiscalYear.Valid)

	s.Log(zap.NewNop())
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"b", "c", "a"}, factsync.SortedKeys(map[string]int{"a": 1, "b": 3, "c": 3}))
	assert.Empty(t, factsync.SortedKeys(nil))
}
