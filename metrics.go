package factsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metrics holds the run counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	factsFetched *prometheus.CounterVec
	fetchErrors  prometheus.Counter
	candidates   prometheus.Counter
	outcomes     *prometheus.CounterVec
	collapsed    prometheus.Counter
	datasetRows  prometheus.Gauge
	sinkRows     prometheus.Counter
	runDuration  prometheus.Gauge
	lastSuccess  prometheus.Gauge
	lateRestated prometheus.Counter
}

// NewMetrics creates and registers the factsync collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		factsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factsync_facts_fetched_total",
			Help: "Facts retrieved from the registry, by entity.",
		}, []string{"entity"}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factsync_fetch_errors_total",
			Help: "Companies that could not be retrieved.",
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factsync_candidates_total",
			Help: "Facts passed from reconciliation to merge.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factsync_merge_outcomes_total",
			Help: "Merge classification of candidate facts.",
		}, []string{"outcome"}),
		collapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factsync_collapsed_rows_total",
			Help: "Rows removed by period collapse.",
		}),
		datasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factsync_dataset_rows",
			Help: "Rows in the long dataset after the last run.",
		}),
		sinkRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factsync_sink_rows_total",
			Help: "Wide rows upserted into the sink.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factsync_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factsync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		lateRestated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factsync_late_restatements_total",
			Help: "Incoming facts dropped by the entity prefilter that a per-period check would keep.",
		}),
	}
	m.Registry.MustRegister(
		m.factsFetched, m.fetchErrors, m.candidates, m.outcomes, m.collapsed,
		m.datasetRows, m.sinkRows, m.runDuration, m.lastSuccess, m.lateRestated,
	)
	return m
}

func (m *Metrics) observeFetch(b *BatchResult) {
	if m == nil || b == nil {
		return
	}
	for entity, n := range b.PerEntity {
		m.factsFetched.WithLabelValues(entity).Add(float64(n))
	}
	m.fetchErrors.Add(float64(len(b.Errors)))
}

func (m *Metrics) observeReconcile(r ReconcileReport) {
	if m == nil {
		return
	}
	m.candidates.Add(float64(r.Candidates))
	m.lateRestated.Add(float64(r.LateRestatements))
}

func (m *Metrics) observeMerge(s MergeStats) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(Inserted.String()).Add(float64(s.Inserted))
	m.outcomes.WithLabelValues(Updated.String()).Add(float64(s.Updated))
	m.outcomes.WithLabelValues(Skipped.String()).Add(float64(s.Skipped))
	m.outcomes.WithLabelValues(Superseded.String()).Add(float64(s.Superseded))
	m.collapsed.Add(float64(s.Collapsed))
}

func (m *Metrics) observeSink(rows int) {
	if m == nil {
		return
	}
	m.sinkRows.Add(float64(rows))
}

func (m *Metrics) observeRun(rows int, took time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.runDuration.Set(took.Seconds())
	if ok {
		m.datasetRows.Set(float64(rows))
		m.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
