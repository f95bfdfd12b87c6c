// Package metrics exposes replication cycle results as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync"
)

// Collector tracks cycle results. It implements both rowsync.Observer and
// prometheus.Collector.
type Collector struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	loaded        *prometheus.CounterVec
	synced        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	errors        *prometheus.CounterVec
	ledger        prometheus.GaugeFunc
}

// NewCollector returns a Collector using buckets for the cycle duration
// histogram. Ledger may be nil.
func NewCollector(buckets []float64, ledger *rowsync.ErrorLedger) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowsync_cycles_total",
			Help: "Number of replication cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rowsync_cycle_duration_seconds",
			Help:    "The time spent performing a single replication cycle.",
			Buckets: buckets,
		}),
		loaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowsync_rows_loaded_total",
			Help: "Number of rows loaded from the source for replication.",
		}, []string{"entity"}),
		synced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowsync_rows_synced_total",
			Help: "Number of rows written to a target.",
		}, []string{"entity", "target"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowsync_rows_skipped_total",
			Help: "Number of rows left out for a target after failing too often.",
		}, []string{"entity"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowsync_errors_total",
			Help: "Number of errors recorded by replication cycles.",
		}, []string{"entity"}),
	}

	if ledger != nil {
		c.ledger = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rowsync_ledger_entries",
			Help: "Number of row and target pairs with recorded write failures.",
		}, func() float64 { return float64(ledger.Len()) })
	}

	return c
}

// ObserveCycle records the result of a cycle.
func (c *Collector) ObserveCycle(res rowsync.Result) {
	if res.Skipped {
		c.cycles.WithLabelValues("skipped").Inc()
		return
	}

	c.cycleDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

	if len(res.Errors()) > 0 {
		c.cycles.WithLabelValues("failure").Inc()
	} else {
		c.cycles.WithLabelValues("success").Inc()
	}

	if len(res.Failures) > 0 {
		c.errors.WithLabelValues("").Add(float64(len(res.Failures)))
	}

	for _, e := range res.Entities {
		c.loaded.WithLabelValues(e.Entity).Add(float64(e.Loaded))
		for target, n := range e.Synced {
			c.synced.WithLabelValues(e.Entity, target).Add(float64(n))
		}
		if e.Skipped > 0 {
			c.skipped.WithLabelValues(e.Entity).Add(float64(e.Skipped))
		}
		if len(e.Errors) > 0 {
			c.errors.WithLabelValues(e.Entity).Add(float64(len(e.Errors)))
		}
	}
}

// Describe sends the descriptors of every metric the collector exports.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect sends the current values of the cycle metrics and, when a ledger
// is set, the number of ledger entries.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.cycles.Collect(ch)
	c.cycleDuration.Collect(ch)
	c.loaded.Collect(ch)
	c.synced.Collect(ch)
	c.skipped.Collect(ch)
	c.errors.Collect(ch)
	if c.ledger != nil {
		c.ledger.Collect(ch)
	}
}
