// Package metrics exposes Prometheus collectors for live tables.
//
// Collectors are registered on a caller-provided registerer so that tests
// and embedding programs control exposure. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors shared by every table of a process.
type Metrics struct {
	// QueriesCreated counts constructed queries by table and kind.
	QueriesCreated *prometheus.CounterVec
	// CacheLookups counts query cache lookups by table and result (hit, miss).
	CacheLookups *prometheus.CounterVec
	// Dispatches counts row mutations routed to queries by table and change.
	Dispatches *prometheus.CounterVec
	// Flushes counts delivered notification flushes by table.
	Flushes *prometheus.CounterVec
	// Reclaimed counts index and cache entries pruned after collection.
	Reclaimed *prometheus.CounterVec
	// LiveQueries is the number of indexed, not yet reclaimed, queries.
	LiveQueries *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueriesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livetable_queries_created_total",
				Help: "Total number of live queries constructed",
			},
			[]string{"table", "kind"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livetable_cache_lookups_total",
				Help: "Total number of query cache lookups",
			},
			[]string{"table", "result"},
		),
		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livetable_dispatches_total",
				Help: "Total number of row mutations routed to live queries",
			},
			[]string{"table", "change"},
		),
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livetable_flushes_total",
				Help: "Total number of notification flushes delivered",
			},
			[]string{"table"},
		),
		Reclaimed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livetable_reclaimed_total",
				Help: "Total number of entries pruned after their query was collected",
			},
			[]string{"table"},
		),
		LiveQueries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "livetable_live_queries",
				Help: "Number of indexed live queries",
			},
			[]string{"table"},
		),
	}
}

// QueryCreated records a constructed query.
func (m *Metrics) QueryCreated(table, kind string) {
	if m == nil {
		return
	}
	m.QueriesCreated.WithLabelValues(table, kind).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(table string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(table, result).Inc()
}

// Dispatched records n query calls for one kind of row change.
func (m *Metrics) Dispatched(table, change string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Dispatches.WithLabelValues(table, change).Add(float64(n))
}

// Flushed records n delivered flushes.
func (m *Metrics) Flushed(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Flushes.WithLabelValues(table).Add(float64(n))
}

// ReclaimedEntries records n pruned entries.
func (m *Metrics) ReclaimedEntries(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Reclaimed.WithLabelValues(table).Add(float64(n))
}

// SetLive sets the live query gauge of a table.
func (m *Metrics) SetLive(table string, n int) {
	if m == nil {
		return
	}
	m.LiveQueries.WithLabelValues(table).Set(float64(n))
}
