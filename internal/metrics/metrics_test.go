package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.QueryCreated("todos", "list")
	m.CacheLookup("todos", true)
	m.CacheLookup("todos", false)
	m.CacheLookup("todos", false)
	m.Dispatched("todos", "add", 3)
	m.Flushed("todos", 2)
	m.ReclaimedEntries("todos", 1)
	m.SetLive("todos", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesCreated.WithLabelValues("todos", "list")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("todos", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("todos", "miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("todos", "add")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Flushes.WithLabelValues("todos")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reclaimed.WithLabelValues("todos")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LiveQueries.WithLabelValues("todos")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.QueryCreated("t", "list")
		m.CacheLookup("t", true)
		m.Dispatched("t", "add", 1)
		m.Flushed("t", 1)
		m.ReclaimedEntries("t", 1)
		m.SetLive("t", 1)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
