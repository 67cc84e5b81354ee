package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{
		Seq:    1,
		Step:   0,
		Query:  "open",
		Change: map[string]any{"kind": "add", "id": "a", "old_index": -1, "new_index": 0, "type": "add"},
	})

	data, err := Snapshot("demo", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"demo","trace":[{"change":{"id":"a","kind":"add","new_index":0,"old_index":-1,"type":"add"},"query":"open","seq":1,"step":0}]}`,
		string(data))
}

func TestSnapshot_EmptyTrace(t *testing.T) {
	data, err := Snapshot("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/projects.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
