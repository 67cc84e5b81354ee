package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/livetable/internal/canon"
)

// TraceSnapshot captures the complete trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = event.Map()
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// Snapshot serializes the trace of result as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := &TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return canon.Marshal(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares the trace of result against the named golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("failed to serialize trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
