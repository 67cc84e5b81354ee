package harness

// TraceEvent is one change delivered to a watched query.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Step   int            `json:"step"`
	Query  string         `json:"query"`
	Change map[string]any `json:"change"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step, query and assertion behaved as expected.
	Pass bool `json:"pass"`

	// Trace holds every change notification in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains the failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final exported result of every constructed query.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventsFor returns the trace events of one query.
func (r *Result) EventsFor(query string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Query == query {
			out = append(out, e)
		}
	}
	return out
}

// Map converts the trace event to a map for canonical serialization.
func (e TraceEvent) Map() map[string]any {
	return map[string]any{
		"seq":    e.Seq,
		"step":   e.Step,
		"query":  e.Query,
		"change": e.Change,
	}
}
