package testutil

import (
	"slices"

	"github.com/roach88/livetable/internal/query"
)

// Stamped is one change observed by a Recorder.
type Stamped struct {
	Seq    int64
	Label  string
	Change query.Change
}

// Recorder collects the changes delivered to the queries it watches, in
// delivery order, stamped by a shared clock.
type Recorder struct {
	clock   *DeterministicClock
	changes []Stamped
	stops   []func()
}

// NewRecorder creates a recorder stamping with clock. A nil clock gets a
// fresh one.
func NewRecorder(clock *DeterministicClock) *Recorder {
	if clock == nil {
		clock = NewDeterministicClock()
	}
	return &Recorder{clock: clock}
}

// Watch records every change of q under label.
func (r *Recorder) Watch(label string, q *query.Query) {
	id := q.Observe(func(c query.Change) {
		r.changes = append(r.changes, Stamped{Seq: r.clock.Next(), Label: label, Change: c})
	})
	r.stops = append(r.stops, func() { q.Unobserve(id) })
}

// Stop unregisters every observer.
func (r *Recorder) Stop() {
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
}

// Changes returns every recorded change.
func (r *Recorder) Changes() []Stamped {
	return slices.Clone(r.changes)
}

// For returns the changes recorded under label.
func (r *Recorder) For(label string) []query.Change {
	var out []query.Change
	for _, s := range r.changes {
		if s.Label == label {
			out = append(out, s.Change)
		}
	}
	return out
}

// Kinds returns the kinds of the changes recorded under label.
func (r *Recorder) Kinds(label string) []query.Kind {
	var out []query.Kind
	for _, c := range r.For(label) {
		out = append(out, c.Kind)
	}
	return out
}

// Len returns the number of recorded changes.
func (r *Recorder) Len() int {
	return len(r.changes)
}
