package harness

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/livetable/internal/canon"
	"github.com/roach88/livetable/internal/query"
	"github.com/roach88/livetable/internal/schema"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Query    string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Query)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace of %s:\n", e.Query)
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s\n", event.Seq, event.Step, render(event.Change))
		}
	}
	return buf.String()
}

func (r *runner) check(a Assertion) error {
	w, ok := r.queries[a.Query]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Query:    a.Query,
			Expected: "a constructed query",
			Actual:   "no such query",
		}
	}

	var expected, actual string
	var err error
	switch a.Type {
	case AssertResult:
		expected, actual = render(a.Expect), render(w.q.Export())
	case AssertChangeCount:
		expected, actual = r.changeCount(a, w)
	case AssertOracle:
		expected, actual, err = r.askOracle(w)
		if err != nil {
			return fmt.Errorf("oracle %s: %w", a.Query, err)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	if expected == actual {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Query:    a.Query,
		Expected: expected,
		Actual:   actual,
		Trace:    r.result.EventsFor(a.Query),
	}
}

func (r *runner) changeCount(a Assertion, w watched) (string, string) {
	n := 0
	for _, c := range r.recorder.For(a.Query) {
		if a.Kind == "" || string(c.Kind) == a.Kind {
			n++
		}
	}
	what := "changes"
	if a.Kind != "" {
		what = a.Kind + " changes"
	}
	return fmt.Sprintf("%d %s", a.Count, what), fmt.Sprintf("%d %s", n, what)
}

// askOracle asks SQLite the question the query answers incrementally and
// renders both answers.
func (r *runner) askOracle(w watched) (string, string, error) {
	def := w.def
	filter, err := literalFilter(def)
	if err != nil {
		return "", "", err
	}
	ctx := r.ctx

	switch {
	case def.Count && def.GroupBy == "":
		n, err := r.oracle.Count(ctx, def.Table, filter)
		if err != nil {
			return "", "", err
		}
		return render(n), render(w.q.Count()), nil

	case def.Count:
		counts, err := r.oracle.GroupCounts(ctx, def.Table, filter, def.GroupBy)
		if err != nil {
			return "", "", err
		}
		return renderGroups(counts), renderGroups(w.q.GroupCounts()), nil

	case def.PerGroup != nil:
		counts, err := r.oracle.GroupCounts(ctx, def.Table, filter, def.GroupBy)
		if err != nil {
			return "", "", err
		}
		keys := slices.SortedFunc(maps.Keys(counts), schema.Compare)
		return renderKeys(keys), renderKeys(w.q.GroupKeys()), nil

	case def.GroupBy != "":
		groups, err := r.oracle.GroupIDs(ctx, def.Table, filter, def.GroupBy, def.Sort...)
		if err != nil {
			return "", "", err
		}
		live := make(map[schema.Value][]string)
		for g, rows := range w.q.Groups() {
			live[g] = rowIDs(rows)
		}
		return renderGroups(groups), renderGroups(live), nil

	default:
		ids, err := r.oracle.IDs(ctx, def.Table, filter, def.Sort...)
		if err != nil {
			return "", "", err
		}
		return render(ids), render(rowIDs(w.q.Rows())), nil
	}
}

func rowIDs(rows []*query.Row) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.ID()
	}
	return out
}

func renderGroups[V any](groups map[schema.Value]V) string {
	out := make(map[string]any, len(groups))
	for g, v := range groups {
		out[query.GroupLabel(g)] = v
	}
	return render(out)
}

func renderKeys(keys []schema.Value) string {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return render(out)
}

// render serializes v as canonical JSON so that equal data compares equal
// regardless of map order or integer width.
func render(v any) string {
	b, err := canon.Marshal(normalizeYAML(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// normalizeYAML converts the generic maps produced by YAML decoding.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeYAML(e)
		}
		return out
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Interface {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeYAML(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
