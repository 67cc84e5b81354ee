package query

import (
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"weak"

	"github.com/roach88/livetable/internal/schema"
)

// maxChangeDepth bounds makeChange nesting. Only a dispatch-time cycle of
// subqueries (A embeds B, B embeds A) can reach it.
const maxChangeDepth = 256

type observer struct {
	id ObserverID
	fn func(Change)
}

type internalObserver struct {
	id    ObserverID
	fn    InternalObserver
	alive func() bool
}

// Query is a live, incrementally maintained query result.
//
// A Query is created by its table and lives as long as something holds it:
// a caller, or a query that embeds it as a subquery. The table's index and
// cache only hold weak references.
type Query struct {
	plan   *Plan
	logger *slog.Logger
	eng    engine

	// base row -> augmented row, for queries with subqueries
	augmented map[*Row]*Row
	links     map[*Row]map[string]ObserverID

	observers []observer
	internal  []internalObserver
	nextID    ObserverID
	depth     int
}

// New creates an empty query for plan. Use Seed to load existing rows.
func New(plan *Plan, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	q := &Query{
		plan:   plan,
		logger: logger.With("table", plan.schema.Name()),
	}
	switch {
	case plan.kind == planCount && plan.groupBy == "":
		q.eng = &countEngine{}
	case plan.kind == planCount:
		q.eng = &groupCountEngine{counts: make(map[schema.Value]int)}
	case plan.perGroup != nil:
		q.eng = &nestedGroupEngine{slots: make(map[schema.Value]*groupSlot)}
	case plan.groupBy != "":
		q.eng = &groupListEngine{groups: make(map[schema.Value][]*Row)}
	default:
		q.eng = &listEngine{}
	}
	if plan.subqueries != nil {
		q.augmented = make(map[*Row]*Row)
		q.links = make(map[*Row]map[string]ObserverID)
	}
	return q
}

// Seed loads the rows that match the query's filter, without notifying
// anyone. A generator failure aborts seeding; the query must then be
// discarded with Close.
func (q *Query) Seed(rows []*Row) error {
	for _, row := range rows {
		if !q.plan.filter.Matches(row) {
			continue
		}
		ar, err := q.attach(row, true)
		if err != nil {
			return err
		}
		if err := q.eng.seed(q, ar); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches the query from every nested query it observes. A closed
// query stops tracking subquery changes. It is only needed when a query is
// discarded before being handed out.
func (q *Query) Close() {
	for ar := range q.links {
		q.detach(ar)
	}
	q.eng.teardown(q)
}

// Plan returns the resolved configuration.
func (q *Query) Plan() *Plan {
	if q == nil {
		return nil
	}
	return q.plan
}

// Table returns the name of the table the query reads.
func (q *Query) Table() string {
	if q == nil {
		return ""
	}
	return q.plan.schema.Name()
}

// Result returns the live result:
//
//	count                   int
//	count with groupBy      map[schema.Value]int
//	list                    []*Row
//	list with groupBy       map[schema.Value][]*Row
//	list with PerGroup      map[schema.Value]*Query
//
// The value is owned by the query and changes as the table changes.
func (q *Query) Result() any {
	if q == nil {
		return nil
	}
	return q.eng.result()
}

// Count returns the result of an ungrouped count, or the number of rows of
// an ungrouped list.
func (q *Query) Count() int {
	switch r := q.Result().(type) {
	case int:
		return r
	case []*Row:
		return len(r)
	}
	return 0
}

// Rows returns the result of an ungrouped list.
func (q *Query) Rows() []*Row {
	rows, _ := q.Result().([]*Row)
	return rows
}

// GroupCounts returns the result of a grouped count.
func (q *Query) GroupCounts() map[schema.Value]int {
	counts, _ := q.Result().(map[schema.Value]int)
	return counts
}

// Groups returns the result of a grouped list.
func (q *Query) Groups() map[schema.Value][]*Row {
	groups, _ := q.Result().(map[schema.Value][]*Row)
	return groups
}

// GroupQueries returns the nested query of every group of a per-group list.
func (q *Query) GroupQueries() map[schema.Value]*Query {
	queries, _ := q.Result().(map[schema.Value]*Query)
	return queries
}

// GroupKeys returns the current group values in schema.Compare order.
func (q *Query) GroupKeys() []schema.Value {
	var keys []schema.Value
	switch r := q.Result().(type) {
	case map[schema.Value]int:
		keys = slices.Collect(maps.Keys(r))
	case map[schema.Value][]*Row:
		keys = slices.Collect(maps.Keys(r))
	case map[schema.Value]*Query:
		keys = slices.Collect(maps.Keys(r))
	}
	slices.SortFunc(keys, schema.Compare)
	return keys
}

// Observe registers fn for every change of the result and returns an id
// for Unobserve.
func (q *Query) Observe(fn func(Change)) ObserverID {
	q.nextID++
	q.observers = append(q.observers, observer{id: q.nextID, fn: fn})
	return q.nextID
}

// Unobserve removes an observer. It reports whether id was registered.
func (q *Query) Unobserve(id ObserverID) bool {
	i := slices.IndexFunc(q.observers, func(o observer) bool { return o.id == id })
	if i < 0 {
		return false
	}
	q.observers = slices.Delete(q.observers, i, i+1)
	return true
}

// internalObserve registers a dependent query. alive reports whether the
// dependent still exists; dead observers are dropped.
func (q *Query) internalObserve(fn InternalObserver, alive func() bool) ObserverID {
	q.nextID++
	q.internal = append(q.internal, internalObserver{id: q.nextID, fn: fn, alive: alive})
	return q.nextID
}

func (q *Query) internalUnobserve(id ObserverID) {
	q.internal = slices.DeleteFunc(q.internal, func(o internalObserver) bool { return o.id == id })
}

// AddRow adds a base row that entered the query's scope.
func (q *Query) AddRow(row *Row, t ChangeType) Flush {
	if _, dup := q.augmented[row]; dup {
		return nil
	}
	ar, _ := q.attach(row, false)
	return q.eng.add(q, ar, t)
}

// RemoveRow removes a base row that left the query's scope.
func (q *Query) RemoveRow(row *Row, t ChangeType) Flush {
	ar := q.display(row)
	if ar == nil {
		return nil
	}
	flush := q.eng.remove(q, ar, t)
	q.detach(ar)
	return flush
}

// ChangeRow updates a row that stays in scope. The row holds oldValues on
// entry; patch writes newValues and must be called at most once.
func (q *Query) ChangeRow(row *Row, oldValues, newValues map[string]schema.Value, patch func()) Flush {
	ar := q.display(row)
	if ar == nil {
		return nil
	}
	return q.eng.change(q, ar, rowChange{old: oldValues, new: newValues, patch: patch})
}

// display returns the row as this query exposes it.
func (q *Query) display(row *Row) *Row {
	if q.augmented == nil {
		return row
	}
	return q.augmented[row]
}

// makeChange runs mutate once every internal observer is ready for it, and
// returns a flush that notifies this query's observers and then runs each
// internal observer's flush in registration order.
//
// Each internal observer receives a ready continuation leading to the next
// observer and finally to mutate. An observer that never calls ready has it
// called for it when it returns. Dependents thereby settle on the old state
// before the mutation, and see the new state right after it.
func (q *Query) makeChange(mutate func() Change) Flush {
	if q.depth >= maxChangeDepth {
		q.logger.Error("subquery change nested too deeply, dropping change",
			"depth", q.depth)
		return nil
	}
	q.depth++
	defer func() { q.depth-- }()

	observers := q.liveInternal()
	flushes := make([]Flush, len(observers))

	var (
		change  Change
		mutated bool
	)
	var step func(i int) Change
	step = func(i int) Change {
		if i == len(observers) {
			if !mutated {
				mutated = true
				change = mutate()
			}
			return change
		}
		var (
			c      Change
			called bool
		)
		next := func() Change {
			if !called {
				called = true
				c = step(i + 1)
			}
			return c
		}
		flushes[i] = observers[i].fn(next)
		return next()
	}
	step(0)

	return func() {
		if !change.empty() {
			q.notify(change)
		}
		for _, f := range flushes {
			if f != nil {
				f()
			}
		}
	}
}

func (q *Query) liveInternal() []internalObserver {
	q.internal = slices.DeleteFunc(q.internal, func(o internalObserver) bool {
		return o.alive != nil && !o.alive()
	})
	return slices.Clone(q.internal)
}

func (q *Query) notify(c Change) {
	for _, o := range slices.Clone(q.observers) {
		o.fn(c)
	}
}

// compare orders rows by the sort comparator, then by id.
func (q *Query) compare(a, b *Row) int {
	if q.plan.sort != nil {
		if c := q.plan.sort.compare(a, b); c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID(), b.ID())
}

// weakSelf returns a weak pointer to q and an alive check for observers
// registered on other queries.
func (q *Query) weakSelf() (weak.Pointer[Query], func() bool) {
	wq := weak.Make(q)
	return wq, func() bool { return wq.Value() != nil }
}

type rowChange struct {
	old   map[string]schema.Value
	new   map[string]schema.Value
	patch func()
}

func (rc rowChange) columns() []string {
	return slices.Sorted(maps.Keys(rc.new))
}

// oldValues copies the previous column values for an update change.
func (rc rowChange) oldValues() map[string]any {
	out := make(map[string]any, len(rc.old))
	for c, v := range rc.old {
		out[c] = v
	}
	return out
}

// touches reports whether the change writes column.
func (rc rowChange) touches(column string) bool {
	_, ok := rc.new[column]
	return ok
}
