package query

import "github.com/roach88/livetable/internal/schema"

// engine maintains one result shape.
//
// Rows passed to an engine are the rows the query exposes: augmented rows
// for queries with subqueries, shared base rows otherwise.
type engine interface {
	result() any
	seed(q *Query, row *Row) error
	add(q *Query, row *Row, t ChangeType) Flush
	remove(q *Query, row *Row, t ChangeType) Flush
	change(q *Query, row *Row, rc rowChange) Flush
	teardown(q *Query)
}

// sortedEngine is implemented by list engines so a subquery change can lift
// a row out of its sorted position and put it back once the nested result
// has settled.
type sortedEngine interface {
	take(q *Query, row *Row) (group schema.Value, index int)
	put(q *Query, row *Row) int
}

// =============================================================================
// Count
// =============================================================================

type countEngine struct {
	n int
}

func (e *countEngine) result() any { return e.n }

func (e *countEngine) seed(*Query, *Row) error {
	e.n++
	return nil
}

func (e *countEngine) add(q *Query, _ *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		e.n++
		return Change{Kind: KindDelta, Type: t, Delta: 1, Result: e.n}
	})
}

func (e *countEngine) remove(q *Query, _ *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		e.n--
		return Change{Kind: KindDelta, Type: t, Delta: -1, Result: e.n}
	})
}

// change is a no-op: membership transitions arrive as add and remove.
func (e *countEngine) change(*Query, *Row, rowChange) Flush { return nil }

func (e *countEngine) teardown(*Query) {}

// =============================================================================
// Grouped count
// =============================================================================

type groupCountEngine struct {
	counts map[schema.Value]int
}

func (e *groupCountEngine) result() any { return e.counts }

func (e *groupCountEngine) seed(q *Query, row *Row) error {
	e.counts[row.Get(q.plan.groupBy)]++
	return nil
}

func (e *groupCountEngine) add(q *Query, row *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		return e.inc(row.Get(q.plan.groupBy), t)
	})
}

func (e *groupCountEngine) remove(q *Query, row *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		return e.dec(row.Get(q.plan.groupBy), t)
	})
}

func (e *groupCountEngine) change(q *Query, row *Row, rc rowChange) Flush {
	if !rc.touches(q.plan.groupBy) {
		return nil
	}
	return q.makeChange(func() Change {
		oldGroup := row.Get(q.plan.groupBy)
		rc.patch()
		newGroup := row.Get(q.plan.groupBy)
		if schema.Equal(oldGroup, newGroup) {
			return Change{}
		}
		return Change{
			Kind:     KindRegroup,
			Type:     TypeUpdate,
			Group:    newGroup,
			OldGroup: oldGroup,
			Changes: []Change{
				e.dec(oldGroup, TypeUpdate),
				e.inc(newGroup, TypeUpdate),
			},
		}
	})
}

func (e *groupCountEngine) inc(g schema.Value, t ChangeType) Change {
	e.counts[g]++
	n := e.counts[g]
	if n == 1 {
		return Change{Kind: KindAddGroup, Type: t, Group: g, Result: n}
	}
	return Change{Kind: KindDelta, Type: t, Group: g, Delta: 1, Result: n}
}

func (e *groupCountEngine) dec(g schema.Value, t ChangeType) Change {
	e.counts[g]--
	n := e.counts[g]
	if n <= 0 {
		delete(e.counts, g)
		return Change{Kind: KindRemoveGroup, Type: t, Group: g, Result: 0}
	}
	return Change{Kind: KindDelta, Type: t, Group: g, Delta: -1, Result: n}
}

func (e *groupCountEngine) teardown(*Query) {}
