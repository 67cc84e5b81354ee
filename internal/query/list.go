package query

import (
	"github.com/roach88/livetable/internal/ordered"
	"github.com/roach88/livetable/internal/schema"
)

// =============================================================================
// Linear
// =============================================================================

type listEngine struct {
	rows []*Row
}

func (e *listEngine) result() any { return e.rows }

func (e *listEngine) seed(q *Query, row *Row) error {
	e.rows, _ = ordered.Insert(e.rows, row, q.compare)
	return nil
}

func (e *listEngine) add(q *Query, row *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		i := e.put(q, row)
		return Change{Kind: KindAdd, Type: t, Row: row, OldIndex: -1, NewIndex: i}
	})
}

func (e *listEngine) remove(q *Query, row *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		_, i := e.take(q, row)
		if i < 0 {
			return Change{}
		}
		return Change{Kind: KindRemove, Type: t, Row: row, OldIndex: i, NewIndex: -1}
	})
}

func (e *listEngine) change(q *Query, row *Row, rc rowChange) Flush {
	return q.makeChange(func() Change {
		_, oldIndex := e.take(q, row)
		rc.patch()
		oldValues := q.refresh(row, rc)
		newIndex := e.put(q, row)
		return Change{
			Kind:      KindUpdate,
			Type:      TypeUpdate,
			Row:       row,
			OldIndex:  oldIndex,
			NewIndex:  newIndex,
			OldValues: oldValues,
		}
	})
}

func (e *listEngine) take(q *Query, row *Row) (schema.Value, int) {
	var i int
	e.rows, i = ordered.Remove(e.rows, row, q.compare)
	return nil, i
}

func (e *listEngine) put(q *Query, row *Row) int {
	var i int
	e.rows, i = ordered.Insert(e.rows, row, q.compare)
	return i
}

func (e *listEngine) teardown(*Query) {}

// =============================================================================
// Grouped list
// =============================================================================

type groupListEngine struct {
	groups map[schema.Value][]*Row
}

func (e *groupListEngine) result() any { return e.groups }

func (e *groupListEngine) seed(q *Query, row *Row) error {
	e.put(q, row)
	return nil
}

func (e *groupListEngine) add(q *Query, row *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		return e.insert(q, row, t)
	})
}

func (e *groupListEngine) remove(q *Query, row *Row, t ChangeType) Flush {
	return q.makeChange(func() Change {
		return e.delete(q, row, row.Get(q.plan.groupBy), t)
	})
}

func (e *groupListEngine) change(q *Query, row *Row, rc rowChange) Flush {
	return q.makeChange(func() Change {
		oldGroup, oldIndex := e.take(q, row)
		rc.patch()
		oldValues := q.refresh(row, rc)
		newGroup := row.Get(q.plan.groupBy)

		if schema.Equal(oldGroup, newGroup) {
			newIndex := e.put(q, row)
			return Change{
				Kind:      KindUpdate,
				Type:      TypeUpdate,
				Row:       row,
				Group:     newGroup,
				OldIndex:  oldIndex,
				NewIndex:  newIndex,
				OldValues: oldValues,
			}
		}

		removal := Change{Kind: KindRemove, Type: TypeUpdate, Row: row, Group: oldGroup, OldIndex: oldIndex, NewIndex: -1}
		if len(e.groups[oldGroup]) == 0 {
			delete(e.groups, oldGroup)
			removal.Kind = KindRemoveGroup
		}
		return Change{
			Kind:      KindRegroup,
			Type:      TypeUpdate,
			Row:       row,
			Group:     newGroup,
			OldGroup:  oldGroup,
			OldValues: oldValues,
			Changes:   []Change{removal, e.insert(q, row, TypeUpdate)},
		}
	})
}

func (e *groupListEngine) insert(q *Query, row *Row, t ChangeType) Change {
	g := row.Get(q.plan.groupBy)
	_, existed := e.groups[g]
	i := e.put(q, row)
	if !existed {
		return Change{Kind: KindAddGroup, Type: t, Row: row, Group: g, OldIndex: -1, NewIndex: i, Result: e.groups[g]}
	}
	return Change{Kind: KindAdd, Type: t, Row: row, Group: g, OldIndex: -1, NewIndex: i}
}

func (e *groupListEngine) delete(q *Query, row *Row, g schema.Value, t ChangeType) Change {
	rows, i := ordered.Remove(e.groups[g], row, q.compare)
	if i < 0 {
		return Change{}
	}
	if len(rows) == 0 {
		delete(e.groups, g)
		return Change{Kind: KindRemoveGroup, Type: t, Row: row, Group: g, OldIndex: i, NewIndex: -1}
	}
	e.groups[g] = rows
	return Change{Kind: KindRemove, Type: t, Row: row, Group: g, OldIndex: i, NewIndex: -1}
}

// take lifts row out of its group without deleting an emptied group.
func (e *groupListEngine) take(q *Query, row *Row) (schema.Value, int) {
	g := row.Get(q.plan.groupBy)
	rows, ok := e.groups[g]
	if !ok {
		return g, -1
	}
	var i int
	e.groups[g], i = ordered.Remove(rows, row, q.compare)
	return g, i
}

func (e *groupListEngine) put(q *Query, row *Row) int {
	g := row.Get(q.plan.groupBy)
	var i int
	e.groups[g], i = ordered.Insert(e.groups[g], row, q.compare)
	return i
}

func (e *groupListEngine) teardown(*Query) {}
