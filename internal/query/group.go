package query

import "github.com/roach88/livetable/internal/schema"

// groupSlot is one group of a per-group list: its dedicated nested query and
// the number of member rows keeping it alive.
type groupSlot struct {
	query *Query
	refs  int
	link  ObserverID
}

// nestedGroupEngine gives every distinct group value its own nested query,
// built by the plan's group generator. A group's query is created when its
// first member row arrives and released when its last one leaves.
type nestedGroupEngine struct {
	slots   map[schema.Value]*groupSlot
	queries map[schema.Value]*Query
}

func (e *nestedGroupEngine) result() any {
	if e.queries == nil {
		e.queries = make(map[schema.Value]*Query)
	}
	return e.queries
}

func (e *nestedGroupEngine) seed(q *Query, row *Row) error {
	g := row.Get(q.plan.groupBy)
	if slot := e.slots[g]; slot != nil {
		slot.refs++
		return nil
	}
	slot, err := e.open(q, g)
	if err != nil {
		return err
	}
	slot.refs = 1
	e.install(g, slot)
	return nil
}

func (e *nestedGroupEngine) add(q *Query, row *Row, t ChangeType) Flush {
	g := row.Get(q.plan.groupBy)
	if slot := e.slots[g]; slot != nil {
		slot.refs++
		return nil
	}
	slot, err := e.open(q, g)
	if err != nil {
		q.logger.Error("group generator failed", "group", g, "error", err)
		slot = &groupSlot{}
	}
	slot.refs = 1
	return q.makeChange(func() Change {
		e.install(g, slot)
		if slot.query == nil {
			return Change{}
		}
		return Change{Kind: KindAddGroup, Type: t, Group: g, Result: slot.query.Result()}
	})
}

func (e *nestedGroupEngine) remove(q *Query, row *Row, t ChangeType) Flush {
	g := row.Get(q.plan.groupBy)
	slot := e.slots[g]
	if slot == nil {
		return nil
	}
	slot.refs--
	if slot.refs > 0 {
		return nil
	}
	flush := q.makeChange(func() Change {
		e.uninstall(g)
		if slot.query == nil {
			return Change{}
		}
		return Change{Kind: KindRemoveGroup, Type: t, Group: g, Result: slot.query.Result()}
	})
	e.close(slot)
	return flush
}

func (e *nestedGroupEngine) change(q *Query, row *Row, rc rowChange) Flush {
	if !rc.touches(q.plan.groupBy) {
		return nil
	}
	oldGroup := row.Get(q.plan.groupBy)
	newGroup := rc.new[q.plan.groupBy]
	if schema.Equal(oldGroup, newGroup) {
		return nil
	}

	oldSlot := e.slots[oldGroup]
	newSlot := e.slots[newGroup]
	opened := false
	if newSlot == nil {
		var err error
		if newSlot, err = e.open(q, newGroup); err != nil {
			q.logger.Error("group generator failed", "group", newGroup, "error", err)
			newSlot = &groupSlot{}
		}
		opened = true
	}

	closing := oldSlot != nil && oldSlot.refs == 1
	if !opened && !closing {
		newSlot.refs++
		if oldSlot != nil {
			oldSlot.refs--
		}
		return nil
	}

	flush := q.makeChange(func() Change {
		rc.patch()
		var changes []Change
		if oldSlot != nil {
			oldSlot.refs--
			if oldSlot.refs == 0 {
				e.uninstall(oldGroup)
				if oldSlot.query != nil {
					changes = append(changes, Change{Kind: KindRemoveGroup, Type: TypeUpdate, Group: oldGroup, Result: oldSlot.query.Result()})
				}
			}
		}
		newSlot.refs++
		if opened {
			e.install(newGroup, newSlot)
			if newSlot.query != nil {
				changes = append(changes, Change{Kind: KindAddGroup, Type: TypeUpdate, Group: newGroup, Result: newSlot.query.Result()})
			}
		}
		if len(changes) == 0 {
			return Change{}
		}
		return Change{Kind: KindRegroup, Type: TypeUpdate, Group: newGroup, OldGroup: oldGroup, Changes: changes}
	})
	if closing {
		e.close(oldSlot)
	}
	return flush
}

func (e *nestedGroupEngine) teardown(*Query) {
	for g, slot := range e.slots {
		e.close(slot)
		e.uninstall(g)
	}
}

// open builds the nested query of group g and observes it.
func (e *nestedGroupEngine) open(q *Query, g schema.Value) (*groupSlot, error) {
	nested, err := q.plan.perGroup.gen(g)
	if err != nil {
		return nil, err
	}
	slot := &groupSlot{query: nested}
	if nested != nil && nested != q {
		slot.link = nested.internalObserve(q.groupObserver(g))
	}
	return slot, nil
}

func (e *nestedGroupEngine) close(slot *groupSlot) {
	if slot.query != nil && slot.link != 0 {
		slot.query.internalUnobserve(slot.link)
		slot.link = 0
	}
}

func (e *nestedGroupEngine) install(g schema.Value, slot *groupSlot) {
	e.slots[g] = slot
	if slot.query != nil {
		e.result()
		e.queries[g] = slot.query
	}
}

func (e *nestedGroupEngine) uninstall(g schema.Value) {
	delete(e.slots, g)
	delete(e.queries, g)
}

// groupObserver re-emits changes of the nested query of group g as subquery
// changes of q.
func (q *Query) groupObserver(g schema.Value) (InternalObserver, func() bool) {
	self, alive := q.weakSelf()

	fn := func(ready func() Change) Flush {
		outer := self.Value()
		if outer == nil {
			return nil
		}
		return outer.makeChange(func() Change {
			nested := ready()
			if nested.empty() {
				return Change{}
			}
			return Change{Kind: KindSubquery, Type: nested.Type, Group: g, Nested: &nested}
		})
	}
	return fn, alive
}
