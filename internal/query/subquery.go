package query

import (
	"maps"
	"slices"
)

// attach wraps a base row in an augmented row and links one nested query per
// subquery key. With strict set, the first generator error is returned;
// otherwise it is logged and the key is left empty.
func (q *Query) attach(row *Row, strict bool) (*Row, error) {
	subs := q.plan.subqueries
	if subs == nil {
		return row, nil
	}

	ar := row.augment(make(map[string]*Query, len(subs.keys)), subs.keys)
	q.augmented[row] = ar
	q.links[ar] = make(map[string]ObserverID, len(subs.keys))

	for _, key := range subs.keys {
		nested, err := subs.gens[key](ar)
		if err != nil {
			if strict {
				return nil, err
			}
			q.logger.Error("subquery generator failed",
				"key", key,
				"row", row.ID(),
				"error", err)
			continue
		}
		q.link(ar, key, nested)
	}
	return ar, nil
}

// detach unlinks every nested query of an augmented row.
func (q *Query) detach(ar *Row) {
	if q.augmented == nil {
		return
	}
	for _, key := range slices.Sorted(maps.Keys(q.links[ar])) {
		q.unlink(ar, key)
	}
	delete(q.links, ar)
	delete(q.augmented, ar.Base())
}

func (q *Query) link(ar *Row, key string, nested *Query) {
	if nested == nil {
		return
	}
	if nested == q {
		q.logger.Error("subquery generator returned its own query", "key", key, "row", ar.ID())
		return
	}
	ar.subs[key] = nested
	q.links[ar][key] = nested.internalObserve(q.subqueryObserver(ar, key))
}

func (q *Query) unlink(ar *Row, key string) {
	nested := ar.subs[key]
	if nested == nil {
		return
	}
	if id, ok := q.links[ar][key]; ok {
		nested.internalUnobserve(id)
		delete(q.links[ar], key)
	}
	delete(ar.subs, key)
}

// subqueryObserver returns the internal observer this query registers on
// the nested query under key of ar. When the nested query changes, ar is
// lifted out of its sorted position, the nested mutation runs, and ar is put
// back, since the sort may read the nested result.
func (q *Query) subqueryObserver(ar *Row, key string) (InternalObserver, func() bool) {
	self, alive := q.weakSelf()

	fn := func(ready func() Change) Flush {
		outer := self.Value()
		if outer == nil {
			return nil
		}
		sorted, ok := outer.eng.(sortedEngine)
		if !ok {
			return nil
		}
		return outer.makeChange(func() Change {
			group, oldIndex := sorted.take(outer, ar)
			nested := ready()
			if oldIndex < 0 {
				return Change{}
			}
			newIndex := sorted.put(outer, ar)
			if nested.empty() {
				return Change{}
			}
			return Change{
				Kind:     KindSubquery,
				Type:     nested.Type,
				Row:      ar,
				Group:    group,
				OldIndex: oldIndex,
				NewIndex: newIndex,
				Key:      key,
				Nested:   &nested,
			}
		})
	}
	return fn, alive
}

// refresh re-runs the generators that read a changed column, after the row
// has been patched, and returns the change's old values: the previous column
// values plus the previous result of every replaced subquery.
func (q *Query) refresh(ar *Row, rc rowChange) map[string]any {
	oldValues := rc.oldValues()
	subs := q.plan.subqueries
	if subs == nil {
		return oldValues
	}

	for _, key := range q.plan.Dependents(rc.columns()) {
		prev := ar.subs[key]
		next, err := subs.gens[key](ar)
		if err != nil {
			q.logger.Error("subquery generator failed",
				"key", key,
				"row", ar.ID(),
				"error", err)
			continue
		}
		if next == prev {
			continue
		}
		q.unlink(ar, key)
		q.link(ar, key, next)
		oldValues[key] = prev.Result()
		q.logger.Debug("subquery replaced", "key", key, "row", ar.ID())
	}
	return oldValues
}
