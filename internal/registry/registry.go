// Package registry indexes live queries by filter so that a changed row can
// be routed to exactly the queries it affects.
//
// The index is a trie with one level per primitive schema column, in stable
// sorted order. A query descends, at each column, into the bucket for the
// literal it filters that column to, or into the shared wildcard bucket when
// it does not filter the column. At the leaf a weak pointer to the query is
// appended under each of its interest keys (the columns it selects or
// filters on) and under Membership.
//
// Queries(row, changed) walks the wildcard bucket and the bucket matching the
// row's value at every level, and unions the leaf lists for the changed keys.
// A query is returned iff its filter matches the row and one of its interest
// keys is in changed.
//
// The tree never keeps a query alive. Once a query is unreachable its entries
// are pruned through a reclaim.Queue; entries whose target is already gone
// are skipped during lookup.
package registry

import (
	"maps"
	"slices"
	"weak"

	"github.com/roach88/livetable/internal/reclaim"
	"github.com/roach88/livetable/internal/schema"
)

// Membership is the interest key every query registers so that row inserts,
// deletes and filter-scope transitions reach it.
const Membership = "\x00membership"

type node[E any] struct {
	wildcard *node[E]
	literals map[schema.Value]*node[E]

	// leaf only
	interests map[string][]weak.Pointer[E]
}

func (n *node[E]) empty() bool {
	return n.wildcard == nil && len(n.literals) == 0 && len(n.interests) == 0
}

// Tree is the query index for one table.
type Tree[E any] struct {
	columns []string
	root    *node[E]
	queue   *reclaim.Queue
	live    int
}

// New creates an empty tree over the primitive columns of s. Prune requests
// for collected queries are pushed to q.
func New[E any](s *schema.Schema, q *reclaim.Queue) *Tree[E] {
	var cols []string
	for _, c := range s.SortedNames() {
		if t, _ := s.Type(c); t.Primitive() {
			cols = append(cols, c)
		}
	}
	return &Tree[E]{
		columns: cols,
		root:    &node[E]{},
		queue:   q,
	}
}

// Insert registers e under filter with the given interest columns.
//
// The filter must only name primitive columns of the tree's schema. The
// entry is pruned automatically once e becomes unreachable.
func (t *Tree[E]) Insert(e *E, filter schema.Filter, interests []string) {
	keys := interestKeys(interests)
	wp := weak.Make(e)

	leaf := t.root
	for _, c := range t.columns {
		leaf = leaf.child(filter, c, true)
	}
	if leaf.interests == nil {
		leaf.interests = make(map[string][]weak.Pointer[E])
	}
	for _, k := range keys {
		leaf.interests[k] = append(leaf.interests[k], wp)
	}
	t.live++

	filter = maps.Clone(filter)
	reclaim.Watch(t.queue, e, func() { t.remove(wp, filter, keys) })
}

// Queries returns the live queries affected by a change to the given keys of
// row, in trie walk order without duplicates. Pass []string{Membership} for
// inserts and deletes.
func (t *Tree[E]) Queries(row schema.Getter, changed []string) []*E {
	var out []*E
	seen := make(map[*E]bool)
	t.walk(t.root, 0, row, func(leaf *node[E]) {
		for _, k := range changed {
			for _, wp := range leaf.interests[k] {
				e := wp.Value()
				if e == nil || seen[e] {
					continue
				}
				seen[e] = true
				out = append(out, e)
			}
		}
	})
	return out
}

// Entries counts the index entries, live or not yet pruned, that a change
// to the given keys of row would visit.
func (t *Tree[E]) Entries(row schema.Getter, changed []string) int {
	n := 0
	t.walk(t.root, 0, row, func(leaf *node[E]) {
		for _, k := range changed {
			n += len(leaf.interests[k])
		}
	})
	return n
}

// Len returns the number of registered, not yet pruned, queries.
func (t *Tree[E]) Len() int {
	return t.live
}

func (t *Tree[E]) walk(n *node[E], depth int, row schema.Getter, visit func(*node[E])) {
	if n == nil {
		return
	}
	if depth == len(t.columns) {
		visit(n)
		return
	}
	t.walk(n.wildcard, depth+1, row, visit)
	if n.literals != nil {
		t.walk(n.literals[row.Get(t.columns[depth])], depth+1, row, visit)
	}
}

func (n *node[E]) child(filter schema.Filter, column string, create bool) *node[E] {
	v, filtered := filter[column]
	if !filtered {
		if n.wildcard == nil && create {
			n.wildcard = &node[E]{}
		}
		return n.wildcard
	}
	c := n.literals[v]
	if c == nil && create {
		if n.literals == nil {
			n.literals = make(map[schema.Value]*node[E])
		}
		c = &node[E]{}
		n.literals[v] = c
	}
	return c
}

func (t *Tree[E]) remove(wp weak.Pointer[E], filter schema.Filter, keys []string) {
	path := make([]*node[E], 0, len(t.columns)+1)
	n := t.root
	for _, c := range t.columns {
		path = append(path, n)
		n = n.child(filter, c, false)
		if n == nil {
			return
		}
	}

	removed := false
	for _, k := range keys {
		list := n.interests[k]
		if i := slices.Index(list, wp); i >= 0 {
			list = slices.Delete(list, i, i+1)
			removed = true
		}
		if len(list) == 0 {
			delete(n.interests, k)
		} else {
			n.interests[k] = list
		}
	}
	if removed {
		t.live--
	}

	// prune empty nodes bottom-up
	for depth := len(path) - 1; depth >= 0 && n.empty(); depth-- {
		parent := path[depth]
		c := t.columns[depth]
		if v, filtered := filter[c]; filtered {
			delete(parent.literals, v)
		} else {
			parent.wildcard = nil
		}
		n = parent
	}
}

func interestKeys(interests []string) []string {
	keys := make([]string, 0, len(interests)+1)
	keys = append(keys, Membership)
	for _, c := range interests {
		if !slices.Contains(keys, c) {
			keys = append(keys, c)
		}
	}
	return keys
}
