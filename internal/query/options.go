package query

import (
	"maps"
	"slices"

	"github.com/roach88/livetable/internal/schema"
)

// Options configures a list query.
type Options struct {
	// Select lists the columns result rows carry. Empty means every column.
	// Columns read by Sort or by subquery generators are always added.
	Select []string

	// Filter restricts the query to rows whose columns equal the literals.
	Filter schema.Filter

	// Sort orders result rows. Ties are broken by id. Nil orders by id.
	Sort *Sort

	// GroupBy partitions the result by the value of a primitive column.
	GroupBy string

	// Subqueries embeds a live nested query in every result row.
	Subqueries *Subqueries

	// PerGroup gives each distinct GroupBy value its own nested query.
	// Requires GroupBy; excludes Sort and Subqueries.
	PerGroup *GroupQuery
}

// CountOptions configures a count query.
type CountOptions struct {
	Filter  schema.Filter
	GroupBy string
}

// Sort is a row comparator with a stable identity. Queries built with the
// same *Sort share cache entries; two Sorts wrapping equal functions do not.
type Sort struct {
	name    string
	compare func(a, b *Row) int
}

// NewSort wraps compare. It must read primitive columns or subquery results
// only, and must return a negative, zero or positive int like cmp.Compare.
func NewSort(compare func(a, b *Row) int) *Sort {
	return &Sort{compare: compare}
}

// NewNamedSort is NewSort with a name used in trace output.
func NewNamedSort(name string, compare func(a, b *Row) int) *Sort {
	return &Sort{name: name, compare: compare}
}

// OrderBy returns a comparator over the given columns, ascending, using
// schema.Compare. A leading "-" on a column sorts it descending.
func OrderBy(columns ...string) *Sort {
	cols := slices.Clone(columns)
	return &Sort{
		name: "orderBy",
		compare: func(a, b *Row) int {
			for _, c := range cols {
				desc := len(c) > 0 && c[0] == '-'
				if desc {
					c = c[1:]
				}
				r := schema.Compare(a.Get(c), b.Get(c))
				if desc {
					r = -r
				}
				if r != 0 {
					return r
				}
			}
			return 0
		},
	}
}

// Name returns the sort's trace name.
func (s *Sort) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Generator builds the nested query embedded under one subquery key.
// It is re-invoked whenever a column it reads changes, so it must be
// idempotent with respect to the cache: equal inputs, same query.
type Generator func(row *Row) (*Query, error)

// Subqueries is a set of generators with a stable identity.
type Subqueries struct {
	keys []string
	gens map[string]Generator
}

// NewSubqueries wraps generators keyed by the name they are exposed under.
func NewSubqueries(gens map[string]Generator) *Subqueries {
	return &Subqueries{
		keys: slices.Sorted(maps.Keys(gens)),
		gens: maps.Clone(gens),
	}
}

// Keys returns the subquery keys in lexical order.
func (s *Subqueries) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.keys)
}

// GroupGenerator builds the nested query owned by one group value.
type GroupGenerator func(group schema.Value) (*Query, error)

// GroupQuery is a per-group generator with a stable identity.
type GroupQuery struct {
	gen GroupGenerator
}

// NewGroupQuery wraps gen.
func NewGroupQuery(gen GroupGenerator) *GroupQuery {
	return &GroupQuery{gen: gen}
}
