package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/livetable/internal/query"
	"github.com/roach88/livetable/internal/schema"
	"github.com/roach88/livetable/internal/table"
)

var errGroupReference = errors.New("per_group filters may only reference $group")

// resolver maps a "$name" filter reference to a value.
type resolver func(ref string) (schema.Value, error)

// compiled is a QueryDef bound to its table. Nested definitions are compiled
// once so that every query opened from the same definition shares one sort
// and one generator set, and therefore one cache entry per filter.
type compiled struct {
	def      *QueryDef
	tbl      *table.Table
	sort     *query.Sort
	subs     *query.Subqueries
	perGroup *query.GroupQuery
}

func (h *runner) compile(def *QueryDef) (*compiled, error) {
	tbl, ok := h.tables[def.Table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", def.Table)
	}
	c := &compiled{def: def, tbl: tbl}
	if len(def.Sort) > 0 {
		c.sort = query.OrderBy(def.Sort...)
	}

	if len(def.Subqueries) > 0 {
		gens := make(map[string]query.Generator, len(def.Subqueries))
		for key, sub := range def.Subqueries {
			nested, err := h.compile(sub)
			if err != nil {
				return nil, fmt.Errorf("subquery %q: %w", key, err)
			}
			gens[key] = func(row *query.Row) (*query.Query, error) {
				return nested.open(func(ref string) (schema.Value, error) {
					return row.Get(ref), nil
				})
			}
		}
		c.subs = query.NewSubqueries(gens)
	}

	if def.PerGroup != nil {
		for col, v := range def.PerGroup.Filter {
			if ref, ok := reference(v); ok && ref != "group" {
				return nil, fmt.Errorf("per_group: filter %s: %w, got $%s", col, errGroupReference, ref)
			}
		}
		nested, err := h.compile(def.PerGroup)
		if err != nil {
			return nil, fmt.Errorf("per_group: %w", err)
		}
		c.perGroup = query.NewGroupQuery(func(g schema.Value) (*query.Query, error) {
			return nested.open(func(ref string) (schema.Value, error) {
				if ref != "group" {
					return nil, errGroupReference
				}
				return g, nil
			})
		})
	}
	return c, nil
}

// open constructs the query, resolving filter references through resolve.
func (c *compiled) open(resolve resolver) (*query.Query, error) {
	filter, err := bindFilter(c.def.Filter, resolve)
	if err != nil {
		return nil, err
	}
	if c.def.Count {
		return c.tbl.Count(query.CountOptions{Filter: filter, GroupBy: c.def.GroupBy})
	}
	return c.tbl.Query(query.Options{
		Select:     c.def.Select,
		Filter:     filter,
		Sort:       c.sort,
		GroupBy:    c.def.GroupBy,
		Subqueries: c.subs,
		PerGroup:   c.perGroup,
	})
}

func bindFilter(raw map[string]any, resolve resolver) (schema.Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filter := make(schema.Filter, len(raw))
	for col, v := range raw {
		ref, isRef := reference(v)
		if !isRef {
			filter[col] = unescape(v)
			continue
		}
		if resolve == nil {
			return nil, fmt.Errorf("filter %s: reference $%s outside a nested query", col, ref)
		}
		value, err := resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", col, err)
		}
		filter[col] = value
	}
	return filter, nil
}

// literalFilter returns the filter of a top-level definition.
func literalFilter(def *QueryDef) (schema.Filter, error) {
	return bindFilter(def.Filter, nil)
}

func reference(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") || strings.HasPrefix(s, "$$") {
		return "", false
	}
	return s[1:], true
}

func unescape(v any) any {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "$$") {
		return s[1:]
	}
	return v
}
