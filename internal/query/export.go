package query

import (
	"github.com/roach88/livetable/internal/canon"
	"github.com/roach88/livetable/internal/schema"
)

// Export returns the query result as plain data: maps, slices and column
// values, with every nested query expanded. Rows carry the resolved select
// plus the subquery keys. Group keys are rendered with GroupLabel.
func (q *Query) Export() any {
	if q == nil {
		return nil
	}
	cols := q.plan.selected
	switch r := q.Result().(type) {
	case []*Row:
		return exportRows(r, cols)
	case map[schema.Value][]*Row:
		out := make(map[string]any, len(r))
		for g, rows := range r {
			out[GroupLabel(g)] = exportRows(rows, cols)
		}
		return out
	case map[schema.Value]int:
		out := make(map[string]any, len(r))
		for g, n := range r {
			out[GroupLabel(g)] = n
		}
		return out
	case map[schema.Value]*Query:
		out := make(map[string]any, len(r))
		for g, nested := range r {
			out[GroupLabel(g)] = nested.Export()
		}
		return out
	default:
		return r
	}
}

// Export renders any value reachable from a result as plain data. Rows are
// exported with every key.
func Export(v any) any {
	switch x := v.(type) {
	case *Query:
		return x.Export()
	case *Row:
		return exportRow(x, nil)
	case []*Row:
		return exportRows(x, nil)
	case map[schema.Value][]*Row:
		out := make(map[string]any, len(x))
		for g, rows := range x {
			out[GroupLabel(g)] = exportRows(rows, nil)
		}
		return out
	case map[schema.Value]int:
		out := make(map[string]any, len(x))
		for g, n := range x {
			out[GroupLabel(g)] = n
		}
		return out
	case map[schema.Value]*Query:
		out := make(map[string]any, len(x))
		for g, nested := range x {
			out[GroupLabel(g)] = nested.Export()
		}
		return out
	}
	return v
}

// GroupLabel renders a group value as a map key: strings as themselves,
// everything else as canonical JSON.
func GroupLabel(g schema.Value) string {
	if s, ok := g.(string); ok {
		return s
	}
	b, err := canon.Marshal(g)
	if err != nil {
		return "?"
	}
	return string(b)
}

func exportRows(rows []*Row, cols []string) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = exportRow(r, cols)
	}
	return out
}

// exportRow exports cols (every column when nil) and every subquery key.
func exportRow(r *Row, cols []string) map[string]any {
	if cols == nil {
		cols = r.schema.Names()
	}
	out := make(map[string]any, len(cols)+len(r.keys))
	for _, c := range cols {
		out[c] = r.Get(c)
	}
	for _, k := range r.keys {
		out[k] = Export(r.Sub(k))
	}
	return out
}

// ExportChange renders c as plain data for traces. Row changes carry the
// row id rather than the row.
func ExportChange(c Change) map[string]any {
	out := map[string]any{"kind": string(c.Kind)}
	if c.Type != "" {
		out["type"] = string(c.Type)
	}
	if c.Row != nil {
		out["id"] = c.Row.ID()
		out["old_index"] = c.OldIndex
		out["new_index"] = c.NewIndex
	}
	switch c.Kind {
	case KindAddGroup, KindRemoveGroup, KindRegroup:
		out["group"] = c.Group
	default:
		if c.Group != nil {
			out["group"] = c.Group
		}
	}
	if c.Kind == KindRegroup {
		out["old_group"] = c.OldGroup
	}
	if c.Kind == KindDelta {
		out["delta"] = c.Delta
	}
	if c.Result != nil {
		out["result"] = Export(c.Result)
	}
	if c.Key != "" {
		out["key"] = c.Key
	}
	if c.Nested != nil {
		out["nested"] = ExportChange(*c.Nested)
	}
	if len(c.Changes) > 0 {
		changes := make([]any, len(c.Changes))
		for i, sub := range c.Changes {
			changes[i] = ExportChange(sub)
		}
		out["changes"] = changes
	}
	if len(c.OldValues) > 0 {
		old := make(map[string]any, len(c.OldValues))
		for k, v := range c.OldValues {
			old[k] = Export(v)
		}
		out["old_values"] = old
	}
	return out
}
