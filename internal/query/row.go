package query

import (
	"maps"

	"github.com/roach88/livetable/internal/schema"
)

// Row is one table record.
//
// A base row is owned by its table and shared by reference across every
// query that includes it; identity is preserved across updates. A query with
// subqueries wraps each base row in an augmented row that also exposes one
// live nested query per subquery key.
type Row struct {
	schema *schema.Schema

	// base rows
	values map[string]schema.Value

	// augmented rows
	base *Row
	subs map[string]*Query
	keys []string

	// planning rows
	probe *probe
}

// NewRow creates a base row. values must already be normalized against s.
// Only a table should create and mutate base rows.
func NewRow(s *schema.Schema, values map[string]schema.Value) *Row {
	return &Row{schema: s, values: maps.Clone(values)}
}

// Get returns the value of a column, or the live result of a subquery.
func (r *Row) Get(column string) schema.Value {
	switch {
	case r == nil:
		return nil
	case r.probe != nil:
		return r.probe.get(column)
	case r.base != nil:
		if q, ok := r.subs[column]; ok {
			return q.Result()
		}
		return r.base.Get(column)
	}
	return r.values[column]
}

// ID returns the row identifier.
func (r *Row) ID() string {
	id, _ := r.Get(schema.IDColumn).(string)
	return id
}

// Sub returns the nested query under key, or nil.
func (r *Row) Sub(key string) *Query {
	switch {
	case r == nil:
		return nil
	case r.probe != nil:
		r.probe.sub(key)
		return nil
	}
	return r.subs[key]
}

// Keys enumerates every column of the schema in declaration order followed
// by the subquery keys in lexical order.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	return append(r.schema.Names(), r.keys...)
}

// Base returns the shared table row behind an augmented row, or r itself.
func (r *Row) Base() *Row {
	if r != nil && r.base != nil {
		return r.base
	}
	return r
}

// Values returns a copy of the column values.
func (r *Row) Values() map[string]schema.Value {
	return maps.Clone(r.Base().values)
}

// Apply sets column values on a base row and returns the previous values of
// the columns it touched. Only the owning table may call Apply.
func (r *Row) Apply(values map[string]schema.Value) map[string]schema.Value {
	old := make(map[string]schema.Value, len(values))
	for c, v := range values {
		old[c] = r.values[c]
		r.values[c] = v
	}
	return old
}

func (r *Row) augment(subs map[string]*Query, keys []string) *Row {
	return &Row{
		schema: r.schema,
		base:   r,
		subs:   subs,
		keys:   keys,
	}
}
