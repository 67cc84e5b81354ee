package schema

import (
	"fmt"
	"slices"
)

// Filter maps primitive columns to the literal value they must equal.
type Filter map[string]Value

// Columns returns the filtered column names in lexical order.
func (f Filter) Columns() []string {
	cols := make([]string, 0, len(f))
	for c := range f {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

// Matches reports whether every filtered column of row equals its literal.
// An empty filter matches every row.
func (f Filter) Matches(row Getter) bool {
	for c, want := range f {
		if !Equal(row.Get(c), want) {
			return false
		}
	}
	return true
}

// NormalizeFilter checks that every filtered column exists and is primitive,
// and coerces each literal to its column type.
func (s *Schema) NormalizeFilter(f Filter) (Filter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	out := make(Filter, len(f))
	for _, c := range f.Columns() {
		if err := s.CheckPrimitive(c); err != nil {
			return nil, err
		}
		t, _ := s.Type(c)
		v, err := Normalize(t, f[c])
		if err != nil {
			return nil, fmt.Errorf("filter column %q: %w", c, err)
		}
		out[c] = v
	}
	return out, nil
}
