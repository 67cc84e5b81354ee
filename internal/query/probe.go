package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/livetable/internal/schema"
)

// probe instruments a planning row. Every column read is recorded and
// answered with the zero value of its type; reads of undeclared columns are
// recorded as errors instead of panicking, so a generator runs to the end.
type probe struct {
	schema  *schema.Schema
	subKeys []string

	read    []string
	opaque  []string
	unknown []string
}

func newProbe(s *schema.Schema, subKeys []string) *probe {
	return &probe{schema: s, subKeys: subKeys}
}

func (p *probe) row() *Row {
	return &Row{schema: p.schema, probe: p, keys: p.subKeys}
}

func (p *probe) get(column string) schema.Value {
	if slices.Contains(p.subKeys, column) {
		return nil
	}
	t, ok := p.schema.Type(column)
	if !ok {
		p.unknown = appendUnique(p.unknown, column)
		return nil
	}
	p.read = appendUnique(p.read, column)
	if !t.Primitive() {
		p.opaque = appendUnique(p.opaque, column)
	}
	return schema.Zero(t)
}

func (p *probe) sub(key string) {
	if !slices.Contains(p.subKeys, key) {
		p.unknown = appendUnique(p.unknown, key)
	}
}

// probeSort runs compare against two planning rows and returns the columns
// it reads.
func probeSort(s *schema.Schema, subKeys []string, sort *Sort) (cols []string, err error) {
	p := newProbe(s, subKeys)
	defer func() {
		if r := recover(); r != nil {
			err = &ConfigError{
				Code:    ErrCodeInvalidOptions,
				Table:   s.Name(),
				Message: fmt.Sprintf("sort comparator panicked during planning: %v", r),
			}
		}
	}()
	sort.compare(p.row(), p.row())

	if len(p.unknown) > 0 {
		return nil, unknownColumn(s, p.unknown[0], "sort comparator reads an undeclared column")
	}
	if len(p.opaque) > 0 {
		return nil, &ConfigError{
			Code:    ErrCodeOpaqueColumn,
			Table:   s.Name(),
			Column:  p.opaque[0],
			Message: "sort comparator reads an opaque column",
		}
	}
	return p.read, nil
}

// probeGenerator runs gen against a planning row and returns the columns it
// reads. Errors from nested query construction are returned unchanged,
// except ErrPlanning which only means the nested query is this one.
func probeGenerator(s *schema.Schema, subKeys []string, key string, gen Generator) (cols []string, err error) {
	p := newProbe(s, subKeys)
	defer func() {
		if r := recover(); r != nil {
			err = &ConfigError{
				Code:    ErrCodeInvalidOptions,
				Table:   s.Name(),
				Column:  key,
				Message: fmt.Sprintf("subquery generator panicked during planning: %v", r),
			}
		}
	}()
	_, genErr := gen(p.row())

	if len(p.unknown) > 0 {
		return nil, unknownColumn(s, p.unknown[0], fmt.Sprintf("subquery %q reads an undeclared column", key))
	}
	if genErr != nil && !errors.Is(genErr, ErrPlanning) {
		if IsConfigError(genErr) {
			return nil, genErr
		}
		return nil, &ConfigError{
			Code:    ErrCodeInvalidOptions,
			Table:   s.Name(),
			Column:  key,
			Message: "subquery generator failed during planning",
			Err:     genErr,
		}
	}
	return p.read, nil
}

func unknownColumn(s *schema.Schema, column, msg string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnknownColumn,
		Table:   s.Name(),
		Column:  column,
		Message: msg,
	}
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
