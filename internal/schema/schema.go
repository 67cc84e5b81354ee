package schema

import (
	"errors"
	"fmt"
	"slices"
)

// IDColumn is the name of the unique, immutable row identifier column.
const IDColumn = "id"

// ColumnType names the value type stored in a column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number" // float64
	TypeBigInt  ColumnType = "bigint" // int64
	TypeBoolean ColumnType = "boolean"
	TypeNull    ColumnType = "null"
	TypeOpaque  ColumnType = "opaque"
)

// Primitive reports whether values of this type may be used in filters,
// group keys and comparators.
func (t ColumnType) Primitive() bool {
	switch t {
	case TypeString, TypeNumber, TypeBigInt, TypeBoolean, TypeNull:
		return true
	}
	return false
}

// ParseColumnType maps a declared type name to a ColumnType. Names that are
// not one of the primitive types are opaque.
func ParseColumnType(name string) ColumnType {
	t := ColumnType(name)
	if t.Primitive() {
		return t
	}
	return TypeOpaque
}

// Column is a single named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Sentinel errors for column validation. Callers match them with errors.Is.
var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrOpaqueColumn  = errors.New("opaque column")
	ErrTypeMismatch  = errors.New("type mismatch")
)

// Schema is an immutable, validated column manifest.
type Schema struct {
	name    string
	columns []Column
	index   map[string]int
	sorted  []string
}

// New builds a schema from columns in declaration order.
//
// The id column is added as the first column when missing. It must be a
// string when declared. Column names must be non-empty and unique.
func New(name string, columns ...Column) (*Schema, error) {
	s := &Schema{
		name:  name,
		index: make(map[string]int, len(columns)+1),
	}

	hasID := slices.ContainsFunc(columns, func(c Column) bool { return c.Name == IDColumn })
	if !hasID {
		columns = append([]Column{{Name: IDColumn, Type: TypeString}}, columns...)
	}

	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("schema %s: column name is required", name)
		}
		if _, dup := s.index[col.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate column %q", name, col.Name)
		}
		if col.Type == "" {
			return nil, fmt.Errorf("schema %s: column %q has no type", name, col.Name)
		}
		if col.Name == IDColumn && col.Type != TypeString {
			return nil, fmt.Errorf("schema %s: column %q must be a string, got %s", name, IDColumn, col.Type)
		}
		s.index[col.Name] = len(s.columns)
		s.columns = append(s.columns, col)
		s.sorted = append(s.sorted, col.Name)
	}
	slices.Sort(s.sorted)

	return s, nil
}

// MustNew is like New but panics on error.
// Use only in tests or with static column lists.
func MustNew(name string, columns ...Column) *Schema {
	s, err := New(name, columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the table name the schema was declared for.
func (s *Schema) Name() string {
	return s.name
}

// Columns returns the columns in declaration order.
func (s *Schema) Columns() []Column {
	return slices.Clone(s.columns)
}

// Names returns the column names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// SortedNames returns the column names in stable lexical order.
func (s *Schema) SortedNames() []string {
	return slices.Clone(s.sorted)
}

// Has reports whether the schema declares column.
func (s *Schema) Has(column string) bool {
	_, ok := s.index[column]
	return ok
}

// Type returns the declared type of column.
func (s *Schema) Type(column string) (ColumnType, bool) {
	i, ok := s.index[column]
	if !ok {
		return "", false
	}
	return s.columns[i].Type, true
}

// CheckColumn returns an ErrUnknownColumn error when column is not declared.
func (s *Schema) CheckColumn(column string) error {
	if !s.Has(column) {
		return fmt.Errorf("%w %q in table %s", ErrUnknownColumn, column, s.name)
	}
	return nil
}

// CheckPrimitive is CheckColumn plus a check that the column is primitive.
func (s *Schema) CheckPrimitive(column string) error {
	t, ok := s.Type(column)
	if !ok {
		return fmt.Errorf("%w %q in table %s", ErrUnknownColumn, column, s.name)
	}
	if !t.Primitive() {
		return fmt.Errorf("%w %q in table %s", ErrOpaqueColumn, column, s.name)
	}
	return nil
}
