package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ManifestError is a schema manifest error with its CUE source position.
type ManifestError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ManifestError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCUE compiles the schema manifest at path.
func LoadCUE(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseCUE(path, data)
}

// ParseCUE compiles manifest source. filename is used for error positions.
func ParseCUE(filename string, src []byte) ([]*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileCUE(v)
}

// CompileCUE extracts every table declared under the top-level "table"
// field of v, in declaration order.
//
// A column is declared either with a CUE type or with a type name:
//
//	table: todos: {
//		title:   string   // string
//		done:    bool     // boolean
//		score:   number   // number
//		version: int      // bigint
//		owner:   "opaque"
//	}
func CompileCUE(v cue.Value) ([]*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &ManifestError{
			Field:   "table",
			Message: "no tables declared",
			Pos:     v.Pos(),
		}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var schemas []*Schema
	for iter.Next() {
		s, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

func compileTable(name string, v cue.Value) (*Schema, error) {
	fields, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var columns []Column
	for fields.Next() {
		t, err := columnType(fields.Value())
		if err != nil {
			return nil, err
		}
		columns = append(columns, Column{Name: fields.Label(), Type: t})
	}

	s, err := New(name, columns...)
	if err != nil {
		return nil, &ManifestError{
			Field:   "table." + name,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

func columnType(v cue.Value) (ColumnType, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return ParseColumnType(name), nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return TypeString, nil
	case cue.IntKind:
		return TypeBigInt, nil
	case cue.FloatKind, cue.NumberKind:
		return TypeNumber, nil
	case cue.BoolKind:
		return TypeBoolean, nil
	case cue.NullKind:
		return TypeNull, nil
	case cue.BottomKind:
		return "", &ManifestError{
			Field:   "type",
			Message: "column has no type",
			Pos:     v.Pos(),
		}
	default:
		return TypeOpaque, nil
	}
}

func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &ManifestError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
