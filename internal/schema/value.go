package schema

import (
	"fmt"
	"math"
)

// Value is a single column value. Primitive columns hold string, float64
// (number), int64 (bigint), bool or nil. Opaque columns hold anything.
type Value = any

// Getter reads column values by name.
type Getter interface {
	Get(column string) Value
}

// Normalize coerces v to the canonical Go representation of t.
//
// Decoders hand back numbers in many shapes (int from YAML, float64 from
// JSON), so every integer and float kind is accepted for number and bigint
// columns as long as no precision is lost: number columns reject NaN and
// integers beyond ±2^53, bigint columns reject fractions. A nil value is
// accepted for every column type.
func Normalize(t ColumnType, v Value) (Value, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			if math.IsNaN(f) {
				return nil, fmt.Errorf("%w: NaN is not a %s", ErrTypeMismatch, t)
			}
			return f, nil
		}
	case TypeBigInt:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case TypeNull:
		// only nil, handled above
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %T is not a %s", ErrTypeMismatch, v, t)
}

// NormalizeRow validates every key of values against s and normalizes each
// value. Columns missing from values are not added.
func (s *Schema) NormalizeRow(values map[string]Value) (map[string]Value, error) {
	out := make(map[string]Value, len(values))
	for name, v := range values {
		t, ok := s.Type(name)
		if !ok {
			return nil, fmt.Errorf("%w %q in table %s", ErrUnknownColumn, name, s.name)
		}
		nv, err := Normalize(t, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		out[name] = nv
	}
	return out, nil
}

// Zero returns the zero value of t. Opaque columns have a nil zero.
func Zero(t ColumnType) Value {
	switch t {
	case TypeString:
		return ""
	case TypeNumber:
		return float64(0)
	case TypeBigInt:
		return int64(0)
	case TypeBoolean:
		return false
	}
	return nil
}

// Equal compares two primitive values. Values of different Go types are
// never equal. Opaque values compare unequal unless both are nil.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// Compare orders two primitive values of the same type. Nil sorts first,
// false before true. Mixed or opaque types compare equal.
func Compare(a, b Value) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return 0
}

func cmpOrdered[T string | float64 | int64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// maxExactInt is the largest magnitude a float64 holds without rounding.
const maxExactInt = 1 << 53

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return exactInt(int64(n))
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return exactInt(n)
	case uint:
		return exactUint(uint64(n))
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return exactUint(n)
	}
	return 0, false
}

func exactInt(n int64) (float64, bool) {
	if n > maxExactInt || n < -maxExactInt {
		return 0, false
	}
	return float64(n), true
}

func exactUint(n uint64) (float64, bool) {
	if n > maxExactInt {
		return 0, false
	}
	return float64(n), true
}

func toInt(v Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<63 {
			return int64(n), true
		}
	}
	return 0, false
}
