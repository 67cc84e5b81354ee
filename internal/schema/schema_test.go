package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func todoSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New("todos",
		Column{Name: "title", Type: TypeString},
		Column{Name: "done", Type: TypeBoolean},
		Column{Name: "priority", Type: TypeNumber},
		Column{Name: "meta", Type: TypeOpaque},
	)
	require.NoError(t, err)
	return s
}

func TestNew_AddsIDColumn(t *testing.T) {
	s := todoSchema(t)

	assert.Equal(t, []string{"id", "title", "done", "priority", "meta"}, s.Names())
	assert.Equal(t, []string{"done", "id", "meta", "priority", "title"}, s.SortedNames())
	typ, ok := s.Type(IDColumn)
	require.True(t, ok)
	assert.Equal(t, TypeString, typ)
}

func TestNew_RejectsNonStringID(t *testing.T) {
	_, err := New("bad", Column{Name: "id", Type: TypeNumber})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string")
}

func TestNew_RejectsDuplicateColumn(t *testing.T) {
	_, err := New("bad",
		Column{Name: "a", Type: TypeString},
		Column{Name: "a", Type: TypeNumber},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestSchema_CheckPrimitive(t *testing.T) {
	s := todoSchema(t)

	assert.NoError(t, s.CheckPrimitive("title"))
	assert.ErrorIs(t, s.CheckPrimitive("meta"), ErrOpaqueColumn)
	assert.ErrorIs(t, s.CheckPrimitive("nope"), ErrUnknownColumn)
	assert.ErrorIs(t, s.CheckColumn("nope"), ErrUnknownColumn)
	assert.NoError(t, s.CheckColumn("meta"))
}

func TestParseColumnType(t *testing.T) {
	assert.Equal(t, TypeBigInt, ParseColumnType("bigint"))
	assert.Equal(t, TypeNull, ParseColumnType("null"))
	assert.Equal(t, TypeOpaque, ParseColumnType("map[string]any"))
	assert.False(t, TypeOpaque.Primitive())
}

// =============================================================================
// Values
// =============================================================================

func TestNormalize_NumberKinds(t *testing.T) {
	v, err := Normalize(TypeNumber, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)

	v, err = Normalize(TypeBigInt, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = Normalize(TypeBigInt, float64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = Normalize(TypeBigInt, 2.5)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNormalize_NumberRejectsNaN(t *testing.T) {
	_, err := Normalize(TypeNumber, math.NaN())
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(TypeNumber, float32(math.NaN()))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	v, err := Normalize(TypeNumber, math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, math.Inf(1), v)

	s := todoSchema(t)
	_, err = s.NormalizeFilter(Filter{"priority": math.NaN()})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNormalize_NumberRejectsInexactIntegers(t *testing.T) {
	v, err := Normalize(TypeNumber, int64(1<<53))
	require.NoError(t, err)
	assert.Equal(t, float64(1<<53), v)

	v, err = Normalize(TypeNumber, int64(-(1 << 53)))
	require.NoError(t, err)
	assert.Equal(t, float64(-(1 << 53)), v)

	_, err = Normalize(TypeNumber, int64(1<<53+1))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(TypeNumber, uint64(math.MaxUint64))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(TypeNumber, int64(math.MinInt64))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	v, err = Normalize(TypeBigInt, int64(1<<53+1))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<53+1), v)
}

func TestNormalize_NilAndMismatch(t *testing.T) {
	v, err := Normalize(TypeString, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Normalize(TypeString, 1)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(TypeNull, "x")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	opaque := []int{1}
	v, err = Normalize(TypeOpaque, opaque)
	require.NoError(t, err)
	assert.Equal(t, opaque, v)
}

func TestSchema_NormalizeRow(t *testing.T) {
	s := todoSchema(t)

	row, err := s.NormalizeRow(map[string]Value{"title": "a", "priority": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"title": "a", "priority": float64(2)}, row)

	_, err = s.NormalizeRow(map[string]Value{"owner": "x"})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal("a", "a"))
	assert.True(t, Equal(float64(1), float64(1)))
	assert.False(t, Equal(float64(1), int64(1)))
	assert.False(t, Equal(nil, false))
	assert.False(t, Equal([]int{}, []int{}))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(nil, "a"))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, 0, Compare(int64(4), int64(4)))
	assert.Equal(t, -1, Compare(false, true))
	assert.Equal(t, 0, Compare("a", float64(1)))
}

// =============================================================================
// Filters
// =============================================================================

type mapRow map[string]Value

func (m mapRow) Get(c string) Value { return m[c] }

func TestFilter_Matches(t *testing.T) {
	f := Filter{"done": false, "priority": float64(1)}

	assert.True(t, f.Matches(mapRow{"done": false, "priority": float64(1), "title": "x"}))
	assert.False(t, f.Matches(mapRow{"done": true, "priority": float64(1)}))
	assert.True(t, Filter(nil).Matches(mapRow{}))
	assert.Equal(t, []string{"done", "priority"}, f.Columns())
}

func TestSchema_NormalizeFilter(t *testing.T) {
	s := todoSchema(t)

	f, err := s.NormalizeFilter(Filter{"priority": 1})
	require.NoError(t, err)
	assert.Equal(t, Filter{"priority": float64(1)}, f)

	_, err = s.NormalizeFilter(Filter{"meta": nil})
	assert.ErrorIs(t, err, ErrOpaqueColumn)

	_, err = s.NormalizeFilter(Filter{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	f, err = s.NormalizeFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}
