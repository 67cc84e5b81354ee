package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	gen := UUIDv7Generator{}

	id := gen.Generate()
	assert.Len(t, id, 36)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for range 100 {
		id := gen.Generate()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFixedGenerator_Order(t *testing.T) {
	gen := NewFixedGenerator("r1", "r2")
	assert.Equal(t, "r1", gen.Generate())
	assert.Equal(t, "r2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("row")
	assert.Equal(t, "row-1", gen.Generate())
	assert.Equal(t, "row-2", gen.Generate())
}

func TestGenerators_ImplementInterface(t *testing.T) {
	var _ Generator = UUIDv7Generator{}
	var _ Generator = NewFixedGenerator()
	var _ Generator = NewSequenceGenerator("x")
}
