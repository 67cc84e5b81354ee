package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCUE_Tables(t *testing.T) {
	schemas, err := ParseCUE("tables.cue", []byte(`
		table: todos: {
			title:    string
			done:     bool
			priority: number
			version:  int
			owner:    "opaque"
		}
		table: tags: {
			id:    string
			label: "string"
			count: "bigint"
		}
	`))
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	todos := schemas[0]
	assert.Equal(t, "todos", todos.Name())
	assert.Equal(t, []Column{
		{Name: "id", Type: TypeString},
		{Name: "title", Type: TypeString},
		{Name: "done", Type: TypeBoolean},
		{Name: "priority", Type: TypeNumber},
		{Name: "version", Type: TypeBigInt},
		{Name: "owner", Type: TypeOpaque},
	}, todos.Columns())

	tags := schemas[1]
	assert.Equal(t, "tags", tags.Name())
	assert.Equal(t, []string{"id", "label", "count"}, tags.Names())
	typ, _ := tags.Type("count")
	assert.Equal(t, TypeBigInt, typ)
}

func TestParseCUE_MissingTables(t *testing.T) {
	_, err := ParseCUE("empty.cue", []byte(`other: 1`))
	require.Error(t, err)

	var me *ManifestError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "table", me.Field)
}

func TestParseCUE_BadIDType(t *testing.T) {
	_, err := ParseCUE("bad.cue", []byte(`table: t: { id: int }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string")
}

func TestParseCUE_SyntaxErrorHasPosition(t *testing.T) {
	_, err := ParseCUE("broken.cue", []byte("table: {\n  t: {\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestLoadCUE_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(`table: notes: { body: string }`), 0o644))

	schemas, err := LoadCUE(path)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, []string{"id", "body"}, schemas[0].Names())
}

func TestLoadCUE_MissingFile(t *testing.T) {
	_, err := LoadCUE(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
}
