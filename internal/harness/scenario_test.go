package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "projects.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "projects", s.Name)
	assert.Equal(t, []string{filepath.Join("testdata", "scenarios", "schema.cue")}, s.Schemas)
	require.Len(t, s.Queries, 6)
	assert.Equal(t, "$id", s.Queries[0].Subqueries["tasks"].Filter["project"])
	assert.Equal(t, []string{"-points"}, s.Queries[3].Sort)
	assert.Equal(t, "UNKNOWN_COLUMN", s.Queries[5].Error)
	require.Len(t, s.Steps, 8)
	assert.Len(t, s.Steps[6].Transaction, 2)
	assert.Equal(t, "row not found", s.Steps[7].Error)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	content := `
name: base
description: "schemas resolve against the base path"
schemas: [tables.cue, /abs/tables.cue]
queries:
  - { name: q, table: t }
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := LoadScenarioWithBasePath(path, "/base")
	require.NoError(t, err)
	assert.Equal(t, []string{"/base/tables.cue", "/abs/tables.cue"}, s.Schemas)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "assertion instead of assertions"
tables: { t: { a: string } }
queries: [{ name: q, table: t }]
assertion: []
`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\ntables: { t: { a: string } }\nqueries: [{ name: q, table: t }]",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: n\ntables: { t: { a: string } }\nqueries: [{ name: q, table: t }]",
			want: "description is required",
		},
		{
			name: "no tables",
			body: "name: n\ndescription: d\nqueries: [{ name: q, table: t }]",
			want: "at least one of schemas or tables",
		},
		{
			name: "no queries",
			body: "name: n\ndescription: d\ntables: { t: { a: string } }",
			want: "queries list is required",
		},
		{
			name: "unnamed query",
			body: "name: n\ndescription: d\ntables: { t: { a: string } }\nqueries: [{ table: t }]",
			want: "query 0: name is required",
		},
		{
			name: "duplicate query",
			body: "name: n\ndescription: d\ntables: { t: { a: string } }\nqueries: [{ name: q, table: t }, { name: q, table: t }]",
			want: `duplicate name "q"`,
		},
		{
			name: "nested query without table",
			body: "name: n\ndescription: d\ntables: { t: { a: string } }\nqueries: [{ name: q, table: t, subqueries: { s: { select: [a] } } }]",
			want: "query q.s: table is required",
		},
		{
			name: "count with sort",
			body: "name: n\ndescription: d\ntables: { t: { a: string } }\nqueries: [{ name: q, table: t, count: true, sort: [a] }]",
			want: "count queries take only filter and group_by",
		},
		{
			name: "step with two actions",
			body: `name: n
description: d
tables: { t: { a: string } }
queries: [{ name: q, table: t }]
steps:
  - insert: { table: t }
    delete: { table: t, id: x }`,
			want: "step 0: exactly one of",
		},
		{
			name: "update without id",
			body: `name: n
description: d
tables: { t: { a: string } }
queries: [{ name: q, table: t }]
steps:
  - transaction:
      - update: { table: t, values: { a: x } }`,
			want: "step 0.0: update requires table and id",
		},
		{
			name: "unknown assertion type",
			body: `name: n
description: d
tables: { t: { a: string } }
queries: [{ name: q, table: t }]
assertions: [{ type: trace_contains, query: q }]`,
			want: `unknown type "trace_contains"`,
		},
		{
			name: "assertion on unknown query",
			body: `name: n
description: d
tables: { t: { a: string } }
queries: [{ name: q, table: t }]
assertions: [{ type: result, query: other }]`,
			want: `unknown query "other"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.body), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
