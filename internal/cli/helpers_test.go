package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: todos
description: "open todos by priority"
tables:
  todos: { title: string, priority: number, done: boolean }
queries:
  - name: open
    table: todos
    filter: { done: false }
    sort: [priority]
steps:
  - insert: { table: todos, id: a, values: { title: write, priority: 2, done: false } }
  - insert: { table: todos, id: b, values: { title: read, priority: 1, done: false } }
assertions:
  - type: change_count
    query: open
    count: 2
  - type: oracle
    query: open
`

const failingScenario = `
name: broken
description: "expects a change that never happens"
tables:
  todos: { title: string }
queries:
  - { name: all, table: todos }
steps:
  - insert: { table: todos, id: a, values: { title: x } }
assertions:
  - type: change_count
    query: all
    count: 5
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
