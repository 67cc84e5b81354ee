package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	dir := t.TempDir()
	a := writeScenario(t, dir, "todos.yaml", passingScenario)
	b := writeScenario(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, NewRootCommand(), "validate", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+a+" (todos)")
	assert.Contains(t, out, "✓ "+b+" (broken)")
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "todos.yaml", passingScenario)
	bad := writeScenario(t, dir, "bad.yaml", "name: bad\ndescription: d\ntables: { t: { a: string } }\nqueries: []\n")

	out, err := execute(t, NewRootCommand(), "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 scenario(s) invalid")
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "queries list is required")
}

func TestValidateCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
