package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/livetable/internal/schema"
)

// TableInfo describes one table of a manifest.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <manifest.cue>",
		Short: "Validate a CUE table manifest",
		Long: `Compile a CUE table manifest and list the tables it declares.

A manifest declares tables under the top-level "table" field:

  table: todos: {
      title:    string
      done:     bool
      priority: number
      meta:     "opaque"
  }`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), configureLogging(opts))

	if _, err := os.Stat(path); err != nil {
		msg := fmt.Sprintf("manifest not found: %s", path)
		f.logWrite(f.Error(ErrCodeLoadFailed, msg, nil))
		return NewExitError(ExitCommandError, msg)
	}

	schemas, err := schema.LoadCUE(path)
	if err != nil {
		var me *schema.ManifestError
		details := any(nil)
		if errors.As(err, &me) {
			details = map[string]any{"field": me.Field, "line": me.Pos.Line()}
		}
		f.logWrite(f.Error(ErrCodeInvalidSchema, err.Error(), details))
		return WrapExitError(ExitFailure, "invalid manifest", err)
	}

	tables := make([]TableInfo, len(schemas))
	for i, s := range schemas {
		info := TableInfo{Name: s.Name()}
		for _, c := range s.Columns() {
			info.Columns = append(info.Columns, ColumnInfo{Name: c.Name, Type: string(c.Type)})
		}
		tables[i] = info
	}

	if f.JSON() {
		return f.Success(tables)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %d table(s)\n\n", len(tables))
	for _, t := range tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name + " " + c.Type
		}
		fmt.Fprintf(w, "  %s: %s\n", t.Name, strings.Join(cols, ", "))
	}
	return nil
}
