package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livetable/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenario files without running them",
		Long: `Parse and validate scenario files without running them.

Checks YAML syntax, unknown fields, required fields and references between
queries and assertions. Table and column names are checked when a scenario
runs.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), configureLogging(opts))

	results := make([]FileValidation, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		v := FileValidation{Path: path, Valid: true}
		s, err := harness.LoadScenario(path)
		if err != nil {
			v.Valid = false
			v.Error = err.Error()
			invalid++
		} else {
			v.Name = s.Name
		}
		results = append(results, v)
	}

	msg := fmt.Sprintf("%d of %d scenario(s) invalid", invalid, len(paths))
	if f.JSON() {
		if invalid > 0 {
			f.logWrite(f.Failure(results, ErrCodeInvalid, msg))
			return NewExitError(ExitFailure, msg)
		}
		return f.Success(results)
	}

	w := cmd.OutOrStdout()
	for _, v := range results {
		if v.Valid {
			fmt.Fprintf(w, "✓ %s (%s)\n", v.Path, v.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n  %s\n", v.Path, v.Error)
	}
	if invalid > 0 {
		return NewExitError(ExitFailure, msg)
	}
	return nil
}
