package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/livetable/internal/canon"
	"github.com/roach88/livetable/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Query string // optional - only show changes of this query
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Trace    []harness.TraceEvent `json:"trace"`
	State    map[string]any       `json:"state"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and print its trace",
		Long: `Run a scenario file and print every change notification it produced.

Schema manifests referenced by the scenario are resolved relative to the
scenario file. Failed assertions are listed after the trace.

Examples:
  livetable run ./scenarios/todos.yaml
  livetable run ./scenarios/todos.yaml --query open
  livetable run ./scenarios/todos.yaml --format json --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "only show changes of the named query")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := configureLogging(opts.RootOptions)
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), logger)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		f.logWrite(f.Error(ErrCodeLoadFailed, err.Error(), nil))
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	logger.Debug("running scenario", "name", scenario.Name, "path", path)
	result, err := harness.Run(scenario, harness.WithLogger(logger))
	if err != nil {
		f.logWrite(f.Error(ErrCodeScenarioFailed, err.Error(), nil))
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	trace := result.Trace
	if opts.Query != "" {
		trace = result.EventsFor(opts.Query)
		if trace == nil {
			trace = []harness.TraceEvent{}
		}
	}

	out := RunOutput{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Trace:    trace,
		State:    result.State,
		Errors:   result.Errors,
	}
	failed := fmt.Sprintf("%d check(s) failed", len(result.Errors))

	if f.JSON() {
		if result.Pass {
			return f.Success(out)
		}
		f.logWrite(f.Failure(out, ErrCodeScenarioFailed, failed))
		return NewExitError(ExitFailure, failed)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scenario: %s\n\n", scenario.Name)
	printTrace(w, trace)

	if !result.Pass {
		fmt.Fprintln(w)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n", e)
		}
		return NewExitError(ExitFailure, failed)
	}
	fmt.Fprintf(w, "\n✓ %d change(s), all checks passed\n", len(trace))
	return nil
}

func printTrace(w io.Writer, trace []harness.TraceEvent) {
	if len(trace) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	for _, e := range trace {
		detail, err := canon.Marshal(e.Change)
		if err != nil {
			detail = []byte(fmt.Sprintf("%v", e.Change))
		}
		fmt.Fprintf(w, "[%d] step %d %-12s %-11v %s\n", e.Seq, e.Step, e.Query, e.Change["kind"], detail)
	}
}
