package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/harness"
	"github.com/roach88/tether/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
	Schema   string
}

// ApplyResult holds the outcome of an apply run.
type ApplyResult struct {
	Restored  int                   `json:"restored"`
	Steps     []harness.StepOutcome `json:"steps"`
	LastSeq   int64                 `json:"last_seq"`
	StateHash string                `json:"state_hash"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <steps.yaml>",
		Short: "Apply steps to a journal-backed source",
		Long: `Restore a record source from its journal, apply a file of steps
through the Store and journal every applied transform.

The step file uses the scenario step format. A step may declare
expect_error; any other failure stops the run. Transforms applied before
the failing step stay in the journal.

Exit codes:
  0 - Every step ended as declared
  1 - A step ended unexpectedly
  2 - Command error (schema, journal or step file unusable)

Examples:
  tether apply --db ./tether.db --schema ./schema steps.yaml
  tether apply --db ./tether.db --schema ./schema steps.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to CUE model declarations (required)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runApply(opts *ApplyOptions, stepsPath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	schema, err := MustLoadSchema(opts.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err, ErrCodeGeneric), err)
	}
	steps, err := harness.LoadSteps(stepsPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err)
	}

	j, err := openJournal(opts.Database, true)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err, ErrCodeJournal), err)
	}
	defer j.Close()

	src, restored, err := restoreSource(ctx, schema, j, true, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err, ErrCodeJournal), err)
	}
	formatter.VerboseLog("Restored %d transform(s) from %s", restored, opts.Database)

	stop := src.Start(ctx)
	st := store.New(src, store.WithLogger(logger))
	outcomes, applyErr := harness.Apply(ctx, st, steps.Steps, logger)
	st.Destroy()
	stop()

	result := ApplyResult{Restored: restored, Steps: outcomes}
	if result.LastSeq, err = j.LastSeq(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err)
	}
	if result.StateHash, err = j.StateHash(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err)
	}

	if applyErr != nil {
		return formatter.Report(ErrCodeStepFailed, applyErr.Error(), result, func(w io.Writer) {
			outputApplyText(w, result)
			fmt.Fprintf(w, "\nError [%s]: %v\n", ErrCodeStepFailed, applyErr)
		})
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputApplyText(formatter.Writer, result)
	return nil
}

func outputApplyText(w io.Writer, result ApplyResult) {
	for _, o := range result.Steps {
		if o.Code == "" {
			fmt.Fprintf(w, "✓ [%d] %s %s\n", o.Step, o.Op, o.Record)
			continue
		}
		fmt.Fprintf(w, "✗ [%d] %s %s: %s\n", o.Step, o.Op, o.Record, o.Code)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Seq:   %d\n", result.LastSeq)
	fmt.Fprintf(w, "State: %s\n", result.StateHash)
}
