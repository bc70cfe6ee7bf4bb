package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Models []string                   `json:"models"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate model declarations without writing output",
		Long: `Validate CUE model declarations.

Reports every cross-model problem at once: unknown related models,
missing or mismatched inverses, forbidden attribute types and duplicate
field names.

Exit codes:
  0 - Schema is valid
  1 - Schema has validation errors
  2 - Command error (path not found, CUE syntax error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result, err := LoadSchema(path)
	if err != nil {
		return outputCompileError(formatter, errorCode(err, ErrCodeGeneric), err.Error())
	}
	formatter.VerboseLog("Read %d CUE file(s) from %s", result.FileCount, path)

	if !result.Valid() {
		return outputValidationErrors(formatter, result)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Models: result.Schema.ModelNames()})
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid: %d model(s)\n", len(result.Schema.Models))
	return nil
}

// outputValidationErrors reports every validation error. Invalid schemas
// exit with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, result *LoadResult) error {
	data := ValidationResult{
		Valid:  false,
		Models: result.Schema.ModelNames(),
		Errors: result.Errors,
	}
	msg := fmt.Sprintf("schema has %d validation error(s)", len(result.Errors))
	return formatter.Report(result.Errors[0].Code, msg, data, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
		}
	})
}
