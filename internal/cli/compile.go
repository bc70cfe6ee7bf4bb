package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ModelCount        int
	KeyCount          int
	AttributeCount    int
	RelationshipCount int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile CUE model declarations to a schema",
		Long: `Compile CUE model declarations into the schema shared by record
sources and caches.

<schema> is a .cue file or a directory holding one CUE package. The
compiled schema is validated (related models, inverses, attribute types)
and written as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result, err := LoadSchema(path)
	if err != nil {
		return outputCompileError(formatter, errorCode(err, ErrCodeGeneric), err.Error())
	}
	formatter.VerboseLog("Read %d CUE file(s) from %s", result.FileCount, path)
	for _, m := range result.Schema.Models {
		formatter.VerboseLog("Compiled model: %s", m.Name)
	}

	if !result.Valid() {
		return outputValidationErrors(formatter, result)
	}

	if opts.Output != "" {
		if err := writeSchemaToFile(result.Schema, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result.Schema, calculateStats(result.Schema), opts.Output)
}

// calculateStats computes summary statistics from a compiled schema.
func calculateStats(schema *ir.Schema) CompilationStats {
	stats := CompilationStats{ModelCount: len(schema.Models)}
	for _, m := range schema.Models {
		stats.KeyCount += len(m.Keys)
		stats.AttributeCount += len(m.Attributes)
		stats.RelationshipCount += len(m.Relationships)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, schema *ir.Schema, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(schema)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d model(s)\n\n", stats.ModelCount)
	for _, m := range schema.Models {
		fmt.Fprintf(w, "  %s: %d key(s), %d attribute(s), %d relationship(s)\n",
			m.Name, len(m.Keys), len(m.Attributes), len(m.Relationships))
		for _, r := range m.Relationships {
			inverse := ""
			if r.Inverse != "" {
				inverse = " (inverse " + r.Inverse + ")"
			}
			fmt.Fprintf(w, "    %s: %s %s%s\n", r.Name, r.Kind, r.Model, inverse)
		}
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote schema to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// writeSchemaToFile writes the schema as indented JSON.
func writeSchemaToFile(schema *ir.Schema, filename string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
