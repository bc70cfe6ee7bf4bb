package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Coarse bool   // run the source with coarse changes
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name      string   `json:"name"`
	Pass      bool     `json:"pass"`
	StateHash string   `json:"state_hash,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run binding scenarios",
		Long: `Run scenario files against a fresh in-memory source.

Each scenario names its schema, the live queries to register, the steps
to apply and the assertions that must hold afterwards. When
<scenarios-dir>/golden/<file>.golden exists the trace must match it
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  tether test ./scenarios
  tether test ./scenarios --filter "live_*"
  tether test ./scenarios --update
  tether test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Coarse, "coarse", false, "omit field detail from source changes")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if formatter.JSON() {
			return formatter.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, opts, cmd)
		if !formatter.JSON() {
			printScenarioResult(formatter.Writer, scenResult)
		}
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	return outputTestResult(formatter, result)
}

// findScenarioFiles lists scenario files under dir whose base name, without
// extension, matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	files, err := harness.FindScenarios(dir)
	if err != nil || filter == "" {
		return files, err
	}

	var matched []string
	for _, path := range files {
		base := filepath.Base(path)
		ok, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			matched = append(matched, path)
		}
	}
	return matched, nil
}

// runScenario executes a single scenario and checks its golden trace.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	name := filepath.Base(scenarioFile)
	fail := func(format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	name = scenario.Name

	runOpts := []harness.Option{harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr()))}
	if opts.Coarse {
		runOpts = append(runOpts, harness.WithCoarseChanges())
	}
	result, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return fail("execution failed: %v", err)
	}

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return fail("failed to marshal trace: %v", err)
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := writeGoldenFile(goldenPath, trace); err != nil {
			return fail("failed to update golden file: %v", err)
		}
	} else if golden, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(golden, trace) {
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	} else if !os.IsNotExist(err) {
		return fail("failed to read golden file: %v", err)
	}

	return ScenarioResult{
		Name:      name,
		Pass:      result.Pass,
		StateHash: result.StateHash,
		Errors:    result.Errors,
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// writeGoldenFile writes trace as the golden file, creating its directory.
func writeGoldenFile(goldenPath string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func printScenarioResult(w io.Writer, r ScenarioResult) {
	if r.Pass {
		fmt.Fprintf(w, "✓ %s\n", r.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", r.Name)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func printTestSummary(w io.Writer, result TestResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

// outputTestResult writes the summary. Any failed scenario exits with
// ExitFailure.
func outputTestResult(formatter *OutputFormatter, result TestResult) error {
	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		return formatter.Report(ErrCodeScenarioFailed, msg, result, func(w io.Writer) {
			printTestSummary(w, result)
		})
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	printTestSummary(formatter.Writer, result)
	fmt.Fprintln(formatter.Writer, "✓ All scenarios passed")
	return nil
}
