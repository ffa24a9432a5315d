package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/config"
	"github.com/roach88/crudkit/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Driver string // sqlite driver for the scenario databases
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
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
		Short: "Run scenario files against a fresh engine",
		Long: `Run YAML scenarios against an in-memory database.

Each scenario gets its own database, deterministic timestamps and request
IDs. Expectations and assertions are checked, then the call trace is
compared with <scenarios-dir>/golden/<name>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable scenarios, etc.)

Examples:
  crudkit test ./scenarios
  crudkit test ./scenarios --filter "inventory_*"
  crudkit test ./scenarios --update
  crudkit test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the scenario name")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "sqlite driver: sqlite3 or sqlite")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenarios, err := harness.LoadDir(scenariosDir)
	if err != nil {
		_ = formatter.Error("E_SCENARIO_LOAD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load scenarios", err)
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	logger := zap.NewNop()
	if opts.Verbose {
		if logger, err = opts.newLogger(config.Default()); err != nil {
			return err
		}
	}
	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Driver != "" {
		runOpts = append(runOpts, harness.WithDriver(opts.Driver))
	}

	goldenDir := filepath.Join(scenariosDir, harness.GoldenDir)
	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, s := range scenarios {
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, s.Name); !ok {
				continue
			}
		}
		sr := runScenario(cmd, s, goldenDir, opts.Update, runOpts)
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if !formatter.JSON() {
			printScenario(formatter, sr, opts.Update)
		}
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// runScenario executes one scenario and checks or rewrites its golden file.
func runScenario(cmd *cobra.Command, s *harness.Scenario, goldenDir string, update bool, runOpts []harness.Option) ScenarioResult {
	sr := ScenarioResult{Name: s.Name}

	res, err := harness.Run(cmd.Context(), s, runOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Errors = append(sr.Errors, res.Errors...)

	data, err := harness.Snapshot(s.Name, res)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("snapshot: %v", err))
		return sr
	}

	if update {
		if err := harness.UpdateGolden(goldenDir, s.Name, data); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
	} else if err := harness.CheckGolden(goldenDir, s.Name, data); err != nil {
		var mismatch *harness.MismatchError
		switch {
		case errors.Is(err, harness.ErrGoldenMissing):
			sr.Errors = append(sr.Errors, fmt.Sprintf("%v (run with --update to create it)", err))
		case errors.As(err, &mismatch):
			sr.Errors = append(sr.Errors, "golden file mismatch (run with --update to regenerate)", mismatch.Diff)
		default:
			sr.Errors = append(sr.Errors, err.Error())
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func printScenario(formatter *OutputFormatter, sr ScenarioResult, update bool) {
	w := formatter.Writer
	if sr.Pass {
		if update {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
		} else {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		}
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
