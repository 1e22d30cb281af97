package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
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
		Short: "Run command scenarios",
		Long: `Run YAML command scenarios against a fresh engine each.

Every step's result is checked against its expectations, the
scenario's assertions are evaluated, and the trace is compared with
<scenarios-dir>/golden/<name>.golden when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  omnilink test ./scenarios
  omnilink test ./scenarios --filter "chess_*"
  omnilink test ./scenarios --update
  omnilink test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return f.fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if f.JSON() {
			return f.Success(result)
		}
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return nil
	}

	logger := opts.logger(f.GetErrWriter(), slog.LevelWarn)
	for _, file := range files {
		sr := runScenario(file, scenariosDir, opts.Update, logger)
		if !f.JSON() {
			printScenario(f.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.JSON() {
		return outputTestJSON(f, result)
	}
	return outputTestText(f.Writer, result)
}

// findScenarioFiles finds all YAML scenario files under dir.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario loads, runs and golden-checks one scenario file.
func runScenario(file, scenariosDir string, update bool, logger *slog.Logger) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	res, err := harness.Run(scenario, harness.WithLogger(logger))
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	sr := ScenarioResult{Name: scenario.Name, Errors: res.Errors}
	trace, err := harness.MarshalTrace(scenario.Name, res)
	if err != nil {
		sr.Errors = append(sr.Errors, err.Error())
		return sr
	}

	goldenPath := goldenFilePath(scenariosDir, scenario.Name)
	if update {
		if err := updateGoldenFile(goldenPath, trace); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
	} else {
		sr.Golden, err = compareWithGolden(goldenPath, trace)
		if err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenariosDir, name string) string {
	return filepath.Join(scenariosDir, "golden", name+".golden")
}

// updateGoldenFile writes trace as the golden file.
func updateGoldenFile(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, trace, 0o644)
}

// compareWithGolden reports "match" or "missing", and an error for a
// mismatch.
func compareWithGolden(path string, trace []byte) (string, error) {
	golden, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "missing", nil
	}
	if err != nil {
		return "", err
	}
	if !bytes.Equal(golden, trace) {
		return "", fmt.Errorf("trace does not match %s (run with --update to regenerate)", path)
	}
	return "match", nil
}

func printScenario(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		if sr.Golden == "updated" {
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
func outputTestJSON(f *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return f.Success(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Failure(ErrCodeFailed, msg, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test summary as text.
func outputTestText(w io.Writer, result TestResult) error {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
