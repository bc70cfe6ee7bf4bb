package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one scenario that failed to load, run or pass.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// FindScenarios lists the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// RunDir loads and runs every scenario under dir.
//
// For each scenario file:
// 1. Load and validate it
// 2. Run it via harness.Run
// 3. Collect failures
//
// A scenario that fails to load counts as failed; the suite continues.
func RunDir(ctx context.Context, dir string, opts ...Option) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(filepath.Base(path), path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := Run(ctx, scenario, opts...)
		if err != nil {
			result.fail(scenario.Name, path, err.Error())
			continue
		}
		if !run.Pass {
			result.fail(scenario.Name, path, run.Errors...)
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{Scenario: name, Path: path, Errors: errs})
}
