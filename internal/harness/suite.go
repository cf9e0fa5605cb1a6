package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path does not exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist", e.Path)
}

// FindScenarios expands path into scenario files. A file is returned as is;
// a directory yields its .yaml and .yml files sorted by name. Subdirectories
// are not searched.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []ScenarioOutcome `json:"results"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioOutcome is the per-scenario line of a suite report.
type ScenarioOutcome struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Pass   bool   `json:"pass"`
	Events int    `json:"events"`
}

// ScenarioFailure explains why one scenario did not pass.
type ScenarioFailure struct {
	Scenario     string `json:"scenario,omitempty"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// RunSuite loads and runs every scenario in paths. Load and execution
// failures are recorded per scenario; the suite keeps going. The only error
// returned is ctx's, when it is done before the suite finishes.
func RunSuite(ctx context.Context, paths []string, opts ...RunOption) (*SuiteResult, error) {
	result := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++

		s, err := LoadScenario(path)
		if err != nil {
			result.fail("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := Run(s, opts...)
		if err != nil {
			result.fail(s.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		result.Results = append(result.Results, ScenarioOutcome{
			Name:   s.Name,
			Path:   path,
			Pass:   run.Pass,
			Events: len(run.Trace),
		})
		if !run.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     s.Name,
				ScenarioPath: path,
				Error:        fmt.Sprintf("scenario assertions failed: %s", strings.Join(run.Errors, "; ")),
			})
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(name, path, msg string) {
	r.Failed++
	r.Results = append(r.Results, ScenarioOutcome{Name: name, Path: path})
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, ScenarioPath: path, Error: msg})
}
