package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tether/internal/ir"
)

// TraceSnapshot captures the trace of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonical converts a TraceSnapshot to an IRObject for canonical JSON
// serialization. ir.MarshalCanonical only accepts IR values.
func (s *TraceSnapshot) toCanonical() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.IRObject{
			"step": ir.IRInt(event.Step),
			"type": ir.IRString(event.Type),
		}
		if event.Seq != 0 {
			obj["seq"] = ir.IRInt(event.Seq)
		}
		if event.TransformID != "" {
			obj["transform_id"] = ir.IRString(event.TransformID)
		}
		if len(event.Operations) > 0 {
			ops := make(ir.IRArray, len(event.Operations))
			for j, op := range event.Operations {
				ops[j] = op
			}
			obj["operations"] = ops
		}
		if event.Error != "" {
			obj["error"] = ir.IRString(event.Error)
		}
		trace[i] = obj
	}

	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
	}
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
