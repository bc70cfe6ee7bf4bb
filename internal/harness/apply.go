package harness

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tether/internal/store"
)

// StepFile is a list of steps applied to an existing Store, outside any
// scenario.
type StepFile struct {
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// StepOutcome reports how one applied step ended. Code is empty on success.
type StepOutcome struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Record  string `json:"record"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// LoadSteps reads and validates a step file.
func LoadSteps(path string) (*StepFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read step file: %w", err)
	}

	var file StepFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid step file: %w", validationErrorToString(err))
	}
	for i, step := range file.Steps {
		if err := validateStep(i, &step); err != nil {
			return nil, fmt.Errorf("invalid step file: %w", err)
		}
	}
	return &file, nil
}

// Apply executes steps against st in order. It stops after the first step
// whose outcome differs from its ExpectError and reports that step's error.
func Apply(ctx context.Context, st *store.Store, steps []Step, logger *slog.Logger) ([]StepOutcome, error) {
	h := &Harness{schema: st.Schema(), store: st, logger: logger}

	outcomes := make([]StepOutcome, 0, len(steps))
	for i, step := range steps {
		err := h.executeStep(ctx, step)
		outcome := StepOutcome{Step: i, Op: step.Op, Record: step.Record, Code: errorCode(err)}
		if err != nil {
			outcome.Message = err.Error()
		}
		outcomes = append(outcomes, outcome)

		logger.Info("step applied", "step", i, "op", step.Op, "record", step.Record, "outcome", outcome.Code)
		if outcome.Code != step.ExpectError {
			if err == nil {
				return outcomes, fmt.Errorf("steps[%d] %s %s: expected %s, step succeeded", i, step.Op, step.Record, step.ExpectError)
			}
			return outcomes, fmt.Errorf("steps[%d] %s %s: %w", i, step.Op, step.Record, err)
		}
	}
	return outcomes, nil
}
