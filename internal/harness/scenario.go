package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Scenario defines a binding-layer test scenario: a schema, a sequence of
// writes through the Store, and assertions over the resulting Models.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name" validate:"required,excludesall=/"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" validate:"required"`

	// Schema is the path of the CUE model declarations.
	// Relative paths are resolved against the scenario file's directory.
	Schema string `yaml:"schema" validate:"required"`

	// LiveQueries are registered before the first step and read by
	// live_query assertions after the last.
	LiveQueries []LiveQuery `yaml:"live_queries,omitempty" validate:"dive"`

	// Steps run in order. Each submits at most one transform.
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions" validate:"required,min=1,dive"`
}

// Step operations.
const (
	OpAdd      = "add"
	OpUpdate   = "update"
	OpRemove   = "remove"
	OpReplace  = "replace"
	OpRelate   = "relate"
	OpUnrelate = "unrelate"
)

// ErrorValidation is the expect_error code for input refused before a
// transform is queued.
const ErrorValidation = "VALIDATION"

// Step is one write through the Store.
type Step struct {
	Op string `yaml:"op" validate:"required,oneof=add update remove replace relate unrelate"`

	// Record is "type:id". For add it may be a bare type, and the source
	// generates the id.
	Record string `yaml:"record" validate:"required"`

	// Fields are loosely typed properties for add and update, normalized
	// against the schema. Relationship values are "type:id" references or
	// bare ids.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Relationship and Related drive replace, relate and unrelate.
	Relationship string   `yaml:"relationship,omitempty" validate:"required_if=Op replace,required_if=Op relate,required_if=Op unrelate"`
	Related      []string `yaml:"related,omitempty"`

	// ExpectError makes the step pass only if it fails with this code.
	ExpectError string `yaml:"expect_error,omitempty" validate:"omitempty,oneof=VALIDATION RECORD_NOT_FOUND RECORD_EXISTS"`
}

// LiveQuery declares a named live query. Type alone queries every record of
// a type; Record alone a single record; Record with Relationship follows a
// relationship.
type LiveQuery struct {
	Name         string         `yaml:"name" validate:"required"`
	Type         string         `yaml:"type,omitempty" validate:"required_without=Record"`
	Record       string         `yaml:"record,omitempty"`
	Relationship string         `yaml:"relationship,omitempty"`
	Where        map[string]any `yaml:"where,omitempty"`
	// Sort lists attributes; a leading "-" sorts descending.
	Sort []string `yaml:"sort,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "attribute", "key": Record's Field equals Value
	// - "has_one": Record's Field links Value ("type:id", or null)
	// - "has_many": Record's Field lists Value in order
	// - "live_query": live query Query currently yields Value
	// - "stale": the Model of Record is stale (Value defaults to true)
	// - "record_count": Model has Count records
	Type string `yaml:"type" validate:"required,oneof=attribute key has_one has_many live_query stale record_count"`

	Record string `yaml:"record,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Query  string `yaml:"query,omitempty"`
	Model  string `yaml:"model,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertAttribute   = "attribute"
	AssertKey         = "key"
	AssertHasOne      = "has_one"
	AssertHasMany     = "has_many"
	AssertLiveQuery   = "live_query"
	AssertStale       = "stale"
	AssertRecordCount = "record_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The schema path is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving a relative schema path
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && baseDir != "" {
		scenario.Schema = filepath.Join(baseDir, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks struct tags first, then the rules that depend on
// the step or assertion type.
func validateScenario(s *Scenario) error {
	if err := validate.Struct(s); err != nil {
		return validationErrorToString(err)
	}

	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}

	queries := make(map[string]bool, len(s.LiveQueries))
	for i, lq := range s.LiveQueries {
		if queries[lq.Name] {
			return fmt.Errorf("live_queries[%d]: duplicate name %q", i, lq.Name)
		}
		queries[lq.Name] = true
		if lq.Relationship != "" && lq.Record == "" {
			return fmt.Errorf("live_queries[%d]: relationship requires record", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, queries); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates the fields a step's operation needs.
func validateStep(index int, step *Step) error {
	bareType := !strings.Contains(step.Record, ":")
	switch step.Op {
	case OpAdd:
		if len(step.Related) > 0 {
			return fmt.Errorf("steps[%d]: related is not used by add, put links in fields", index)
		}
	case OpUpdate:
		if bareType {
			return fmt.Errorf("steps[%d]: update needs a \"type:id\" record", index)
		}
		if len(step.Fields) == 0 {
			return fmt.Errorf("steps[%d]: fields are required for update", index)
		}
	case OpRemove:
		if bareType {
			return fmt.Errorf("steps[%d]: remove needs a \"type:id\" record", index)
		}
	case OpReplace:
		if bareType {
			return fmt.Errorf("steps[%d]: replace needs a \"type:id\" record", index)
		}
	case OpRelate, OpUnrelate:
		if bareType {
			return fmt.Errorf("steps[%d]: %s needs a \"type:id\" record", index, step.Op)
		}
		if len(step.Related) != 1 {
			return fmt.Errorf("steps[%d]: %s takes exactly one related record", index, step.Op)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, queries map[string]bool) error {
	switch a.Type {
	case AssertAttribute, AssertKey, AssertHasOne, AssertHasMany:
		if a.Record == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: record and field are required for %s", index, a.Type)
		}
	case AssertLiveQuery:
		if !queries[a.Query] {
			return fmt.Errorf("assertions[%d]: unknown live query %q", index, a.Query)
		}
	case AssertStale:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for stale", index)
		}
	case AssertRecordCount:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for record_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for record_count", index)
		}
	}
	return nil
}

// validationErrorToString flattens validator errors into one message per
// failing field.
func validationErrorToString(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field %s: rule %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
