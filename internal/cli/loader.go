package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tether/internal/compiler"
	"github.com/roach88/tether/internal/ir"
)

// LoadResult contains a compiled schema and the validation errors found in
// it.
type LoadResult struct {
	Schema    *ir.Schema
	FileCount int                        // Number of CUE files read
	Errors    []compiler.ValidationError // Cross-model validation failures
}

// Valid reports whether the schema passed validation.
func (r *LoadResult) Valid() bool {
	return len(r.Errors) == 0
}

// LoadError represents an error that stopped schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema compiles the model declarations at path, a single CUE file or
// a directory holding one CUE package, and validates them.
func LoadSchema(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema: %v", err)}
	}

	var (
		value cue.Value
		count int
	)
	if info.IsDir() {
		value, count, err = buildDir(path)
	} else {
		value, count, err = buildFile(path)
	}
	if err != nil {
		return nil, err
	}

	schema, err := compiler.CompileSchema(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{
		Schema:    schema,
		FileCount: count,
		Errors:    compiler.Validate(schema),
	}, nil
}

// MustLoadSchema is LoadSchema for commands that need a valid schema:
// validation failures become an error too.
func MustLoadSchema(path string) (*ir.Schema, error) {
	result, err := LoadSchema(path)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		first := result.Errors[0]
		return nil, &LoadError{
			Code:    first.Code,
			Message: fmt.Sprintf("invalid schema (%d error(s)): %s: %s", len(result.Errors), first.Field, first.Message),
		}
	}
	return result.Schema, nil
}

func buildFile(path string) (cue.Value, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, 1, nil
}

func buildDir(dir string) (cue.Value, int, error) {
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, len(cueFiles), nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompileFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
}

// errorCode returns the CLI code carried by err, or fallback.
func errorCode(err error, fallback string) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return fallback
}

// Error code constants - unified across all CLI commands. Schema validation
// failures keep the compiler's E1xx codes.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeScanError      = "E002" // Directory scan error
	ErrCodeNoFiles        = "E003" // No CUE files found
	ErrCodeLoadFailed     = "E004" // CUE load failed
	ErrCodeNotFound       = "E005" // Path not found
	ErrCodeBuildFailed    = "E006" // CUE build failed
	ErrCodeWriteFailed    = "E007" // File write error
	ErrCodeCompileFailed  = "E008" // Model declaration malformed
	ErrCodeJournal        = "E009" // Journal open/read/write failed
	ErrCodeReplayDiverged = "E010" // Replayed state differs from the journal
	ErrCodeStepFailed     = "E011" // Applied step ended unexpectedly
	ErrCodeInvalidQuery   = "E012" // Query flags malformed or rejected
	ErrCodeScenarioFailed = "E013" // One or more scenarios failed
)
