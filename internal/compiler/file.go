package compiler

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/tether/internal/ir"
)

// CompileFile reads a CUE file, compiles its models and validates the
// result. Validation failures are joined into one error.
func CompileFile(path string) (*ir.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	schema, err := CompileSchema(v)
	if err != nil {
		return nil, err
	}
	if errs := Validate(schema); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid schema %s: %w", path, errors.Join(joined...))
	}
	return schema, nil
}
