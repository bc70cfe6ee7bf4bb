package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tether/internal/ir"
)

// CompileSchema parses every model under the "model" field of a CUE value
// into an ir.Schema. Models are sorted by name.
//
// The value is usually a whole file:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: planet: { ... }`)
//	schema, err := CompileSchema(v)
//
// CompileSchema checks shape only. Run Validate for cross-model rules.
func CompileSchema(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, &CompileError{
			Field:   "model",
			Message: "at least one model is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var models []ir.ModelDef
	for iter.Next() {
		m, err := CompileModel(iter.Value())
		if err != nil {
			return nil, err
		}
		models = append(models, *m)
	}
	if len(models) == 0 {
		return nil, &CompileError{
			Field:   "model",
			Message: "at least one model is required",
			Pos:     modelsVal.Pos(),
		}
	}
	return ir.NewSchema(models...), nil
}

// CompileModel parses one model declaration. The model name is the last
// path selector, so pass the value looked up by path:
//
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model.planet")))
func CompileModel(v cue.Value) (*ir.ModelDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.ModelDef{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		m.Name = labels[len(labels)-1].String()
	}
	if m.Name == "" {
		return nil, &CompileError{Field: "model", Message: "model name is required", Pos: v.Pos()}
	}

	var err error
	if m.Keys, err = parseKeys(m.Name, v); err != nil {
		return nil, err
	}
	if m.Attributes, err = parseAttributes(m.Name, v); err != nil {
		return nil, err
	}
	if m.Relationships, err = parseRelationships(m.Name, v); err != nil {
		return nil, err
	}
	return m, nil
}

// parseKeys extracts key declarations. Keys are always strings.
func parseKeys(model string, v cue.Value) ([]ir.KeyDef, error) {
	keys := []ir.KeyDef{}
	keysVal := v.LookupPath(cue.ParsePath("keys"))
	if !keysVal.Exists() {
		return keys, nil
	}

	iter, err := keysVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		if iter.Value().IncompleteKind() != cue.StringKind {
			return nil, &CompileError{
				Field:   fmt.Sprintf("model.%s.keys.%s", model, name),
				Message: "keys must be strings",
				Pos:     iter.Value().Pos(),
			}
		}
		keys = append(keys, ir.KeyDef{Name: name})
	}
	return keys, nil
}

// parseAttributes extracts attribute declarations in declaration order.
func parseAttributes(model string, v cue.Value) ([]ir.AttributeDef, error) {
	attrs := []ir.AttributeDef{}
	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return attrs, nil
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		typ, err := extractTypeName(fmt.Sprintf("model.%s.attributes.%s", model, name), iter.Value())
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, ir.AttributeDef{Name: name, Type: typ})
	}
	return attrs, nil
}

// parseRelationships extracts relationship declarations:
//
//	relationships: moons: { kind: "hasMany", model: "moon", inverse: "planet" }
//
// inverse is optional.
func parseRelationships(model string, v cue.Value) ([]ir.RelationshipDef, error) {
	rels := []ir.RelationshipDef{}
	relsVal := v.LookupPath(cue.ParsePath("relationships"))
	if !relsVal.Exists() {
		return rels, nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		relVal := iter.Value()
		path := fmt.Sprintf("model.%s.relationships.%s", model, name)

		kindStr, err := requiredString(path+".kind", relVal, "kind")
		if err != nil {
			return nil, err
		}
		kind, ok := ir.ParseRelationshipKind(kindStr)
		if !ok {
			return nil, &CompileError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("invalid relationship kind %q, must be \"hasOne\" or \"hasMany\"", kindStr),
				Pos:     relVal.Pos(),
			}
		}

		related, err := requiredString(path+".model", relVal, "model")
		if err != nil {
			return nil, err
		}

		rel := ir.RelationshipDef{Name: name, Kind: kind, Model: related}
		if invVal := relVal.LookupPath(cue.ParsePath("inverse")); invVal.Exists() {
			inverse, err := invVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			rel.Inverse = inverse
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func requiredString(field string, v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// extractTypeName converts a CUE type to an attribute type name.
// Floats are forbidden: every number is an int.
func extractTypeName(field string, v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "array", nil
	case cue.StructKind:
		return "object", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   field,
			Message: "float types are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
