package memsource

import (
	"fmt"
	"strings"

	"github.com/roach88/tether/internal/ir"
)

// Normalize builds a record of model typ from loosely typed properties, as
// decoded from YAML or JSON. "id" sets the record id; every other property
// must be a declared field:
//
//   - keys take strings
//   - attributes take any value ir.FromAny accepts
//   - hasOne takes a related id, a "type:id" reference, or nil
//   - hasMany takes a list of the same
//
// Normalize checks field names and reference shapes only; value types are
// checked when the resulting operation is submitted.
func Normalize(schema *ir.Schema, typ string, props map[string]any) (*ir.Record, error) {
	m, ok := schema.Model(typ)
	if !ok {
		return nil, fmt.Errorf("normalize: unknown model %q", typ)
	}
	rec := &ir.Record{Type: typ}
	for name, raw := range props {
		if name == "id" {
			id, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("normalize %s: id must be a string, got %T", typ, raw)
			}
			rec.ID = id
			continue
		}
		f, ok := m.Field(name)
		if !ok {
			return nil, fmt.Errorf("normalize %s: unknown field %q", typ, name)
		}
		var err error
		switch f.Kind {
		case ir.FieldKey:
			s, isString := raw.(string)
			if !isString {
				return nil, fmt.Errorf("normalize %s.%s: key must be a string, got %T", typ, name, raw)
			}
			rec = rec.WithKey(name, s)
		case ir.FieldAttribute:
			var v ir.IRValue
			if v, err = ir.FromAny(raw); err != nil {
				return nil, fmt.Errorf("normalize %s.%s: %w", typ, name, err)
			}
			rec = rec.WithAttribute(name, v)
		case ir.FieldHasOne:
			var ref *ir.RecordIdentity
			if raw != nil {
				id, refErr := NormalizeReference(f.Type, raw)
				if refErr != nil {
					return nil, fmt.Errorf("normalize %s.%s: %w", typ, name, refErr)
				}
				ref = &id
			}
			rec = rec.WithRelationship(name, ir.ToOne(ref))
		case ir.FieldHasMany:
			list, isList := raw.([]any)
			if !isList && raw != nil {
				return nil, fmt.Errorf("normalize %s.%s: expected a list, got %T", typ, name, raw)
			}
			ids := make([]ir.RecordIdentity, 0, len(list))
			for i, elem := range list {
				id, refErr := NormalizeReference(f.Type, elem)
				if refErr != nil {
					return nil, fmt.Errorf("normalize %s.%s[%d]: %w", typ, name, i, refErr)
				}
				ids = append(ids, id)
			}
			rec = rec.WithRelationship(name, ir.ToMany(ids...))
		}
	}
	return rec, nil
}

// NormalizeReference resolves a related-record reference. A bare id is
// taken to be of model; a "type:id" string or an ir.RecordIdentity is used
// as is.
func NormalizeReference(model string, raw any) (ir.RecordIdentity, error) {
	switch v := raw.(type) {
	case ir.RecordIdentity:
		return v, nil
	case string:
		if v == "" {
			return ir.RecordIdentity{}, fmt.Errorf("empty reference")
		}
		if strings.Contains(v, ":") {
			return ir.ParseIdentity(v)
		}
		return ir.Identity(model, v), nil
	}
	return ir.RecordIdentity{}, fmt.Errorf("reference must be a string, got %T", raw)
}
