package memsource

import (
	"fmt"
	"slices"

	"github.com/roach88/tether/internal/ir"
)

// prepare validates ops against the schema and assigns ids to records
// added without one. The returned slice never aliases caller records.
func (s *Source) prepare(ops []ir.Operation) ([]ir.Operation, error) {
	if len(ops) == 0 {
		return nil, &ValidationError{Op: "transform", Message: "no operations"}
	}
	out := make([]ir.Operation, 0, len(ops))
	for _, op := range ops {
		if op == nil {
			return nil, &ValidationError{Op: "transform", Message: "nil operation"}
		}
		if add, ok := op.(ir.AddRecord); ok && add.Record != nil && add.Record.ID == "" {
			rec := add.Record.Clone()
			rec.ID = s.NewID(rec.Type)
			op = ir.AddRecord{Record: rec}
		}
		if err := validateOperation(s.schema, op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func validateOperation(schema *ir.Schema, op ir.Operation) error {
	switch o := op.(type) {
	case ir.AddRecord:
		if o.Record == nil {
			return &ValidationError{Op: op.Op(), Message: "missing record"}
		}
	case ir.UpdateRecord:
		if o.Record == nil {
			return &ValidationError{Op: op.Op(), Message: "missing record"}
		}
	}

	target := op.Target()
	fail := func(field, format string, args ...any) error {
		return &ValidationError{Op: op.Op(), Record: target, Field: field, Message: fmt.Sprintf(format, args...)}
	}
	if target.ID == "" {
		return fail("", "record id is required")
	}
	m, ok := schema.Model(target.Type)
	if !ok {
		return fail("", "unknown model %q", target.Type)
	}

	switch o := op.(type) {
	case ir.AddRecord:
		return validateRecord(m, schema, o.Record, fail)
	case ir.UpdateRecord:
		return validateRecord(m, schema, o.Record, fail)
	case ir.RemoveRecord:
		return nil
	case ir.ReplaceKey:
		return expectKind(m, o.Key, ir.FieldKey, fail)
	case ir.ReplaceAttribute:
		if err := expectKind(m, o.Attribute, ir.FieldAttribute, fail); err != nil {
			return err
		}
		f, _ := m.Field(o.Attribute)
		return checkValue(f, o.Value, fail)
	case ir.ReplaceRelatedRecord:
		if err := expectKind(m, o.Relationship, ir.FieldHasOne, fail); err != nil {
			return err
		}
		if o.Related == nil {
			return nil
		}
		return checkRelated(m, o.Relationship, *o.Related, fail)
	case ir.AddToRelatedRecords:
		if err := expectKind(m, o.Relationship, ir.FieldHasMany, fail); err != nil {
			return err
		}
		return checkRelated(m, o.Relationship, o.Related, fail)
	case ir.RemoveFromRelatedRecords:
		if err := expectKind(m, o.Relationship, ir.FieldHasMany, fail); err != nil {
			return err
		}
		return checkRelated(m, o.Relationship, o.Related, fail)
	case ir.ReplaceRelatedRecords:
		if err := expectKind(m, o.Relationship, ir.FieldHasMany, fail); err != nil {
			return err
		}
		for _, id := range o.Related {
			if err := checkRelated(m, o.Relationship, id, fail); err != nil {
				return err
			}
		}
		return nil
	}
	return fail("", "unsupported operation %T", op)
}

type failFunc func(field, format string, args ...any) error

func validateRecord(m *ir.ModelDef, schema *ir.Schema, r *ir.Record, fail failFunc) error {
	for _, name := range sortedKeys(r.Keys) {
		if err := expectKind(m, name, ir.FieldKey, fail); err != nil {
			return err
		}
	}
	for _, name := range r.Attributes.SortedKeys() {
		if err := expectKind(m, name, ir.FieldAttribute, fail); err != nil {
			return err
		}
		f, _ := m.Field(name)
		if err := checkValue(f, r.Attributes[name], fail); err != nil {
			return err
		}
	}
	for _, name := range relationshipNames(r) {
		f, ok := m.Field(name)
		if !ok || !f.Kind.IsRelationship() {
			return fail(name, "not a relationship of %s", m.Name)
		}
		data := r.Relationships[name]
		if data.Many != (f.Kind == ir.FieldHasMany) {
			return fail(name, "relationship data does not match %s", f.Kind)
		}
		for _, id := range targets(data) {
			if err := checkRelated(m, name, id, fail); err != nil {
				return err
			}
		}
	}
	return nil
}

func expectKind(m *ir.ModelDef, name string, want ir.FieldKind, fail failFunc) error {
	f, ok := m.Field(name)
	if !ok {
		return fail(name, "%s %q is not declared on %s", want, name, m.Name)
	}
	if f.Kind != want {
		return fail(name, "%q is a %s, not a %s", name, f.Kind, want)
	}
	return nil
}

// checkValue accepts null for any attribute type.
func checkValue(f ir.FieldDef, v ir.IRValue, fail failFunc) error {
	if ir.IsNull(v) {
		return nil
	}
	if got := ir.TypeName(v); got != f.Type {
		return fail(f.Name, "expected %s, got %s", f.Type, got)
	}
	return nil
}

func checkRelated(m *ir.ModelDef, rel string, id ir.RecordIdentity, fail failFunc) error {
	rd, _ := m.Relationship(rel)
	if id.Type != rd.Model {
		return fail(rel, "related record %s is not a %s", id, rd.Model)
	}
	if id.ID == "" {
		return fail(rel, "related record id is required")
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
