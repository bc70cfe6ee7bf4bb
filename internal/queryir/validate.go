package queryir

import (
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// ValidationResult contains the outcome of checking a query against a schema.
type ValidationResult struct {
	// Valid is true when the query only references declared models and fields
	// with compatible kinds.
	Valid bool

	// Errors lists every problem found. Empty when Valid is true.
	Errors []string
}

// Err folds the result into a single error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %v", r.Errors)
}

// Validate checks a query against a schema:
//  1. Record types must be declared models
//  2. Relationship names must exist on the owning model, with a kind that
//     matches the query (to-one for FindRelatedRecord, to-many otherwise)
//  3. Filter and sort attributes must be declared attributes of the queried
//     model; KeyEquals must name a declared key
//
// Validate is a pure function with no side effects.
func Validate(query Query, schema *ir.Schema) ValidationResult {
	v := &validator{schema: schema, errors: []string{}}
	v.validateQuery(query)
	return ValidationResult{Valid: len(v.errors) == 0, Errors: v.errors}
}

// validator accumulates errors during traversal.
type validator struct {
	schema *ir.Schema
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) model(name string) (*ir.ModelDef, bool) {
	m, ok := v.schema.Model(name)
	if !ok {
		v.addError("unknown model %q", name)
	}
	return m, ok
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case FindRecord:
		v.model(query.Record.Type)
		if query.Record.ID == "" {
			v.addError("findRecord requires an id")
		}
	case FindRecords:
		if m, ok := v.model(query.Type); ok {
			v.validateFilter(m, query.Filter)
			v.validateSort(m, query.Sort)
		}
	case FindRelatedRecord:
		v.validateRelationship(query.Record.Type, query.Relationship, ir.FieldHasOne)
	case FindRelatedRecords:
		if related, ok := v.validateRelationship(query.Record.Type, query.Relationship, ir.FieldHasMany); ok {
			v.validateFilter(related, query.Filter)
			v.validateSort(related, query.Sort)
		}
	default:
		v.addError("unknown query type %T", q)
	}
}

// validateRelationship checks owner.rel exists with the wanted kind and
// returns the related model.
func (v *validator) validateRelationship(owner, rel string, want ir.FieldKind) (*ir.ModelDef, bool) {
	m, ok := v.model(owner)
	if !ok {
		return nil, false
	}
	def, ok := m.Relationship(rel)
	if !ok {
		v.addError("model %q has no relationship %q", owner, rel)
		return nil, false
	}
	if def.Kind != want {
		v.addError("relationship %s.%s is %s, query needs %s", owner, rel, def.Kind, want)
		return nil, false
	}
	return v.model(def.Model)
}

func (v *validator) validateFilter(m *ir.ModelDef, p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		if f, ok := m.Field(pred.Attribute); !ok || f.Kind != ir.FieldAttribute {
			v.addError("model %q has no attribute %q", m.Name, pred.Attribute)
		}
	case KeyEquals:
		if f, ok := m.Field(pred.Key); !ok || f.Kind != ir.FieldKey {
			v.addError("model %q has no key %q", m.Name, pred.Key)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validateFilter(m, sub)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateSort(m *ir.ModelDef, specs []SortSpec) {
	for _, s := range specs {
		if f, ok := m.Field(s.Attribute); !ok || f.Kind != ir.FieldAttribute {
			v.addError("cannot sort %q by %q: not an attribute", m.Name, s.Attribute)
		}
	}
}

// DependentTypes returns the record types whose changes may alter the
// query's result. A live query subscribes to exactly these types.
func DependentTypes(q Query, schema *ir.Schema) []string {
	switch query := q.(type) {
	case FindRecord:
		return []string{query.Record.Type}
	case FindRecords:
		return []string{query.Type}
	case FindRelatedRecord:
		return relatedTypes(schema, query.Record.Type, query.Relationship)
	case FindRelatedRecords:
		return relatedTypes(schema, query.Record.Type, query.Relationship)
	}
	return nil
}

func relatedTypes(schema *ir.Schema, owner, rel string) []string {
	types := []string{owner}
	if m, ok := schema.Model(owner); ok {
		if def, ok := m.Relationship(rel); ok && def.Model != owner {
			types = append(types, def.Model)
		}
	}
	return types
}
