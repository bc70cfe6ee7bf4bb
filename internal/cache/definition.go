package cache

import (
	"slices"

	"github.com/roach88/tether/internal/ir"
)

// FieldDefinition describes one field of a model type.
type FieldDefinition struct {
	// Owner is the model type declaring the field.
	Owner string
	Name  string
	Kind  ir.FieldKind
	// Type is the attribute type, the related model name for relationships,
	// or "string" for keys.
	Type    string
	Inverse string
	// Notifier marks the field's Property Cache on m stale so the next read
	// pulls the current value from the backing record.
	Notifier func(m *Model)
}

// ModelDefinition is the static descriptor of one model type. It is built
// once from the schema and never mutated.
type ModelDefinition struct {
	Name   string
	fields map[string]*FieldDefinition
	order  []string
}

// Field looks up a field by name.
func (d *ModelDefinition) Field(name string) (*FieldDefinition, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// Fields returns every field in declaration order (keys, attributes,
// relationships).
func (d *ModelDefinition) Fields() []*FieldDefinition {
	out := make([]*FieldDefinition, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.fields[name])
	}
	return out
}

// field returns the named field if it has the wanted kind.
func (d *ModelDefinition) field(name string, want ir.FieldKind) (*FieldDefinition, error) {
	f, ok := d.fields[name]
	if !ok {
		return nil, &UnknownFieldError{Type: d.Name, Field: name, Want: want}
	}
	if f.Kind != want {
		got := f.Kind
		return nil, &UnknownFieldError{Type: d.Name, Field: name, Want: want, Got: &got}
	}
	return f, nil
}

// Registry maps type names to model definitions. It is immutable after
// NewRegistry returns and safe for concurrent reads.
type Registry struct {
	defs    map[string]*ModelDefinition
	inbound map[string][]*FieldDefinition
}

// NewRegistry builds a definition for every model in schema. A nil schema
// yields an empty registry.
func NewRegistry(schema *ir.Schema) *Registry {
	r := &Registry{
		defs:    make(map[string]*ModelDefinition),
		inbound: make(map[string][]*FieldDefinition),
	}
	if schema == nil {
		return r
	}
	for i := range schema.Models {
		m := &schema.Models[i]
		def := &ModelDefinition{Name: m.Name, fields: make(map[string]*FieldDefinition)}
		for _, f := range m.Fields() {
			name := f.Name
			fd := &FieldDefinition{
				Owner:   m.Name,
				Name:    name,
				Kind:    f.Kind,
				Type:    f.Type,
				Inverse: f.Inverse,
				Notifier: func(model *Model) {
					model.notifyPropertyChange(name)
				},
			}
			def.fields[name] = fd
			def.order = append(def.order, name)
			if f.Kind == ir.FieldHasOne || f.Kind == ir.FieldHasMany {
				r.inbound[f.Type] = append(r.inbound[f.Type], fd)
			}
		}
		r.defs[m.Name] = def
	}
	return r
}

// Definition returns the definition registered for typ.
func (r *Registry) Definition(typ string) (*ModelDefinition, bool) {
	d, ok := r.defs[typ]
	return d, ok
}

// Inbound returns the relationship fields, on any type, whose related model
// is typ.
func (r *Registry) Inbound(typ string) []*FieldDefinition {
	return r.inbound[typ]
}

// definitionOrEmpty returns the registered definition or an empty one, so
// Models of undeclared types still exist but expose no fields.
func (r *Registry) definitionOrEmpty(typ string) *ModelDefinition {
	if d, ok := r.defs[typ]; ok {
		return d
	}
	return &ModelDefinition{Name: typ, fields: map[string]*FieldDefinition{}}
}

// Types lists the registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
