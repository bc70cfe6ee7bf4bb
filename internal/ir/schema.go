package ir

import (
	"fmt"
	"slices"
)

// ValidAttributeTypes defines the allowed attribute type names.
// There is no "float": see IRValue.
var ValidAttributeTypes = map[string]bool{
	"string": true,
	"int":    true,
	"bool":   true,
	"array":  true,
	"object": true,
}

// FieldKind classifies a model field.
type FieldKind int

const (
	FieldKey FieldKind = iota
	FieldAttribute
	FieldHasOne
	FieldHasMany
)

// String returns the schema spelling of the kind.
func (k FieldKind) String() string {
	switch k {
	case FieldKey:
		return "key"
	case FieldAttribute:
		return "attribute"
	case FieldHasOne:
		return "hasOne"
	case FieldHasMany:
		return "hasMany"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// MarshalText renders the kind by its schema spelling.
func (k FieldKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the schema spelling of a kind.
func (k *FieldKind) UnmarshalText(text []byte) error {
	for _, c := range []FieldKind{FieldKey, FieldAttribute, FieldHasOne, FieldHasMany} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown field kind %q", text)
}

// IsRelationship reports whether k is hasOne or hasMany.
func (k FieldKind) IsRelationship() bool {
	return k == FieldHasOne || k == FieldHasMany
}

// ParseRelationshipKind maps "hasOne"/"hasMany" to a FieldKind.
func ParseRelationshipKind(s string) (FieldKind, bool) {
	switch s {
	case "hasOne":
		return FieldHasOne, true
	case "hasMany":
		return FieldHasMany, true
	}
	return 0, false
}

// KeyDef declares a secondary key. Keys are always strings.
type KeyDef struct {
	Name string `json:"name"`
}

// AttributeDef declares a typed attribute.
type AttributeDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RelationshipDef declares a relationship to another model. Inverse, when
// set, names the relationship on Model that points back.
type RelationshipDef struct {
	Name    string    `json:"name"`
	Kind    FieldKind `json:"kind"`
	Model   string    `json:"model"`
	Inverse string    `json:"inverse,omitempty"`
}

// ModelDef is the compiled declaration of one record type.
type ModelDef struct {
	Name          string            `json:"name"`
	Keys          []KeyDef          `json:"keys"`
	Attributes    []AttributeDef    `json:"attributes"`
	Relationships []RelationshipDef `json:"relationships"`
}

// FieldDef is a uniform view of any declared field.
type FieldDef struct {
	Name string
	Kind FieldKind
	// Type is the attribute type for attributes, the related model for
	// relationships and "string" for keys.
	Type    string
	Inverse string
}

// Field looks up a field by name across keys, attributes and relationships.
func (m *ModelDef) Field(name string) (FieldDef, bool) {
	for _, k := range m.Keys {
		if k.Name == name {
			return FieldDef{Name: name, Kind: FieldKey, Type: "string"}, true
		}
	}
	for _, a := range m.Attributes {
		if a.Name == name {
			return FieldDef{Name: name, Kind: FieldAttribute, Type: a.Type}, true
		}
	}
	for _, r := range m.Relationships {
		if r.Name == name {
			return FieldDef{Name: name, Kind: r.Kind, Type: r.Model, Inverse: r.Inverse}, true
		}
	}
	return FieldDef{}, false
}

// Fields lists every declared field: keys, then attributes, then
// relationships, each in declaration order.
func (m *ModelDef) Fields() []FieldDef {
	out := make([]FieldDef, 0, len(m.Keys)+len(m.Attributes)+len(m.Relationships))
	for _, k := range m.Keys {
		out = append(out, FieldDef{Name: k.Name, Kind: FieldKey, Type: "string"})
	}
	for _, a := range m.Attributes {
		out = append(out, FieldDef{Name: a.Name, Kind: FieldAttribute, Type: a.Type})
	}
	for _, r := range m.Relationships {
		out = append(out, FieldDef{Name: r.Name, Kind: r.Kind, Type: r.Model, Inverse: r.Inverse})
	}
	return out
}

// Relationship looks up a relationship by name.
func (m *ModelDef) Relationship(name string) (RelationshipDef, bool) {
	for _, r := range m.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipDef{}, false
}

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the model's own declarations. Cross-model rules (related
// models exist, inverses agree) live with the schema compiler.
// Returns all errors, not just the first.
func (m *ModelDef) Validate() []ValidationError {
	var errs []ValidationError

	if m.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "model name is required"})
	}

	seen := make(map[string]string)
	claim := func(path, name, kind string) {
		if prev, dup := seen[name]; dup {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("field %q already declared as %s", name, prev),
			})
			return
		}
		seen[name] = kind
	}

	for i, k := range m.Keys {
		claim(fmt.Sprintf("keys[%d]", i), k.Name, "key")
	}
	for i, a := range m.Attributes {
		path := fmt.Sprintf("attributes[%d]", i)
		claim(path, a.Name, "attribute")
		if !ValidAttributeTypes[a.Type] {
			errs = append(errs, ValidationError{
				Field:   path + ".type",
				Message: fmt.Sprintf("invalid type %q for attribute %q, must be one of: string, int, bool, array, object", a.Type, a.Name),
			})
		}
	}
	for i, r := range m.Relationships {
		path := fmt.Sprintf("relationships[%d]", i)
		claim(path, r.Name, "relationship")
		if !r.Kind.IsRelationship() {
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("relationship %q must be hasOne or hasMany", r.Name),
			})
		}
		if r.Model == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".model",
				Message: fmt.Sprintf("relationship %q must name a related model", r.Name),
			})
		}
	}
	if _, dup := seen["id"]; dup {
		errs = append(errs, ValidationError{Field: "id", Message: `"id" is reserved for the record identity`})
	}
	return errs
}

// Schema is the set of model declarations a source and cache agree on.
type Schema struct {
	Models []ModelDef `json:"models"`
}

// NewSchema builds a schema, sorting models by name for deterministic output.
func NewSchema(models ...ModelDef) *Schema {
	sorted := slices.Clone(models)
	slices.SortFunc(sorted, func(a, b ModelDef) int { return compareKeysRFC8785(a.Name, b.Name) })
	return &Schema{Models: sorted}
}

// Model looks up a model declaration by name.
func (s *Schema) Model(name string) (*ModelDef, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Models {
		if s.Models[i].Name == name {
			return &s.Models[i], true
		}
	}
	return nil, false
}

// HasModel reports whether name is declared.
func (s *Schema) HasModel(name string) bool {
	_, ok := s.Model(name)
	return ok
}

// ModelNames lists declared model names in schema order.
func (s *Schema) ModelNames() []string {
	names := make([]string, len(s.Models))
	for i, m := range s.Models {
		names[i] = m.Name
	}
	return names
}
