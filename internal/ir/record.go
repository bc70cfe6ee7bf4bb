package ir

import (
	"fmt"
	"slices"
	"strings"
)

// RecordIdentity is the (type, id) pair that names a record. It is comparable
// and serves as the identity-map key.
type RecordIdentity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Identity builds a RecordIdentity.
func Identity(typ, id string) RecordIdentity {
	return RecordIdentity{Type: typ, ID: id}
}

// String renders the identity as "type:id".
func (ri RecordIdentity) String() string {
	return ri.Type + ":" + ri.ID
}

// IsZero reports whether the identity is unset.
func (ri RecordIdentity) IsZero() bool {
	return ri.Type == "" && ri.ID == ""
}

// ParseIdentity parses the "type:id" form produced by String.
func ParseIdentity(s string) (RecordIdentity, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || typ == "" || id == "" {
		return RecordIdentity{}, fmt.Errorf("invalid record identity %q: want type:id", s)
	}
	return RecordIdentity{Type: typ, ID: id}, nil
}

// RelationshipData holds the linkage of one relationship field. A to-one
// relationship uses One (nil when empty); a to-many relationship uses Members.
type RelationshipData struct {
	Many    bool             `json:"many"`
	One     *RecordIdentity  `json:"one,omitempty"`
	Members []RecordIdentity `json:"members,omitempty"`
}

// ToOne builds to-one relationship data. A nil identity is an empty link.
func ToOne(id *RecordIdentity) RelationshipData {
	if id == nil {
		return RelationshipData{}
	}
	cp := *id
	return RelationshipData{One: &cp}
}

// ToMany builds to-many relationship data.
func ToMany(ids ...RecordIdentity) RelationshipData {
	return RelationshipData{Many: true, Members: slices.Clone(ids)}
}

// Clone returns a copy that shares no memory with d.
func (d RelationshipData) Clone() RelationshipData {
	out := RelationshipData{Many: d.Many, Members: slices.Clone(d.Members)}
	if d.One != nil {
		one := *d.One
		out.One = &one
	}
	return out
}

// Contains reports whether id is linked by d.
func (d RelationshipData) Contains(id RecordIdentity) bool {
	if d.Many {
		return slices.Contains(d.Members, id)
	}
	return d.One != nil && *d.One == id
}

// Record is an immutable snapshot of one entity. Code that needs a changed
// record builds a new one with the With* helpers; a Record handed out by a
// source is never mutated afterwards.
type Record struct {
	Type          string                      `json:"type"`
	ID            string                      `json:"id"`
	Keys          map[string]string           `json:"keys,omitempty"`
	Attributes    IRObject                    `json:"attributes,omitempty"`
	Relationships map[string]RelationshipData `json:"relationships,omitempty"`
}

// Identity returns the record's identity.
func (r *Record) Identity() RecordIdentity {
	return RecordIdentity{Type: r.Type, ID: r.ID}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{Type: r.Type, ID: r.ID, Attributes: r.Attributes.Clone()}
	if r.Keys != nil {
		out.Keys = make(map[string]string, len(r.Keys))
		for k, v := range r.Keys {
			out.Keys[k] = v
		}
	}
	if r.Relationships != nil {
		out.Relationships = make(map[string]RelationshipData, len(r.Relationships))
		for k, v := range r.Relationships {
			out.Relationships[k] = v.Clone()
		}
	}
	return out
}

// Key returns the named key value.
func (r *Record) Key(name string) (string, bool) {
	v, ok := r.Keys[name]
	return v, ok
}

// Attribute returns the named attribute value.
func (r *Record) Attribute(name string) (IRValue, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}

// Relationship returns the named relationship data.
func (r *Record) Relationship(name string) (RelationshipData, bool) {
	d, ok := r.Relationships[name]
	return d, ok
}

// WithKey returns a copy of r with the key set.
func (r *Record) WithKey(name, value string) *Record {
	out := r.Clone()
	if out.Keys == nil {
		out.Keys = make(map[string]string, 1)
	}
	out.Keys[name] = value
	return out
}

// WithAttribute returns a copy of r with the attribute set.
func (r *Record) WithAttribute(name string, value IRValue) *Record {
	out := r.Clone()
	if out.Attributes == nil {
		out.Attributes = make(IRObject, 1)
	}
	out.Attributes[name] = CloneValue(value)
	return out
}

// WithRelationship returns a copy of r with the relationship replaced.
func (r *Record) WithRelationship(name string, data RelationshipData) *Record {
	out := r.Clone()
	if out.Relationships == nil {
		out.Relationships = make(map[string]RelationshipData, 1)
	}
	out.Relationships[name] = data.Clone()
	return out
}

// Merge returns a copy of r overlaid with every key, attribute and
// relationship present on partial. Fields absent from partial are kept.
func (r *Record) Merge(partial *Record) *Record {
	out := r.Clone()
	for k, v := range partial.Keys {
		if out.Keys == nil {
			out.Keys = make(map[string]string, len(partial.Keys))
		}
		out.Keys[k] = v
	}
	for k, v := range partial.Attributes {
		if out.Attributes == nil {
			out.Attributes = make(IRObject, len(partial.Attributes))
		}
		out.Attributes[k] = CloneValue(v)
	}
	for k, v := range partial.Relationships {
		if out.Relationships == nil {
			out.Relationships = make(map[string]RelationshipData, len(partial.Relationships))
		}
		out.Relationships[k] = v.Clone()
	}
	return out
}

// FieldNames lists every key, attribute and relationship name set on r,
// sorted.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Keys)+len(r.Attributes)+len(r.Relationships))
	for k := range r.Keys {
		names = append(names, k)
	}
	for k := range r.Attributes {
		names = append(names, k)
	}
	for k := range r.Relationships {
		names = append(names, k)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// ToIR encodes r as an IRObject for canonical hashing and journaling.
func (r *Record) ToIR() IRObject {
	keys := make(IRObject, len(r.Keys))
	for k, v := range r.Keys {
		keys[k] = IRString(v)
	}
	rels := make(IRObject, len(r.Relationships))
	for k, v := range r.Relationships {
		rels[k] = v.ToIR()
	}
	attrs := r.Attributes.Clone()
	if attrs == nil {
		attrs = IRObject{}
	}
	return IRObject{
		"type":          IRString(r.Type),
		"id":            IRString(r.ID),
		"keys":          keys,
		"attributes":    attrs,
		"relationships": rels,
	}
}

// RecordFromIR decodes the form produced by Record.ToIR.
func RecordFromIR(obj IRObject) (*Record, error) {
	typ, err := stringField(obj, "type")
	if err != nil {
		return nil, err
	}
	id, err := stringField(obj, "id")
	if err != nil {
		return nil, err
	}
	r := &Record{Type: typ, ID: id}
	if keys, ok := obj["keys"].(IRObject); ok && len(keys) > 0 {
		r.Keys = make(map[string]string, len(keys))
		for k, v := range keys {
			s, ok := v.(IRString)
			if !ok {
				return nil, fmt.Errorf("record %s: key %q is %s, want string", r.Identity(), k, TypeName(v))
			}
			r.Keys[k] = string(s)
		}
	}
	if attrs, ok := obj["attributes"].(IRObject); ok && len(attrs) > 0 {
		r.Attributes = attrs.Clone()
	}
	if rels, ok := obj["relationships"].(IRObject); ok && len(rels) > 0 {
		r.Relationships = make(map[string]RelationshipData, len(rels))
		for k, v := range rels {
			d, err := RelationshipFromIR(v)
			if err != nil {
				return nil, fmt.Errorf("record %s: relationship %q: %w", r.Identity(), k, err)
			}
			r.Relationships[k] = d
		}
	}
	return r, nil
}

// ToIR encodes relationship data: null or an identity string for to-one,
// an array of identity strings for to-many.
func (d RelationshipData) ToIR() IRValue {
	if d.Many {
		arr := make(IRArray, len(d.Members))
		for i, m := range d.Members {
			arr[i] = IRString(m.String())
		}
		return arr
	}
	if d.One == nil {
		return IRNull{}
	}
	return IRString(d.One.String())
}

// RelationshipFromIR decodes the form produced by RelationshipData.ToIR.
func RelationshipFromIR(v IRValue) (RelationshipData, error) {
	switch val := v.(type) {
	case IRNull, nil:
		return RelationshipData{}, nil
	case IRString:
		id, err := ParseIdentity(string(val))
		if err != nil {
			return RelationshipData{}, err
		}
		return RelationshipData{One: &id}, nil
	case IRArray:
		members := make([]RecordIdentity, len(val))
		for i, elem := range val {
			s, ok := elem.(IRString)
			if !ok {
				return RelationshipData{}, fmt.Errorf("member %d is %s, want string", i, TypeName(elem))
			}
			id, err := ParseIdentity(string(s))
			if err != nil {
				return RelationshipData{}, err
			}
			members[i] = id
		}
		return RelationshipData{Many: true, Members: members}, nil
	default:
		return RelationshipData{}, fmt.Errorf("unexpected %s", TypeName(v))
	}
}

func stringField(obj IRObject, name string) (string, error) {
	v, ok := obj[name].(IRString)
	if !ok {
		return "", fmt.Errorf("field %q: want string, got %s", name, TypeName(obj[name]))
	}
	return string(v), nil
}

func identityField(obj IRObject, name string) (RecordIdentity, error) {
	s, err := stringField(obj, name)
	if err != nil {
		return RecordIdentity{}, err
	}
	return ParseIdentity(s)
}
