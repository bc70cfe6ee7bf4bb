package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tether/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func planetModel() ir.ModelDef {
	return ir.ModelDef{
		Name:       "planet",
		Keys:       []ir.KeyDef{{Name: "remoteId"}},
		Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}},
		Relationships: []ir.RelationshipDef{
			{Name: "moons", Kind: ir.FieldHasMany, Model: "moon", Inverse: "planet"},
		},
	}
}

func moonModel() ir.ModelDef {
	return ir.ModelDef{
		Name:       "moon",
		Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}},
		Relationships: []ir.RelationshipDef{
			{Name: "planet", Kind: ir.FieldHasOne, Model: "planet", Inverse: "moons"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		models func() []ir.ModelDef
		want   []string
	}{
		{
			name:   "valid",
			models: func() []ir.ModelDef { return []ir.ModelDef{planetModel(), moonModel()} },
			want:   []string{},
		},
		{
			name: "one-sided inverse is allowed",
			models: func() []ir.ModelDef {
				moon := moonModel()
				moon.Relationships[0].Inverse = ""
				return []ir.ModelDef{planetModel(), moon}
			},
			want: []string{},
		},
		{
			name: "unknown related model",
			models: func() []ir.ModelDef {
				p := planetModel()
				p.Relationships[0].Model = "satellite"
				return []ir.ModelDef{p, moonModel()}
			},
			want: []string{ErrInverseMismatch, ErrUnknownModel},
		},
		{
			name: "missing inverse",
			models: func() []ir.ModelDef {
				p := planetModel()
				p.Relationships[0].Inverse = "orbits"
				return []ir.ModelDef{p, moonModel()}
			},
			want: []string{ErrInverseMismatch, ErrInverseMissing},
		},
		{
			name: "inverse targets another model",
			models: func() []ir.ModelDef {
				m := moonModel()
				m.Relationships[0].Model = "star"
				star := ir.ModelDef{Name: "star", Relationships: []ir.RelationshipDef{}}
				return []ir.ModelDef{planetModel(), m, star}
			},
			want: []string{ErrInverseMissing, ErrInverseMismatch},
		},
		{
			name: "invalid attribute type",
			models: func() []ir.ModelDef {
				m := moonModel()
				m.Attributes[0].Type = "date"
				return []ir.ModelDef{planetModel(), m}
			},
			want: []string{ErrInvalidFieldType},
		},
		{
			name: "float attribute",
			models: func() []ir.ModelDef {
				m := moonModel()
				m.Attributes[0].Type = "float64"
				return []ir.ModelDef{planetModel(), m}
			},
			want: []string{ErrFloatTypeForbidden},
		},
		{
			name: "duplicate field across kinds",
			models: func() []ir.ModelDef {
				p := planetModel()
				p.Attributes = append(p.Attributes, ir.AttributeDef{Name: "remoteId", Type: "string"})
				return []ir.ModelDef{p, moonModel()}
			},
			want: []string{ErrDuplicateName},
		},
		{
			name: "reserved id",
			models: func() []ir.ModelDef {
				m := moonModel()
				m.Keys = []ir.KeyDef{{Name: "id"}}
				return []ir.ModelDef{planetModel(), m}
			},
			want: []string{ErrReservedField},
		},
		{
			name: "invalid relationship kind",
			models: func() []ir.ModelDef {
				m := moonModel()
				m.Relationships[0].Kind = ir.FieldAttribute
				return []ir.ModelDef{planetModel(), m}
			},
			want: []string{ErrInvalidRelationKind},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(ir.NewSchema(tt.models()...))
			assert.Equal(t, tt.want, append([]string{}, codes(errs)...), "%v", errs)
		})
	}
}

func TestValidateEmptySchema(t *testing.T) {
	assert.Equal(t, []string{ErrSchemaEmpty}, codes(Validate(nil)))
	assert.Equal(t, []string{ErrSchemaEmpty}, codes(Validate(ir.NewSchema())))
}

func TestValidateDuplicateModel(t *testing.T) {
	s := &ir.Schema{Models: []ir.ModelDef{moonModel(), moonModel(), planetModel()}}
	assert.Equal(t, []string{ErrDuplicateModel}, codes(Validate(s)))
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "model.moon.attributes.name", Message: "bad", Code: ErrInvalidFieldType}
	assert.Equal(t, "[E104] model.moon.attributes.name: bad", err.Error())
}
