package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/tether/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrSchemaEmpty = "E100" // schema declares no models

	// Model errors (E101-E109)
	ErrModelNameEmpty      = "E101" // model name is required
	ErrDuplicateModel      = "E102" // model declared twice
	ErrReservedField       = "E103" // "id" cannot be declared
	ErrInvalidFieldType    = "E104" // invalid attribute type
	ErrDuplicateName       = "E105" // field name declared twice across kinds
	ErrFloatTypeForbidden  = "E106" // float types not allowed
	ErrInvalidRelationKind = "E107" // relationship kind is not hasOne/hasMany
	ErrFieldNameEmpty      = "E108" // field name is required
	ErrRelationshipNoModel = "E109" // relationship names no related model

	// Cross-model errors (E110-E119)
	ErrUnknownModel    = "E110" // related model is not declared
	ErrInverseMissing  = "E111" // inverse relationship is not declared on the related model
	ErrInverseMismatch = "E112" // inverse does not point back
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema. Returns all errors found (does not
// fail-fast), in model order.
func Validate(s *ir.Schema) []ValidationError {
	if s == nil || len(s.Models) == 0 {
		return []ValidationError{{
			Field:   "model",
			Message: "at least one model is required",
			Code:    ErrSchemaEmpty,
		}}
	}

	var errs []ValidationError
	seen := make(map[string]bool)
	for i := range s.Models {
		m := &s.Models[i]
		if seen[m.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("model.%s", m.Name),
				Message: fmt.Sprintf("duplicate model name: %q", m.Name),
				Code:    ErrDuplicateModel,
			})
		}
		seen[m.Name] = true
		errs = append(errs, validateModel(m)...)
		errs = append(errs, validateRelationships(s, m)...)
	}
	return errs
}

// validateModel checks the model's own declarations.
func validateModel(m *ir.ModelDef) []ValidationError {
	var errs []ValidationError
	prefix := "model." + m.Name

	// E101: name is required
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "model",
			Message: "model name is required",
			Code:    ErrModelNameEmpty,
		})
	}

	declared := make(map[string]string)
	claim := func(path, name, kind string) {
		switch {
		case name == "":
			errs = append(errs, ValidationError{
				Field:   path,
				Message: kind + " name is required",
				Code:    ErrFieldNameEmpty,
			})
		case name == "id":
			errs = append(errs, ValidationError{
				Field:   path,
				Message: `"id" is reserved for the record identity`,
				Code:    ErrReservedField,
			})
		default:
			if prev, dup := declared[name]; dup {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("field %q already declared as %s", name, prev),
					Code:    ErrDuplicateName,
				})
				return
			}
			declared[name] = kind
		}
	}

	for _, k := range m.Keys {
		claim(fmt.Sprintf("%s.keys.%s", prefix, k.Name), k.Name, "key")
	}
	for _, a := range m.Attributes {
		path := fmt.Sprintf("%s.attributes.%s", prefix, a.Name)
		claim(path, a.Name, "attribute")
		errs = append(errs, validateFieldType(a.Type, path, a.Name)...)
	}
	for _, r := range m.Relationships {
		path := fmt.Sprintf("%s.relationships.%s", prefix, r.Name)
		claim(path, r.Name, "relationship")

		// E107: kind must be a relationship kind
		if !r.Kind.IsRelationship() {
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("invalid relationship kind %s, must be hasOne or hasMany", r.Kind),
				Code:    ErrInvalidRelationKind,
			})
		}
		// E109: related model is required
		if strings.TrimSpace(r.Model) == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".model",
				Message: fmt.Sprintf("relationship %q must name a related model", r.Name),
				Code:    ErrRelationshipNoModel,
			})
		}
	}
	return errs
}

// validateRelationships checks that related models exist and that declared
// inverses point back at each other.
func validateRelationships(s *ir.Schema, m *ir.ModelDef) []ValidationError {
	var errs []ValidationError
	for _, r := range m.Relationships {
		if r.Model == "" {
			continue
		}
		path := fmt.Sprintf("model.%s.relationships.%s", m.Name, r.Name)

		// E110: related model must be declared
		related, ok := s.Model(r.Model)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   path + ".model",
				Message: fmt.Sprintf("unknown model %q", r.Model),
				Code:    ErrUnknownModel,
			})
			continue
		}
		if r.Inverse == "" {
			continue
		}

		// E111: inverse must be a relationship on the related model
		inv, ok := related.Relationship(r.Inverse)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   path + ".inverse",
				Message: fmt.Sprintf("model %q declares no relationship %q", r.Model, r.Inverse),
				Code:    ErrInverseMissing,
			})
			continue
		}

		// E112: the inverse must target this model and name this
		// relationship back, when it names one at all
		if inv.Model != m.Name {
			errs = append(errs, ValidationError{
				Field:   path + ".inverse",
				Message: fmt.Sprintf("%s.%s targets %q, want %q", r.Model, r.Inverse, inv.Model, m.Name),
				Code:    ErrInverseMismatch,
			})
			continue
		}
		if inv.Inverse != "" && inv.Inverse != r.Name {
			errs = append(errs, ValidationError{
				Field:   path + ".inverse",
				Message: fmt.Sprintf("%s.%s names inverse %q, want %q", r.Model, r.Inverse, inv.Inverse, r.Name),
				Code:    ErrInverseMismatch,
			})
		}
	}
	return errs
}

// validateFieldType validates an attribute type, returning errors for
// invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	// E106: float forbidden (explicit check, reported instead of E104)
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !ir.ValidAttributeTypes[fieldType] {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q, must be one of: string, int, bool, array, object", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}
	return nil
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	switch t {
	case "float", "float32", "float64", "number", "double":
		return true
	}
	return false
}
