package journal

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// recordColumns is the canonical JSON TEXT form of a record's fields.
type recordColumns struct {
	keys          string
	attributes    string
	relationships string
}

// marshalRecord converts a record's fields to canonical JSON TEXT for
// storage. Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalRecord(r *ir.Record) (recordColumns, error) {
	obj := r.ToIR()
	var cols recordColumns
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"keys", &cols.keys},
		{"attributes", &cols.attributes},
		{"relationships", &cols.relationships},
	} {
		data, err := ir.MarshalCanonical(obj[f.name])
		if err != nil {
			return recordColumns{}, fmt.Errorf("marshal %s of %s: %w", f.name, r.Identity(), err)
		}
		*f.dst = string(data)
	}
	return cols, nil
}

// unmarshalRecord rebuilds a record from its stored columns.
// Uses ir.IRObject.UnmarshalJSON, which keeps integers exact via json.Number.
func unmarshalRecord(typ, id string, cols recordColumns) (*ir.Record, error) {
	obj := ir.IRObject{"type": ir.IRString(typ), "id": ir.IRString(id)}
	for name, data := range map[string]string{
		"keys":          cols.keys,
		"attributes":    cols.attributes,
		"relationships": cols.relationships,
	} {
		var v ir.IRObject
		if data != "" {
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				return nil, fmt.Errorf("unmarshal %s of %s:%s: %w", name, typ, id, err)
			}
		}
		obj[name] = v
	}
	return ir.RecordFromIR(obj)
}
