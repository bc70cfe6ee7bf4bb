package ir

import (
	"encoding/json"
	"fmt"
)

// Transform is an atomic batch of operations. A source applies all of its
// operations or none of them.
type Transform struct {
	ID         string      `json:"id"`  // Content-addressed hash
	Seq        int64       `json:"seq"` // Logical clock assigned by the source
	Operations []Operation `json:"-"`
}

// NewTransform assigns seq and computes the content-addressed id.
func NewTransform(seq int64, ops ...Operation) (Transform, error) {
	id, err := TransformID(ops, seq)
	if err != nil {
		return Transform{}, err
	}
	return Transform{ID: id, Seq: seq, Operations: ops}, nil
}

// EncodeOperations returns the canonical JSON of t's operations.
func (t Transform) EncodeOperations() ([]byte, error) {
	encoded := make(IRArray, len(t.Operations))
	for i, op := range t.Operations {
		encoded[i] = OperationToIR(op)
	}
	return MarshalCanonical(encoded)
}

// DecodeOperations parses the output of Transform.EncodeOperations.
func DecodeOperations(data []byte) ([]Operation, error) {
	var arr IRArray
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	ops := make([]Operation, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(IRObject)
		if !ok {
			return nil, fmt.Errorf("decode operations: element %d is %s, want object", i, TypeName(elem))
		}
		op, err := OperationFromIR(obj)
		if err != nil {
			return nil, fmt.Errorf("decode operations: element %d: %w", i, err)
		}
		ops[i] = op
	}
	return ops, nil
}

// MarshalJSON renders a transform with its operations in IR form.
func (t Transform) MarshalJSON() ([]byte, error) {
	encoded := make(IRArray, len(t.Operations))
	for i, op := range t.Operations {
		encoded[i] = OperationToIR(op)
	}
	return json.Marshal(struct {
		ID         string  `json:"id"`
		Seq        int64   `json:"seq"`
		Operations IRArray `json:"operations"`
	}{t.ID, t.Seq, encoded})
}
