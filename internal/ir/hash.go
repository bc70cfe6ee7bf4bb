package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed ids. The version suffix leaves room
// for a future change of encoding.
const (
	DomainTransform = "tether/transform/v1"
	DomainState     = "tether/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransformID computes the content-addressed id of a transform. The same
// operations applied at the same sequence number always hash identically,
// which makes journal writes idempotent across replays.
func TransformID(ops []Operation, seq int64) (string, error) {
	encoded := make(IRArray, len(ops))
	for i, op := range ops {
		encoded[i] = OperationToIR(op)
	}
	canonical, err := MarshalCanonical(IRObject{
		"operations": encoded,
		"seq":        IRInt(seq),
	})
	if err != nil {
		return "", fmt.Errorf("TransformID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransform, canonical), nil
}

// MustTransformID is like TransformID but panics on error.
// Use only in tests or when operations are known to be valid.
func MustTransformID(ops []Operation, seq int64) string {
	id, err := TransformID(ops, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// StateHash fingerprints a set of records independent of their order. Two
// sources holding the same records produce the same hash.
func StateHash(records []*Record) (string, error) {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b *Record) int {
		return compareIdentity(a.Identity(), b.Identity())
	})
	encoded := make(IRArray, len(sorted))
	// To-many member order is part of the state and is not normalized.
	for i, r := range sorted {
		encoded[i] = r.ToIR()
	}
	canonical, err := MarshalCanonical(encoded)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

func compareIdentity(a, b RecordIdentity) int {
	if c := compareKeysRFC8785(a.Type, b.Type); c != 0 {
		return c
	}
	return compareKeysRFC8785(a.ID, b.ID)
}
