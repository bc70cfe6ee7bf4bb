package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plutoOps() []Operation {
	pluto := Identity("planet", "pluto")
	return []Operation{
		ReplaceAttribute{Record: pluto, Attribute: "classification", Value: IRString("dwarf")},
		AddToRelatedRecords{Record: pluto, Relationship: "moons", Related: Identity("moon", "charon")},
	}
}

func TestTransformIDDeterminism(t *testing.T) {
	id1, err := TransformID(plutoOps(), 1)
	require.NoError(t, err)
	id2, err := TransformID(plutoOps(), 1)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "TransformID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestTransformIDChangesWithInput(t *testing.T) {
	base := MustTransformID(plutoOps(), 1)

	otherSeq := MustTransformID(plutoOps(), 2)
	otherValue := MustTransformID([]Operation{
		ReplaceAttribute{Record: Identity("planet", "pluto"), Attribute: "classification", Value: IRString("planet")},
	}, 1)
	reordered := plutoOps()
	reordered[0], reordered[1] = reordered[1], reordered[0]

	assert.NotEqual(t, base, otherSeq, "different seq should produce different ids")
	assert.NotEqual(t, base, otherValue, "different values should produce different ids")
	assert.NotEqual(t, base, MustTransformID(reordered, 1), "operation order is significant")
}

func TestTransformIDDomainSeparation(t *testing.T) {
	ops := plutoOps()
	encoded := make(IRArray, len(ops))
	for i, op := range ops {
		encoded[i] = OperationToIR(op)
	}
	canonical, err := MarshalCanonical(IRObject{"operations": encoded, "seq": IRInt(1)})
	require.NoError(t, err)

	assert.Equal(t, hashWithDomain(DomainTransform, canonical), MustTransformID(ops, 1))
	assert.NotEqual(t, hashWithDomain(DomainState, canonical), MustTransformID(ops, 1))
}

func TestStateHashIgnoresRecordOrder(t *testing.T) {
	a := &Record{Type: "planet", ID: "earth", Attributes: IRObject{"name": IRString("Earth")}}
	b := &Record{Type: "moon", ID: "luna", Attributes: IRObject{"name": IRString("Luna")}}

	h1, err := StateHash([]*Record{a, b})
	require.NoError(t, err)
	h2, err := StateHash([]*Record{b, a})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := StateHash([]*Record{a.WithAttribute("name", IRString("Terra")), b})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
