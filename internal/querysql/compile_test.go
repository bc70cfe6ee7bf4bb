package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

func TestCompile_FindRecords(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.Compile(queryir.FindRecords{
		Type:   "planet",
		Filter: queryir.Equals{Attribute: "classification", Value: ir.IRString("dwarf")},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT type, id, keys, attributes, relationships, seq FROM records WHERE type = ? AND json_extract(attributes, ?) = ? ORDER BY created_seq ASC, id ASC COLLATE BINARY`,
		sql)
	assert.Equal(t, []any{"planet", `$."classification"`, "dwarf"}, params)
	assert.NotContains(t, sql, "dwarf", "values are never interpolated")
}

func TestCompile_FindRecord(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.FindRecord{Record: ir.Identity("planet", "pluto")})
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE type = ? AND id = ?")
	assert.Contains(t, sql, "ORDER BY")
	assert.Equal(t, []any{"planet", "pluto"}, params)
}

func TestCompile_SortPutsNullsLast(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.FindRecords{
		Type: "planet",
		Sort: []queryir.SortSpec{{Attribute: "order", Descending: true}},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "ORDER BY COALESCE(json_type(attributes, ?), 'null') = 'null' ASC, json_extract(attributes, ?) DESC, created_seq ASC")
	assert.Equal(t, []any{"planet", `$."order"`, `$."order"`}, params)
}

func TestCompile_Predicates(t *testing.T) {
	testCases := []struct {
		name       string
		filter     queryir.Predicate
		wantSQL    string
		wantParams []any
	}{
		{
			name:       "bool becomes integer",
			filter:     queryir.Equals{Attribute: "atmosphere", Value: ir.IRBool(true)},
			wantSQL:    "json_extract(attributes, ?) = ?",
			wantParams: []any{`$."atmosphere"`, int64(1)},
		},
		{
			name:       "explicit null",
			filter:     queryir.Equals{Attribute: "order", Value: ir.IRNull{}},
			wantSQL:    "json_type(attributes, ?) = 'null'",
			wantParams: []any{`$."order"`},
		},
		{
			name:       "key",
			filter:     queryir.KeyEquals{Key: "remoteId", Value: "p-9"},
			wantSQL:    "json_extract(keys, ?) = ?",
			wantParams: []any{`$."remoteId"`, "p-9"},
		},
		{
			name: "and",
			filter: queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Attribute: "name", Value: ir.IRString("Pluto")},
				queryir.Equals{Attribute: "order", Value: ir.IRInt(9)},
			}},
			wantSQL:    "(json_extract(attributes, ?) = ?) AND (json_extract(attributes, ?) = ?)",
			wantParams: []any{`$."name"`, "Pluto", `$."order"`, int64(9)},
		},
		{
			name:    "empty and",
			filter:  queryir.And{},
			wantSQL: "1 = 1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := NewSQLCompiler().Compile(queryir.FindRecords{Type: "planet", Filter: tc.filter})
			require.NoError(t, err)
			assert.Contains(t, sql, "WHERE type = ? AND "+tc.wantSQL+" ORDER BY")
			assert.Equal(t, append([]any{"planet"}, tc.wantParams...), params)
		})
	}
}

func TestCompile_Unsupported(t *testing.T) {
	compiler := NewSQLCompiler()

	_, _, err := compiler.Compile(nil)
	assert.Error(t, err)

	_, _, err = compiler.Compile(queryir.FindRelatedRecords{Record: ir.Identity("planet", "p"), Relationship: "moons"})
	assert.ErrorContains(t, err, "unsupported query type")

	_, _, err = compiler.Compile(queryir.FindRecords{
		Type:   "planet",
		Filter: queryir.Equals{Attribute: "tags", Value: ir.IRArray{}},
	})
	assert.ErrorContains(t, err, "IRArray")
}

func TestAttributePathQuotesSpecialCharacters(t *testing.T) {
	assert.Equal(t, `$."a.b"`, AttributePath("a.b"))
	assert.Equal(t, `$."say \"hi\""`, AttributePath(`say "hi"`))
}
