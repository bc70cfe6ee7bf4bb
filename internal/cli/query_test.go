package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

func runQueryCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

// queryIDs runs a JSON query and returns the ids of the records in order.
func queryIDs(t *testing.T, args ...string) []string {
	t.Helper()
	buf, err := runQueryCommand(t, "json", args...)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, len(resp.Data.Records), resp.Data.Count)

	ids := []string{}
	for _, r := range resp.Data.Records {
		ids = append(ids, string(r["id"].(ir.IRString)))
	}
	return ids
}

func TestQueryCommand(t *testing.T) {
	db, _ := seedJournal(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"all in insertion order", []string{"--type", "planet"}, []string{"pluto", "mercury", "ceres"}},
		{"filtered and sorted", []string{"--type", "planet", "--where", "classification=dwarf", "--sort", "-order"}, []string{"pluto", "ceres"}},
		{"ascending sort", []string{"--type", "planet", "--sort", "order"}, []string{"mercury", "ceres", "pluto"}},
		{"int filter", []string{"--type", "planet", "--where", "order=5"}, []string{"ceres"}},
		{"string filter does not match int", []string{"--type", "planet", "--where", `order="5"`}, []string{}},
		{"key filter", []string{"--type", "planet", "--key", "remoteId=c-1"}, []string{"ceres"}},
		{"combined filters", []string{"--type", "planet", "--where", "classification=dwarf", "--where", "order=9"}, []string{"pluto"}},
		{"single record", []string{"--type", "moon", "--id", "charon"}, []string{"charon"}},
		{"missing record", []string{"--type", "moon", "--id", "nix"}, []string{}},
		{"no records of type", []string{"--type", "star"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db}, tt.args...)
			assert.Equal(t, tt.want, queryIDs(t, args...))
		})
	}
}

func TestQueryCommandText(t *testing.T) {
	db, _ := seedJournal(t)

	buf, err := runQueryCommand(t, "text", "--db", db, "--type", "moon")
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "findRecords(moon): 1 record(s)")
	assert.Contains(t, output, `"id":"charon"`)
	assert.Contains(t, output, `"planet":"planet:pluto"`)

	buf, err = runQueryCommand(t, "text", "--db", db, "--type", "moon", "--id", "nix")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No records found for findRecord(moon:nix).")
}

func TestQueryCommandValidatesAgainstSchema(t *testing.T) {
	db, _ := seedJournal(t)

	buf, err := runQueryCommand(t, "json", "--db", db, "--schema", schemaDir, "--type", "star")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodeInvalidQuery, resp.Error.Code)

	ids := queryIDs(t, "--db", db, "--schema", schemaDir, "--type", "planet", "--where", "atmosphere=false")
	assert.Empty(t, ids)
}

func TestQueryCommandInvalidFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"where without value", []string{"--where", "classification"}, "want name=value"},
		{"key without name", []string{"--key", "=c-1"}, "want name=value"},
		{"float value", []string{"--where", "order=1.5"}, "floats are not allowed"},
		{"id with filters", []string{"--id", "pluto", "--sort", "order"}, "--id cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", "unused.db", "--type", "planet"}, tt.args...)
			buf, err := runQueryCommand(t, "text", args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, buf.String(), ErrCodeInvalidQuery)
			assert.Contains(t, buf.String(), tt.wantErr)
		})
	}
}

func TestBuildQuery(t *testing.T) {
	q, err := buildQuery(&QueryOptions{
		Type:  "planet",
		Where: []string{"atmosphere=true"},
		Sort:  []string{"-order", "name"},
	})
	require.NoError(t, err)

	find, ok := q.(queryir.FindRecords)
	require.True(t, ok)
	assert.Equal(t, "planet", find.Type)
	assert.Equal(t, queryir.Equals{Attribute: "atmosphere", Value: ir.IRBool(true)}, find.Filter)
	assert.Equal(t, []queryir.SortSpec{
		{Attribute: "order", Descending: true},
		{Attribute: "name"},
	}, find.Sort)
}
