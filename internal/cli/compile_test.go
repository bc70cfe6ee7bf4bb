package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
)

const schemaDir = "testdata/schema"

// writeCUE writes content to a .cue file in a fresh temp dir and returns
// the file path.
func writeCUE(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCompileValidSchema(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemaDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 2 model(s)")
	assert.Contains(t, output, "planet: 1 key(s), 4 attribute(s), 1 relationship(s)")
	assert.Contains(t, output, "moons: hasMany moon (inverse planet)")
}

func TestCompileSingleFile(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(schemaDir, "solar.cue")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Compiled 2 model(s)")
}

func TestCompileValidSchemaJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemaDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   ir.Schema `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"moon", "planet"}, resp.Data.ModelNames())

	planet, ok := resp.Data.Model("planet")
	require.True(t, ok)
	require.Len(t, planet.Relationships, 1)
	assert.Equal(t, ir.FieldHasMany, planet.Relationships[0].Kind)
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "schema.json")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemaDir, "--output", outputFile})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Wrote schema to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var schema ir.Schema
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Len(t, schema.Models, 2)
	assert.Contains(t, string(data), `"kind": "hasOne"`)
}

func TestCompileNotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestCompileEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNoFiles)
}

func TestCompileSyntaxError(t *testing.T) {
	path := writeCUE(t, "model: planet: {")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBuildFailed, resp.Error.Code)
}

func TestCompileInvalidSchema(t *testing.T) {
	path := writeCUE(t, `
model: moon: {
	relationships: planet: {kind: "hasOne", model: "planet"}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), "E110")
}

func TestCalculateStats(t *testing.T) {
	schema := ir.NewSchema(
		ir.ModelDef{
			Name:       "planet",
			Keys:       []ir.KeyDef{{Name: "remoteId"}},
			Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}, {Name: "order", Type: "int"}},
			Relationships: []ir.RelationshipDef{
				{Name: "moons", Kind: ir.FieldHasMany, Model: "moon", Inverse: "planet"},
			},
		},
		ir.ModelDef{
			Name:       "moon",
			Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}},
			Relationships: []ir.RelationshipDef{
				{Name: "planet", Kind: ir.FieldHasOne, Model: "planet", Inverse: "moons"},
			},
		},
	)

	stats := calculateStats(schema)
	assert.Equal(t, 2, stats.ModelCount)
	assert.Equal(t, 1, stats.KeyCount)
	assert.Equal(t, 3, stats.AttributeCount)
	assert.Equal(t, 2, stats.RelationshipCount)
}
