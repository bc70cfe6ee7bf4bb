package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidSchema(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemaDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Schema valid: 2 model(s)")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemaDir})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"moon", "planet"}, resp.Data.Models)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateReportsAllErrors(t *testing.T) {
	path := writeCUE(t, `
model: planet: {
	relationships: moons: {kind: "hasMany", model: "moon", inverse: "planet"}
}
model: moon: {
	attributes: name: string
	relationships: host: {kind: "hasOne", model: "star"}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Error  *CLIError        `json:"error"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	var codes []string
	for _, e := range resp.Data.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, "E110") // unknown related model
	assert.Contains(t, codes, "E111") // inverse not declared on moon
	assert.Equal(t, resp.Data.Errors[0].Code, resp.Error.Code)
}

func TestValidateNotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E005]")
}

func TestValidateCompileError(t *testing.T) {
	path := writeCUE(t, `model: planet: relationships: moons: {kind: "manyToMany", model: "moon"}`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeCompileFailed)
	assert.Contains(t, buf.String(), "invalid relationship kind")
}
