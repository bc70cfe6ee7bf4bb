package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestCompileFile(t *testing.T) {
	schema, err := CompileFile(writeCUE(t, solarSystemCUE))
	require.NoError(t, err)
	assert.True(t, schema.HasModel("planet"))
	assert.True(t, schema.HasModel("moon"))
}

func TestCompileFileReportsValidationErrors(t *testing.T) {
	_, err := CompileFile(writeCUE(t, `
model: moon: relationships: planet: {kind: "hasOne", model: "planet"}
`))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrUnknownModel, ve.Code)
}

func TestCompileFileMissing(t *testing.T) {
	_, err := CompileFile(filepath.Join(t.TempDir(), "nope.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
