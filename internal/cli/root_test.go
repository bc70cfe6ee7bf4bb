package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tether", cmd.Use)
	assert.Contains(t, cmd.Short, "reactive records")
	assert.Contains(t, cmd.Long, "journal-backed")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "test", "apply", "replay", "trace", "query"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"compile", "output", ""},
		{"test", "update", "false"},
		{"test", "filter", ""},
		{"test", "coarse", "false"},
		{"apply", "db", ""},
		{"apply", "schema", ""},
		{"replay", "db", ""},
		{"replay", "verify", "false"},
		{"trace", "since", "0"},
		{"trace", "limit", "0"},
		{"trace", "record", ""},
		{"trace", "transform", ""},
		{"query", "type", ""},
		{"query", "where", "[]"},
		{"query", "sort", "[]"},
	}

	cmd := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "compile", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootRunsSubcommand(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", schemaDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Schema valid")
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	newLogger(&RootOptions{}, buf).Info("dropped")
	assert.Empty(t, buf.String())

	newLogger(&RootOptions{Verbose: true}, buf).Debug("kept", "seq", 3)
	assert.Contains(t, buf.String(), "msg=kept")
	assert.Contains(t, buf.String(), "seq=3")
}
