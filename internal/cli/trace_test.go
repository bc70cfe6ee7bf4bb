package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
)

func runTraceJSON(t *testing.T, args ...string) TraceResult {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestTraceCommand(t *testing.T) {
	db, _ := seedJournal(t)

	result := runTraceJSON(t, "--db", db)
	require.Len(t, result.Timeline, 4)
	for i, entry := range result.Timeline {
		assert.Equal(t, int64(i+1), entry.Seq)
		assert.Len(t, entry.ID, 64)
		require.Len(t, entry.Operations, 1)
		assert.Equal(t, ir.IRString("addRecord"), entry.Operations[0]["op"])
	}
	assert.Equal(t, 4, result.Stats.Transforms)
	assert.Equal(t, 4, result.Stats.Operations)
	assert.Equal(t, map[string]int{"addRecord": 4}, result.Stats.ByOp)
	assert.Equal(t, int64(4), result.Stats.LastSeq)
}

func TestTraceCommandSinceAndLimit(t *testing.T) {
	db, _ := seedJournal(t)

	result := runTraceJSON(t, "--db", db, "--since", "1", "--limit", "2")
	require.Len(t, result.Timeline, 2)
	assert.Equal(t, int64(2), result.Timeline[0].Seq)
	assert.Equal(t, int64(3), result.Timeline[1].Seq)
	assert.Equal(t, int64(3), result.Stats.LastSeq)
}

func TestTraceCommandRecordFilter(t *testing.T) {
	db, _ := seedJournal(t)

	result := runTraceJSON(t, "--db", db, "--record", "moon:charon")
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, int64(4), result.Timeline[0].Seq)
}

func TestTraceCommandSingleTransform(t *testing.T) {
	db, _ := seedJournal(t)
	all := runTraceJSON(t, "--db", db)

	result := runTraceJSON(t, "--db", db, "--transform", all.Timeline[2].ID)
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, all.Timeline[2], result.Timeline[0])
}

func TestTraceCommandTransformNotFound(t *testing.T) {
	db, _ := seedJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db, "--transform", "deadbeef"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "transform not found: deadbeef")
}

func TestTraceCommandText(t *testing.T) {
	db, _ := seedJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Timeline:")
	assert.Contains(t, output, "addRecord planet:pluto")
	assert.Contains(t, output, "addRecord moon:charon")
	assert.Contains(t, output, "Transforms: 4")
	assert.Contains(t, output, "Last Seq:   4")
}

func TestTraceCommandInvalidRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "tether.db"), "--record", "pluto"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), ErrCodeInvalidQuery)
}

func TestBuildTraceEmpty(t *testing.T) {
	result := buildTrace(nil, 0, nil, 0)
	assert.Empty(t, result.Timeline)
	assert.Equal(t, 0, result.Stats.Transforms)

	buf := &bytes.Buffer{}
	outputTraceText(buf, result, false)
	assert.Equal(t, "No transforms found.\n", buf.String())
}

func TestFormatOperation(t *testing.T) {
	op := ir.OperationToIR(ir.ReplaceAttribute{
		Record:    ir.Identity("planet", "pluto"),
		Attribute: "order",
		Value:     ir.IRInt(9),
	})
	assert.Equal(t, "replaceAttribute planet:pluto", formatOperation(op, false))
	assert.Equal(t,
		`replaceAttribute planet:pluto {"attribute":"order","op":"replaceAttribute","record":"planet:pluto","value":9}`,
		formatOperation(op, true))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}
