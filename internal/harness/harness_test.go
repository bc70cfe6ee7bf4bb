package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/testutil"
)

func load(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return scenario
}

func TestRun_PlutoMoons(t *testing.T) {
	result, err := Run(context.Background(), load(t, "pluto_moons"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 6)
	for i, ev := range result.Trace[:5] {
		assert.Equal(t, EventApplied, ev.Type)
		assert.Equal(t, i, ev.Step)
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Len(t, ev.TransformID, 64)
	}
	last := result.Trace[5]
	assert.Equal(t, EventRejected, last.Type)
	assert.Equal(t, "RECORD_NOT_FOUND", last.Error)
	assert.Equal(t, int64(6), last.Seq, "a rejected transform still consumes its seq")
	assert.NotEmpty(t, result.StateHash)
}

func TestRun_AttributeOnlyUpdateIsMinimal(t *testing.T) {
	result, err := Run(context.Background(), load(t, "live_sort"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 5, "the unchanged update submits nothing")
	update := result.Trace[3]
	assert.Equal(t, 3, update.Step)
	require.Len(t, update.Operations, 1)
	assert.Equal(t, ir.IRString("replaceAttribute"), update.Operations[0]["op"])
	assert.Equal(t, 5, result.Trace[4].Step)
}

func TestRun_RejectionsAndValidation(t *testing.T) {
	result, err := Run(context.Background(), load(t, "rejections"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	types := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{
		EventApplied, EventRejected, EventInvalid, EventInvalid,
		EventRejected, EventRejected, EventApplied, EventApplied, EventApplied,
	}, types)
	assert.Zero(t, result.Trace[2].Seq, "invalid steps consume no seq")
}

func TestRun_CoarseChangesReachSameState(t *testing.T) {
	fine, err := Run(context.Background(), load(t, "pluto_moons"))
	require.NoError(t, err)
	coarse, err := Run(context.Background(), load(t, "pluto_moons"), WithCoarseChanges())
	require.NoError(t, err)

	require.True(t, coarse.Pass, "errors: %v", coarse.Errors)
	assert.Equal(t, fine.StateHash, coarse.StateHash)
	assert.Equal(t, fine.Trace, coarse.Trace)
}

func TestRun_Deterministic(t *testing.T) {
	first, err := Run(context.Background(), load(t, "rejections"))
	require.NoError(t, err)
	second, err := Run(context.Background(), load(t, "rejections"))
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.StateHash, second.StateHash)
}

func TestRun_WithSchema(t *testing.T) {
	scenario := &Scenario{
		Name:   "inline",
		Schema: "unused.cue",
		Steps: []Step{
			{Op: OpAdd, Record: "planet:earth", Fields: map[string]any{"name": "Earth"}},
			{Op: OpAdd, Record: "moon", Fields: map[string]any{"name": "Luna", "planet": "earth"}},
		},
		Assertions: []Assertion{
			{Type: AssertHasMany, Record: "planet:earth", Field: "moons", Value: []any{"moon-1"}},
		},
	}

	result, err := Run(context.Background(), scenario,
		WithSchema(testutil.SolarSystem()),
		WithLogger(testutil.DiscardLogger()),
	)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ReportsFailures(t *testing.T) {
	three := 3
	scenario := &Scenario{
		Name: "failing",
		Steps: []Step{
			{Op: OpAdd, Record: "planet:earth", Fields: map[string]any{"name": "Earth"}},
			// Succeeds although a rejection is expected.
			{Op: OpAdd, Record: "planet:mars", ExpectError: "RECORD_EXISTS"},
			// Rejected although success is expected.
			{Op: OpRemove, Record: "planet:venus"},
		},
		Assertions: []Assertion{
			{Type: AssertAttribute, Record: "planet:earth", Field: "name", Value: "Terra"},
			{Type: AssertRecordCount, Model: "planet", Count: &three},
			{Type: AssertStale, Record: "planet:earth"},
			{Type: AssertKey, Record: "planet:pluto", Field: "remoteId", Value: "p"},
		},
	}

	result, err := Run(context.Background(), scenario, WithSchema(testutil.SolarSystem()))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "expected RECORD_EXISTS, step succeeded")
	assert.Contains(t, result.Errors[1], "planet:venus")
	assert.Contains(t, result.Errors[2], `Expected: planet:earth.name = "Terra"`)
	assert.Contains(t, result.Errors[2], `Actual: "Earth"`)
	assert.Contains(t, result.Errors[3], "Expected: 3 planet records")
	assert.Contains(t, result.Errors[4], "stale = false")
	assert.Contains(t, result.Errors[5], "record planet:pluto not found")
}

func TestRun_InvalidLiveQuery(t *testing.T) {
	scenario := &Scenario{
		Name:        "badquery",
		LiveQueries: []LiveQuery{{Name: "stars", Type: "star"}},
		Steps:       []Step{{Op: OpAdd, Record: "planet"}},
		Assertions:  []Assertion{{Type: AssertLiveQuery, Query: "stars"}},
	}

	_, err := Run(context.Background(), scenario, WithSchema(testutil.SolarSystem()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stars")
}

func TestRun_SchemaError(t *testing.T) {
	scenario := &Scenario{Name: "noschema", Schema: "testdata/schemas/missing.cue"}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", errorCode(nil))
	assert.Equal(t, ErrorValidation, errorCode(inputErrorf("bad")))
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRecordCount,
		Expected: "2 planet records",
		Actual:   "1",
		Trace: []TraceEvent{
			{Step: 0, Type: EventApplied, Seq: 1, Operations: nil},
			{Step: 1, Type: EventRejected, Seq: 2, Error: "RECORD_EXISTS"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: record_count")
	assert.Contains(t, msg, "Expected: 2 planet records")
	assert.Contains(t, msg, "Actual: 1")
	assert.Contains(t, msg, "[step 0] seq 1 0 ops")
	assert.Contains(t, msg, "[step 1] rejected RECORD_EXISTS")
}
