package memsource

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/testutil"
)

// recordingJournal keeps transforms in memory.
type recordingJournal struct {
	mu         sync.Mutex
	transforms []ir.Transform
	upserts    [][]*ir.Record
	removals   [][]ir.RecordIdentity
	fail       error
}

func (j *recordingJournal) WriteTransform(_ context.Context, t ir.Transform, upserts []*ir.Record, removals []ir.RecordIdentity) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.transforms = append(j.transforms, t)
	j.upserts = append(j.upserts, upserts)
	j.removals = append(j.removals, removals)
	return nil
}

func (j *recordingJournal) ReadTransforms(context.Context) ([]ir.Transform, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]ir.Transform(nil), j.transforms...), nil
}

func TestJournalReceivesFinalRecordStates(t *testing.T) {
	j := &recordingJournal{}
	s := newTestSource(t, WithJournal(j))

	mustApply(t, s, ir.AddRecord{Record: planet("mars", "Mars")}, ir.AddRecord{Record: moon("phobos", "Phobos")})
	mustApply(t, s, ir.AddToRelatedRecords{Record: mars, Relationship: "moons", Related: phobos})
	mustApply(t, s, ir.RemoveRecord{Record: phobos})

	require.Len(t, j.transforms, 3)
	assert.Len(t, j.upserts[0], 2)
	assert.Len(t, j.upserts[1], 2, "both sides of the link are written")
	assert.Equal(t, []ir.RecordIdentity{phobos}, j.removals[2])
	require.Len(t, j.upserts[2], 1)
	assert.Equal(t, mars, j.upserts[2][0].Identity())
}

func TestJournalFailureRejectsTransform(t *testing.T) {
	j := &recordingJournal{fail: errors.New("disk full")}
	s := newTestSource(t, WithJournal(j))

	req, err := s.Submit(context.Background(), ir.AddRecord{Record: planet("mars", "Mars")})
	require.NoError(t, err)
	err = req.Wait(context.Background())

	var re *TransformRejectedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, RejectJournalFailed, re.Code)
	assert.EqualError(t, errors.Unwrap(err), "disk full")

	_, ok := s.GetRecordSync(mars)
	assert.False(t, ok, "nothing is published when the journal write fails")
}

func TestRestoreReproducesState(t *testing.T) {
	j := &recordingJournal{}
	live := newTestSource(t, WithJournal(j))
	mustApply(t, live, ir.AddRecord{Record: planet("mars", "Mars")}, ir.AddRecord{Record: moon("phobos", "Phobos")})
	mustApply(t, live, ir.AddToRelatedRecords{Record: mars, Relationship: "moons", Related: phobos})
	mustApply(t, live, ir.ReplaceAttribute{Record: mars, Attribute: "order", Value: ir.IRInt(4)})
	want, err := live.StateHash()
	require.NoError(t, err)

	restored := New(testutil.SolarSystem(), WithLogger(testutil.DiscardLogger()))
	n, err := restored.Restore(context.Background(), j)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	got, err := restored.StateHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(3), restored.Clock().Current(), "clock resumes after the last seq")
}

func TestRestoreDetectsTamperedTransform(t *testing.T) {
	j := &recordingJournal{}
	live := newTestSource(t, WithJournal(j))
	mustApply(t, live, ir.AddRecord{Record: planet("mars", "Mars")})

	j.transforms[0].Seq = 7

	restored := New(testutil.SolarSystem(), WithLogger(testutil.DiscardLogger()))
	_, err := restored.Restore(context.Background(), j)
	assert.ErrorContains(t, err, "transform id mismatch")
}
