package harness

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/tether/internal/ir"
)

// Trace event types.
const (
	EventApplied  = "applied"
	EventRejected = "rejected"
	EventInvalid  = "invalid"
)

// TraceEvent records the outcome of one step: the transform the source
// applied, or the error that stopped it.
type TraceEvent struct {
	Step        int           `json:"step"`
	Type        string        `json:"type"`
	Seq         int64         `json:"seq,omitempty"`
	TransformID string        `json:"transform_id,omitempty"`
	Operations  []ir.IRObject `json:"operations,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as declared and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists step outcomes in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// StateHash fingerprints the source's final records.
	StateHash string `json:"state_hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceJournal is the source's journal during a run. It turns every applied
// transform into a trace event tagged with the running step, and keeps the
// transforms so the run can be replayed.
type traceJournal struct {
	mu         sync.Mutex
	step       int
	events     []TraceEvent
	transforms []ir.Transform
}

func (j *traceJournal) setStep(step int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.step = step
}

func (j *traceJournal) record(ev TraceEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
}

// WriteTransform implements memsource.Journal.
func (j *traceJournal) WriteTransform(_ context.Context, t ir.Transform, _ []*ir.Record, _ []ir.RecordIdentity) error {
	ops := make([]ir.IRObject, len(t.Operations))
	for i, op := range t.Operations {
		ops[i] = ir.OperationToIR(op)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, TraceEvent{
		Step:        j.step,
		Type:        EventApplied,
		Seq:         t.Seq,
		TransformID: t.ID,
		Operations:  ops,
	})
	j.transforms = append(j.transforms, t)
	return nil
}

// ReadTransforms implements memsource.Journal.
func (j *traceJournal) ReadTransforms(context.Context) ([]ir.Transform, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.transforms), nil
}

func (j *traceJournal) trace() []TraceEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.events)
}
