package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/compiler"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/memsource"
	"github.com/roach88/tether/internal/store"
	"github.com/roach88/tether/internal/testutil"
)

// Harness is the scenario execution engine: a Store over a fresh in-memory
// source with deterministic ids and sequence numbers.
type Harness struct {
	schema  *ir.Schema
	source  *memsource.Source
	store   *store.Store
	journal *traceJournal
	live    map[string]liveQuery
	logger  *slog.Logger
}

// liveQuery is a registered live query and the model its results belong to.
type liveQuery struct {
	*cache.LiveQuery
	model string
}

type config struct {
	logger *slog.Logger
	coarse bool
	schema *ir.Schema
}

// Option configures a run.
type Option func(*config)

// WithLogger sets the logger for the source, the Store and the harness.
// Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithCoarseChanges makes the source omit field detail from its changes, so
// the scenario exercises whole-Model invalidation.
func WithCoarseChanges() Option {
	return func(c *config) {
		c.coarse = true
	}
}

// WithSchema uses an already compiled schema instead of the scenario's
// schema file.
func WithSchema(s *ir.Schema) Option {
	return func(c *config) {
		c.schema = s
	}
}

// inputError is a step the harness could not turn into a Store call. It
// counts as a validation failure.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func inputErrorf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh source for isolation. Execution flow:
//  1. Compile the schema
//  2. Register live queries
//  3. Execute steps, recording the trace
//  4. Evaluate assertions
//  5. Replay the applied transforms into a second source and compare state
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: testutil.DiscardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	schema := cfg.schema
	if schema == nil {
		var err error
		if schema, err = compiler.CompileFile(scenario.Schema); err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
	}

	journal := &traceJournal{}
	srcOpts := []memsource.Option{
		memsource.WithLogger(cfg.logger),
		memsource.WithIDGenerator(testutil.NewSequentialIDs()),
		memsource.WithJournal(journal),
	}
	if cfg.coarse {
		srcOpts = append(srcOpts, memsource.WithCoarseChanges())
	}
	src := memsource.New(schema, srcOpts...)
	stop := src.Start(ctx)
	defer stop()

	st := store.New(src, store.WithLogger(cfg.logger))
	defer st.Destroy()

	h := &Harness{
		schema:  schema,
		source:  src,
		store:   st,
		journal: journal,
		live:    make(map[string]liveQuery),
		logger:  cfg.logger,
	}

	if err := h.registerLiveQueries(scenario.LiveQueries); err != nil {
		return nil, fmt.Errorf("failed to register live queries: %w", err)
	}

	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)
	result.Trace = journal.trace()

	for i, a := range scenario.Assertions {
		if err := h.evaluate(a, result.Trace); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	hash, err := src.StateHash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash state: %w", err)
	}
	result.StateHash = hash

	if err := h.verifyReplay(ctx, hash); err != nil {
		result.AddError(err.Error())
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"steps", len(scenario.Steps),
		"trace", len(result.Trace),
	)
	return result, nil
}

// registerLiveQueries opens every declared live query through the Store.
func (h *Harness) registerLiveQueries(specs []LiveQuery) error {
	for _, spec := range specs {
		opts, err := queryOptions(spec)
		if err != nil {
			return fmt.Errorf("%s: %w", spec.Name, err)
		}

		var lq *cache.LiveQuery
		model := spec.Type
		switch {
		case spec.Record == "":
			lq, err = h.store.Records(spec.Type).Live(opts...)
		case spec.Relationship == "":
			var id ir.RecordIdentity
			if id, err = ir.ParseIdentity(spec.Record); err == nil {
				model = id.Type
				lq, err = h.store.Record(id).Live()
			}
		default:
			var id ir.RecordIdentity
			var rel ir.RelationshipDef
			if id, rel, err = h.relationship(spec.Record, spec.Relationship); err != nil {
				break
			}
			model = rel.Model
			if rel.Kind == ir.FieldHasOne {
				lq, err = h.store.RelatedRecord(id, rel.Name).Live()
			} else {
				lq, err = h.store.RelatedRecords(id, rel.Name).Live(opts...)
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", spec.Name, err)
		}
		h.live[spec.Name] = liveQuery{LiveQuery: lq, model: model}
	}
	return nil
}

func queryOptions(spec LiveQuery) ([]store.QueryOption, error) {
	var opts []store.QueryOption
	for _, name := range slices.Sorted(maps.Keys(spec.Where)) {
		v, err := ir.FromAny(spec.Where[name])
		if err != nil {
			return nil, fmt.Errorf("where %s: %w", name, err)
		}
		opts = append(opts, store.AttributeEquals(name, v))
	}
	for _, s := range spec.Sort {
		if attr, ok := strings.CutPrefix(s, "-"); ok {
			opts = append(opts, store.SortByDesc(attr))
		} else {
			opts = append(opts, store.SortBy(s))
		}
	}
	return opts, nil
}

// executeSteps runs every step and checks its outcome against ExpectError.
// A failing step is recorded and the run continues.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		h.journal.setStep(i)
		err := h.executeStep(ctx, step)
		code := errorCode(err)

		if err != nil {
			ev := TraceEvent{Step: i, Type: EventInvalid, Error: code}
			var re *memsource.TransformRejectedError
			if errors.As(err, &re) {
				ev.Type = EventRejected
				ev.Seq = re.Seq
				ev.TransformID = re.TransformID
			}
			h.journal.record(ev)
		}

		switch {
		case err == nil && step.ExpectError != "":
			result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %s, step succeeded", i, step.Op, step.Record, step.ExpectError))
		case err != nil && step.ExpectError != code:
			result.AddError(fmt.Sprintf("steps[%d] %s %s: %v", i, step.Op, step.Record, err))
		}

		h.logger.Info("step completed",
			"step", i,
			"op", step.Op,
			"record", step.Record,
			"outcome", code,
		)
	}
}

// errorCode classifies a step error: "" for success, VALIDATION for input
// refused before queuing, the rejection code for a rejected transform.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var re *memsource.TransformRejectedError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var ie *inputError
	if memsource.IsValidationError(err) || errors.As(err, &ie) {
		return ErrorValidation
	}
	return "ERROR"
}

// executeStep issues a step through one Store accessor.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch step.Op {
	case OpAdd:
		typ, id, _ := strings.Cut(step.Record, ":")
		props, err := h.properties(typ, id, step.Fields)
		if err != nil {
			return err
		}
		_, err = h.store.Records(typ).Add(ctx, props)
		return err

	case OpUpdate:
		id, err := ir.ParseIdentity(step.Record)
		if err != nil {
			return &inputError{msg: err.Error()}
		}
		props, err := h.properties(id.Type, id.ID, step.Fields)
		if err != nil {
			return err
		}
		_, err = h.store.Record(id).Update(ctx, props)
		return err

	case OpRemove:
		id, err := ir.ParseIdentity(step.Record)
		if err != nil {
			return &inputError{msg: err.Error()}
		}
		return h.store.Record(id).Remove(ctx)

	case OpReplace:
		id, rel, err := h.relationship(step.Record, step.Relationship)
		if err != nil {
			return err
		}
		refs, err := references(rel.Model, step.Related)
		if err != nil {
			return err
		}
		if rel.Kind == ir.FieldHasMany {
			_, err = h.store.RelatedRecords(id, rel.Name).Replace(ctx, refs...)
			return err
		}
		switch len(refs) {
		case 0:
			_, err = h.store.RelatedRecord(id, rel.Name).Replace(ctx, nil)
		case 1:
			_, err = h.store.RelatedRecord(id, rel.Name).Replace(ctx, &refs[0])
		default:
			err = inputErrorf("%s.%s is hasOne, got %d related records", id.Type, rel.Name, len(refs))
		}
		return err

	case OpRelate, OpUnrelate:
		id, rel, err := h.relationship(step.Record, step.Relationship)
		if err != nil {
			return err
		}
		if rel.Kind != ir.FieldHasMany {
			return inputErrorf("%s.%s is hasOne, use replace", id.Type, rel.Name)
		}
		refs, err := references(rel.Model, step.Related)
		if err != nil {
			return err
		}
		accessor := h.store.RelatedRecords(id, rel.Name)
		if step.Op == OpRelate {
			_, err = accessor.Add(ctx, refs[0])
			return err
		}
		return accessor.Remove(ctx, refs[0])
	}
	return inputErrorf("unknown op %q", step.Op)
}

// properties normalizes loosely typed fields into Store properties.
func (h *Harness) properties(typ, id string, fields map[string]any) (store.Properties, error) {
	props := make(map[string]any, len(fields)+1)
	maps.Copy(props, fields)
	if id != "" {
		props["id"] = id
	}
	rec, err := memsource.Normalize(h.schema, typ, props)
	if err != nil {
		return store.Properties{}, &inputError{msg: err.Error()}
	}
	return store.Properties{
		ID:            rec.ID,
		Keys:          rec.Keys,
		Attributes:    rec.Attributes,
		Relationships: rec.Relationships,
	}, nil
}

// relationship parses a "type:id" owner and looks up one of its declared
// relationships.
func (h *Harness) relationship(record, name string) (ir.RecordIdentity, ir.RelationshipDef, error) {
	id, err := ir.ParseIdentity(record)
	if err != nil {
		return ir.RecordIdentity{}, ir.RelationshipDef{}, &inputError{msg: err.Error()}
	}
	m, ok := h.schema.Model(id.Type)
	if !ok {
		return id, ir.RelationshipDef{}, inputErrorf("unknown model %q", id.Type)
	}
	rel, ok := m.Relationship(name)
	if !ok {
		return id, ir.RelationshipDef{}, inputErrorf("model %q has no relationship %q", id.Type, name)
	}
	return id, rel, nil
}

func references(model string, raw []string) ([]ir.RecordIdentity, error) {
	refs := make([]ir.RecordIdentity, len(raw))
	for i, r := range raw {
		id, err := memsource.NormalizeReference(model, r)
		if err != nil {
			return nil, &inputError{msg: err.Error()}
		}
		refs[i] = id
	}
	return refs, nil
}

// verifyReplay restores a second source from the run's journal and checks
// that it reaches the same state.
func (h *Harness) verifyReplay(ctx context.Context, want string) error {
	replica := memsource.New(h.schema, memsource.WithLogger(h.logger))
	if _, err := replica.Restore(ctx, h.journal); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	got, err := replica.StateHash()
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	if got != want {
		return fmt.Errorf("replay diverged: state %s, replayed %s", want, got)
	}
	return nil
}
