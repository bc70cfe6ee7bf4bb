package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/memsource"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case EventApplied:
			fmt.Fprintf(&buf, "  [step %d] seq %d %d ops\n", event.Step, event.Seq, len(event.Operations))
		default:
			fmt.Fprintf(&buf, "  [step %d] %s %s\n", event.Step, event.Type, event.Error)
		}
	}

	return buf.String()
}

// evaluate checks one assertion against the Store's current state.
func (h *Harness) evaluate(a Assertion, trace []TraceEvent) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	switch a.Type {
	case AssertAttribute:
		m, err := h.model(a.Record)
		if err != nil {
			return fail(fmt.Sprintf("%s.%s = %v", a.Record, a.Field, a.Value), err.Error())
		}
		want, err := ir.FromAny(a.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
		got, err := m.Attr(a.Field)
		if err != nil {
			return fail(formatValue(want), err.Error())
		}
		if got == nil {
			got = ir.IRNull{}
		}
		if !ir.Equal(want, got) {
			return fail(fmt.Sprintf("%s.%s = %s", a.Record, a.Field, formatValue(want)), formatValue(got))
		}

	case AssertKey:
		m, err := h.model(a.Record)
		if err != nil {
			return fail(fmt.Sprintf("%s.%s = %v", a.Record, a.Field, a.Value), err.Error())
		}
		want := ""
		if a.Value != nil {
			want = fmt.Sprint(a.Value)
		}
		got, err := m.Key(a.Field)
		if err != nil {
			return fail(want, err.Error())
		}
		if got != want {
			return fail(fmt.Sprintf("%s.%s = %q", a.Record, a.Field, want), fmt.Sprintf("%q", got))
		}

	case AssertHasOne:
		m, err := h.model(a.Record)
		if err != nil {
			return fail(fmt.Sprintf("%s.%s -> %v", a.Record, a.Field, a.Value), err.Error())
		}
		related, err := relatedModel(m, a.Field)
		if err != nil {
			return err
		}
		want := "<none>"
		if a.Value != nil {
			id, err := memsource.NormalizeReference(related, a.Value)
			if err != nil {
				return fmt.Errorf("%s: %w", a.Type, err)
			}
			want = id.String()
		}
		got, err := m.HasOne(a.Field)
		if err != nil {
			return fail(want, err.Error())
		}
		if formatModel(got) != want {
			return fail(fmt.Sprintf("%s.%s -> %s", a.Record, a.Field, want), formatModel(got))
		}

	case AssertHasMany:
		m, err := h.model(a.Record)
		if err != nil {
			return fail(fmt.Sprintf("%s.%s -> %v", a.Record, a.Field, a.Value), err.Error())
		}
		related, err := relatedModel(m, a.Field)
		if err != nil {
			return err
		}
		want, err := referenceList(related, a.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
		got, err := m.HasMany(a.Field)
		if err != nil {
			return fail(formatIdentities(want), err.Error())
		}
		if formatModels(got) != formatIdentities(want) {
			return fail(fmt.Sprintf("%s.%s -> %s", a.Record, a.Field, formatIdentities(want)), formatModels(got))
		}

	case AssertLiveQuery:
		return h.evaluateLiveQuery(a, fail)

	case AssertStale:
		id, err := ir.ParseIdentity(a.Record)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
		want := true
		if a.Value != nil {
			b, ok := a.Value.(bool)
			if !ok {
				return fmt.Errorf("%s: value must be a bool, got %T", a.Type, a.Value)
			}
			want = b
		}
		_, err = h.store.Cache().Model(id).Raw()
		if got := cache.IsStaleModelError(err); got != want {
			return fail(fmt.Sprintf("%s stale = %t", a.Record, want), fmt.Sprintf("stale = %t", got))
		}

	case AssertRecordCount:
		records, _ := h.store.Records(a.Model).Raw()
		if len(records) != *a.Count {
			return fail(fmt.Sprintf("%d %s records", *a.Count, a.Model), fmt.Sprintf("%d", len(records)))
		}

	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

func (h *Harness) evaluateLiveQuery(a Assertion, fail func(expected, actual string) error) error {
	lq := h.live[a.Query]
	res, err := lq.Value()
	if err != nil {
		return fail(fmt.Sprintf("%s = %v", a.Query, a.Value), err.Error())
	}

	if !res.Many {
		want := "<none>"
		if a.Value != nil {
			id, err := memsource.NormalizeReference(lq.model, a.Value)
			if err != nil {
				return fmt.Errorf("%s: %w", a.Type, err)
			}
			want = id.String()
		}
		if formatModel(res.Model) != want {
			return fail(fmt.Sprintf("%s = %s", a.Query, want), formatModel(res.Model))
		}
		return nil
	}

	if a.Count != nil && len(res.Models) != *a.Count {
		return fail(fmt.Sprintf("%s has %d results", a.Query, *a.Count), fmt.Sprintf("%d", len(res.Models)))
	}
	if a.Value == nil {
		return nil
	}
	want, err := referenceList(lq.model, a.Value)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	if formatModels(res.Models) != formatIdentities(want) {
		return fail(fmt.Sprintf("%s = %s", a.Query, formatIdentities(want)), formatModels(res.Models))
	}
	return nil
}

// model returns the Model of a "type:id" record that the source holds.
func (h *Harness) model(record string) (*cache.Model, error) {
	id, err := ir.ParseIdentity(record)
	if err != nil {
		return nil, err
	}
	m, ok := h.store.Record(id).Peek()
	if !ok {
		return nil, fmt.Errorf("record %s not found", id)
	}
	return m, nil
}

func relatedModel(m *cache.Model, field string) (string, error) {
	f, ok := m.Definition().Field(field)
	if !ok || !f.Kind.IsRelationship() {
		return "", fmt.Errorf("model %q has no relationship %q", m.Type(), field)
	}
	return f.Type, nil
}

func referenceList(model string, value any) ([]ir.RecordIdentity, error) {
	raw, ok := value.([]any)
	if value != nil && !ok {
		return nil, fmt.Errorf("value must be a list, got %T", value)
	}
	ids := make([]ir.RecordIdentity, len(raw))
	for i, r := range raw {
		id, err := memsource.NormalizeReference(model, r)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func formatValue(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func formatModel(m *cache.Model) string {
	if m == nil {
		return "<none>"
	}
	return m.String()
}

func formatModels(models []*cache.Model) string {
	parts := make([]string, len(models))
	for i, m := range models {
		parts[i] = m.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatIdentities(ids []ir.RecordIdentity) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
