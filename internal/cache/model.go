package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/source"
)

// Model is the identity-stable view of one record in a Cache.
//
// A Cache hands out at most one Model per identity, so Models can be compared
// with ==. Field reads go through lazily created Property Caches that the
// Cache invalidates when the source reports a change; writes submit a
// transform to the source and seed the Property Cache optimistically.
//
// Every getter and setter fails with StaleModelError once the Model has been
// unloaded or while its backing record is absent from the source.
type Model struct {
	identity ir.RecordIdentity
	cache    *Cache
	def      *ModelDefinition

	mu    sync.Mutex
	props map[string]invalidator

	disconnected atomic.Bool
}

func newModel(c *Cache, id ir.RecordIdentity, def *ModelDefinition) *Model {
	return &Model{identity: id, cache: c, def: def, props: make(map[string]invalidator)}
}

// Identity returns the model's record identity.
func (m *Model) Identity() ir.RecordIdentity { return m.identity }

// Type returns the record type.
func (m *Model) Type() string { return m.identity.Type }

// ID returns the record id.
func (m *Model) ID() string { return m.identity.ID }

// Definition returns the model's static field descriptors.
func (m *Model) Definition() *ModelDefinition { return m.def }

// String renders the model as "type:id".
func (m *Model) String() string { return m.identity.String() }

// Connected reports whether the model is still attached to its cache.
func (m *Model) Connected() bool { return !m.disconnected.Load() }

// Raw returns the backing record from the source.
func (m *Model) Raw() (*ir.Record, error) {
	if err := m.assertConnected("$record"); err != nil {
		return nil, err
	}
	return m.record("$record")
}

// Key returns a key value. An absent key reads as "".
func (m *Model) Key(name string) (string, error) {
	if err := m.assertConnected(name); err != nil {
		return "", err
	}
	pc, err := m.cache.keyCache(m, name)
	if err != nil {
		return "", err
	}
	return pc.Value()
}

// Attr returns an attribute value. An absent attribute reads as nil; an
// attribute explicitly cleared reads as ir.IRNull.
func (m *Model) Attr(name string) (ir.IRValue, error) {
	if err := m.assertConnected(name); err != nil {
		return nil, err
	}
	pc, err := m.cache.attributeCache(m, name)
	if err != nil {
		return nil, err
	}
	return pc.Value()
}

// HasOne returns the related Model of a to-one relationship, or nil when
// the link is empty.
func (m *Model) HasOne(name string) (*Model, error) {
	if err := m.assertConnected(name); err != nil {
		return nil, err
	}
	pc, err := m.cache.hasOneCache(m, name)
	if err != nil {
		return nil, err
	}
	return pc.Value()
}

// HasMany returns the related Models of a to-many relationship in member
// order. The slice is a copy and may be modified by the caller.
func (m *Model) HasMany(name string) ([]*Model, error) {
	if err := m.assertConnected(name); err != nil {
		return nil, err
	}
	pc, err := m.cache.hasManyCache(m, name)
	if err != nil {
		return nil, err
	}
	models, err := pc.Value()
	if err != nil {
		return nil, err
	}
	return append([]*Model(nil), models...), nil
}

// Get reads any field, dispatching on its declared kind. Keys yield string,
// attributes ir.IRValue, hasOne *Model and hasMany []*Model.
func (m *Model) Get(name string) (any, error) {
	f, ok := m.def.Field(name)
	if !ok {
		return nil, &UnknownFieldError{Type: m.Type(), Field: name, AnyKind: true}
	}
	switch f.Kind {
	case ir.FieldKey:
		return m.Key(name)
	case ir.FieldAttribute:
		return m.Attr(name)
	case ir.FieldHasOne:
		return m.HasOne(name)
	default:
		return m.HasMany(name)
	}
}

// SetKey replaces a key. It returns a settled request when the value is
// unchanged.
func (m *Model) SetKey(ctx context.Context, name, value string) (*source.Request, error) {
	pc, err := m.cache.keyCache(m, name)
	if err != nil {
		return nil, err
	}
	return setOptimistic(ctx, m, name, pc, value,
		func(a, b string) bool { return a == b },
		ir.ReplaceKey{Record: m.identity, Key: name, Value: value})
}

// SetAttr replaces an attribute. It returns a settled request when the
// value is unchanged.
func (m *Model) SetAttr(ctx context.Context, name string, value ir.IRValue) (*source.Request, error) {
	pc, err := m.cache.attributeCache(m, name)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = ir.IRNull{}
	}
	return setOptimistic(ctx, m, name, pc, value, ir.Equal,
		ir.ReplaceAttribute{Record: m.identity, Attribute: name, Value: value})
}

// SetHasOne replaces a to-one relationship. A nil related Model clears it.
func (m *Model) SetHasOne(ctx context.Context, name string, related *Model) (*source.Request, error) {
	pc, err := m.cache.hasOneCache(m, name)
	if err != nil {
		return nil, err
	}
	op := ir.ReplaceRelatedRecord{Record: m.identity, Relationship: name}
	if related != nil {
		id := related.Identity()
		op.Related = &id
	}
	return setOptimistic(ctx, m, name, pc, related,
		func(a, b *Model) bool { return a == b },
		op)
}

// setOptimistic implements the write path shared by the setters: compare,
// submit one operation, seed the cell once the source accepted the
// transform, and invalidate the cell if the transform is later rejected.
// The seed is skipped when the cell was invalidated after Submit began; the
// next read then recomputes from the source.
func setOptimistic[T any](
	ctx context.Context,
	m *Model,
	field string,
	pc *PropertyCache[T],
	value T,
	equal func(a, b T) bool,
	op ir.Operation,
) (*source.Request, error) {
	if err := m.assertConnected(field); err != nil {
		return nil, err
	}
	current, err := pc.Value()
	if err != nil {
		return nil, err
	}
	if equal(current, value) {
		return source.Settled(nil), nil
	}

	stamp := pc.Stamp()
	req, err := m.cache.source.Submit(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("set %s.%s: %w", m.identity, field, err)
	}

	pc.SetAt(value, stamp)
	req.OnSettle(func(err error) {
		if err == nil {
			return
		}
		m.cache.logger.Warn("optimistic write rolled back",
			"record", m.identity.String(),
			"field", field,
			"transform", req.Transform().ID,
			"error", err,
		)
		pc.NotifyPropertyChange()
	})
	return req, nil
}

// assertConnected fails with StaleModelError once the model is unloaded.
func (m *Model) assertConnected(field string) error {
	if m.disconnected.Load() {
		return newStaleError(m.identity, field, ReasonUnloaded)
	}
	return nil
}

// record fetches the backing record or fails stale.
func (m *Model) record(field string) (*ir.Record, error) {
	rec, ok := m.cache.source.GetRecordSync(m.identity)
	if !ok {
		return nil, newStaleError(m.identity, field, ReasonAbsent)
	}
	return rec, nil
}

// property returns the Property Cache for field, creating it with compute on
// first use.
func property[T any](m *Model, field string, compute func() (T, error)) *PropertyCache[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.props[field]; ok {
		if pc, ok := existing.(*PropertyCache[T]); ok {
			return pc
		}
	}
	pc := NewPropertyCache(compute)
	m.props[field] = pc
	return pc
}

// notifyPropertyChange invalidates one field's Property Cache, if created.
func (m *Model) notifyPropertyChange(field string) {
	m.mu.Lock()
	pc, ok := m.props[field]
	m.mu.Unlock()
	if ok {
		pc.NotifyPropertyChange()
	}
}

// notifyAll invalidates every Property Cache created so far.
func (m *Model) notifyAll() {
	m.mu.Lock()
	cells := make([]invalidator, 0, len(m.props))
	for _, pc := range m.props {
		cells = append(cells, pc)
	}
	m.mu.Unlock()
	for _, pc := range cells {
		pc.NotifyPropertyChange()
	}
}

// disconnect detaches the model; later access fails stale.
func (m *Model) disconnect() {
	if m.disconnected.CompareAndSwap(false, true) {
		m.mu.Lock()
		m.props = make(map[string]invalidator)
		m.mu.Unlock()
	}
}

// LogValue implements slog.LogValuer.
func (m *Model) LogValue() slog.Value {
	return slog.StringValue(m.identity.String())
}
