package cache

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/metrics"
	"github.com/roach88/tether/internal/queryir"
	"github.com/roach88/tether/internal/source"
)

// Result is a query result materialized into Models. It mirrors
// queryir.Result: Found is false for undefined, and a found singular result
// with a nil Model is an empty link.
type Result struct {
	Many   bool
	Found  bool
	Model  *Model
	Models []*Model
}

// Cache binds a record source to identity-stable Models.
//
// The identity map guarantees one Model per RecordIdentity for the lifetime
// of the Cache (until Unload). The Cache subscribes to the source's change
// stream and turns each change into invalidations: field-level when the
// change names the fields, whole-Model otherwise. LiveQueries are
// invalidated by record type through their source subscriptions.
//
// Thread-safety: all methods are safe for concurrent use. The identity map
// is guarded by a mutex that is never held while calling into the source.
type Cache struct {
	source   source.RecordSource
	registry *Registry
	logger   *slog.Logger

	mu          sync.Mutex
	models      map[ir.RecordIdentity]*Model
	liveQueries map[*LiveQuery]struct{}
	destroyed   bool

	unsubscribe func()
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithRegistry overrides the definition registry built from the source's
// schema.
func WithRegistry(r *Registry) Option {
	return func(c *Cache) {
		c.registry = r
	}
}

// New creates a Cache over src and subscribes to its changes.
func New(src source.RecordSource, opts ...Option) *Cache {
	c := &Cache{
		source:      src,
		logger:      slog.Default(),
		models:      make(map[ir.RecordIdentity]*Model),
		liveQueries: make(map[*LiveQuery]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry(src.Schema())
	}
	c.unsubscribe = src.Subscribe(c.handleChange)
	return c
}

// Source returns the underlying record source.
func (c *Cache) Source() source.RecordSource { return c.source }

// Registry returns the model definition registry.
func (c *Cache) Registry() *Registry { return c.registry }

// Lookup returns the Model for a record, creating and registering it on
// first sight. A nil record yields a nil Model.
func (c *Cache) Lookup(r *ir.Record) *Model {
	if r == nil {
		return nil
	}
	return c.lookupIdentity(r.Identity())
}

// LookupAll maps Lookup over records, preserving order.
func (c *Cache) LookupAll(records []*ir.Record) []*Model {
	out := make([]*Model, 0, len(records))
	for _, r := range records {
		if m := c.Lookup(r); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Model returns the Model for id, creating it on first sight. Unlike Peek it
// does not consult the source, so it also reaches Models of removed records.
func (c *Cache) Model(id ir.RecordIdentity) *Model {
	return c.lookupIdentity(id)
}

func (c *Cache) lookupIdentity(id ir.RecordIdentity) *Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[id]; ok {
		return m
	}
	m := newModel(c, id, c.registry.definitionOrEmpty(id.Type))
	if c.destroyed {
		// A destroyed cache still answers lookups, but never tracks them.
		m.disconnect()
		return m
	}
	c.models[id] = m
	metrics.CacheModels.Inc()
	return m
}

// Includes reports whether a Model for id is currently in the identity map.
func (c *Cache) Includes(id ir.RecordIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.models[id]
	return ok
}

// Len returns the identity map size.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}

// Raw returns the source's current record for id.
func (c *Cache) Raw(id ir.RecordIdentity) (*ir.Record, bool) {
	return c.source.GetRecordSync(id)
}

// RawRecords returns the source's current records of typ.
func (c *Cache) RawRecords(typ string) ([]*ir.Record, bool) {
	return c.source.GetRecordsSync(typ)
}

// Peek returns the Model for id if the source holds its record.
func (c *Cache) Peek(id ir.RecordIdentity) (*Model, bool) {
	r, ok := c.source.GetRecordSync(id)
	if !ok {
		return nil, false
	}
	return c.Lookup(r), true
}

// PeekRecords returns Models for every record of typ, in source order.
func (c *Cache) PeekRecords(typ string) ([]*Model, bool) {
	rs, ok := c.source.GetRecordsSync(typ)
	if !ok {
		return nil, false
	}
	return c.LookupAll(rs), true
}

// Query evaluates q synchronously against the source and materializes the
// result.
func (c *Cache) Query(q queryir.Query) (Result, error) {
	res, err := c.source.Query(q)
	if err != nil {
		return Result{}, err
	}
	return c.Materialize(res), nil
}

// Materialize converts a record-level result into Models.
func (c *Cache) Materialize(res queryir.Result) Result {
	out := Result{Many: res.Many, Found: res.Found}
	if !res.Found {
		return out
	}
	if res.Many {
		out.Models = c.LookupAll(res.Records)
		return out
	}
	out.Model = c.Lookup(res.Record)
	return out
}

// LiveQuery registers q with the source and returns a lazily evaluated,
// self-invalidating view of its result.
func (c *Cache) LiveQuery(q queryir.Query) (*LiveQuery, error) {
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("live query %v: cache destroyed", q)
	}

	sub, err := c.source.LiveQuery(q)
	if err != nil {
		return nil, err
	}
	lq := newLiveQuery(c, q, sub)

	c.mu.Lock()
	c.liveQueries[lq] = struct{}{}
	c.mu.Unlock()
	metrics.LiveQueriesActive.Inc()
	return lq, nil
}

// Unload evicts the Model for id. The evicted Model is disconnected: every
// later access fails with StaleModelError and no further change reaches it.
// A later Lookup of the same identity creates a new Model.
func (c *Cache) Unload(id ir.RecordIdentity) {
	c.mu.Lock()
	m, ok := c.models[id]
	if ok {
		delete(c.models, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	metrics.CacheModels.Dec()
	m.disconnect()
	c.logger.Debug("model unloaded", "record", id.String())
}

// Destroy unsubscribes from the source, disposes every LiveQuery and
// disconnects every Model. It is safe to call more than once.
func (c *Cache) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	models := c.models
	lqs := c.liveQueries
	c.models = make(map[ir.RecordIdentity]*Model)
	c.liveQueries = make(map[*LiveQuery]struct{})
	c.mu.Unlock()

	c.unsubscribe()
	for lq := range lqs {
		lq.Dispose()
	}
	for _, m := range models {
		m.disconnect()
	}
	metrics.CacheModels.Sub(float64(len(models)))
}

// handleChange fans a source change out to Models. It only bumps
// invalidation counters; nothing is recomputed here. LiveQueries are driven
// by their source subscriptions, not by this listener.
//
// An added or removed record can change what a link resolves to on records
// the change does not name: a referrer whose relationship has no inverse
// keeps pointing at the identity. Every relationship field whose related
// model is an added or removed type is therefore invalidated on all Models
// of the declaring type.
func (c *Cache) handleChange(ch ir.Change) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	type target struct {
		model  *Model
		fields []string
	}
	targets := make([]target, 0, len(ch.Entries))
	for _, e := range ch.Entries {
		if m, ok := c.models[e.Identity]; ok {
			targets = append(targets, target{model: m, fields: e.Fields})
		}
	}
	inbound := make(map[string][]string)
	for _, typ := range linkedTypes(ch) {
		for _, f := range c.registry.Inbound(typ) {
			if !slices.Contains(inbound[f.Owner], f.Name) {
				inbound[f.Owner] = append(inbound[f.Owner], f.Name)
			}
		}
	}
	referrers := 0
	if len(inbound) > 0 {
		for id, m := range c.models {
			if fields, ok := inbound[id.Type]; ok {
				targets = append(targets, target{model: m, fields: fields})
				referrers++
			}
		}
	}
	c.mu.Unlock()

	for _, t := range targets {
		if t.fields == nil {
			t.model.notifyAll()
			metrics.CacheInvalidationsTotal.WithLabelValues(metrics.InvalidateModel).Inc()
			continue
		}
		for _, name := range t.fields {
			f, ok := t.model.def.Field(name)
			if !ok {
				continue
			}
			f.Notifier(t.model)
			metrics.CacheInvalidationsTotal.WithLabelValues(metrics.InvalidateField).Inc()
		}
	}

	c.logger.Debug("change fanned out",
		"transform", ch.TransformID,
		"seq", ch.Seq,
		"entries", len(ch.Entries),
		"models", len(targets)-referrers,
		"referrers", referrers,
	)
}

// linkedTypes returns the types of records ch added or removed.
func linkedTypes(ch ir.Change) []string {
	var types []string
	for _, e := range ch.Entries {
		if e.Kind == ir.ChangeUpdated || slices.Contains(types, e.Identity.Type) {
			continue
		}
		types = append(types, e.Identity.Type)
	}
	return types
}

// forgetLiveQuery drops a disposed LiveQuery from the fan-out set.
func (c *Cache) forgetLiveQuery(lq *LiveQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.liveQueries, lq)
}

// keyCache returns the Property Cache for key field name on m.
func (c *Cache) keyCache(m *Model, name string) (*PropertyCache[string], error) {
	if _, err := m.def.field(name, ir.FieldKey); err != nil {
		return nil, err
	}
	return property(m, name, func() (string, error) {
		rec, err := m.record(name)
		if err != nil {
			return "", err
		}
		v, _ := rec.Key(name)
		return v, nil
	}), nil
}

// attributeCache returns the Property Cache for attribute name on m.
func (c *Cache) attributeCache(m *Model, name string) (*PropertyCache[ir.IRValue], error) {
	if _, err := m.def.field(name, ir.FieldAttribute); err != nil {
		return nil, err
	}
	return property(m, name, func() (ir.IRValue, error) {
		rec, err := m.record(name)
		if err != nil {
			return nil, err
		}
		v, _ := rec.Attribute(name)
		return v, nil
	}), nil
}

// hasOneCache returns the Property Cache for to-one relationship name on m.
func (c *Cache) hasOneCache(m *Model, name string) (*PropertyCache[*Model], error) {
	if _, err := m.def.field(name, ir.FieldHasOne); err != nil {
		return nil, err
	}
	return property(m, name, func() (*Model, error) {
		related, ok := c.source.GetRelatedRecordSync(m.identity, name)
		if !ok {
			return nil, newStaleError(m.identity, name, ReasonAbsent)
		}
		return c.Lookup(related), nil
	}), nil
}

// hasManyCache returns the Property Cache for to-many relationship name on m.
func (c *Cache) hasManyCache(m *Model, name string) (*PropertyCache[[]*Model], error) {
	if _, err := m.def.field(name, ir.FieldHasMany); err != nil {
		return nil, err
	}
	return property(m, name, func() ([]*Model, error) {
		related, ok := c.source.GetRelatedRecordsSync(m.identity, name)
		if !ok {
			return nil, newStaleError(m.identity, name, ReasonAbsent)
		}
		return c.LookupAll(related), nil
	}), nil
}
