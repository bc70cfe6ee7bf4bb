package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/source"
)

// Store binds a record source to a Cache and builds accessors over it.
//
// Thread-safety: a Store is safe for concurrent use. Ordering between
// mutations is the source's: transforms are applied in submission order.
type Store struct {
	source source.RecordSource
	cache  *cache.Cache
	logger *slog.Logger
}

type options struct {
	logger       *slog.Logger
	cacheOptions []cache.Option
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger shared by the Store and its Cache. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCacheOptions passes extra options to the Cache the Store creates.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) {
		o.cacheOptions = append(o.cacheOptions, opts...)
	}
}

// New creates a Store over src. The caller owns src's lifecycle (for the
// in-memory source: Run or Start) and must call Destroy when done.
func New(src source.RecordSource, opts ...Option) *Store {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cacheOpts := append([]cache.Option{cache.WithLogger(o.logger)}, o.cacheOptions...)
	return &Store{
		source: src,
		cache:  cache.New(src, cacheOpts...),
		logger: o.logger,
	}
}

// Source returns the underlying record source.
func (s *Store) Source() source.RecordSource { return s.source }

// Cache returns the Store's identity map.
func (s *Store) Cache() *cache.Cache { return s.cache }

// Schema returns the source's schema.
func (s *Store) Schema() *ir.Schema { return s.source.Schema() }

// Record returns the accessor for one record.
func (s *Store) Record(id ir.RecordIdentity) *RecordAccessor {
	return &RecordAccessor{store: s, identity: id}
}

// Records returns the accessor for every record of typ.
func (s *Store) Records(typ string) *RecordsAccessor {
	return &RecordsAccessor{store: s, typ: typ}
}

// RelatedRecord returns the accessor for a to-one relationship of owner.
func (s *Store) RelatedRecord(owner ir.RecordIdentity, relationship string) *RelatedRecordAccessor {
	return &RelatedRecordAccessor{store: s, owner: owner, relationship: relationship}
}

// RelatedRecords returns the accessor for a to-many relationship of owner.
func (s *Store) RelatedRecords(owner ir.RecordIdentity, relationship string) *RelatedRecordsAccessor {
	return &RelatedRecordsAccessor{store: s, owner: owner, relationship: relationship}
}

// Update submits ops as one transform and waits for the source to apply it.
// Use it for multi-record changes the accessors do not cover.
func (s *Store) Update(ctx context.Context, ops ...ir.Operation) error {
	return s.submit(ctx, ops...)
}

// Destroy tears down the Cache: it unsubscribes from the source, disposes
// every LiveQuery and disconnects every Model. The source is left running.
func (s *Store) Destroy() {
	s.cache.Destroy()
}

// submit sends ops as one transform and blocks until it settles. A change
// is broadcast before the request settles, so reads after submit returns
// observe the write.
func (s *Store) submit(ctx context.Context, ops ...ir.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	req, err := s.source.Submit(ctx, ops...)
	if err != nil {
		return err
	}
	if err := req.Wait(ctx); err != nil {
		return err
	}
	s.logger.Debug("transform settled",
		"transform", req.Transform().ID,
		"seq", req.Transform().Seq,
		"ops", len(ops),
	)
	return nil
}

// peek materializes the current record for id, failing when the source no
// longer holds it right after a successful write.
func (s *Store) peek(id ir.RecordIdentity) (*cache.Model, error) {
	m, ok := s.cache.Peek(id)
	if !ok {
		return nil, fmt.Errorf("peek %s: record not found after write", id)
	}
	return m, nil
}

// relationship looks up a declared relationship of owner's type.
func (s *Store) relationship(owner ir.RecordIdentity, name string, want ir.FieldKind) (ir.RelationshipDef, error) {
	m, ok := s.source.Schema().Model(owner.Type)
	if !ok {
		return ir.RelationshipDef{}, fmt.Errorf("unknown model %q", owner.Type)
	}
	rel, ok := m.Relationship(name)
	if !ok {
		return ir.RelationshipDef{}, fmt.Errorf("model %q has no relationship %q", owner.Type, name)
	}
	if rel.Kind != want {
		return ir.RelationshipDef{}, fmt.Errorf("%s.%s is %s, want %s", owner.Type, name, rel.Kind, want)
	}
	return rel, nil
}

// newRecord builds a record of typ from p, generating an id when p has none.
func (s *Store) newRecord(typ string, p Properties) (*ir.Record, error) {
	id := p.ID
	if id == "" {
		id = s.source.NewID(typ)
	}
	return p.record(ir.Identity(typ, id))
}
