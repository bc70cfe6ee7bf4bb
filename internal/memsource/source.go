// Package memsource is the in-memory reference RecordSource.
//
// A Source holds an immutable snapshot of records and applies transforms in
// a single-writer Run loop. Every applied transform publishes a new
// snapshot, optionally persists it to a Journal, and broadcasts a Change to
// subscribers before the submitting Request settles.
//
// Thread-safety model:
//   - Submit, Execute and the synchronous getters: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Restore: call before Run
package memsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/metrics"
	"github.com/roach88/tether/internal/queryir"
	"github.com/roach88/tether/internal/source"
)

// Journal persists applied transforms. Implemented by journal.Journal.
type Journal interface {
	// WriteTransform records t and the resulting record states atomically.
	WriteTransform(ctx context.Context, t ir.Transform, upserts []*ir.Record, removals []ir.RecordIdentity) error

	// ReadTransforms returns every journaled transform in seq order.
	ReadTransforms(ctx context.Context) ([]ir.Transform, error)
}

// Source is the in-memory RecordSource.
type Source struct {
	schema  *ir.Schema
	logger  *slog.Logger
	ids     IDGenerator
	journal Journal
	coarse  bool
	clock   *Clock
	queue   *requestQueue

	// submitMu keeps seq assignment and enqueue order identical.
	submitMu sync.Mutex

	mu    sync.RWMutex
	state *snapshot

	subMu     sync.Mutex
	listeners []listener
	nextID    int
	live      map[*source.Subscription]struct{}
}

type listener struct {
	id int
	fn func(ir.Change)
}

var _ source.RecordSource = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the source logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// WithIDGenerator sets the generator used for records added without an id.
// Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Source) {
		s.ids = g
	}
}

// WithJournal persists every applied transform. A journal write failure
// rejects the transform.
func WithJournal(j Journal) Option {
	return func(s *Source) {
		s.journal = j
	}
}

// WithCoarseChanges drops field detail from broadcast changes, so consumers
// invalidate whole records.
func WithCoarseChanges() Option {
	return func(s *Source) {
		s.coarse = true
	}
}

// WithClock sets the logical clock, e.g. to resume numbering after a
// journal replay.
func WithClock(c *Clock) Option {
	return func(s *Source) {
		s.clock = c
	}
}

// New creates an empty Source for schema.
func New(schema *ir.Schema, opts ...Option) *Source {
	s := &Source{
		schema: schema,
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		clock:  NewClock(),
		queue:  newRequestQueue(),
		state:  emptySnapshot(),
		live:   make(map[*source.Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the source's schema.
func (s *Source) Schema() *ir.Schema { return s.schema }

// Clock returns the source's logical clock.
func (s *Source) Clock() *Clock { return s.clock }

// NewID returns a fresh record id for model.
func (s *Source) NewID(model string) string {
	return s.ids.Generate(model)
}

func (s *Source) snapshot() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// GetRecordSync returns the current record for id.
func (s *Source) GetRecordSync(id ir.RecordIdentity) (*ir.Record, bool) {
	return s.snapshot().get(id)
}

// GetRecordsSync returns every record of typ in insertion order. It returns
// false for an undeclared type.
func (s *Source) GetRecordsSync(typ string) ([]*ir.Record, bool) {
	if !s.schema.HasModel(typ) {
		return nil, false
	}
	return s.snapshot().list(typ), true
}

// GetRelatedRecordSync follows a to-one relationship.
func (s *Source) GetRelatedRecordSync(id ir.RecordIdentity, relationship string) (*ir.Record, bool) {
	return s.snapshot().relatedOne(id, relationship)
}

// GetRelatedRecordsSync follows a to-many relationship.
func (s *Source) GetRelatedRecordsSync(id ir.RecordIdentity, relationship string) ([]*ir.Record, bool) {
	return s.snapshot().relatedMany(id, relationship)
}

// Records returns every record, types sorted and each type in insertion
// order.
func (s *Source) Records() []*ir.Record {
	return s.snapshot().all()
}

// StateHash returns the content hash of the current records.
func (s *Source) StateHash() (string, error) {
	return ir.StateHash(s.Records())
}

// Query validates q and evaluates it against the current snapshot.
func (s *Source) Query(q queryir.Query) (queryir.Result, error) {
	if err := queryir.Validate(q, s.schema).Err(); err != nil {
		return queryir.Result{}, err
	}
	return s.snapshot().evaluate(q)
}

// Execute evaluates q in the Run loop, after every transform submitted
// before it.
func (s *Source) Execute(ctx context.Context, q queryir.Query) (queryir.Result, error) {
	if err := queryir.Validate(q, s.schema).Err(); err != nil {
		return queryir.Result{}, err
	}
	reply := make(chan queryReply, 1)
	if !s.queue.Enqueue(request{query: q, reply: reply}) {
		return queryir.Result{}, ErrSourceClosed
	}
	select {
	case <-ctx.Done():
		return queryir.Result{}, ctx.Err()
	case r := <-reply:
		return r.result, r.err
	}
}

// LiveQuery subscribes to changes of the record types q depends on.
func (s *Source) LiveQuery(q queryir.Query) (*source.Subscription, error) {
	if err := queryir.Validate(q, s.schema).Err(); err != nil {
		return nil, err
	}
	var sub *source.Subscription
	sub = source.NewSubscription(q, queryir.DependentTypes(q, s.schema), func() {
		s.subMu.Lock()
		delete(s.live, sub)
		s.subMu.Unlock()
	})
	s.subMu.Lock()
	s.live[sub] = struct{}{}
	s.subMu.Unlock()
	return sub, nil
}

// Subscribe registers fn for every applied transform. Listeners run in
// registration order on the Run goroutine.
func (s *Source) Subscribe(fn func(ir.Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
	}
}

// Submit validates ops and queues them as one transform. Validation errors
// are returned directly and consume no seq.
func (s *Source) Submit(ctx context.Context, ops ...ir.Operation) (*source.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prepared, err := s.prepare(ops)
	if err != nil {
		metrics.SourceTransformsTotal.WithLabelValues(metrics.StatusInvalid).Inc()
		return nil, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	t, err := ir.NewTransform(s.clock.Next(), prepared...)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	req := source.NewRequest(t)
	if !s.queue.Enqueue(request{transform: req}) {
		return nil, ErrSourceClosed
	}
	metrics.SourceQueueDepth.Set(float64(s.queue.Len()))

	s.logger.Debug("transform submitted",
		"transform", t.ID,
		"seq", t.Seq,
		"operations", len(t.Operations),
	)
	return req, nil
}

// Run starts the single-writer loop. It blocks until ctx is cancelled or
// Stop is called. Requests still queued on exit settle with
// ErrSourceClosed.
func (s *Source) Run(ctx context.Context) error {
	s.logger.Info("record source starting", "records", s.snapshot().count())

	for {
		if req, ok := s.queue.TryDequeue(); ok {
			s.process(ctx, req)
			metrics.SourceQueueDepth.Set(float64(s.queue.Len()))
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("record source stopping: context cancelled")
			s.drain(s.queue.Close())
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel closes with the queue.
			if s.queue.Len() == 0 && s.queue.Closed() {
				s.logger.Info("record source stopping: queue closed")
				return nil
			}
		}
	}
}

// Start runs the loop in a new goroutine. The returned function stops it
// and waits for Run to return.
func (s *Source) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Stop closes the request queue. Pending requests settle with
// ErrSourceClosed and Run returns.
func (s *Source) Stop() {
	s.drain(s.queue.Close())
}

func (s *Source) drain(pending []request) {
	for _, req := range pending {
		if req.transform != nil {
			req.transform.Settle(ErrSourceClosed)
			continue
		}
		req.reply <- queryReply{err: ErrSourceClosed}
	}
}

// process handles one request.
// Called only from the Run goroutine.
func (s *Source) process(ctx context.Context, req request) {
	if req.transform == nil {
		res, err := s.snapshot().evaluate(req.query)
		req.reply <- queryReply{result: res, err: err}
		return
	}
	s.applyTransform(ctx, req.transform)
}

// applyTransform applies every operation of the request's transform or
// none of them, then publishes, broadcasts and settles.
// Called only from the Run goroutine.
func (s *Source) applyTransform(ctx context.Context, req *source.Request) {
	t := req.Transform()
	tx := newTxn(s.schema, s.snapshot())

	for _, op := range t.Operations {
		if err := tx.apply(op); err != nil {
			s.reject(req, err)
			return
		}
	}

	if s.journal != nil {
		if err := s.journal.WriteTransform(ctx, t, tx.upserts(), tx.removals()); err != nil {
			s.reject(req, &TransformRejectedError{
				Code:    RejectJournalFailed,
				Message: "journal write failed",
				Cause:   err,
			})
			return
		}
	}

	next := tx.commit()
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	change := ir.Change{TransformID: t.ID, Seq: t.Seq, Entries: tx.changes.Entries(s.coarse)}

	metrics.SourceTransformsTotal.WithLabelValues(metrics.StatusApplied).Inc()
	for _, op := range t.Operations {
		metrics.SourceOperationsTotal.WithLabelValues(op.Op()).Inc()
	}
	metrics.SourceRecords.Set(float64(next.count()))

	s.logger.Info("transform applied",
		"transform", t.ID,
		"seq", t.Seq,
		"operations", len(t.Operations),
		"records_touched", len(change.Entries),
	)

	s.broadcast(change)
	req.Settle(nil)
}

func (s *Source) reject(req *source.Request, err error) {
	t := req.Transform()
	var re *TransformRejectedError
	if errors.As(err, &re) {
		re.TransformID = t.ID
		re.Seq = t.Seq
	}
	metrics.SourceTransformsTotal.WithLabelValues(metrics.StatusRejected).Inc()
	s.logger.Warn("transform rejected",
		"transform", t.ID,
		"seq", t.Seq,
		"error", err,
	)
	req.Settle(err)
}

// broadcast delivers change to listeners, then to live subscriptions that
// watch a touched type.
func (s *Source) broadcast(change ir.Change) {
	s.subMu.Lock()
	listeners := slices.Clone(s.listeners)
	subs := make([]*source.Subscription, 0, len(s.live))
	for sub := range s.live {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, l := range listeners {
		l.fn(change)
	}
	types := change.Types()
	for _, sub := range subs {
		for _, typ := range types {
			if sub.Watches(typ) {
				sub.Notify()
				break
			}
		}
	}
}
