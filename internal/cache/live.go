package cache

import (
	"slices"
	"sync/atomic"

	"github.com/roach88/tether/internal/metrics"
	"github.com/roach88/tether/internal/queryir"
	"github.com/roach88/tether/internal/source"
)

// LiveQueryState is the lifecycle state of a LiveQuery.
type LiveQueryState int

const (
	// LiveQuerySubscribed means the cached result is current.
	LiveQuerySubscribed LiveQueryState = iota
	// LiveQueryStale means a change arrived and the next read recomputes.
	LiveQueryStale
	// LiveQueryDisposed is terminal: reads fail and no change reaches it.
	LiveQueryDisposed
)

// String returns the state name.
func (s LiveQueryState) String() string {
	switch s {
	case LiveQuerySubscribed:
		return "subscribed"
	case LiveQueryStale:
		return "stale"
	default:
		return "disposed"
	}
}

// LiveQuery is a self-invalidating, lazily evaluated query result.
//
// The result lives in a PropertyCache whose compute function re-runs the
// query synchronously against the source. Changes only mark it stale;
// the query runs again on the next Value call. Dispose releases the source
// subscription and is idempotent.
type LiveQuery struct {
	cache    *Cache
	query    queryir.Query
	sub      *source.Subscription
	result   *PropertyCache[Result]
	pending  atomic.Bool
	disposed atomic.Bool
}

func newLiveQuery(c *Cache, q queryir.Query, sub *source.Subscription) *LiveQuery {
	lq := &LiveQuery{cache: c, query: q, sub: sub}
	lq.result = NewPropertyCache(func() (Result, error) {
		return c.Query(q)
	})
	sub.OnChange(lq.invalidate)
	return lq
}

// Query returns the underlying query expression.
func (lq *LiveQuery) Query() queryir.Query {
	return lq.query
}

// State reports the current lifecycle state. A new LiveQuery is subscribed
// even though nothing has been evaluated yet.
func (lq *LiveQuery) State() LiveQueryState {
	if lq.disposed.Load() {
		return LiveQueryDisposed
	}
	if lq.pending.Load() {
		return LiveQueryStale
	}
	return LiveQuerySubscribed
}

// Value returns the current result, recomputing it if a change arrived
// since the last read.
func (lq *LiveQuery) Value() (Result, error) {
	if lq.disposed.Load() {
		return Result{}, ErrLiveQueryDisposed
	}
	// Clear before computing so a change racing with the read stays pending.
	lq.pending.Store(false)
	res, err := lq.result.Value()
	if err != nil {
		lq.pending.Store(true)
	}
	return res, err
}

// Model returns the Model of a singular query, nil for an empty or
// undefined result.
func (lq *LiveQuery) Model() (*Model, error) {
	res, err := lq.Value()
	if err != nil {
		return nil, err
	}
	return res.Model, nil
}

// Models returns the Models of a plural query in result order.
func (lq *LiveQuery) Models() ([]*Model, error) {
	res, err := lq.Value()
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.Models), nil
}

// Dispose tears the LiveQuery down. Later reads fail with
// ErrLiveQueryDisposed.
func (lq *LiveQuery) Dispose() {
	if !lq.disposed.CompareAndSwap(false, true) {
		return
	}
	lq.sub.Unsubscribe()
	lq.cache.forgetLiveQuery(lq)
	metrics.LiveQueriesActive.Dec()
}

func (lq *LiveQuery) invalidate() {
	if lq.disposed.Load() {
		return
	}
	lq.pending.Store(true)
	lq.result.NotifyPropertyChange()
	metrics.CacheInvalidationsTotal.WithLabelValues(metrics.InvalidateLiveQuery).Inc()
}
