package cache

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/tether/internal/metrics"
)

// PropertyCache memoizes one derived value.
//
// The cell holds a compute function, an invalidation counter, the cached
// value and the counter value it was computed at. Value recomputes iff the
// two counters differ; NotifyPropertyChange only bumps the counter and never
// calls compute, so invalidation is O(1) and a burst of changes costs one
// recompute on the next read. A fresh cell starts with its stamp behind the
// counter, which is all "uninitialized" means.
//
// Thread-safety: Value and Set are serialized by a mutex; NotifyPropertyChange
// is a lock-free atomic increment and may be called from any goroutine.
type PropertyCache[T any] struct {
	compute    func() (T, error)
	invalidate atomic.Int64

	mu       sync.Mutex
	cachedAt int64
	value    T
}

// NewPropertyCache creates a cell around compute.
func NewPropertyCache[T any](compute func() (T, error)) *PropertyCache[T] {
	pc := &PropertyCache[T]{compute: compute}
	pc.invalidate.Store(1)
	return pc
}

// Value returns the cached value, recomputing it first if the cell was
// invalidated since the last computation. A compute error is returned
// without caching anything.
func (pc *PropertyCache[T]) Value() (T, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	// Read the stamp before computing: an invalidation racing with compute
	// leaves the cell stale rather than marking an outdated value fresh.
	stamp := pc.invalidate.Load()
	if pc.cachedAt == stamp {
		return pc.value, nil
	}

	v, err := pc.compute()
	metrics.CacheRecomputesTotal.Inc()
	if err != nil {
		var zero T
		return zero, err
	}
	pc.value = v
	pc.cachedAt = stamp
	return v, nil
}

// Set seeds the cell with v and marks it fresh.
func (pc *PropertyCache[T]) Set(v T) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.value = v
	pc.cachedAt = pc.invalidate.Load()
}

// Stamp returns the invalidation counter, for use with SetAt.
func (pc *PropertyCache[T]) Stamp() int64 {
	return pc.invalidate.Load()
}

// SetAt seeds the cell with v only if it has not been invalidated since
// stamp was taken. It reports whether the cell was seeded.
func (pc *PropertyCache[T]) SetAt(v T, stamp int64) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.invalidate.Load() != stamp {
		return false
	}
	pc.value = v
	pc.cachedAt = stamp
	return true
}

// NotifyPropertyChange marks the cell stale.
func (pc *PropertyCache[T]) NotifyPropertyChange() {
	pc.invalidate.Add(1)
}

// Stale reports whether the next Value call will recompute.
func (pc *PropertyCache[T]) Stale() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.cachedAt != pc.invalidate.Load()
}

// invalidator is the type-erased view the cache uses to fan out changes.
type invalidator interface {
	NotifyPropertyChange()
}
