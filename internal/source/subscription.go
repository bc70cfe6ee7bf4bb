package source

import (
	"slices"
	"sync"

	"github.com/roach88/tether/internal/queryir"
)

// Subscription is the handle for a live query registered with a source.
// The source calls Notify whenever a change may affect the query's result;
// consumers register callbacks with OnChange.
//
// Unsubscribe is idempotent. After it returns no callback runs again.
type Subscription struct {
	query   queryir.Query
	types   []string
	release func()

	mu        sync.Mutex
	closed    bool
	listeners []func()
}

// NewSubscription creates a subscription for q that watches the given record
// types. release is invoked once, on the first Unsubscribe.
func NewSubscription(q queryir.Query, types []string, release func()) *Subscription {
	return &Subscription{query: q, types: slices.Clone(types), release: release}
}

// Query returns the subscribed query.
func (s *Subscription) Query() queryir.Query {
	return s.query
}

// Types returns the record types the subscription watches.
func (s *Subscription) Types() []string {
	return slices.Clone(s.types)
}

// Watches reports whether changes to typ concern this subscription.
func (s *Subscription) Watches(typ string) bool {
	return slices.Contains(s.types, typ)
}

// OnChange registers fn to run on every Notify.
func (s *Subscription) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.listeners = append(s.listeners, fn)
	}
}

// Notify runs every registered callback. It does nothing once closed.
func (s *Subscription) Notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Closed reports whether Unsubscribe has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Unsubscribe detaches the subscription from its source.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = nil
	release := s.release
	s.mu.Unlock()

	if release != nil {
		release()
	}
}
