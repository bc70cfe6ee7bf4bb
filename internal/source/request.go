package source

import (
	"context"
	"sync"

	"github.com/roach88/tether/internal/ir"
)

// Request is a future for a transform submitted to a record source.
//
// A Request settles exactly once. Callbacks registered with OnSettle run
// after settlement, in registration order, on the goroutine that settled
// the request (or immediately, on the caller's goroutine, if it already had).
//
// Thread-safety: all methods are safe for concurrent use.
type Request struct {
	transform ir.Transform
	done      chan struct{}

	mu        sync.Mutex
	settled   bool
	err       error
	callbacks []func(error)
}

// NewRequest creates an unsettled request for t.
func NewRequest(t ir.Transform) *Request {
	return &Request{transform: t, done: make(chan struct{})}
}

// Settled returns a request that has already completed with err.
// Used when a mutation turns out to be a no-op.
func Settled(err error) *Request {
	r := NewRequest(ir.Transform{})
	r.Settle(err)
	return r
}

// Transform returns the transform as accepted by the source, with its
// sequence number, id and any generated record ids.
func (r *Request) Transform() ir.Transform {
	return r.transform
}

// Done is closed once the request settles.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err returns the settlement error. It is nil while the request is pending.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the request settles or ctx is done.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnSettle registers fn to run with the settlement error.
func (r *Request) OnSettle(fn func(error)) {
	r.mu.Lock()
	if !r.settled {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	err := r.err
	r.mu.Unlock()
	fn(err)
}

// Settle completes the request. Only the first call has any effect.
// Callbacks run before Done is closed, so a waiter observes their effects.
func (r *Request) Settle(err error) {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.err = err
	callbacks := r.callbacks
	r.callbacks = nil
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
	close(r.done)
}
