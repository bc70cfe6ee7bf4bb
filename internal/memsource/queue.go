package memsource

import (
	"sync"

	"github.com/roach88/tether/internal/queryir"
	"github.com/roach88/tether/internal/source"
)

// request is one unit of work for the Run loop: either a transform to apply
// or a query to evaluate after every transform queued before it.
type request struct {
	transform *source.Request
	query     queryir.Query
	reply     chan queryReply
}

type queryReply struct {
	result queryir.Result
	err    error
}

// requestQueue is a thread-safe FIFO of pending requests.
//
// Submit and Execute enqueue from any goroutine while the Run loop dequeues.
// The queue is unbounded: Submit never blocks on a slow writer.
//
// The signal channel (buffered, size 1) coalesces wakeups so the Run loop
// can select on it together with ctx.Done().
type requestQueue struct {
	mu       sync.Mutex
	requests []request
	closed   bool
	signal   chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}
	r := q.requests[0]
	// Release the slot so settled requests can be collected.
	q.requests[0] = request{}
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Wait returns a channel that signals when requests may be available.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Closed reports whether Close has been called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and returns whatever was still pending.
func (q *requestQueue) Close() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	pending := q.requests
	q.requests = nil
	close(q.signal)
	return pending
}
