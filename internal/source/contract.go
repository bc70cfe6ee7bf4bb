// Package source defines the contract between the reactive cache and an
// external record source, plus the two handles that cross it: the Request
// future returned by the transform pipeline and the live-query Subscription.
//
// The cache never applies transforms, validates operations, normalizes input
// or evaluates queries itself. All of that is delegated through RecordSource.
package source

import (
	"context"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// RecordSource is the authoritative store of records the cache reflects.
//
// Synchronous getters read the source's current snapshot and never block on
// the request pipeline. They return (value, false) for undefined: an unknown
// record, type or owner. GetRelatedRecordSync returns (nil, true) for an
// empty to-one link.
//
// Submit and Execute go through the source's request pipeline. A Change is
// delivered to every Subscribe listener before the Request that caused it
// settles, so a synchronous read after Wait observes the write.
type RecordSource interface {
	Schema() *ir.Schema

	// NewID returns a fresh id for a record of the given model.
	NewID(model string) string

	GetRecordSync(id ir.RecordIdentity) (*ir.Record, bool)
	GetRecordsSync(typ string) ([]*ir.Record, bool)
	GetRelatedRecordSync(id ir.RecordIdentity, relationship string) (*ir.Record, bool)
	GetRelatedRecordsSync(id ir.RecordIdentity, relationship string) ([]*ir.Record, bool)

	// Query evaluates q synchronously against the current snapshot.
	Query(q queryir.Query) (queryir.Result, error)

	// Execute evaluates q through the request pipeline, after every
	// previously submitted transform.
	Execute(ctx context.Context, q queryir.Query) (queryir.Result, error)

	// LiveQuery subscribes to changes that may affect q's result.
	LiveQuery(q queryir.Query) (*Subscription, error)

	// Subscribe registers a listener for every applied transform. The
	// returned function removes it and is safe to call more than once.
	Subscribe(fn func(ir.Change)) (unsubscribe func())

	// Submit validates ops and queues them as one transform. Validation
	// failures are returned directly; application failures settle the
	// returned Request with an error.
	Submit(ctx context.Context, ops ...ir.Operation) (*Request, error)
}
