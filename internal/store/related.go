package store

import (
	"context"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// RelatedRecordAccessor addresses the target of a to-one relationship.
type RelatedRecordAccessor struct {
	store        *Store
	owner        ir.RecordIdentity
	relationship string
}

func (a *RelatedRecordAccessor) query() queryir.FindRelatedRecord {
	return queryir.FindRelatedRecord{Record: a.owner, Relationship: a.relationship}
}

// Raw returns the related record. It returns (nil, true) for an empty link
// and (nil, false) when the owner is absent.
func (a *RelatedRecordAccessor) Raw() (*ir.Record, bool) {
	return a.store.source.GetRelatedRecordSync(a.owner, a.relationship)
}

// Peek returns the related Model with the same absence rules as Raw.
func (a *RelatedRecordAccessor) Peek() (*cache.Model, bool) {
	r, ok := a.Raw()
	if !ok {
		return nil, false
	}
	return a.store.cache.Lookup(r), true
}

// Query follows the link through the source's request pipeline.
func (a *RelatedRecordAccessor) Query(ctx context.Context) (*cache.Model, bool, error) {
	res, err := a.store.source.Execute(ctx, a.query())
	if err != nil {
		return nil, false, err
	}
	out := a.store.cache.Materialize(res)
	return out.Model, out.Found, nil
}

// Live returns a LiveQuery over the link.
func (a *RelatedRecordAccessor) Live() (*cache.LiveQuery, error) {
	return a.store.cache.LiveQuery(a.query())
}

// Replace points the link at related. A nil related clears it. The returned
// Model is nil for a cleared link.
func (a *RelatedRecordAccessor) Replace(ctx context.Context, related *ir.RecordIdentity) (*cache.Model, error) {
	op := ir.ReplaceRelatedRecord{Record: a.owner, Relationship: a.relationship}
	if related != nil {
		id := *related
		op.Related = &id
	}
	if err := a.store.submit(ctx, op); err != nil {
		return nil, err
	}
	m, _ := a.Peek()
	return m, nil
}

// Add creates a new record from p and links it, in one transform.
func (a *RelatedRecordAccessor) Add(ctx context.Context, p Properties) (*cache.Model, error) {
	rel, err := a.store.relationship(a.owner, a.relationship, ir.FieldHasOne)
	if err != nil {
		return nil, err
	}
	r, err := a.store.newRecord(rel.Model, p)
	if err != nil {
		return nil, err
	}
	id := r.Identity()
	err = a.store.submit(ctx,
		ir.AddRecord{Record: r},
		ir.ReplaceRelatedRecord{Record: a.owner, Relationship: a.relationship, Related: &id},
	)
	if err != nil {
		return nil, err
	}
	return a.store.peek(id)
}

// Remove clears the link. The formerly related record is kept.
func (a *RelatedRecordAccessor) Remove(ctx context.Context) error {
	return a.store.submit(ctx, ir.ReplaceRelatedRecord{Record: a.owner, Relationship: a.relationship})
}

// RelatedRecordsAccessor addresses the members of a to-many relationship.
type RelatedRecordsAccessor struct {
	store        *Store
	owner        ir.RecordIdentity
	relationship string
}

func (a *RelatedRecordsAccessor) query(opts []QueryOption) queryir.FindRelatedRecords {
	o := applyQueryOptions(opts)
	return queryir.FindRelatedRecords{
		Record:       a.owner,
		Relationship: a.relationship,
		Filter:       o.filter(),
		Sort:         o.sort,
	}
}

// Raw returns the members in relationship order, or (nil, false) when the
// owner is absent.
func (a *RelatedRecordsAccessor) Raw() ([]*ir.Record, bool) {
	return a.store.source.GetRelatedRecordsSync(a.owner, a.relationship)
}

// Peek returns the members' Models in relationship order.
func (a *RelatedRecordsAccessor) Peek() ([]*cache.Model, bool) {
	rs, ok := a.Raw()
	if !ok {
		return nil, false
	}
	return a.store.cache.LookupAll(rs), true
}

// Query evaluates the filtered, sorted members through the source's request
// pipeline.
func (a *RelatedRecordsAccessor) Query(ctx context.Context, opts ...QueryOption) ([]*cache.Model, bool, error) {
	res, err := a.store.source.Execute(ctx, a.query(opts))
	if err != nil {
		return nil, false, err
	}
	out := a.store.cache.Materialize(res)
	return out.Models, out.Found, nil
}

// Live returns a LiveQuery over the filtered, sorted members.
func (a *RelatedRecordsAccessor) Live(opts ...QueryOption) (*cache.LiveQuery, error) {
	return a.store.cache.LiveQuery(a.query(opts))
}

// Add appends an existing record to the relationship and returns its Model.
func (a *RelatedRecordsAccessor) Add(ctx context.Context, related ir.RecordIdentity) (*cache.Model, error) {
	err := a.store.submit(ctx, ir.AddToRelatedRecords{
		Record:       a.owner,
		Relationship: a.relationship,
		Related:      related,
	})
	if err != nil {
		return nil, err
	}
	return a.store.peek(related)
}

// Create adds a new record from p and appends it, in one transform.
func (a *RelatedRecordsAccessor) Create(ctx context.Context, p Properties) (*cache.Model, error) {
	rel, err := a.store.relationship(a.owner, a.relationship, ir.FieldHasMany)
	if err != nil {
		return nil, err
	}
	r, err := a.store.newRecord(rel.Model, p)
	if err != nil {
		return nil, err
	}
	err = a.store.submit(ctx,
		ir.AddRecord{Record: r},
		ir.AddToRelatedRecords{Record: a.owner, Relationship: a.relationship, Related: r.Identity()},
	)
	if err != nil {
		return nil, err
	}
	return a.store.peek(r.Identity())
}

// Remove drops related from the relationship. The record itself is kept.
func (a *RelatedRecordsAccessor) Remove(ctx context.Context, related ir.RecordIdentity) error {
	return a.store.submit(ctx, ir.RemoveFromRelatedRecords{
		Record:       a.owner,
		Relationship: a.relationship,
		Related:      related,
	})
}

// Replace sets the members to related, in order, and returns their Models.
func (a *RelatedRecordsAccessor) Replace(ctx context.Context, related ...ir.RecordIdentity) ([]*cache.Model, error) {
	err := a.store.submit(ctx, ir.ReplaceRelatedRecords{
		Record:       a.owner,
		Relationship: a.relationship,
		Related:      related,
	})
	if err != nil {
		return nil, err
	}
	models, _ := a.Peek()
	return models, nil
}
