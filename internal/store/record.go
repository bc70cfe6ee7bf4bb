package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// RecordAccessor addresses one record by identity.
type RecordAccessor struct {
	store    *Store
	identity ir.RecordIdentity
}

// Identity returns the addressed identity.
func (a *RecordAccessor) Identity() ir.RecordIdentity { return a.identity }

func (a *RecordAccessor) query() queryir.FindRecord {
	return queryir.FindRecord{Record: a.identity}
}

// Raw returns the source's current record, or (nil, false) if absent.
func (a *RecordAccessor) Raw() (*ir.Record, bool) {
	return a.store.source.GetRecordSync(a.identity)
}

// Peek returns the record's Model, or (nil, false) if the record is absent.
func (a *RecordAccessor) Peek() (*cache.Model, bool) {
	return a.store.cache.Peek(a.identity)
}

// Query evaluates the record through the source's request pipeline, after
// every transform submitted before it.
func (a *RecordAccessor) Query(ctx context.Context) (*cache.Model, bool, error) {
	res, err := a.store.source.Execute(ctx, a.query())
	if err != nil {
		return nil, false, err
	}
	out := a.store.cache.Materialize(res)
	return out.Model, out.Found, nil
}

// Live returns a LiveQuery over the record.
func (a *RecordAccessor) Live() (*cache.LiveQuery, error) {
	return a.store.cache.LiveQuery(a.query())
}

// Add creates the record from p.
func (a *RecordAccessor) Add(ctx context.Context, p Properties) (*cache.Model, error) {
	r, err := p.record(a.identity)
	if err != nil {
		return nil, err
	}
	if err := a.store.submit(ctx, ir.AddRecord{Record: r}); err != nil {
		return nil, err
	}
	return a.store.peek(a.identity)
}

// Update merges p into the record.
//
// When p carries attributes only, Update issues one ReplaceAttribute per
// attribute whose value differs from the current record, and no transform
// when none does. Otherwise it issues a single UpdateRecord.
func (a *RecordAccessor) Update(ctx context.Context, p Properties) (*cache.Model, error) {
	ops, err := a.updateOps(p)
	if err != nil {
		return nil, err
	}
	if err := a.store.submit(ctx, ops...); err != nil {
		return nil, err
	}
	return a.store.peek(a.identity)
}

func (a *RecordAccessor) updateOps(p Properties) ([]ir.Operation, error) {
	if p.ID != "" && p.ID != a.identity.ID {
		return nil, fmt.Errorf("properties id %q does not match %s", p.ID, a.identity)
	}
	if p.empty() {
		return nil, nil
	}
	if !p.attributesOnly() {
		r, err := p.record(a.identity)
		if err != nil {
			return nil, err
		}
		return []ir.Operation{ir.UpdateRecord{Record: r}}, nil
	}

	current, _ := a.Raw()
	var ops []ir.Operation
	for _, name := range slices.Sorted(maps.Keys(p.Attributes)) {
		v := p.Attributes[name]
		if v == nil {
			v = ir.IRNull{}
		}
		if current != nil {
			if old, ok := current.Attribute(name); ok && ir.Equal(old, v) {
				continue
			}
		}
		ops = append(ops, ir.ReplaceAttribute{Record: a.identity, Attribute: name, Value: v})
	}
	return ops, nil
}

// Remove deletes the record. Its Model stays in the identity map and reads
// fail stale until the identity is added again.
func (a *RecordAccessor) Remove(ctx context.Context) error {
	return a.store.submit(ctx, ir.RemoveRecord{Record: a.identity})
}

// RecordsAccessor addresses every record of one type.
type RecordsAccessor struct {
	store *Store
	typ   string
}

// Type returns the addressed record type.
func (a *RecordsAccessor) Type() string { return a.typ }

func (a *RecordsAccessor) query(opts []QueryOption) queryir.FindRecords {
	return FindRecords(a.typ, opts...)
}

// Raw returns the source's current records of the type, in source order,
// or (nil, false) for an undeclared type.
func (a *RecordsAccessor) Raw() ([]*ir.Record, bool) {
	return a.store.source.GetRecordsSync(a.typ)
}

// Peek returns Models for every record of the type, in source order.
func (a *RecordsAccessor) Peek() ([]*cache.Model, bool) {
	return a.store.cache.PeekRecords(a.typ)
}

// Query evaluates the filtered, sorted record set through the source's
// request pipeline.
func (a *RecordsAccessor) Query(ctx context.Context, opts ...QueryOption) ([]*cache.Model, bool, error) {
	res, err := a.store.source.Execute(ctx, a.query(opts))
	if err != nil {
		return nil, false, err
	}
	out := a.store.cache.Materialize(res)
	return out.Models, out.Found, nil
}

// Live returns a LiveQuery over the filtered, sorted record set.
func (a *RecordsAccessor) Live(opts ...QueryOption) (*cache.LiveQuery, error) {
	return a.store.cache.LiveQuery(a.query(opts))
}

// Add creates a record of the type. A missing p.ID is generated by the
// source.
func (a *RecordsAccessor) Add(ctx context.Context, p Properties) (*cache.Model, error) {
	r, err := a.store.newRecord(a.typ, p)
	if err != nil {
		return nil, err
	}
	if err := a.store.submit(ctx, ir.AddRecord{Record: r}); err != nil {
		return nil, err
	}
	return a.store.peek(r.Identity())
}

// Update merges p into the record named by p.ID. See RecordAccessor.Update.
func (a *RecordsAccessor) Update(ctx context.Context, p Properties) (*cache.Model, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("update %s: properties id is required", a.typ)
	}
	return a.store.Record(ir.Identity(a.typ, p.ID)).Update(ctx, p)
}

// Remove deletes the record with the given id.
func (a *RecordsAccessor) Remove(ctx context.Context, id string) error {
	return a.store.Record(ir.Identity(a.typ, id)).Remove(ctx)
}
