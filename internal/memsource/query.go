package memsource

import (
	"fmt"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// evaluate runs a validated query against one snapshot.
func (s *snapshot) evaluate(q queryir.Query) (queryir.Result, error) {
	switch query := q.(type) {
	case queryir.FindRecord:
		r, ok := s.get(query.Record)
		if !ok {
			return queryir.Undefined(false), nil
		}
		return queryir.One(r), nil

	case queryir.FindRecords:
		return queryir.List(queryir.Apply(s.list(query.Type), query.Filter, query.Sort)), nil

	case queryir.FindRelatedRecord:
		related, ok := s.relatedOne(query.Record, query.Relationship)
		if !ok {
			return queryir.Undefined(false), nil
		}
		return queryir.One(related), nil

	case queryir.FindRelatedRecords:
		related, ok := s.relatedMany(query.Record, query.Relationship)
		if !ok {
			return queryir.Undefined(true), nil
		}
		return queryir.List(queryir.Apply(related, query.Filter, query.Sort)), nil
	}
	return queryir.Result{}, fmt.Errorf("unsupported query %T", q)
}

// relatedOne follows a to-one link. An empty or dangling link yields
// (nil, true); an absent owner yields (nil, false).
func (s *snapshot) relatedOne(owner ir.RecordIdentity, rel string) (*ir.Record, bool) {
	rec, ok := s.get(owner)
	if !ok {
		return nil, false
	}
	data, _ := rec.Relationship(rel)
	if data.One == nil {
		return nil, true
	}
	related, _ := s.get(*data.One)
	return related, true
}

// relatedMany follows a to-many link in member order, skipping dangling
// members.
func (s *snapshot) relatedMany(owner ir.RecordIdentity, rel string) ([]*ir.Record, bool) {
	rec, ok := s.get(owner)
	if !ok {
		return nil, false
	}
	data, _ := rec.Relationship(rel)
	return s.resolve(data.Members), true
}
