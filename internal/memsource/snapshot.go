package memsource

import (
	"slices"

	"github.com/roach88/tether/internal/ir"
)

// snapshot is an immutable view of every record the source holds. Records
// are kept per type in insertion order so unsorted queries are stable.
//
// Applying a transform never mutates a published snapshot: txn copies the
// per-type maps it touches and commit builds a new snapshot that shares the
// untouched ones.
type snapshot struct {
	records map[string]map[string]*ir.Record
	order   map[string][]string
}

func emptySnapshot() *snapshot {
	return &snapshot{
		records: make(map[string]map[string]*ir.Record),
		order:   make(map[string][]string),
	}
}

func (s *snapshot) get(id ir.RecordIdentity) (*ir.Record, bool) {
	r, ok := s.records[id.Type][id.ID]
	return r, ok
}

// list returns the records of typ in insertion order.
func (s *snapshot) list(typ string) []*ir.Record {
	ids := s.order[typ]
	out := make([]*ir.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[typ][id])
	}
	return out
}

// resolve maps identities to records, skipping dangling ones.
func (s *snapshot) resolve(ids []ir.RecordIdentity) []*ir.Record {
	out := make([]*ir.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.get(id); ok {
			out = append(out, r)
		}
	}
	return out
}

// all returns every record, types sorted, each type in insertion order.
func (s *snapshot) all() []*ir.Record {
	types := make([]string, 0, len(s.order))
	for t := range s.order {
		types = append(types, t)
	}
	slices.Sort(types)
	var out []*ir.Record
	for _, t := range types {
		out = append(out, s.list(t)...)
	}
	return out
}

func (s *snapshot) count() int {
	n := 0
	for _, ids := range s.order {
		n += len(ids)
	}
	return n
}

// txn is a copy-on-write working set for one transform.
type txn struct {
	schema  *ir.Schema
	base    *snapshot
	records map[string]map[string]*ir.Record
	order   map[string][]string
	copied  map[string]bool

	changes ir.ChangeSet
	dirty   []ir.RecordIdentity
	seen    map[ir.RecordIdentity]bool
}

func newTxn(schema *ir.Schema, base *snapshot) *txn {
	t := &txn{
		schema:  schema,
		base:    base,
		records: make(map[string]map[string]*ir.Record, len(base.records)),
		order:   make(map[string][]string, len(base.order)),
		copied:  make(map[string]bool),
		seen:    make(map[ir.RecordIdentity]bool),
	}
	for typ, m := range base.records {
		t.records[typ] = m
	}
	for typ, ids := range base.order {
		t.order[typ] = ids
	}
	return t
}

func (t *txn) get(id ir.RecordIdentity) (*ir.Record, bool) {
	r, ok := t.records[id.Type][id.ID]
	return r, ok
}

// own makes the per-type collections of typ private to this txn.
func (t *txn) own(typ string) {
	if t.copied[typ] {
		return
	}
	m := make(map[string]*ir.Record, len(t.records[typ])+1)
	for id, r := range t.records[typ] {
		m[id] = r
	}
	t.records[typ] = m
	t.order[typ] = slices.Clone(t.order[typ])
	t.copied[typ] = true
}

func (t *txn) touch(id ir.RecordIdentity) {
	if !t.seen[id] {
		t.seen[id] = true
		t.dirty = append(t.dirty, id)
	}
}

// put stores r, appending it to its type's order if it is new.
func (t *txn) put(r *ir.Record) {
	t.own(r.Type)
	if _, exists := t.records[r.Type][r.ID]; !exists {
		t.order[r.Type] = append(t.order[r.Type], r.ID)
	}
	t.records[r.Type][r.ID] = r
	t.touch(r.Identity())
}

func (t *txn) remove(id ir.RecordIdentity) {
	t.own(id.Type)
	delete(t.records[id.Type], id.ID)
	t.order[id.Type] = slices.DeleteFunc(t.order[id.Type], func(s string) bool { return s == id.ID })
	t.touch(id)
}

// commit publishes the working set as a new snapshot.
func (t *txn) commit() *snapshot {
	return &snapshot{records: t.records, order: t.order}
}

// upserts returns the final state of every record the txn wrote.
func (t *txn) upserts() []*ir.Record {
	var out []*ir.Record
	for _, id := range t.dirty {
		if r, ok := t.get(id); ok {
			out = append(out, r)
		}
	}
	return out
}

// removals returns identities that existed before the txn and no longer do.
func (t *txn) removals() []ir.RecordIdentity {
	var out []ir.RecordIdentity
	for _, id := range t.dirty {
		if _, ok := t.get(id); ok {
			continue
		}
		if _, existed := t.base.get(id); existed {
			out = append(out, id)
		}
	}
	return out
}
