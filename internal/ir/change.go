package ir

import "slices"

// ChangeKind classifies what happened to a record in a transform.
type ChangeKind int

const (
	ChangeUpdated ChangeKind = iota
	ChangeAdded
	ChangeRemoved
)

// String returns a lowercase name for the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "updated"
	}
}

// ChangeEntry describes the effect of a transform on one record.
// Fields lists the keys, attributes and relationships that changed;
// a nil Fields means the detail is unavailable and any field may have changed.
type ChangeEntry struct {
	Identity RecordIdentity
	Kind     ChangeKind
	Fields   []string
}

// Change is broadcast by a record source after it applied a transform.
type Change struct {
	TransformID string
	Seq         int64
	Entries     []ChangeEntry
}

// Types returns the distinct record types touched by c, in first-seen order.
func (c Change) Types() []string {
	var types []string
	for _, e := range c.Entries {
		if !slices.Contains(types, e.Identity.Type) {
			types = append(types, e.Identity.Type)
		}
	}
	return types
}

// Touches reports whether c affects any record of the given type.
func (c Change) Touches(typ string) bool {
	for _, e := range c.Entries {
		if e.Identity.Type == typ {
			return true
		}
	}
	return false
}

// ChangeSet accumulates entries while a transform is applied, merging
// repeated entries for the same record.
type ChangeSet struct {
	order   []RecordIdentity
	entries map[RecordIdentity]*ChangeEntry
}

// Record notes that fields of id changed. A nil fields argument widens the
// entry to "unknown fields".
func (cs *ChangeSet) Record(id RecordIdentity, kind ChangeKind, fields ...string) {
	if cs.entries == nil {
		cs.entries = make(map[RecordIdentity]*ChangeEntry)
	}
	e, ok := cs.entries[id]
	if !ok {
		e = &ChangeEntry{Identity: id, Kind: kind, Fields: []string{}}
		cs.entries[id] = e
		cs.order = append(cs.order, id)
	}
	if kind != ChangeUpdated {
		e.Kind = kind
	}
	if kind != ChangeUpdated || fields == nil {
		e.Fields = nil
		return
	}
	if e.Fields == nil {
		return
	}
	for _, f := range fields {
		if !slices.Contains(e.Fields, f) {
			e.Fields = append(e.Fields, f)
		}
	}
}

// Entries returns the merged entries in the order records were first seen.
// When coarse is true the field detail is dropped.
func (cs *ChangeSet) Entries(coarse bool) []ChangeEntry {
	out := make([]ChangeEntry, 0, len(cs.order))
	for _, id := range cs.order {
		e := *cs.entries[id]
		if coarse {
			e.Fields = nil
		} else if e.Fields != nil {
			e.Fields = slices.Clone(e.Fields)
			slices.Sort(e.Fields)
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of distinct records touched.
func (cs *ChangeSet) Len() int {
	return len(cs.order)
}
