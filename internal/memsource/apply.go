package memsource

import (
	"fmt"
	"slices"

	"github.com/roach88/tether/internal/ir"
)

// apply performs one operation against the working set, keeping inverse
// relationships symmetric and recording every touched field.
//
// Operations reaching apply have passed validate, so relationship names and
// kinds are known to be declared. The only failures left are missing or
// duplicate records, including link targets that do not exist.
func (t *txn) apply(op ir.Operation) error {
	switch o := op.(type) {
	case ir.AddRecord:
		return t.addRecord(o)
	case ir.UpdateRecord:
		return t.updateRecord(o)
	case ir.RemoveRecord:
		return t.removeRecord(o)
	case ir.ReplaceKey:
		rec, ok := t.get(o.Record)
		if !ok {
			return notFound(op, o.Record)
		}
		t.put(rec.WithKey(o.Key, o.Value))
		t.changes.Record(o.Record, ir.ChangeUpdated, o.Key)
		return nil
	case ir.ReplaceAttribute:
		rec, ok := t.get(o.Record)
		if !ok {
			return notFound(op, o.Record)
		}
		t.put(rec.WithAttribute(o.Attribute, o.Value))
		t.changes.Record(o.Record, ir.ChangeUpdated, o.Attribute)
		return nil
	case ir.ReplaceRelatedRecord:
		if _, ok := t.get(o.Record); !ok {
			return notFound(op, o.Record)
		}
		if o.Related != nil {
			if err := t.requireTargets(op, *o.Related); err != nil {
				return err
			}
		}
		rd, err := t.relDef(o.Record.Type, o.Relationship)
		if err != nil {
			return err
		}
		t.replaceOne(o.Record, rd, o.Related)
		return nil
	case ir.ReplaceRelatedRecords:
		if _, ok := t.get(o.Record); !ok {
			return notFound(op, o.Record)
		}
		if err := t.requireTargets(op, o.Related...); err != nil {
			return err
		}
		rd, err := t.relDef(o.Record.Type, o.Relationship)
		if err != nil {
			return err
		}
		t.replaceMany(o.Record, rd, o.Related)
		return nil
	case ir.AddToRelatedRecords:
		if _, ok := t.get(o.Record); !ok {
			return notFound(op, o.Record)
		}
		if err := t.requireTargets(op, o.Related); err != nil {
			return err
		}
		rd, err := t.relDef(o.Record.Type, o.Relationship)
		if err != nil {
			return err
		}
		t.link(o.Record, rd, o.Related)
		return nil
	case ir.RemoveFromRelatedRecords:
		if _, ok := t.get(o.Record); !ok {
			return notFound(op, o.Record)
		}
		rd, err := t.relDef(o.Record.Type, o.Relationship)
		if err != nil {
			return err
		}
		t.unlink(o.Record, rd, o.Related)
		return nil
	}
	return fmt.Errorf("unsupported operation %T", op)
}

func (t *txn) addRecord(op ir.AddRecord) error {
	id := op.Record.Identity()
	if _, exists := t.get(id); exists {
		return alreadyExists(op, id)
	}
	rec := op.Record.Clone()
	t.put(rec)
	t.changes.Record(id, ir.ChangeAdded)

	for _, name := range relationshipNames(rec) {
		rd, err := t.relDef(id.Type, name)
		if err != nil {
			return err
		}
		if err := t.requireTargets(op, targets(rec.Relationships[name])...); err != nil {
			return err
		}
		for _, target := range targets(rec.Relationships[name]) {
			t.attachInverse(id, rd, target)
		}
	}
	return nil
}

func (t *txn) updateRecord(op ir.UpdateRecord) error {
	id := op.Record.Identity()
	rec, ok := t.get(id)
	if !ok {
		return notFound(op, id)
	}

	scalar := &ir.Record{Keys: op.Record.Keys, Attributes: op.Record.Attributes}
	if names := scalar.FieldNames(); len(names) > 0 {
		t.put(rec.Merge(scalar))
		t.changes.Record(id, ir.ChangeUpdated, names...)
	}

	for _, name := range relationshipNames(op.Record) {
		rd, err := t.relDef(id.Type, name)
		if err != nil {
			return err
		}
		data := op.Record.Relationships[name]
		if err := t.requireTargets(op, targets(data)...); err != nil {
			return err
		}
		if rd.Kind == ir.FieldHasMany {
			t.replaceMany(id, rd, data.Members)
		} else {
			t.replaceOne(id, rd, data.One)
		}
	}
	return nil
}

func (t *txn) removeRecord(op ir.RemoveRecord) error {
	rec, ok := t.get(op.Record)
	if !ok {
		return notFound(op, op.Record)
	}
	for _, name := range relationshipNames(rec) {
		rd, err := t.relDef(op.Record.Type, name)
		if err != nil {
			continue
		}
		for _, target := range targets(rec.Relationships[name]) {
			t.detachInverse(op.Record, rd, target)
		}
	}
	t.remove(op.Record)
	t.changes.Record(op.Record, ir.ChangeRemoved)
	return nil
}

// replaceOne points a to-one relationship at target (nil clears it).
func (t *txn) replaceOne(owner ir.RecordIdentity, rd ir.RelationshipDef, target *ir.RecordIdentity) {
	rec, _ := t.get(owner)
	current, _ := rec.Relationship(rd.Name)
	if sameTarget(current.One, target) {
		return
	}
	if current.One != nil {
		t.unlink(owner, rd, *current.One)
	}
	if target != nil {
		t.link(owner, rd, *target)
	}
}

// replaceMany sets a to-many relationship to exactly members, in order.
func (t *txn) replaceMany(owner ir.RecordIdentity, rd ir.RelationshipDef, members []ir.RecordIdentity) {
	rec, _ := t.get(owner)
	current, _ := rec.Relationship(rd.Name)
	members = dedupe(members)

	t.setRelationship(rec, rd.Name, ir.ToMany(members...))
	for _, id := range current.Members {
		if !slices.Contains(members, id) {
			t.detachInverse(owner, rd, id)
		}
	}
	for _, id := range members {
		if !current.Contains(id) {
			t.attachInverse(owner, rd, id)
		}
	}
}

// link connects owner.rd to target on both sides.
func (t *txn) link(owner ir.RecordIdentity, rd ir.RelationshipDef, target ir.RecordIdentity) {
	if prev := t.attach(owner, rd, target); prev != nil {
		t.detachInverse(owner, rd, *prev)
	}
	t.attachInverse(owner, rd, target)
}

// unlink disconnects owner.rd from target on both sides.
func (t *txn) unlink(owner ir.RecordIdentity, rd ir.RelationshipDef, target ir.RecordIdentity) {
	t.detach(owner, rd, target)
	t.detachInverse(owner, rd, target)
}

// attachInverse points target's inverse of rd back at owner. When the
// inverse is to-one and already pointed elsewhere, the displaced record
// loses target from its side of rd.
func (t *txn) attachInverse(owner ir.RecordIdentity, rd ir.RelationshipDef, target ir.RecordIdentity) {
	inv, ok := t.inverseOf(rd)
	if !ok {
		return
	}
	if prev := t.attach(target, inv, owner); prev != nil {
		t.detach(*prev, rd, target)
	}
}

// detachInverse removes owner from target's inverse of rd.
func (t *txn) detachInverse(owner ir.RecordIdentity, rd ir.RelationshipDef, target ir.RecordIdentity) {
	if inv, ok := t.inverseOf(rd); ok {
		t.detach(target, inv, owner)
	}
}

// attach makes from.rd include to on one side only. For a to-one
// relationship it returns the identity the link pointed at before, if any.
// A missing from record is skipped.
func (t *txn) attach(from ir.RecordIdentity, rd ir.RelationshipDef, to ir.RecordIdentity) *ir.RecordIdentity {
	rec, ok := t.get(from)
	if !ok {
		return nil
	}
	data, _ := rec.Relationship(rd.Name)
	if rd.Kind == ir.FieldHasMany {
		if data.Contains(to) {
			return nil
		}
		t.setRelationship(rec, rd.Name, ir.ToMany(append(slices.Clone(data.Members), to)...))
		return nil
	}

	var prev *ir.RecordIdentity
	if data.One != nil {
		if *data.One == to {
			return nil
		}
		p := *data.One
		prev = &p
	}
	t.setRelationship(rec, rd.Name, ir.ToOne(&to))
	return prev
}

// detach makes from.rd stop referring to "to" on one side only.
func (t *txn) detach(from ir.RecordIdentity, rd ir.RelationshipDef, to ir.RecordIdentity) {
	rec, ok := t.get(from)
	if !ok {
		return
	}
	data, _ := rec.Relationship(rd.Name)
	if !data.Contains(to) {
		return
	}
	if rd.Kind == ir.FieldHasMany {
		members := slices.DeleteFunc(slices.Clone(data.Members), func(id ir.RecordIdentity) bool { return id == to })
		t.setRelationship(rec, rd.Name, ir.ToMany(members...))
		return
	}
	t.setRelationship(rec, rd.Name, ir.ToOne(nil))
}

// requireTargets rejects op when any link target is absent from the working
// set. A link may only dangle after its target is removed through a
// relationship without an inverse.
func (t *txn) requireTargets(op ir.Operation, ids ...ir.RecordIdentity) error {
	for _, id := range ids {
		if _, ok := t.get(id); !ok {
			return notFound(op, id)
		}
	}
	return nil
}

func (t *txn) setRelationship(rec *ir.Record, name string, data ir.RelationshipData) {
	t.put(rec.WithRelationship(name, data))
	t.changes.Record(rec.Identity(), ir.ChangeUpdated, name)
}

func (t *txn) relDef(typ, name string) (ir.RelationshipDef, error) {
	if m, ok := t.schema.Model(typ); ok {
		if rd, ok := m.Relationship(name); ok {
			return rd, nil
		}
	}
	return ir.RelationshipDef{}, fmt.Errorf("relationship %s.%s is not declared", typ, name)
}

func (t *txn) inverseOf(rd ir.RelationshipDef) (ir.RelationshipDef, bool) {
	if rd.Inverse == "" {
		return ir.RelationshipDef{}, false
	}
	inv, err := t.relDef(rd.Model, rd.Inverse)
	return inv, err == nil
}

// relationshipNames returns r's relationship names, sorted.
func relationshipNames(r *ir.Record) []string {
	names := make([]string, 0, len(r.Relationships))
	for name := range r.Relationships {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func targets(d ir.RelationshipData) []ir.RecordIdentity {
	if d.Many {
		return d.Members
	}
	if d.One != nil {
		return []ir.RecordIdentity{*d.One}
	}
	return nil
}

func sameTarget(a, b *ir.RecordIdentity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func dedupe(ids []ir.RecordIdentity) []ir.RecordIdentity {
	out := make([]ir.RecordIdentity, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
