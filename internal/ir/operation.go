package ir

import "fmt"

// Operation names as they appear on the wire and in the journal.
const (
	OpAddRecord                = "addRecord"
	OpUpdateRecord             = "updateRecord"
	OpRemoveRecord             = "removeRecord"
	OpReplaceKey               = "replaceKey"
	OpReplaceAttribute         = "replaceAttribute"
	OpReplaceRelatedRecord     = "replaceRelatedRecord"
	OpAddToRelatedRecords      = "addToRelatedRecords"
	OpRemoveFromRelatedRecords = "removeFromRelatedRecords"
	OpReplaceRelatedRecords    = "replaceRelatedRecords"
)

// Operation is a sealed interface over the record operations a transform may
// carry. Each operation targets exactly one record.
type Operation interface {
	operation()
	// Op returns the operation name, e.g. "replaceAttribute".
	Op() string
	// Target returns the identity of the record the operation acts on.
	Target() RecordIdentity
}

// AddRecord creates a record. It fails if the identity already exists.
type AddRecord struct {
	Record *Record
}

// UpdateRecord merges the fields present on Record into an existing record.
type UpdateRecord struct {
	Record *Record
}

// RemoveRecord deletes a record.
type RemoveRecord struct {
	Record RecordIdentity
}

// ReplaceKey sets one key on a record.
type ReplaceKey struct {
	Record RecordIdentity
	Key    string
	Value  string
}

// ReplaceAttribute sets one attribute on a record.
type ReplaceAttribute struct {
	Record    RecordIdentity
	Attribute string
	Value     IRValue
}

// ReplaceRelatedRecord sets a to-one relationship. A nil Related clears it.
type ReplaceRelatedRecord struct {
	Record       RecordIdentity
	Relationship string
	Related      *RecordIdentity
}

// AddToRelatedRecords appends a member to a to-many relationship.
type AddToRelatedRecords struct {
	Record       RecordIdentity
	Relationship string
	Related      RecordIdentity
}

// RemoveFromRelatedRecords removes a member from a to-many relationship.
type RemoveFromRelatedRecords struct {
	Record       RecordIdentity
	Relationship string
	Related      RecordIdentity
}

// ReplaceRelatedRecords replaces every member of a to-many relationship.
type ReplaceRelatedRecords struct {
	Record       RecordIdentity
	Relationship string
	Related      []RecordIdentity
}

func (AddRecord) operation()                {}
func (UpdateRecord) operation()             {}
func (RemoveRecord) operation()             {}
func (ReplaceKey) operation()               {}
func (ReplaceAttribute) operation()         {}
func (ReplaceRelatedRecord) operation()     {}
func (AddToRelatedRecords) operation()      {}
func (RemoveFromRelatedRecords) operation() {}
func (ReplaceRelatedRecords) operation()    {}

func (AddRecord) Op() string                { return OpAddRecord }
func (UpdateRecord) Op() string             { return OpUpdateRecord }
func (RemoveRecord) Op() string             { return OpRemoveRecord }
func (ReplaceKey) Op() string               { return OpReplaceKey }
func (ReplaceAttribute) Op() string         { return OpReplaceAttribute }
func (ReplaceRelatedRecord) Op() string     { return OpReplaceRelatedRecord }
func (AddToRelatedRecords) Op() string      { return OpAddToRelatedRecords }
func (RemoveFromRelatedRecords) Op() string { return OpRemoveFromRelatedRecords }
func (ReplaceRelatedRecords) Op() string    { return OpReplaceRelatedRecords }

func (o AddRecord) Target() RecordIdentity                { return o.Record.Identity() }
func (o UpdateRecord) Target() RecordIdentity             { return o.Record.Identity() }
func (o RemoveRecord) Target() RecordIdentity             { return o.Record }
func (o ReplaceKey) Target() RecordIdentity               { return o.Record }
func (o ReplaceAttribute) Target() RecordIdentity         { return o.Record }
func (o ReplaceRelatedRecord) Target() RecordIdentity     { return o.Record }
func (o AddToRelatedRecords) Target() RecordIdentity      { return o.Record }
func (o RemoveFromRelatedRecords) Target() RecordIdentity { return o.Record }
func (o ReplaceRelatedRecords) Target() RecordIdentity    { return o.Record }

// OperationToIR encodes op as {"op": name, ...fields}.
func OperationToIR(op Operation) IRObject {
	obj := IRObject{"op": IRString(op.Op())}
	switch o := op.(type) {
	case AddRecord:
		obj["record"] = o.Record.ToIR()
	case UpdateRecord:
		obj["record"] = o.Record.ToIR()
	case RemoveRecord:
		obj["record"] = IRString(o.Record.String())
	case ReplaceKey:
		obj["record"] = IRString(o.Record.String())
		obj["key"] = IRString(o.Key)
		obj["value"] = IRString(o.Value)
	case ReplaceAttribute:
		obj["record"] = IRString(o.Record.String())
		obj["attribute"] = IRString(o.Attribute)
		obj["value"] = CloneValue(o.Value)
		if o.Value == nil {
			obj["value"] = IRNull{}
		}
	case ReplaceRelatedRecord:
		obj["record"] = IRString(o.Record.String())
		obj["relationship"] = IRString(o.Relationship)
		obj["related"] = ToOne(o.Related).ToIR()
	case AddToRelatedRecords:
		obj["record"] = IRString(o.Record.String())
		obj["relationship"] = IRString(o.Relationship)
		obj["related"] = IRString(o.Related.String())
	case RemoveFromRelatedRecords:
		obj["record"] = IRString(o.Record.String())
		obj["relationship"] = IRString(o.Relationship)
		obj["related"] = IRString(o.Related.String())
	case ReplaceRelatedRecords:
		obj["record"] = IRString(o.Record.String())
		obj["relationship"] = IRString(o.Relationship)
		obj["related"] = ToMany(o.Related...).ToIR()
	}
	return obj
}

// OperationFromIR decodes the form produced by OperationToIR.
func OperationFromIR(obj IRObject) (Operation, error) {
	name, err := stringField(obj, "op")
	if err != nil {
		return nil, err
	}
	switch name {
	case OpAddRecord, OpUpdateRecord:
		recObj, ok := obj["record"].(IRObject)
		if !ok {
			return nil, fmt.Errorf("%s: record must be an object", name)
		}
		rec, err := RecordFromIR(recObj)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if name == OpAddRecord {
			return AddRecord{Record: rec}, nil
		}
		return UpdateRecord{Record: rec}, nil
	}

	target, err := identityField(obj, "record")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch name {
	case OpRemoveRecord:
		return RemoveRecord{Record: target}, nil
	case OpReplaceKey:
		key, err := stringField(obj, "key")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		value, err := stringField(obj, "value")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return ReplaceKey{Record: target, Key: key, Value: value}, nil
	case OpReplaceAttribute:
		attr, err := stringField(obj, "attribute")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		value, ok := obj["value"]
		if !ok {
			value = IRNull{}
		}
		return ReplaceAttribute{Record: target, Attribute: attr, Value: value}, nil
	}

	rel, err := stringField(obj, "relationship")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch name {
	case OpReplaceRelatedRecord:
		d, err := RelationshipFromIR(obj["related"])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return ReplaceRelatedRecord{Record: target, Relationship: rel, Related: d.One}, nil
	case OpAddToRelatedRecords, OpRemoveFromRelatedRecords:
		related, err := identityField(obj, "related")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if name == OpAddToRelatedRecords {
			return AddToRelatedRecords{Record: target, Relationship: rel, Related: related}, nil
		}
		return RemoveFromRelatedRecords{Record: target, Relationship: rel, Related: related}, nil
	case OpReplaceRelatedRecords:
		d, err := RelationshipFromIR(obj["related"])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return ReplaceRelatedRecords{Record: target, Relationship: rel, Related: d.Members}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}
