package queryir

import (
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// Query represents a record query expression.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern enables exhaustive type switches in evaluators
// (the in-memory source, the SQL compiler).
//
// Query types:
//   - FindRecord: one record by identity
//   - FindRecords: every record of a type, optionally filtered and sorted
//   - FindRelatedRecord: the target of a to-one relationship
//   - FindRelatedRecords: the members of a to-many relationship
type Query interface {
	queryNode()
	// Singular reports whether the query yields at most one record.
	Singular() bool
}

// Predicate represents a filter condition over record attributes.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: attribute = literal value
//   - KeyEquals: key = literal string
//   - And: all predicates must hold
type Predicate interface {
	predicateNode()
}

// FindRecord looks up a single record by identity.
//
// Result semantics: Found is false when the record is not in the cache
// (undefined). FindRecord never yields an explicit null.
type FindRecord struct {
	Record ir.RecordIdentity
}

// FindRecords lists every record of Type, in the source's order unless Sort
// is given.
//
// Example:
//
//	FindRecords{
//	  Type:   "planet",
//	  Filter: Equals{Attribute: "classification", Value: ir.IRString("dwarf")},
//	  Sort:   []SortSpec{{Attribute: "name"}},
//	}
//
// Result semantics: Found is false only when Type is not a declared model.
// A declared type with no records yields an empty list.
type FindRecords struct {
	Type   string
	Filter Predicate  // nil = no filter
	Sort   []SortSpec // empty = source order
}

// FindRelatedRecord follows a to-one relationship.
//
// Result semantics: Found is false when the owning record is absent;
// Found with a nil Record is an empty (null) link.
type FindRelatedRecord struct {
	Record       ir.RecordIdentity
	Relationship string
}

// FindRelatedRecords follows a to-many relationship. Members keep the
// relationship's own order unless Sort is given.
//
// Result semantics: Found is false when the owning record is absent.
type FindRelatedRecords struct {
	Record       ir.RecordIdentity
	Relationship string
	Filter       Predicate
	Sort         []SortSpec
}

func (FindRecord) queryNode()         {}
func (FindRecords) queryNode()        {}
func (FindRelatedRecord) queryNode()  {}
func (FindRelatedRecords) queryNode() {}

func (FindRecord) Singular() bool         { return true }
func (FindRecords) Singular() bool        { return false }
func (FindRelatedRecord) Singular() bool  { return true }
func (FindRelatedRecords) Singular() bool { return false }

// String renders the query for logs and error messages.
func (q FindRecord) String() string { return fmt.Sprintf("findRecord(%s)", q.Record) }

// String renders the query for logs and error messages.
func (q FindRecords) String() string { return fmt.Sprintf("findRecords(%s)", q.Type) }

// String renders the query for logs and error messages.
func (q FindRelatedRecord) String() string {
	return fmt.Sprintf("findRelatedRecord(%s.%s)", q.Record, q.Relationship)
}

// String renders the query for logs and error messages.
func (q FindRelatedRecords) String() string {
	return fmt.Sprintf("findRelatedRecords(%s.%s)", q.Record, q.Relationship)
}

// SortSpec orders results by an attribute. Nulls sort last in both
// directions; ties keep source order.
type SortSpec struct {
	Attribute  string
	Descending bool
}

// Equals matches records whose attribute equals Value.
//
// NULL semantics: an absent attribute never matches, and Equals with an
// ir.IRNull value matches only attributes explicitly set to null.
type Equals struct {
	Attribute string
	Value     ir.IRValue
}

// KeyEquals matches records whose key equals Value.
type KeyEquals struct {
	Key   string
	Value string
}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode()    {}
func (KeyEquals) predicateNode() {}
func (And) predicateNode()       {}

// Match evaluates p against a record. A nil predicate matches everything.
func Match(p Predicate, r *ir.Record) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		v, ok := r.Attribute(pred.Attribute)
		return ok && ir.Equal(v, pred.Value)
	case KeyEquals:
		v, ok := r.Key(pred.Key)
		return ok && v == pred.Value
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, r) {
				return false
			}
		}
		return true
	}
	return false
}
