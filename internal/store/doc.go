// Package store is the consumer-facing entry point of the binding layer.
//
// A Store pairs a record source with a Cache and hands out four accessors,
// one per query shape:
//
//   - RecordAccessor: one record by identity
//   - RecordsAccessor: every record of a type
//   - RelatedRecordAccessor: the target of a to-one relationship
//   - RelatedRecordsAccessor: the members of a to-many relationship
//
// Every accessor reads synchronously (Raw, Peek), asynchronously through the
// source's request pipeline (Query), or live (Live). Mutations (Add, Update,
// Remove, Replace) submit exactly one transform, wait for the source to
// apply it, and return the resulting Model via Peek.
//
// # Absence
//
// Raw and Peek never fail for a missing record. They return (nil, false) for
// undefined. Singular related accessors return (nil, true) for an empty link,
// so "not found" and "found but null" stay distinct.
//
// # Partial updates
//
// RecordAccessor.Update with attributes only issues one ReplaceAttribute per
// changed attribute inside the single transform, and nothing at all when no
// value changes. Attributes left out of the update are never touched.
package store
