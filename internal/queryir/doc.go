// Package queryir provides the record query expressions shared by the cache,
// the record sources and the SQL compiler.
//
// ARCHITECTURE:
//
// Queries are built by accessors and the harness, evaluated by a record
// source, and optionally compiled to SQL for the journal:
//
//	[accessor / harness] → [Query IR] → [in-memory source]
//	                                  → [querysql → SQLite journal]
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so evaluators can switch
// exhaustively:
//
//	switch q := query.(type) {
//	case queryir.FindRecord:
//	case queryir.FindRecords:
//	case queryir.FindRelatedRecord:
//	case queryir.FindRelatedRecords:
//	}
//
// RESULTS:
//
// Result keeps the undefined/null distinction explicit: Found == false means
// the subject is unknown, while a found singular result with a nil Record is
// an empty link. Plural results are ordered lists; without Sort the order is
// the source's own (insertion order for a type, member order for a to-many
// relationship).
//
// VALUES:
//
// Predicate literals use ir.IRValue types, so there are no floats and
// comparisons are exact.
package queryir
