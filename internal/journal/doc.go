// Package journal provides SQLite-backed durable storage for the reference
// record source.
//
// The journal keeps:
//   - transforms: every applied transform, append-only, keyed by its
//     content-addressed id and ordered by seq
//   - records: the state those transforms produce, one row per record
//
// # Critical Patterns
//
// Logical time: all ordering uses seq (the source's logical clock), never
// timestamps, so replay is deterministic regardless of wall time.
//
// Deterministic results: every query ends with an ORDER BY whose last term
// is id COLLATE BINARY.
//
// Idempotency: writing the same transform twice is a no-op
// (ON CONFLICT(id) DO NOTHING), and the transform row and its record rows
// are written in one SQL transaction.
//
// Values are stored as RFC 8785 canonical JSON produced by internal/ir.
package journal
