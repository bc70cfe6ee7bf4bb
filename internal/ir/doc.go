// Package ir provides the record model shared by every tether package:
// constrained attribute values, record identities, immutable records, the
// sealed set of transform operations, change notifications and the schema
// (model definitions).
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - No float types anywhere; integers are int64
//   - Records are immutable once published; helpers return copies
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - Content-addressed ids are SHA-256 over RFC 8785 canonical JSON
package ir
