// Package cache implements the reactive binding layer between a record
// source and application code.
//
// A Cache keeps an identity map of Models, one per record identity. Model
// field reads go through lazily computed Property Caches; the Cache turns
// each change the source broadcasts into invalidations, and the next read
// recomputes. Writes submit a transform to the source and seed the affected
// cell optimistically.
//
// LiveQuery wraps a source subscription around the same lazy cell, so a
// burst of changes costs one re-evaluation on the next read.
package cache
