// Package harness runs YAML scenarios against a real Store over the
// in-memory record source.
//
// # Scenario Format
//
//	name: pluto_moons
//	description: "Moons follow their planet"
//	schema: ../schemas/solar.cue
//	live_queries:
//	  - name: planets
//	    type: planet
//	    sort: [name]
//	steps:
//	  - op: add
//	    record: planet:pluto
//	    fields: { name: Pluto, classification: dwarf }
//	  - op: relate
//	    record: planet:pluto
//	    relationship: moons
//	    related: [moon:charon]
//	  - op: remove
//	    record: moon:nix
//	    expect_error: RECORD_NOT_FOUND
//	assertions:
//	  - type: has_many
//	    record: planet:pluto
//	    field: moons
//	    value: [moon:charon]
//
// The schema path is resolved relative to the scenario file. Each step goes
// through one Store accessor and therefore submits at most one transform.
//
// # Step Operations
//
//   - add: Records(type).Add; record may be a bare type to generate the id
//   - update: Record(id).Update with the normalized fields
//   - remove: Record(id).Remove
//   - replace: RelatedRecord.Replace or RelatedRecords.Replace by kind
//   - relate / unrelate: RelatedRecords.Add / Remove with one related record
//
// # Assertion Types
//
//   - attribute, key: a field value read through the Model
//   - has_one, has_many: related Models, compared by identity and order
//   - live_query: the current value of a named live query
//   - stale: whether the Model of an identity fails with StaleModelError
//   - record_count: the number of records of a model
//
// # Deterministic Testing
//
// Record ids come from testutil.SequentialIDs and sequence numbers from a
// fresh logical clock, so a scenario yields the same transform ids on every
// run. The trace (every applied, rejected or invalid step) is compared with
// golden files under testdata/golden.
package harness
