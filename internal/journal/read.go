package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// ReadTransforms returns every journaled transform.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) ReadTransforms(ctx context.Context) ([]ir.Transform, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, operations
		FROM transforms
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("query transforms: %w", err)
	}
	defer rows.Close()

	transforms := []ir.Transform{}
	for rows.Next() {
		t, err := scanTransform(rows)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transforms: %w", err)
	}
	return transforms, nil
}

// ReadTransform retrieves a single transform by id.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadTransform(ctx context.Context, id string) (ir.Transform, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, seq, operations
		FROM transforms
		WHERE id = ?
	`, id)
	return scanTransform(row)
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transforms`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

// Records returns the materialized records, ordered by type, then
// insertion order, then id.
func (j *Journal) Records(ctx context.Context) ([]*ir.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT type, id, keys, attributes, relationships, seq
		FROM records
		ORDER BY type ASC COLLATE BINARY, created_seq ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRecords(rows)
}

// QueryRecords evaluates a FindRecord or FindRecords query against the
// materialized records.
func (j *Journal) QueryRecords(ctx context.Context, q queryir.Query) ([]*ir.Record, error) {
	query, params, err := j.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRecords(rows)
}

// StateHash returns the content hash of the materialized records. It equals
// memsource.Source.StateHash for the same state.
func (j *Journal) StateHash(ctx context.Context) (string, error) {
	records, err := j.Records(ctx)
	if err != nil {
		return "", err
	}
	return ir.StateHash(records)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransform(s scanner) (ir.Transform, error) {
	var t ir.Transform
	var opsJSON string
	if err := s.Scan(&t.ID, &t.Seq, &opsJSON); err != nil {
		if err == sql.ErrNoRows {
			return ir.Transform{}, err
		}
		return ir.Transform{}, fmt.Errorf("scan transform: %w", err)
	}
	ops, err := ir.DecodeOperations([]byte(opsJSON))
	if err != nil {
		return ir.Transform{}, fmt.Errorf("decode transform %s: %w", t.ID, err)
	}
	t.Operations = ops
	return t, nil
}

func scanRecords(rows *sql.Rows) ([]*ir.Record, error) {
	defer rows.Close()

	records := []*ir.Record{}
	for rows.Next() {
		var typ, id string
		var seq int64
		var cols recordColumns
		if err := rows.Scan(&typ, &id, &cols.keys, &cols.attributes, &cols.relationships, &seq); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := unmarshalRecord(typ, id, cols)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
