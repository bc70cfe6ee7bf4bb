package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// WriteTransform records t together with the resulting state of every
// record it wrote or removed, in one SQL transaction.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: rewriting an already
// journaled transform leaves the log unchanged. Record rows are upserted;
// created_seq is kept from the first insert so per-type order survives
// updates.
func (j *Journal) WriteTransform(ctx context.Context, t ir.Transform, upserts []*ir.Record, removals []ir.RecordIdentity) error {
	opsJSON, err := t.EncodeOperations()
	if err != nil {
		return fmt.Errorf("write transform: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write transform: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transforms (id, seq, operations)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.Seq, string(opsJSON)); err != nil {
		return fmt.Errorf("write transform %s: %w", t.ID, err)
	}

	for _, r := range upserts {
		if err := upsertRecord(ctx, tx, r, t.Seq); err != nil {
			return err
		}
	}
	for _, id := range removals {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE type = ? AND id = ?`, id.Type, id.ID); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write transform %s: commit: %w", t.ID, err)
	}
	return nil
}

func upsertRecord(ctx context.Context, tx *sql.Tx, r *ir.Record, seq int64) error {
	cols, err := marshalRecord(r)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (type, id, keys, attributes, relationships, seq, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			keys = excluded.keys,
			attributes = excluded.attributes,
			relationships = excluded.relationships,
			seq = excluded.seq
	`, r.Type, r.ID, cols.keys, cols.attributes, cols.relationships, seq, seq)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", r.Identity(), err)
	}
	return nil
}
