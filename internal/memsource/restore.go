package memsource

import (
	"context"
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// Restore rebuilds the source's records by re-applying every transform in
// j, in seq order, and advances the clock past the last one. It must run
// before Run. Restored transforms are not journaled again and no change is
// broadcast.
//
// Each transform's id is recomputed and compared with the journaled one, so
// a tampered or mis-encoded journal fails loudly instead of diverging.
func (s *Source) Restore(ctx context.Context, j Journal) (int, error) {
	transforms, err := j.ReadTransforms(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	state := s.snapshot()
	for _, t := range transforms {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		id, err := ir.TransformID(t.Operations, t.Seq)
		if err != nil {
			return 0, fmt.Errorf("restore seq %d: %w", t.Seq, err)
		}
		if id != t.ID {
			return 0, fmt.Errorf("restore seq %d: transform id mismatch: journal has %s, operations hash to %s", t.Seq, t.ID, id)
		}

		tx := newTxn(s.schema, state)
		for _, op := range t.Operations {
			if err := tx.apply(op); err != nil {
				return 0, fmt.Errorf("restore seq %d: %w", t.Seq, err)
			}
		}
		state = tx.commit()
		s.clock.AdvanceTo(t.Seq)
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.logger.Info("record source restored",
		"transforms", len(transforms),
		"records", state.count(),
		"seq", s.clock.Current(),
	)
	return len(transforms), nil
}
