package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/journal"
	"github.com/roach88/tether/internal/memsource"
)

// openJournal opens the journal at path. Unless create is set the file must
// already exist, so a mistyped --db never leaves an empty journal behind.
func openJournal(path string, create bool) (*journal.Journal, error) {
	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("journal not found: %s", path)}
		}
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeJournal, Message: err.Error()}
	}
	return j, nil
}

// restoreSource builds an in-memory source for schema from every transform
// in j. The source journals to j only when attach is set.
func restoreSource(ctx context.Context, schema *ir.Schema, j *journal.Journal, attach bool, logger *slog.Logger) (*memsource.Source, int, error) {
	opts := []memsource.Option{memsource.WithLogger(logger)}
	if attach {
		opts = append(opts, memsource.WithJournal(j))
	}
	src := memsource.New(schema, opts...)
	n, err := src.Restore(ctx, j)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeJournal, Message: err.Error()}
	}
	return src, n, nil
}
