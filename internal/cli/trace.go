package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Transform string // optional - a single transform by id
	Record    string // optional - "type:id" touched by an operation
	Since     int64  // only transforms with seq > Since
	Limit     int    // 0 means no limit
}

// TraceEntry is one journaled transform in the timeline.
type TraceEntry struct {
	Seq        int64         `json:"seq"`
	ID         string        `json:"id"`
	Operations []ir.IRObject `json:"operations"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Transforms int            `json:"transforms"`
	Operations int            `json:"operations"`
	ByOp       map[string]int `json:"by_op"`
	LastSeq    int64          `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled transforms",
		Long: `List the transforms a journal holds, in seq order.

Rejected transforms never reach the journal, so seq numbers may have
gaps. Each entry shows the content-addressed transform id and its
operations.

Examples:
  tether trace --db ./tether.db
  tether trace --db ./tether.db --since 10 --limit 5
  tether trace --db ./tether.db --record planet:pluto
  tether trace --db ./tether.db --transform 3f9c... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Transform, "transform", "", "show a single transform by id")
	cmd.Flags().StringVar(&opts.Record, "record", "", "only transforms touching this \"type:id\" record")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only transforms after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of transforms (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	var filter *ir.RecordIdentity
	if opts.Record != "" {
		id, err := ir.ParseIdentity(opts.Record)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidQuery, err)
		}
		filter = &id
	}

	j, err := openJournal(opts.Database, false)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err, ErrCodeJournal), err)
	}
	defer j.Close()

	var transforms []ir.Transform
	if opts.Transform != "" {
		t, err := j.ReadTransform(ctx, opts.Transform)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("transform not found: %s", opts.Transform))
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, err)
		}
		transforms = []ir.Transform{t}
	} else if transforms, err = j.ReadTransforms(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err)
	}

	result := buildTrace(transforms, opts.Since, filter, opts.Limit)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTrace selects transforms after since that touch filter, up to limit,
// and summarizes them.
func buildTrace(transforms []ir.Transform, since int64, filter *ir.RecordIdentity, limit int) TraceResult {
	result := TraceResult{
		Timeline: []TraceEntry{},
		Stats:    TraceStats{ByOp: map[string]int{}},
	}
	for _, t := range transforms {
		if t.Seq <= since || (filter != nil && !touches(t, *filter)) {
			continue
		}
		if limit > 0 && len(result.Timeline) == limit {
			break
		}
		entry := TraceEntry{Seq: t.Seq, ID: t.ID, Operations: make([]ir.IRObject, len(t.Operations))}
		for i, op := range t.Operations {
			entry.Operations[i] = ir.OperationToIR(op)
			result.Stats.ByOp[op.Op()]++
		}
		result.Timeline = append(result.Timeline, entry)
		result.Stats.Operations += len(t.Operations)
		result.Stats.LastSeq = t.Seq
	}
	result.Stats.Transforms = len(result.Timeline)
	return result
}

// touches reports whether any operation of t targets id.
func touches(t ir.Transform, id ir.RecordIdentity) bool {
	for _, op := range t.Operations {
		if op.Target() == id {
			return true
		}
	}
	return false
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No transforms found.")
		return
	}

	fmt.Fprintln(w, "Timeline:")
	for _, entry := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s\n", entry.Seq, truncateID(entry.ID))
		for _, op := range entry.Operations {
			fmt.Fprintf(w, "       %s\n", formatOperation(op, verbose))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Transforms: %d\n", result.Stats.Transforms)
	fmt.Fprintf(w, "  Operations: %d\n", result.Stats.Operations)
	fmt.Fprintf(w, "  Last Seq:   %d\n", result.Stats.LastSeq)
}

// formatOperation renders an operation as "op type:id", followed by its
// canonical JSON when verbose.
func formatOperation(op ir.IRObject, verbose bool) string {
	target := op["record"]
	if rec, ok := target.(ir.IRObject); ok {
		target = ir.IRString(irString(rec["type"]) + ":" + irString(rec["id"]))
	}
	line := fmt.Sprintf("%s %s", irString(op["op"]), irString(target))
	if !verbose {
		return line
	}
	data, err := ir.MarshalCanonical(op)
	if err != nil {
		return line
	}
	return line + " " + string(data)
}

// irString unwraps a string value; other values render as canonical JSON.
func irString(v ir.IRValue) string {
	if s, ok := v.(ir.IRString); ok {
		return string(s)
	}
	if v == nil {
		return ""
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
