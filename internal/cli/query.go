package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
	"github.com/roach88/tether/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Schema   string   // optional - validates the query when set
	Type     string   // record type
	ID       string   // optional - a single record
	Where    []string // attribute=value, value parsed as YAML
	Keys     []string // key=value
	Sort     []string // attribute, or -attribute for descending
}

// QueryResult holds the records a query returned.
type QueryResult struct {
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	Records []ir.IRObject `json:"records"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the journal's materialized records",
		Long: `Run a record query against the records a journal materialized.

Filters compare with equality and are combined with AND. --where values
are parsed as YAML scalars, so 9 is an int, true a bool and "9" a
string. Sorting puts nulls last; ties keep insertion order.

Examples:
  tether query --db ./tether.db --type planet
  tether query --db ./tether.db --type planet --where classification=dwarf --sort -order
  tether query --db ./tether.db --type planet --key remoteId=p-9
  tether query --db ./tether.db --type planet --id pluto --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Type, "type", "", "record type (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "validate the query against these model declarations")
	cmd.Flags().StringVar(&opts.ID, "id", "", "find a single record by id")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "attribute filter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Keys, "key", nil, "key filter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Sort, "sort", nil, "sort attribute, prefix with - for descending (repeatable)")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	q, err := buildQuery(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidQuery, err)
	}

	if opts.Schema != "" {
		schema, err := MustLoadSchema(opts.Schema)
		if err != nil {
			return formatter.Fail(ExitCommandError, errorCode(err, ErrCodeGeneric), err)
		}
		if err := queryir.Validate(q, schema).Err(); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidQuery, err)
		}
	}

	j, err := openJournal(opts.Database, false)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err, ErrCodeJournal), err)
	}
	defer j.Close()

	records, err := j.QueryRecords(ctx, q)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err)
	}

	result := QueryResult{Query: fmt.Sprint(q), Count: len(records), Records: make([]ir.IRObject, len(records))}
	for i, r := range records {
		result.Records[i] = r.ToIR()
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputQueryText(formatter.Writer, result)
}

// buildQuery turns the flags into a FindRecord or FindRecords query.
func buildQuery(opts *QueryOptions) (queryir.Query, error) {
	if opts.Type == "" {
		return nil, fmt.Errorf("--type is required")
	}
	if opts.ID != "" {
		if len(opts.Where) > 0 || len(opts.Keys) > 0 || len(opts.Sort) > 0 {
			return nil, fmt.Errorf("--id cannot be combined with --where, --key or --sort")
		}
		return queryir.FindRecord{Record: ir.Identity(opts.Type, opts.ID)}, nil
	}

	var qopts []store.QueryOption
	for _, w := range opts.Where {
		name, raw, err := splitAssignment("--where", w)
		if err != nil {
			return nil, err
		}
		value, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("--where %s: %w", name, err)
		}
		qopts = append(qopts, store.AttributeEquals(name, value))
	}
	for _, k := range opts.Keys {
		name, value, err := splitAssignment("--key", k)
		if err != nil {
			return nil, err
		}
		qopts = append(qopts, store.KeyEquals(name, value))
	}
	for _, s := range opts.Sort {
		if attr, ok := strings.CutPrefix(s, "-"); ok {
			qopts = append(qopts, store.SortByDesc(attr))
			continue
		}
		qopts = append(qopts, store.SortBy(s))
	}
	return store.FindRecords(opts.Type, qopts...), nil
}

func splitAssignment(flag, s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("%s %q: want name=value", flag, s)
	}
	return name, value, nil
}

// parseValue reads a YAML scalar into an IR value.
func parseValue(raw string) (ir.IRValue, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return ir.FromAny(v)
}

func outputQueryText(w io.Writer, result QueryResult) error {
	if result.Count == 0 {
		fmt.Fprintf(w, "No records found for %s.\n", result.Query)
		return nil
	}
	fmt.Fprintf(w, "%s: %d record(s)\n", result.Query, result.Count)
	for _, r := range result.Records {
		data, err := ir.MarshalCanonical(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", data)
	}
	return nil
}
