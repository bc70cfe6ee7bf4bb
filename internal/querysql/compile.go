// Package querysql compiles record queries to parameterized SQLite SQL over
// the journal's materialized records table.
//
// Every compiled query selects the record columns, filters on the record
// type, and ends with a deterministic ORDER BY: requested sorts first
// (nulls last in both directions), then insertion order, then id.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// Columns is the select list shared by every compiled query.
const Columns = "type, id, keys, attributes, relationships, seq"

// SQLCompiler compiles queries to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values, including JSON paths, are parameterized (never
// interpolated).
type SQLCompiler struct {
	// Table is the records table name. Defaults to "records".
	Table string
}

// NewSQLCompiler creates a new SQLCompiler over the "records" table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "records"}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// Only FindRecord and FindRecords are supported: relationship traversal
// lives in the relationships JSON column and is resolved in memory.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.FindRecord:
		sql := fmt.Sprintf("SELECT %s FROM %s WHERE type = ? AND id = ? ORDER BY %s",
			Columns, c.Table, stableOrderKey)
		return sql, []any{query.Record.Type, query.Record.ID}, nil
	case queryir.FindRecords:
		return c.compileFindRecords(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// stableOrderKey is the tiebreaker every query ends with.
// COLLATE BINARY ensures deterministic text ordering across SQLite versions.
const stableOrderKey = "created_seq ASC, id ASC COLLATE BINARY"

func (c *SQLCompiler) compileFindRecords(q queryir.FindRecords) (string, []any, error) {
	where := "type = ?"
	params := []any{q.Type}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	var order []string
	for _, s := range q.Sort {
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		path := AttributePath(s.Attribute)
		order = append(order,
			"COALESCE(json_type(attributes, ?), 'null') = 'null' ASC",
			"json_extract(attributes, ?) "+dir,
		)
		params = append(params, path, path)
	}
	order = append(order, stableOrderKey)

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		Columns, c.Table, where, strings.Join(order, ", "))
	return sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals("attributes", AttributePath(pred.Attribute), pred.Value)
	case queryir.KeyEquals:
		return "json_extract(keys, ?) = ?", []any{AttributePath(pred.Key), pred.Value}, nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := c.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals matches a present attribute equal to v. An explicit null
// matches a stored JSON null, never an absent attribute.
func compileEquals(column, path string, v ir.IRValue) (string, []any, error) {
	if _, isNull := v.(ir.IRNull); isNull {
		return fmt.Sprintf("json_type(%s, ?) = 'null'", column), []any{path}, nil
	}
	param, err := irValueToParam(v)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return fmt.Sprintf("json_extract(%s, ?) = ?", column), []any{path, param}, nil
}

// AttributePath returns the SQLite JSON path for a top-level member. The
// name is quoted so dots and brackets in it are taken literally.
func AttributePath(name string) string {
	return "$." + strconv.Quote(name)
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
// Booleans become 0/1 to match json_extract's integer result for true/false.
// Arrays and objects are not supported as parameters.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
