package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tether/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// connParams are go-sqlite3 DSN parameters. The driver applies them to every
// pooled connection, not only the first.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"1"},
}

type migration struct {
	version int
	stmt    string
}

// migrations run in order against journals whose user_version is below
// their version. schema.sql holds the version 0 layout.
var migrations = []migration{
	// Per-type scans in Records and compiled queries.
	{1, `CREATE INDEX IF NOT EXISTS idx_records_type_created ON records(type, created_seq)`},
}

// Journal is the durable transform log behind a memsource.Source: an
// append-only transforms table plus the records those transforms produce.
type Journal struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler
}

// Open opens or creates the journal at path and brings its schema up to
// date. Opening an existing journal is safe.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?"+connParams.Encode())
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	// One writer; WAL still lets readers in between transforms.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{db: db, compiler: querysql.NewSQLCompiler()}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// DB exposes the database for inspection tools and tests.
func (j *Journal) DB() *sql.DB {
	return j.db
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs one migration and records its version atomically.
func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma reads back as expected.
func (j *Journal) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	if err := j.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
