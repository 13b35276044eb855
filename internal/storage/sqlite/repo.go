// Package sqlite is the SQLite destination backend.
//
// Two drivers are linked in. modernc.org/sqlite (pure Go, driver name "sqlite")
// is the default. github.com/mattn/go-sqlite3 (cgo, driver name "sqlite3") is
// selected with Config.Driver "mattn".
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/storage"
)

const (
	DriverModernc = "modernc"
	DriverMattn   = "mattn"
)

// Dialect spells SQLite column types and statements.
//
// SQLite is dynamically typed; the labels below only set column affinity.
// A Null-kind column is declared BLOB, which applies no affinity at all.
type Dialect struct{}

func init() {
	storage.Register("sqlite", Dialect{}, New)
}

// New opens (creating if absent) the database file named by cfg.DSN.
//
// The pool is limited to one connection: SQLite serializes writers anyway and
// a single connection keeps the DDL and the row transaction on the same handle.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	driver, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return storage.OpenSQL(ctx, driver, cfg.DSN, 1, Dialect{})
}

func driverName(variant string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case "", DriverModernc:
		return "sqlite", nil
	case DriverMattn:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("sqlite: unknown driver %q (want %s or %s)", variant, DriverModernc, DriverMattn)
	}
}

func (Dialect) ColumnType(k record.Kind) string {
	switch k {
	case record.Integer:
		return "INTEGER"
	case record.Float:
		return "REAL"
	case record.Text:
		return "TEXT"
	case record.Boolean:
		return "BOOLEAN"
	default:
		return "BLOB"
	}
}

func (Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", tableIdent(t.Name), t.ColumnDefs(sqlIdent)), nil
}

func (Dialect) InsertSQL(table string, columns []string) string {
	ph := strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableIdent(table), storage.JoinIdents(columns, sqlIdent), ph)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// tableIdent quotes each part of a possibly schema-qualified name ("main.t").
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = sqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
