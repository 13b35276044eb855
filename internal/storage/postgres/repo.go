package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/storage"
)

/*
Repo implements storage.Repository for Postgres on a pgx connection pool.

It provides:
  - "CREATE SCHEMA IF NOT EXISTS" for schema-qualified table names
  - "CREATE TABLE IF NOT EXISTS" on the pool, outside the row transaction
  - Single-row INSERTs with $n placeholders inside one lazily begun pgx.Tx
*/
type Repo struct {
	Dialect

	pool *pgxpool.Pool
	tx   pgx.Tx
}

// Dialect spells Postgres column types and statements.
type Dialect struct{}

// New creates a new Postgres-backed Repo. cfg.DSN is a libpq URL or
// key=value connection string.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close rolls back pending rows and closes the connection pool.
func (r *Repo) Close() error {
	err := r.Rollback(context.Background())
	r.pool.Close()
	return err
}

// EnsureTable runs the schema and table DDL as separate statements.
func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(t)
	if err != nil {
		return storage.Wrap("create", t.Name, err)
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return storage.Wrap("create", t.Name, fmt.Errorf("create schema: %w", err))
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return storage.Wrap("create", t.Name, err)
	}
	return nil
}

func (r *Repo) InsertRow(ctx context.Context, table string, columns []string, values []any) error {
	if len(columns) != len(values) {
		return storage.Wrap("insert", table, fmt.Errorf("%d columns but %d values", len(columns), len(values)))
	}
	if r.tx == nil {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return storage.Wrap("begin", table, err)
		}
		r.tx = tx
	}
	if _, err := r.tx.Exec(ctx, r.InsertSQL(table, columns), values...); err != nil {
		return storage.Wrap("insert", table, err)
	}
	return nil
}

func (r *Repo) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	return storage.Wrap("commit", "", tx.Commit(ctx))
}

func (r *Repo) Rollback(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return storage.Wrap("rollback", "", err)
	}
	return nil
}

func (Dialect) ColumnType(k record.Kind) string {
	switch k {
	case record.Integer:
		return "BIGINT"
	case record.Float:
		return "DOUBLE PRECISION"
	case record.Boolean:
		return "BOOLEAN"
	default:
		// Text, and Null columns which Postgres cannot leave untyped.
		return "TEXT"
	}
}

// CreateTableSQL renders the schema and table DDL as one script for display.
func (Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	schemaSQL, tableSQL, err := buildCreateSQL(t)
	if err != nil {
		return "", err
	}
	if schemaSQL == "" {
		return tableSQL, nil
	}
	return schemaSQL + "\n" + tableSQL, nil
}

// InsertSQL builds a single-row INSERT with $1..$n placeholders.
func (Dialect) InsertSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	b.WriteString(storage.JoinIdents(columns, pgIdent))
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(")")
	return b.String()
}

// buildCreateSQL builds DDL for the optional schema and the table.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgTableIdent(t.Name), t.ColumnDefs(pgIdent))
	return schemaSQL, tableSQL, nil
}

// splitQualifiedName splits "schema.table".
//
// It only handles a single dot. Anything else is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

var _ storage.Repository = (*Repo)(nil)
