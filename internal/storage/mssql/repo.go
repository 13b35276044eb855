// Package mssql is the Microsoft SQL Server destination backend.
package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/storage"
)

// Dialect spells SQL Server column types and statements.
//
// SQL Server has no "CREATE TABLE IF NOT EXISTS"; the table DDL is wrapped in
// an OBJECT_ID guard instead. Placeholders are @p1..@pN.
type Dialect struct{}

func init() {
	storage.Register("mssql", Dialect{}, New)
}

// New opens cfg.DSN with the "sqlserver" driver registered by go-mssqldb and
// validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	return storage.OpenSQL(ctx, "sqlserver", cfg.DSN, 4, Dialect{})
}

func (Dialect) ColumnType(k record.Kind) string {
	switch k {
	case record.Integer:
		return "BIGINT"
	case record.Float:
		return "FLOAT"
	case record.Boolean:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return wrapCreateIfMissing(t.Name, t.ColumnDefs(mssqlIdent)), nil
}

func (Dialect) InsertSQL(table string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("@p%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		mssqlTableIdent(table), storage.JoinIdents(columns, mssqlIdent), strings.Join(ph, ", "))
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	quoted := mssqlTableIdent(tableName)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(quoted, "'", "''"),
		quoted,
		innerDefs,
	)
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.imports" -> [dbo].[imports]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
