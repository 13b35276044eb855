// Package mysql is the MySQL / MariaDB destination backend.
package mysql

import (
	"context"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/storage"
)

// Dialect spells MySQL column types and statements.
//
// MySQL implicitly commits an open transaction on DDL, which is one reason
// EnsureTable always runs before the row transaction begins.
type Dialect struct{}

func init() {
	storage.Register("mysql", Dialect{}, New)
}

// New opens cfg.DSN ("user:pass@tcp(host:3306)/db"). The DSN is parsed up
// front so a malformed one fails before any network traffic.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return storage.OpenSQL(ctx, "mysql", dsn, 4, Dialect{})
}

// normalizeDSN defaults the connection charset to utf8mb4 so NFC names and
// values survive intact. An explicit charset in raw is kept.
func normalizeDSN(raw string) (string, error) {
	c, err := driver.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	if strings.Contains(c.FormatDSN(), "charset=") {
		return c.FormatDSN(), nil
	}
	if err := c.Apply(driver.Charset("utf8mb4", "")); err != nil {
		return "", fmt.Errorf("mysql: set charset: %w", err)
	}
	return c.FormatDSN(), nil
}

func (Dialect) ColumnType(k record.Kind) string {
	switch k {
	case record.Integer:
		return "BIGINT"
	case record.Float:
		return "DOUBLE"
	case record.Boolean:
		return "BOOLEAN"
	default:
		return "LONGTEXT"
	}
}

func (Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", tableIdent(t.Name), t.ColumnDefs(mysqlIdent)), nil
}

func (Dialect) InsertSQL(table string, columns []string) string {
	ph := strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableIdent(table), storage.JoinIdents(columns, mysqlIdent), ph)
}

func mysqlIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// tableIdent quotes "db.table" as `db`.`table`.
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mysqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
