// The TableSpec types live here so the converter and every backend package can
// share them without import cycles.
package storage

import (
	"fmt"
	"strings"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/schema"
)

type TableSpec struct {
	Name    string       `json:"name" yaml:"name"`
	Columns []ColumnSpec `json:"columns" yaml:"columns"`
}

type ColumnSpec struct {
	Name string      `json:"name" yaml:"name"`
	Kind record.Kind `json:"-" yaml:"-"`
	Type string      `json:"type" yaml:"type"`
}

// TableFromSchema builds the TableSpec for s, with column types spelled by d.
func TableFromSchema(name string, s schema.Schema, d Dialect) TableSpec {
	cols := make([]ColumnSpec, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = ColumnSpec{Name: c.Name, Kind: c.Kind, Type: d.ColumnType(c.Kind)}
	}
	return TableSpec{Name: name, Columns: cols}
}

// Validate rejects specs no backend can create.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: empty column name", t.Name)
		}
		if strings.TrimSpace(c.Type) == "" {
			return fmt.Errorf("table %s: column %s type is empty", t.Name, c.Name)
		}
		// Identifiers are case-insensitive in most backends.
		k := strings.ToLower(c.Name)
		if seen[k] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[k] = true
	}
	return nil
}

// ColumnDefs joins "<ident> <type>" pairs with quote applied to each name.
func (t TableSpec) ColumnDefs(quote func(string) string) string {
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = quote(c.Name) + " " + c.Type
	}
	return strings.Join(parts, ", ")
}

// JoinIdents quotes and comma-joins identifiers.
func JoinIdents(names []string, quote func(string) string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return strings.Join(out, ", ")
}
