package mysql

import (
	"strings"
	"testing"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/storage"
)

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name: "app.my_table",
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: Dialect{}.ColumnType(record.Integer)},
			{Name: "score", Type: Dialect{}.ColumnType(record.Float)},
			{Name: "n`ote", Type: Dialect{}.ColumnType(record.Text)},
		},
	}
	got, err := Dialect{}.CreateTableSQL(spec)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS `app`.`my_table` (`id` BIGINT, `score` DOUBLE, `n``ote` LONGTEXT);"
	if got != want {
		t.Fatalf("sql=%q, want %q", got, want)
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	got := Dialect{}.InsertSQL("t", []string{"a", "b"})
	if want := "INSERT INTO `t` (`a`, `b`) VALUES (?, ?)"; got != want {
		t.Fatalf("sql=%q, want %q", got, want)
	}
}

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	got, err := normalizeDSN("user:pw@tcp(localhost:3306)/app")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if !strings.Contains(got, "charset=utf8mb4") {
		t.Fatalf("dsn=%q, want charset=utf8mb4", got)
	}

	kept, err := normalizeDSN("user:pw@tcp(localhost:3306)/app?charset=latin1")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if !strings.Contains(kept, "charset=latin1") {
		t.Fatalf("dsn=%q, explicit charset was overwritten", kept)
	}

	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}
