package sqlite

import (
	"testing"

	"jsonl2sql/internal/record"
	"jsonl2sql/internal/storage"
)

func TestColumnType_DistinctLabels(t *testing.T) {
	t.Parallel()

	seen := map[string]record.Kind{}
	for _, k := range []record.Kind{record.Integer, record.Float, record.Text, record.Boolean, record.Null} {
		label := Dialect{}.ColumnType(k)
		if prev, dup := seen[label]; dup {
			t.Fatalf("kinds %s and %s share label %q", prev, k, label)
		}
		seen[label] = k
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name: "my_table",
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: "INTEGER"},
			{Name: `we"ird`, Type: "TEXT"},
		},
	}
	got, err := Dialect{}.CreateTableSQL(spec)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "my_table" ("id" INTEGER, "we""ird" TEXT);`
	if got != want {
		t.Fatalf("sql=%q, want %q", got, want)
	}

	if _, err := (Dialect{}).CreateTableSQL(storage.TableSpec{Name: "t"}); err == nil {
		t.Fatalf("expected error for table without columns")
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		table string
		cols  []string
		want  string
	}{
		{"t", []string{"a"}, `INSERT INTO "t" ("a") VALUES (?)`},
		{"main.t", []string{"a", "b", "c"}, `INSERT INTO "main"."t" ("a", "b", "c") VALUES (?, ?, ?)`},
	}
	for _, tc := range tests {
		if got := (Dialect{}).InsertSQL(tc.table, tc.cols); got != tc.want {
			t.Fatalf("InsertSQL(%s,%v)=%q, want %q", tc.table, tc.cols, got, tc.want)
		}
	}
}

func TestDriverName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "sqlite"},
		{in: "modernc", want: "sqlite"},
		{in: "MATTN", want: "sqlite3"},
		{in: "cgo", wantErr: true},
	}
	for _, tc := range tests {
		got, err := driverName(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("driverName(%q) err=%v, wantErr=%v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("driverName(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
