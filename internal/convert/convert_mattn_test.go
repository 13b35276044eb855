//go:build cgo

package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonl2sql/internal/storage/sqlite"
)

func TestConvert_MattnDriverRoundTrip(t *testing.T) {
	src := writeSource(t,
		`{"id": 1, "name": "alice", "score": 9.5, "ok": true, "note": null}`,
		`{"id": 2, "name": "bob", "score": 7, "ok": false, "note": null}`,
	)
	dst := dbPath(t)

	res, err := New(Options{Driver: sqlite.DriverMattn}).Convert(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)

	// The file written through go-sqlite3 is read back through modernc.
	assert.Equal(t, 2, countRows(t, dst, DefaultTable))
	assert.Equal(t, []columnInfo{
		{name: "id", typ: "INTEGER"},
		{name: "name", typ: "TEXT"},
		{name: "score", typ: "REAL"},
		{name: "ok", typ: "BOOLEAN"},
		{name: "note", typ: "BLOB"},
	}, tableColumns(t, dst, DefaultTable))

	var name string
	var score float64
	require.NoError(t, openDB(t, dst).QueryRow(`SELECT name, score FROM my_table WHERE id = 2`).Scan(&name, &score))
	assert.Equal(t, "bob", name)
	assert.Equal(t, 7.0, score)
}
