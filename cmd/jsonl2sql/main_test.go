package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonl2sql/internal/metrics"
	"jsonl2sql/internal/metrics/datadog"
)

// testBackend records what the command sends to the metrics facade.
type testBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	closed   bool
}

func (b *testBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counters == nil {
		b.counters = map[string]float64{}
	}
	b.counters[name] += delta
}
func (b *testBackend) ObserveHistogram(name string, value float64, labels metrics.Labels) {}
func (b *testBackend) Flush() error                                                       { return nil }
func (b *testBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// workdir moves the test into an empty directory so no stray jsonl2sql.yaml is
// picked up.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&n))
	return n
}

func runCLI(t *testing.T, d deps, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	d.Stdout, d.Stderr = &out, &errOut
	code = run(context.Background(), args, d)
	return code, out.String(), errOut.String()
}

func TestRun_UsageErrors(t *testing.T) {
	workdir(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no_args", args: nil},
		{name: "one_arg", args: []string{"in.jsonl"}},
		{name: "three_args", args: []string{"a", "b", "c"}},
		{name: "unknown_flag", args: []string{"--nope", "a", "b"}},
		{name: "schema_without_source", args: []string{"schema"}},
		{name: "config_with_args", args: []string{"config", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, deps{}, tt.args...)
			if code != 2 {
				t.Fatalf("code=%d, want 2 (stderr=%q)", code, stderr)
			}
			if !strings.Contains(stderr, "--help") {
				t.Fatalf("stderr=%q, want usage hint", stderr)
			}
		})
	}
}

func TestRun_ConvertsToSQLite(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl",
		`{"id": 1, "name": "a", "score": 1.5, "ok": true, "note": null}`,
		`{"id": 2, "name": "b", "score": 2, "ok": false, "note": null}`,
	)
	dst := filepath.Join(dir, "out.db")

	code, stdout, stderr := runCLI(t, deps{}, src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
	assert.Equal(t, 2, countRows(t, dst, "my_table"))
}

func TestRun_TableFlagAndVerbose(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`)
	dst := filepath.Join(dir, "out.db")

	code, _, stderr := runCLI(t, deps{}, "--table", "events", "-v", src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 1, countRows(t, dst, "events"))
	assert.Contains(t, stderr, "stage=commit ok rows=1")
}

func TestRun_ConfigFileAndEnvLayering(t *testing.T) {
	dir := workdir(t)
	writeFile(t, dir, "jsonl2sql.yaml", "table: from_file", "mode: lenient")
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`, `not json`, `{"a": 2}`)

	dst := filepath.Join(dir, "file.db")
	code, _, stderr := runCLI(t, deps{}, src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 2, countRows(t, dst, "from_file"))

	t.Setenv("JSONL2SQL_TABLE", "from_env")
	dst = filepath.Join(dir, "env.db")
	code, _, stderr = runCLI(t, deps{}, src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 2, countRows(t, dst, "from_env"))

	dst = filepath.Join(dir, "flag.db")
	code, _, stderr = runCLI(t, deps{}, "--table", "from_flag", src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 2, countRows(t, dst, "from_flag"))
}

func TestRun_MalformedLineFails(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`, `{"a": `)
	dst := filepath.Join(dir, "out.db")

	code, _, stderr := runCLI(t, deps{}, src, dst)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "line 2")
	assert.Equal(t, 0, countRows(t, dst, "my_table"))
}

func TestRun_LenientReportsSkips(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`, `{"a": "x"}`, `{"a": 3}`)
	dst := filepath.Join(dir, "out.db")

	code, _, stderr := runCLI(t, deps{}, "--mode", "lenient", src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, `skipped: schema: line 2: field "a"`)
	assert.Contains(t, stderr, "rows=2 skipped=1")
	assert.Equal(t, 2, countRows(t, dst, "my_table"))
}

func TestRun_InvalidConfigFails(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`)
	dst := filepath.Join(dir, "out.db")

	code, _, stderr := runCLI(t, deps{}, "--mode", "sloppy", "--backend", "oracle", src, dst)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "error: mode: ")
	assert.Contains(t, stderr, "error: backend: ")
	assert.Contains(t, stderr, "configuration is invalid")
	_, err := os.Stat(dst)
	assert.True(t, os.IsNotExist(err), "destination must not be created")
}

func TestRun_MissingConfigFileFails(t *testing.T) {
	dir := workdir(t)
	code, _, stderr := runCLI(t, deps{}, "--config", filepath.Join(dir, "nope.yaml"), "a", "b")
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "read config")
}

func TestRun_DatadogMetrics(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`, `{"a": 2}`)
	dst := filepath.Join(dir, "out.db")

	b := &testBackend{}
	var got datadog.Options
	d := deps{MetricsFactory: func(ctx context.Context, opts datadog.Options) (metrics.Backend, error) {
		got = opts
		return b, nil
	}}

	code, _, stderr := runCLI(t, d,
		"--metrics-backend", "datadog", "--job", "nightly", "--metrics-tags", "env:test, team:data",
		src, dst)
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, "nightly", got.JobName)
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, []string{"env:test", "team:data"}, got.Tags)
	assert.True(t, b.closed, "backend must be closed after the run")
	assert.Equal(t, 1.0, b.counters[metrics.CommitsTotal])
}

func TestRun_DatadogInitFailureFallsBackToNop(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `{"a": 1}`)
	dst := filepath.Join(dir, "out.db")

	d := deps{MetricsFactory: func(ctx context.Context, opts datadog.Options) (metrics.Backend, error) {
		return nil, errors.New("no api key")
	}}
	code, _, stderr := runCLI(t, d, "--metrics-backend", "datadog", src, dst)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "metrics: failed to init datadog backend: no api key; using nop")
	assert.Equal(t, 1, countRows(t, dst, "my_table"))
}

func TestSchemaCmd(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", `not json`, `{"id": 1, "name": "x"}`)

	tests := []struct {
		backend string
		want    []string
	}{
		{backend: "sqlite", want: []string{`CREATE TABLE IF NOT EXISTS "my_table" ("id" INTEGER, "name" TEXT);`}},
		{backend: "postgres", want: []string{`"id" BIGINT`, `"name" TEXT`}},
		{backend: "mssql", want: []string{`[id] BIGINT`, `[name] NVARCHAR(MAX)`}},
		{backend: "mysql", want: []string{"`id` BIGINT", "`name` LONGTEXT"}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, deps{}, "schema", "--backend", tt.backend, src)
			require.Equal(t, 0, code, stderr)
			assert.Contains(t, stdout, "(line 2)")
			assert.Contains(t, stdout, "-- fingerprint: ")
			for _, w := range tt.want {
				assert.Contains(t, stdout, w)
			}
		})
	}
}

func TestSchemaCmd_NoRecords(t *testing.T) {
	dir := workdir(t)
	src := writeFile(t, dir, "in.jsonl", ``)

	code, _, stderr := runCLI(t, deps{}, "schema", src)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "no parseable record")
}

func TestConfigCmd(t *testing.T) {
	workdir(t)
	t.Setenv("JSONL2SQL_MODE", "VALIDATE")

	code, stdout, stderr := runCLI(t, deps{}, "config", "--table", "t1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "table: t1")
	assert.Contains(t, stdout, "mode: validate")
	assert.Contains(t, stdout, "backend: sqlite")
}

func TestConfigCmd_ReportsIssues(t *testing.T) {
	workdir(t)

	code, stdout, stderr := runCLI(t, deps{}, "config", "--backend", "postgres", "--driver", "mattn")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "backend: postgres")
	assert.Contains(t, stderr, "warning: driver: ")

	code, _, stderr = runCLI(t, deps{}, "config", "--metrics-backend", "statsd")
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "error: metrics.backend: ")
}

func TestVersionCmd(t *testing.T) {
	workdir(t)
	// A broken config file must not affect version.
	code, stdout, _ := runCLI(t, deps{}, "version", "--config", "missing.yaml")
	require.Equal(t, 0, code)
	assert.Equal(t, "jsonl2sql dev\n", stdout)
}
