package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"jsonl2sql/internal/storage"
	_ "jsonl2sql/internal/storage/mysql"
	_ "jsonl2sql/internal/storage/sqlite"
)

func TestNewViper_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	v, used, err := NewViper("")
	require.NoError(t, err)
	assert.Empty(t, used)

	c, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
	assert.Empty(t, c.Validate())
}

func TestNewViper_LayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	doc := "backend: postgres\ntable: events\nmetrics:\n  backend: datadog\n  job: nightly\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jsonl2sql.yaml"), []byte(doc), 0o644))
	t.Setenv("JSONL2SQL_TABLE", "events_env")
	t.Setenv("JSONL2SQL_METRICS_TAGS", "team:data")

	v, used, err := NewViper("")
	require.NoError(t, err)
	assert.Equal(t, "jsonl2sql.yaml", filepath.Base(used))

	c, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Backend)
	assert.Equal(t, "events_env", c.Table, "environment overrides file")
	assert.Equal(t, "datadog", c.Metrics.Backend)
	assert.Equal(t, "nightly", c.Metrics.Job)
	assert.Equal(t, "team:data", c.Metrics.Tags)
	assert.Equal(t, ModeStrict, c.Mode, "unset keys keep defaults")
}

func TestNewViper_ExplicitMissingFileFails(t *testing.T) {
	_, _, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDecode_NormalizesCase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JSONL2SQL_BACKEND", " SQLite ")
	t.Setenv("JSONL2SQL_MODE", "LENIENT")

	v, _, err := NewViper("")
	require.NoError(t, err)
	c, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Backend)
	assert.Equal(t, ModeLenient, c.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		wantPath string
		wantSev  Severity
	}{
		{name: "unknown_backend", mutate: func(c *Config) { c.Backend = "oracle" }, wantPath: "backend", wantSev: SeverityError},
		{name: "empty_table", mutate: func(c *Config) { c.Table = " " }, wantPath: "table", wantSev: SeverityError},
		{name: "bad_mode", mutate: func(c *Config) { c.Mode = "yolo" }, wantPath: "mode", wantSev: SeverityError},
		{name: "bad_driver", mutate: func(c *Config) { c.Driver = "cgo" }, wantPath: "driver", wantSev: SeverityError},
		{name: "driver_on_server_backend", mutate: func(c *Config) { c.Backend = "mysql"; c.Driver = "mattn" }, wantPath: "driver", wantSev: SeverityWarning},
		{name: "bad_metrics_backend", mutate: func(c *Config) { c.Metrics.Backend = "statsd" }, wantPath: "metrics.backend", wantSev: SeverityError},
		{name: "tags_without_metrics", mutate: func(c *Config) { c.Metrics.Tags = "a:b" }, wantPath: "metrics.tags", wantSev: SeverityWarning},
		{name: "datadog_zero_flush", mutate: func(c *Config) { c.Metrics.Backend = "datadog"; c.Metrics.FlushSeconds = 0 }, wantPath: "metrics.flush_seconds", wantSev: SeverityError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Defaults()
			tc.mutate(&c)
			issues := c.Validate()
			require.Len(t, issues, 1, "issues=%v", issues)
			assert.Equal(t, tc.wantPath, issues[0].Path)
			assert.Equal(t, tc.wantSev, issues[0].Severity)
			assert.Equal(t, tc.wantSev == SeverityError, HasErrors(issues))
		})
	}
}

func TestValidate_OnlyKnowsLinkedBackends(t *testing.T) {
	// Backends are registered by whoever links them, not by this package.
	assert.Equal(t, []string{"mysql", "sqlite"}, storage.Kinds())

	c := Defaults()
	c.Backend = "postgres"
	issues := c.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, "backend", issues[0].Path)
	assert.Contains(t, issues[0].Message, "want one of mysql, sqlite")
}

func TestValidate_ReportsEveryIssue(t *testing.T) {
	c := Defaults()
	c.Backend = "oracle"
	c.Mode = "yolo"
	c.Table = ""
	assert.Len(t, c.Validate(), 3)
}

func TestYAML_RoundTrips(t *testing.T) {
	in := Defaults()
	in.Metrics.Tags = "team:data"

	b, err := in.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "table: my_table")

	var out Config
	require.NoError(t, yaml.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
