// Package config holds the effective jsonl2sql configuration.
//
// Values are layered by viper, lowest to highest precedence:
//
//	defaults < YAML file < JSONL2SQL_* environment < command-line flags
//
// Flag binding is done by the CLI; this package owns the defaults, the file and
// environment wiring, decoding, validation and the YAML dump.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"jsonl2sql/internal/storage"
)

const (
	EnvPrefix  = "JSONL2SQL"
	ConfigName = "jsonl2sql"
)

// Modes accepted by Config.Mode.
const (
	ModeStrict   = "strict"
	ModeValidate = "validate"
	ModeLenient  = "lenient"
)

type Config struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	Driver  string        `mapstructure:"driver" yaml:"driver,omitempty"`
	Table   string        `mapstructure:"table" yaml:"table"`
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Verbose bool          `mapstructure:"verbose" yaml:"verbose"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type MetricsConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`
	Job          string `mapstructure:"job" yaml:"job"`
	Tags         string `mapstructure:"tags" yaml:"tags,omitempty"`
	FlushSeconds int    `mapstructure:"flush_seconds" yaml:"flush_seconds"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend: "sqlite",
		Table:   "my_table",
		Mode:    ModeStrict,
		Metrics: MetricsConfig{
			Backend:      "none",
			Job:          "jsonl2sql",
			FlushSeconds: 60,
		},
	}
}

// SetDefaults registers every key with v. AutomaticEnv only resolves keys viper
// already knows, so this must run before Decode.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("driver", d.Driver)
	v.SetDefault("table", d.Table)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.job", d.Metrics.Job)
	v.SetDefault("metrics.tags", d.Metrics.Tags)
	v.SetDefault("metrics.flush_seconds", d.Metrics.FlushSeconds)
}

// NewViper returns a viper instance with defaults, environment binding and the
// config file loaded.
//
// When cfgFile is empty, ./jsonl2sql.yaml is read if present and its absence
// is not an error. An explicit cfgFile must exist.
//
// The returned string is the config file actually used ("" when none).
func NewViper(cfgFile string) (*viper.Viper, string, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return v, "", nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}
	return v, v.ConfigFileUsed(), nil
}

// Decode unmarshals the layered values of v into a Config.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
	return c, nil
}

// YAML renders c as a YAML document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Severity classifies an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks c and returns every finding; it never stops at the first.
// Backend kinds are checked against the storage registry, so the caller must
// link the backends it supports (cmd/jsonl2sql imports storage/all).
func (c Config) Validate() []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := storage.LookupDialect(c.Backend); err != nil {
		add(SeverityError, "backend", "unsupported backend %q (want one of %s)", c.Backend, strings.Join(storage.Kinds(), ", "))
	}

	if c.Driver != "" && c.Backend != "sqlite" {
		add(SeverityWarning, "driver", "driver %q is ignored for backend %q", c.Driver, c.Backend)
	}
	switch strings.ToLower(c.Driver) {
	case "", "modernc", "mattn":
	default:
		add(SeverityError, "driver", "unsupported driver %q (want modernc or mattn)", c.Driver)
	}

	if strings.TrimSpace(c.Table) == "" {
		add(SeverityError, "table", "table name is empty")
	}

	switch c.Mode {
	case ModeStrict, ModeValidate, ModeLenient:
	default:
		add(SeverityError, "mode", "unsupported mode %q (want strict, validate or lenient)", c.Mode)
	}

	switch c.Metrics.Backend {
	case "", "none":
		if c.Metrics.Tags != "" {
			add(SeverityWarning, "metrics.tags", "tags are ignored while metrics are disabled")
		}
	case "datadog":
		if c.Metrics.FlushSeconds <= 0 {
			add(SeverityError, "metrics.flush_seconds", "must be positive, got %d", c.Metrics.FlushSeconds)
		}
	default:
		add(SeverityError, "metrics.backend", "unsupported metrics backend %q (want none or datadog)", c.Metrics.Backend)
	}

	return out
}
