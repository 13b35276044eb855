// Command jsonl2sql loads a JSONL file into a relational table.
//
// Usage:
//
//	jsonl2sql [flags] SOURCE DESTINATION
//	jsonl2sql schema [flags] SOURCE
//	jsonl2sql config [flags]
//	jsonl2sql version
//
// DESTINATION is a database file path for sqlite and a DSN for the server
// backends.
//
// Exit codes:
//   - 0: success.
//   - 1: conversion or configuration failure.
//   - 2: usage error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jsonl2sql/internal/config"
	"jsonl2sql/internal/metrics"
	"jsonl2sql/internal/metrics/datadog"
	"jsonl2sql/internal/storage"
	_ "jsonl2sql/internal/storage/all"
)

// version is set at build time via ldflags.
var version = "dev"

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: capture stdout/stderr, inject a fake metrics backend or a
//     fake repository.
//
// Errors:
//   - MetricsFactory should return a non-nil error for initialization
//     failures; the command then continues with metrics disabled.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	MetricsFactory func(ctx context.Context, opts datadog.Options) (metrics.Backend, error)

	// NewRepository overrides storage.New when non-nil.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// usageError marks errors that map to exit code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		MetricsFactory: func(ctx context.Context, opts datadog.Options) (metrics.Backend, error) {
			b, err := datadog.NewBackend(ctx, opts)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	})
	stop()
	os.Exit(code)
}

// run executes the command line and returns an exit code.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	root := newRootCmd(&cli{deps: d})
	root.SetArgs(args)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(d.Stderr, "jsonl2sql: %v\n", err)

	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(d.Stderr, "Run '%s --help' for usage.\n", root.CommandPath())
		return 2
	}
	return 1
}

// cli is the state shared by all commands of one invocation.
type cli struct {
	deps

	v       *viper.Viper
	cfg     config.Config
	cfgUsed string

	logger *log.Logger // stage logs, only with --verbose
	warn   *log.Logger // always on stderr
}

func newRootCmd(c *cli) *cobra.Command {
	d := config.Defaults()

	root := &cobra.Command{
		Use:   "jsonl2sql [flags] SOURCE DESTINATION",
		Short: "Load a JSONL file into a relational table",
		Long: `jsonl2sql reads a file of newline-delimited JSON objects and inserts one row
per object into a single table. Column names and types are inferred from the
first object; every later object must have the same fields.

Sources ending in .lz4 are decompressed on the fly. DESTINATION is a database
file for sqlite and a connection string for postgres, mssql and mysql.`,
		Args:          usageArgs(cobra.ExactArgs(2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConvert(cmd.Context(), args[0], args[1])
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default: ./jsonl2sql.yaml)")
	pf.BoolP("verbose", "v", d.Verbose, "log every conversion stage to stderr")
	pf.String("backend", d.Backend, "destination backend: sqlite, postgres, mssql or mysql")
	pf.String("driver", d.Driver, "sqlite driver: modernc (default) or mattn")
	pf.String("table", d.Table, "destination table name")
	pf.String("mode", d.Mode, "error handling: strict, validate or lenient")
	pf.String("metrics-backend", d.Metrics.Backend, "metrics backend: none or datadog")
	pf.String("metrics-tags", d.Metrics.Tags, "extra metric tags, comma-separated k:v pairs")
	pf.String("job", d.Metrics.Job, "job name tag for metrics")

	root.AddCommand(newSchemaCmd(c), newConfigCmd(c), newVersionCmd())
	return root
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"verbose":         "verbose",
	"backend":         "backend",
	"driver":          "driver",
	"table":           "table",
	"mode":            "mode",
	"metrics-backend": "metrics.backend",
	"metrics-tags":    "metrics.tags",
	"job":             "metrics.job",
}

// loadConfig layers defaults, file, environment and flags into c.cfg.
// Validation issues are reported by the commands that need a valid config.
func (c *cli) loadConfig(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	v, used, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	c.v, c.cfg, c.cfgUsed = v, cfg, used

	out := io.Discard
	if cfg.Verbose {
		out = c.Stderr
	}
	c.logger = log.New(out, "", log.LstdFlags)
	c.warn = log.New(c.Stderr, "", log.LstdFlags)
	if used != "" {
		c.logger.Printf("config: file=%s", used)
	}
	return nil
}

// requireValid prints every issue to stderr and fails on any error.
func (c *cli) requireValid() error {
	issues := c.cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(c.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errors.New("configuration is invalid")
	}
	return nil
}

// usageArgs wraps an argument validator so its failures exit with code 2.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
