// Package convert loads a JSONL file into one relational table.
//
// The table's columns are inferred from the first record. Every record after
// that must carry exactly the same field names with conforming kinds. All rows
// of a run are committed in a single transaction.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"jsonl2sql/internal/metrics"
	"jsonl2sql/internal/parser/jsonl"
	"jsonl2sql/internal/record"
	"jsonl2sql/internal/schema"
	"jsonl2sql/internal/storage"
)

// DefaultTable is the destination table name when Options.Table is empty.
const DefaultTable = "my_table"

// Logger is the minimal logging interface used by the converter.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Mode selects how bad lines are handled.
type Mode string

const (
	// ModeStrict aborts on the first error of any kind.
	ModeStrict Mode = "strict"
	// ModeValidate checks every line before opening the destination; any
	// error aborts with nothing written.
	ModeValidate Mode = "validate"
	// ModeLenient skips lines that fail to parse or do not match the schema
	// and commits the rest. Storage errors stay fatal.
	ModeLenient Mode = "lenient"
)

// ParseMode maps a configuration string to a Mode. Empty means strict.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeStrict, nil
	case ModeStrict, ModeValidate, ModeLenient:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Options configures a Converter. The zero value converts into table
// "my_table" of a SQLite file in strict mode.
type Options struct {
	Backend string // storage kind, default "sqlite"
	Driver  string // backend driver variant, see storage.Config
	Table   string
	Mode    Mode
	RunID   string // correlates logs and metrics; generated when empty

	Logger Logger

	// NewRepository is a seam for tests. When nil, storage.New is used.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Table   string
	Schema  schema.Schema // empty when the source held no records
	Rows    int           // rows committed
	Skipped int           // lines skipped in lenient mode

	// Skips aggregates one error per skipped line (a *multierror.Error), or
	// is nil when nothing was skipped.
	Skips error
}

// Converter runs conversions with fixed Options. It holds no per-run state and
// may be reused.
type Converter struct {
	opts Options
}

func New(opts Options) *Converter {
	if opts.Backend == "" {
		opts.Backend = "sqlite"
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Mode == "" {
		opts.Mode = ModeStrict
	}
	if opts.NewRepository == nil {
		opts.NewRepository = storage.New
	}
	return &Converter{opts: opts}
}

// Convert loads src into a SQLite database at dst using the default options.
func Convert(ctx context.Context, src, dst string) error {
	_, err := New(Options{}).Convert(ctx, src, dst)
	return err
}

// Convert loads the JSONL file at src into the destination dst (a file path
// for sqlite, a DSN for server backends).
//
// Behavior:
//   - The destination is opened before the source; for sqlite the database
//     file is created if absent.
//   - The table is created (if absent) when the first record is seen, using
//     that record's field order. An existing table is reused as is.
//   - Each record is inserted with its own field order as the column list.
//   - All rows commit together; on any fatal error nothing is committed, but
//     the table may already exist.
//
// Errors:
//   - *jsonl.ParseError for a malformed line (fatal unless lenient).
//   - *schema.MismatchError for a line that disagrees with the schema (fatal
//     unless lenient).
//   - *storage.StorageError for open, create, insert and commit failures.
//   - ctx.Err() when the context is canceled.
func (c *Converter) Convert(ctx context.Context, src, dst string) (res Result, err error) {
	runID := c.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	res = Result{RunID: runID, Table: c.opts.Table}
	logf := c.logger()
	started := time.Now()

	logf("stage=start run=%s src=%s backend=%s table=%s mode=%s", runID, src, c.opts.Backend, c.opts.Table, c.opts.Mode)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			res.Rows = 0 // nothing was committed
		}
		metrics.RecordStep("convert", status, time.Since(started))
		logf("stage=done run=%s status=%s rows=%d skipped=%d duration=%s", runID, status, res.Rows, res.Skipped, durMS(started))
	}()

	if c.opts.Mode == ModeValidate {
		stepStart := time.Now()
		n, err := c.validate(ctx, src)
		if err != nil {
			metrics.RecordStep("validate", "error", time.Since(stepStart))
			return res, err
		}
		metrics.RecordStep("validate", "ok", time.Since(stepStart))
		logf("stage=validate ok records=%d duration=%s", n, durMS(stepStart))
	}

	stepStart := time.Now()
	repo, err := c.opts.NewRepository(ctx, storage.Config{Kind: c.opts.Backend, DSN: dst, Driver: c.opts.Driver})
	if err != nil {
		metrics.RecordStep("open", "error", time.Since(stepStart))
		return res, storage.Wrap("open", "", err)
	}
	metrics.RecordStep("open", "ok", time.Since(stepStart))

	defer func() {
		if err != nil {
			// Rollback must run even when ctx is what failed.
			if rbErr := repo.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				logf("stage=rollback run=%s err=%v", runID, rbErr)
			}
		}
		if cErr := repo.Close(); cErr != nil {
			logf("stage=close run=%s err=%v", runID, cErr)
		}
	}()

	in, err := jsonl.Open(src)
	if err != nil {
		return res, err
	}
	defer in.Close()

	if err := c.load(ctx, repo, jsonl.NewReader(in), &res); err != nil {
		return res, err
	}

	stepStart = time.Now()
	if err := repo.Commit(ctx); err != nil {
		metrics.RecordStep("commit", "error", time.Since(stepStart))
		return res, err
	}
	metrics.RecordStep("commit", "ok", time.Since(stepStart))
	if res.Rows > 0 {
		metrics.RecordCommit()
	}
	metrics.RecordRecords("inserted", res.Rows)
	logf("stage=commit ok rows=%d duration=%s", res.Rows, durMS(stepStart))

	return res, nil
}

// load streams records from rd into repo. res.Rows counts inserted rows; the
// caller commits.
func (c *Converter) load(ctx context.Context, repo storage.Repository, rd *jsonl.Reader, res *Result) error {
	logf := c.logger()
	lenient := c.opts.Mode == ModeLenient

	var (
		sch   *schema.Schema
		skips *multierror.Error
		read  int
	)
	defer func() {
		metrics.RecordRecords("read", read)
		metrics.RecordRecords("skipped", res.Skipped)
		res.Skips = skips.ErrorOrNil()
	}()

	skip := func(err error) {
		reason := "mismatch"
		var pe *jsonl.ParseError
		if errors.As(err, &pe) {
			reason = "parse"
		}
		metrics.RecordSkip(reason)
		res.Skipped++
		skips = multierror.Append(skips, err)
		logf("stage=skip reason=%s err=%v", reason, err)
	}

	insertStart := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *jsonl.ParseError
			if lenient && errors.As(err, &pe) {
				skip(err)
				continue
			}
			return err
		}
		read++

		if sch == nil {
			s := schema.Infer(rec)
			if err := c.ensureTable(ctx, repo, s); err != nil {
				return err
			}
			sch = &s
			res.Schema = s
		}

		if err := sch.Check(rec); err != nil {
			if lenient {
				skip(err)
				continue
			}
			return err
		}

		if err := repo.InsertRow(ctx, c.opts.Table, rec.Names(), rec.Args()); err != nil {
			return err
		}
		res.Rows++
	}

	metrics.RecordStep("insert", "ok", time.Since(insertStart))
	logf("stage=insert ok rows=%d skipped=%d lines=%d duration=%s", res.Rows, res.Skipped, rd.Line(), durMS(insertStart))
	return nil
}

func (c *Converter) ensureTable(ctx context.Context, repo storage.Repository, s schema.Schema) error {
	start := time.Now()
	spec := storage.TableFromSchema(c.opts.Table, s, repo)
	if err := repo.EnsureTable(ctx, spec); err != nil {
		metrics.RecordStep("ddl", "error", time.Since(start))
		return err
	}
	metrics.RecordStep("ddl", "ok", time.Since(start))
	c.logger()("stage=ddl ok table=%s columns=%d schema=%q fingerprint=%016x duration=%s",
		c.opts.Table, len(s.Columns), s.String(), s.Fingerprint(), durMS(start))
	return nil
}

// validate reads the whole source, parsing every line and checking it against
// the schema of the first record. It touches no destination.
func (c *Converter) validate(ctx context.Context, src string) (int, error) {
	in, err := jsonl.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	rd := jsonl.NewReader(in)
	var (
		sch *schema.Schema
		n   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if sch == nil {
			s := schema.Infer(rec)
			sch = &s
		}
		if err := sch.Check(rec); err != nil {
			return n, err
		}
		n++
	}
}

func (c *Converter) logger() func(format string, v ...any) {
	if c.opts.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return c.opts.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Preview is what the table for a source would look like on a backend.
type Preview struct {
	Line   int // physical line of the record the schema came from
	Schema schema.Schema
	Table  storage.TableSpec
	DDL    string
}

// PreviewSchema infers the schema from the first parseable record of src and
// renders the backend's CREATE statement for table. No destination is opened.
//
// Errors:
//   - the backend kind is not registered
//   - the source cannot be opened or read
//   - the source holds no parseable record
func PreviewSchema(ctx context.Context, src, kind, table string) (Preview, error) {
	if table == "" {
		table = DefaultTable
	}
	d, err := storage.LookupDialect(kind)
	if err != nil {
		return Preview{}, err
	}

	in, err := jsonl.Open(src)
	if err != nil {
		return Preview{}, err
	}
	defer in.Close()

	rd := jsonl.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return Preview{}, err
		}
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return Preview{}, fmt.Errorf("%s: no parseable record", src)
		}
		var pe *jsonl.ParseError
		if errors.As(err, &pe) {
			continue
		}
		if err != nil {
			return Preview{}, err
		}
		return previewFor(rec, d, table)
	}
}

func previewFor(rec record.Record, d storage.Dialect, table string) (Preview, error) {
	s := schema.Infer(rec)
	spec := storage.TableFromSchema(table, s, d)
	ddl, err := d.CreateTableSQL(spec)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Line: rec.Line, Schema: s, Table: spec, DDL: ddl}, nil
}
