// Package jsonl reads newline-delimited JSON into ordered records.
//
// Each non-blank line must be one JSON object whose values are scalars
// (string, number, boolean or null). Field order is preserved exactly as it
// appears in the line, which a map[string]any decode cannot do; the line is
// walked with gjson instead.
//
// Number handling:
//   - A literal without '.', 'e' or 'E' is an Integer and must fit in int64.
//   - Every other number is a Float.
//
// Errors for an individual line are returned as *ParseError. The Reader stays
// usable after a ParseError, so callers decide whether a bad line is fatal.
package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"

	"jsonl2sql/internal/record"
)

// maxLineBytes bounds a single JSONL line.
const maxLineBytes = 64 << 20

var (
	ErrInvalidJSON  = errors.New("invalid JSON")
	ErrInvalidUTF8  = errors.New("invalid UTF-8")
	ErrKeyCollision = errors.New("distinct keys collide after NFC normalization")
	ErrNotObject    = errors.New("line is not a JSON object")
	ErrNestedValue  = errors.New("nested object/array values are not supported")
	ErrIntegerRange = errors.New("integer out of int64 range")
)

// ParseError reports a line that could not be turned into a record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonl: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader yields one record per non-blank input line.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader wraps r. Lines up to 64 MiB are supported.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{sc: sc}
}

// Line returns the physical line number of the last line consumed.
func (r *Reader) Line() int { return r.line }

// Next returns the next record.
//
// Errors:
//   - io.EOF when the input is exhausted.
//   - *ParseError for a malformed line; the next call continues after it.
//   - Any other error is an I/O failure and the Reader must not be reused.
func (r *Reader) Next() (record.Record, error) {
	for r.sc.Scan() {
		r.line++
		raw := r.sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		return ParseLine(raw, r.line)
	}
	if err := r.sc.Err(); err != nil {
		return record.Record{}, fmt.Errorf("jsonl: read after line %d: %w", r.line, err)
	}
	return record.Record{}, io.EOF
}

// ParseLine parses one JSONL line into a record tagged with lineNo.
//
// Keys are normalized to NFC. Two different keys that normalize to the same
// name fail with ErrKeyCollision; a key repeated verbatim keeps its first
// position and takes the last value.
func ParseLine(raw []byte, lineNo int) (record.Record, error) {
	if !utf8.Valid(raw) {
		return record.Record{}, &ParseError{Line: lineNo, Err: ErrInvalidUTF8}
	}
	if !gjson.ValidBytes(raw) {
		return record.Record{}, &ParseError{Line: lineNo, Err: ErrInvalidJSON}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return record.Record{}, &ParseError{Line: lineNo, Err: ErrNotObject}
	}

	rec := record.Record{Line: lineNo}
	rawKeys := make(map[string]string) // normalized -> key as written
	var ferr error
	root.ForEach(func(key, value gjson.Result) bool {
		name := norm.NFC.String(key.Str)
		if prev, ok := rawKeys[name]; ok && prev != key.Str {
			ferr = fmt.Errorf("field %q: %w with %q", key.Str, ErrKeyCollision, prev)
			return false
		}
		rawKeys[name] = key.Str
		v, err := scalarValue(value)
		if err != nil {
			ferr = fmt.Errorf("field %q: %w", name, err)
			return false
		}
		rec.Set(name, v)
		return true
	})
	if ferr != nil {
		return record.Record{}, &ParseError{Line: lineNo, Err: ferr}
	}
	return rec, nil
}

// scalarValue maps a gjson value onto the record kind model.
func scalarValue(v gjson.Result) (record.Value, error) {
	switch v.Type {
	case gjson.Null:
		return record.Value{Kind: record.Null}, nil
	case gjson.True:
		return record.Value{Kind: record.Boolean, V: true}, nil
	case gjson.False:
		return record.Value{Kind: record.Boolean, V: false}, nil
	case gjson.String:
		return record.Value{Kind: record.Text, V: v.Str}, nil
	case gjson.Number:
		return numberValue(v.Raw)
	default:
		return record.Value{}, ErrNestedValue
	}
}

func numberValue(raw string) (record.Value, error) {
	if isIntegerLiteral(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return record.Value{}, fmt.Errorf("%w: %s", ErrIntegerRange, raw)
		}
		return record.Value{Kind: record.Integer, V: n}, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return record.Value{}, fmt.Errorf("%w: number %s", ErrInvalidJSON, raw)
	}
	return record.Value{Kind: record.Float, V: f}, nil
}

func isIntegerLiteral(raw string) bool {
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '.', 'e', 'E':
			return false
		}
	}
	return true
}
