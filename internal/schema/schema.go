// Package schema infers a destination table shape from the first record and
// checks later records against it.
//
// A Schema is computed exactly once per conversion and never revisited. It
// records column names and record kinds only; the storage type label for a
// kind is chosen by the destination backend.
package schema

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"jsonl2sql/internal/record"
)

// Column is one inferred column.
type Column struct {
	Name string
	Kind record.Kind
}

// Schema is the ordered column set inferred from a record.
type Schema struct {
	Columns []Column
}

// Infer derives a Schema from rec, one column per field in field order.
//
// Inference is purely a function of the record: the same first record always
// yields the same Schema.
func Infer(rec record.Record) Schema {
	cols := make([]Column, len(rec.Fields))
	for i, f := range rec.Fields {
		cols[i] = Column{Name: f.Name, Kind: f.Value.Kind}
	}
	return Schema{Columns: cols}
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the column named name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Fingerprint returns a stable 64-bit hash of column names and kinds.
func (s Schema) Fingerprint() uint64 {
	d := xxhash.New()
	var kb [8]byte
	for _, c := range s.Columns {
		_, _ = d.WriteString(c.Name)
		_, _ = d.Write([]byte{0})
		binary.LittleEndian.PutUint64(kb[:], uint64(c.Kind))
		_, _ = d.Write(kb[:])
	}
	return d.Sum64()
}

// String renders the schema as "name:kind, ..." for logs.
func (s Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ":" + c.Kind.String()
	}
	return strings.Join(parts, ", ")
}

// Accepts reports whether a value of kind v may be stored in a column of
// kind col.
//
// Rules:
//   - Same kind is always accepted.
//   - Null is accepted by every column.
//   - Integer is accepted by a Float column.
//
// Everything else is a mismatch; no coercion is attempted.
func Accepts(col, v record.Kind) bool {
	switch {
	case col == v:
		return true
	case v == record.Null:
		return true
	case col == record.Float && v == record.Integer:
		return true
	default:
		return false
	}
}

// MismatchError reports a record whose shape disagrees with the Schema.
type MismatchError struct {
	Line   int
	Field  string
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema: line %d: field %q: %s", e.Line, e.Field, e.Reason)
}

// Check verifies rec against s.
//
// It fails with *MismatchError on the first problem found, in this order:
// a field that is not a column, a value whose kind the column does not
// accept, then a column the record does not carry.
func (s Schema) Check(rec record.Record) error {
	for _, f := range rec.Fields {
		col, ok := s.Lookup(f.Name)
		if !ok {
			return &MismatchError{Line: rec.Line, Field: f.Name, Reason: "extra field not in table"}
		}
		if !Accepts(col.Kind, f.Value.Kind) {
			return &MismatchError{
				Line:   rec.Line,
				Field:  f.Name,
				Reason: fmt.Sprintf("kind %s does not match column kind %s", f.Value.Kind, col.Kind),
			}
		}
	}
	if len(rec.Fields) == len(s.Columns) {
		return nil
	}
	for _, c := range s.Columns {
		if _, ok := rec.Get(c.Name); !ok {
			return &MismatchError{Line: rec.Line, Field: c.Name, Reason: "missing field"}
		}
	}
	return nil
}
