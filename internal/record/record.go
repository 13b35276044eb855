// Package record defines the in-memory shape of one parsed JSONL line.
//
// A Record is an ordered list of fields. Order matters: the first record's
// field order becomes the column order of the destination table, and every
// record is inserted with its own field order as the column list.
package record

import "fmt"

// Kind is the discriminator over the scalar JSON value model.
//
// It drives both the storage type label chosen for a column and the Go value
// bound as an insert argument.
type Kind int

const (
	Null Kind = iota
	Integer
	Float
	Text
	Boolean
)

// String returns the lowercase kind name used in logs and error messages.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged scalar.
//
// V holds nil, int64, float64, string or bool according to Kind.
type Value struct {
	Kind Kind
	V    any
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is one parsed input line.
type Record struct {
	Fields []Field
	Line   int // 1-based physical line number in the source
}

// Names returns the field names in record order.
func (r Record) Names() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Name
	}
	return out
}

// Args returns the field values in record order, ready to be bound
// positionally to an INSERT statement.
func (r Record) Args() []any {
	out := make([]any, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Value.V
	}
	return out
}

// Get returns the value for name and whether it exists.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set assigns name=v. An existing field keeps its position and takes the new
// value; a new field is appended.
func (r *Record) Set(name string, v Value) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = v
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: v})
}
