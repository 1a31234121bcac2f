// Package telemetry samples chassis state and writes it out as CSV rows,
// over a serial port, or as PNG traces.
package telemetry

import "strconv"

// ValueKind tags the content of a Value.
type ValueKind int

const (
	FloatValue ValueKind = iota
	IntValue
	StringValue
)

// Value is one sampled field. Exactly one of the payloads is meaningful,
// selected by Kind.
type Value struct {
	Kind ValueKind
	f    float64
	i    int64
	s    string
}

// Float wraps a float sample.
func Float(v float64) Value { return Value{Kind: FloatValue, f: v} }

// Int wraps an integer sample.
func Int(v int64) Value { return Value{Kind: IntValue, i: v} }

// String wraps a text sample.
func String(v string) Value { return Value{Kind: StringValue, s: v} }

// Format renders the value for CSV and logs. Floats keep three decimals.
func (v Value) Format() string {
	switch v.Kind {
	case IntValue:
		return strconv.FormatInt(v.i, 10)
	case StringValue:
		return v.s
	default:
		return strconv.FormatFloat(v.f, 'f', 3, 64)
	}
}

// Field is a named Value.
type Field struct {
	Name  string
	Value Value
}
