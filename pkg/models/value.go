package models

import (
	"strconv"
)

// Value is a typed scalar written into a record.
// The set of implementations is closed: Bool, Float, Int, Uint and Text.
type Value interface {
	isValue()
}

// Bool is a boolean value
type Bool bool

// Float is a 64-bit floating point value
type Float float64

// Int is a signed 64-bit integer value
type Int int64

// Uint is an unsigned 64-bit integer value
type Uint uint64

// Text is a string value
type Text string

func (Bool) isValue()  {}
func (Float) isValue() {}
func (Int) isValue()   {}
func (Uint) isValue()  {}
func (Text) isValue()  {}

// FormatValue renders a value as plain text without type suffixes or quoting.
// Used for tag values and human-readable output.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case Bool:
		return strconv.FormatBool(bool(x))
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Uint:
		return strconv.FormatUint(uint64(x), 10)
	case Text:
		return string(x)
	default:
		return ""
	}
}

// Native returns the value as its underlying Go type (bool, float64, int64, uint64, string)
func Native(v Value) interface{} {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case Float:
		return float64(x)
	case Int:
		return int64(x)
	case Uint:
		return uint64(x)
	case Text:
		return string(x)
	default:
		return nil
	}
}
