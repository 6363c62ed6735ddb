package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/basekick-labs/arcsink/internal/mapping"
	"github.com/basekick-labs/arcsink/pkg/models"
)

// Coerce converts a single matched value into a typed value according to the
// mapping's type hint.
//
// Explicit hints are strict: no value is converted across JSON shapes and no
// number is narrowed (a fractional or out-of-range number never becomes an
// integer). TypeNone infers from the value itself, trying float before signed
// and unsigned integers, so whole JSON numbers land as Float.
//
// Numbers arrive as native Go numeric kinds. JSON numbers too large for int64
// or float64 arrive as json.Number.
func Coerce(v interface{}, p *mapping.Path) (models.Value, error) {
	switch p.Hint() {
	case mapping.TypeBoolean:
		if b, ok := v.(bool); ok {
			return models.Bool(b), nil
		}
	case mapping.TypeText:
		if s, ok := v.(string); ok {
			return models.Text(s), nil
		}
	case mapping.TypeUnsignedInteger:
		if u, ok := asUint(v); ok {
			return models.Uint(u), nil
		}
	case mapping.TypeSignedInteger:
		if i, ok := asInt(v); ok {
			return models.Int(i), nil
		}
	case mapping.TypeFloat:
		if f, ok := asFloat(v); ok {
			return models.Float(f), nil
		}
	case mapping.TypeNone:
		return infer(v, p)
	}

	return nil, &PayloadParseError{
		Path:    p.Expression(),
		Details: fmt.Sprintf("expected %s value - path: %s, value: %s", p.Hint(), p.Expression(), describe(v)),
	}
}

func infer(v interface{}, p *mapping.Path) (models.Value, error) {
	switch x := v.(type) {
	case string:
		return models.Text(x), nil
	case bool:
		return models.Bool(x), nil
	}

	if isNumber(v) {
		if f, ok := asFloat(v); ok {
			return models.Float(f), nil
		}
		if i, ok := asInt(v); ok {
			return models.Int(i), nil
		}
		if u, ok := asUint(v); ok {
			return models.Uint(u), nil
		}
		return nil, &PayloadParseError{
			Path:    p.Expression(),
			Details: fmt.Sprintf("Unknown numeric type - path: %s, value: %s", p.Expression(), describe(v)),
		}
	}

	return nil, &PayloadParseError{
		Path:    p.Expression(),
		Details: fmt.Sprintf("Invalid value type selected - path: %s, value: %s", p.Expression(), describe(v)),
	}
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case json.Number, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}

	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	if u, ok := asUint(v); ok {
		return float64(u), true
	}
	return 0, false
}

func asInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(string(x), 10, 64)
		return i, err == nil
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint, uint8, uint16, uint32, uint64:
		u, _ := asUint(x)
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	default:
		return 0, false
	}
}

func asUint(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(string(x), 10, 64)
		return u, err == nil
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case int, int8, int16, int32, int64:
		i, _ := asInt(x)
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	default:
		return 0, false
	}
}

// describe renders a matched value for error messages
func describe(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case map[string]interface{}, []interface{}:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
