package extract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/basekick-labs/arcsink/internal/mapping"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPath(t *testing.T, hint mapping.TypeHint) *mapping.Path {
	t.Helper()
	p, err := mapping.Compile("value", "$.value", hint)
	require.NoError(t, err)
	return p
}

func TestCoerce_Explicit(t *testing.T) {
	tests := []struct {
		name     string
		hint     mapping.TypeHint
		input    interface{}
		expected models.Value
	}{
		{"bool", mapping.TypeBoolean, true, models.Bool(true)},
		{"text", mapping.TypeText, "abc", models.Text("abc")},
		{"float from fraction", mapping.TypeFloat, json.Number("12.5"), models.Float(12.5)},
		{"float from whole", mapping.TypeFloat, json.Number("42"), models.Float(42)},
		{"int", mapping.TypeSignedInteger, json.Number("-3"), models.Int(-3)},
		{"uint", mapping.TypeUnsignedInteger, json.Number("18446744073709551615"), models.Uint(18446744073709551615)},
		{"int from msgpack", mapping.TypeSignedInteger, int8(-7), models.Int(-7)},
		{"uint from msgpack", mapping.TypeUnsignedInteger, uint16(7), models.Uint(7)},
		{"uint from positive int", mapping.TypeUnsignedInteger, int64(7), models.Uint(7)},
		{"float from msgpack int", mapping.TypeFloat, int64(3), models.Float(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.input, mustPath(t, tt.hint))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestCoerce_ExplicitMismatch(t *testing.T) {
	tests := []struct {
		name  string
		hint  mapping.TypeHint
		input interface{}
	}{
		{"string as uint", mapping.TypeUnsignedInteger, "5"},
		{"negative as uint", mapping.TypeUnsignedInteger, json.Number("-3")},
		{"negative msgpack as uint", mapping.TypeUnsignedInteger, int64(-3)},
		{"fraction as int", mapping.TypeSignedInteger, json.Number("12.5")},
		{"whole float as int", mapping.TypeSignedInteger, json.Number("12.0")},
		{"exponent as int", mapping.TypeSignedInteger, json.Number("1e3")},
		{"msgpack float as int", mapping.TypeSignedInteger, float64(12)},
		{"overflow as int", mapping.TypeSignedInteger, json.Number("9223372036854775808")},
		{"big uint as int", mapping.TypeSignedInteger, uint64(18446744073709551615)},
		{"number as bool", mapping.TypeBoolean, json.Number("1")},
		{"string as bool", mapping.TypeBoolean, "true"},
		{"number as text", mapping.TypeText, json.Number("1")},
		{"string as float", mapping.TypeFloat, "12.5"},
		{"null as float", mapping.TypeFloat, nil},
		{"object as text", mapping.TypeText, map[string]interface{}{"a": "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.input, mustPath(t, tt.hint))
			assert.Nil(t, v)

			var parseErr *PayloadParseError
			require.True(t, errors.As(err, &parseErr), "expected PayloadParseError, got %v", err)
			assert.Equal(t, "$.value", parseErr.Path)
		})
	}
}

func TestCoerce_Inferred(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected models.Value
	}{
		{"bool", true, models.Bool(true)},
		{"string", "abc", models.Text("abc")},
		// Whole numbers land as Float because float is tried first
		{"whole number", json.Number("42"), models.Float(42)},
		{"fraction", json.Number("12.5"), models.Float(12.5)},
		{"negative", json.Number("-3"), models.Float(-3)},
		{"huge unsigned", json.Number("18446744073709551615"), models.Float(18446744073709551615)},
		{"msgpack int", int64(42), models.Float(42)},
		{"msgpack float32", float32(0.5), models.Float(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.input, mustPath(t, mapping.TypeNone))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestCoerce_InferredRejectsContainers(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"array", []interface{}{json.Number("1")}},
		{"object", map[string]interface{}{"a": json.Number("1")}},
		{"null", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.input, mustPath(t, mapping.TypeNone))

			var parseErr *PayloadParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Contains(t, parseErr.Details, "Invalid value type selected")
			assert.Contains(t, parseErr.Details, "$.value")
		})
	}
}

func TestCoerce_InferredOutOfRangeNumber(t *testing.T) {
	_, err := Coerce(json.Number("1e400"), mustPath(t, mapping.TypeNone))

	var parseErr *PayloadParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Details, "Unknown numeric type")
}
