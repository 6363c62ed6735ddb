package mapping

import (
	"fmt"
	"strings"
)

// TypeHint is the type a mapped value must coerce to
type TypeHint int

const (
	TypeNone            TypeHint = iota // Infer from the JSON value
	TypeBoolean                         // JSON boolean
	TypeFloat                           // Any JSON number
	TypeSignedInteger                   // JSON number fitting int64
	TypeUnsignedInteger                 // JSON number fitting uint64
	TypeText                            // JSON string
)

func (h TypeHint) String() string {
	switch h {
	case TypeNone:
		return "none"
	case TypeBoolean:
		return "boolean"
	case TypeFloat:
		return "float"
	case TypeSignedInteger:
		return "integer"
	case TypeUnsignedInteger:
		return "unsigned"
	case TypeText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseTypeHint resolves a type keyword (case-insensitive).
// An empty string means TypeNone.
func ParseTypeHint(s string) (TypeHint, error) {
	switch strings.ToLower(s) {
	case "bool", "boolean":
		return TypeBoolean, nil
	case "float", "number":
		return TypeFloat, nil
	case "int", "integer":
		return TypeSignedInteger, nil
	case "uint", "unsigned":
		return TypeUnsignedInteger, nil
	case "string", "text":
		return TypeText, nil
	case "", "none":
		return TypeNone, nil
	default:
		return TypeNone, &UnknownTypeError{Hint: s}
	}
}

// UnknownTypeError is returned when a type keyword is not recognized
type UnknownTypeError struct {
	Name string // Mapping the hint belongs to, empty when parsed standalone
	Hint string
}

func (e *UnknownTypeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("unknown type: %s", e.Hint)
	}
	return fmt.Sprintf("unknown type for field %s: %s", e.Name, e.Hint)
}
