// Package mapping compiles the configured JSONPath mappings into immutable sets.
//
// A mapping pairs a JSONPath expression with a destination name and a type hint:
//
//	FIELD_AMOUNT=$.value      TYPE_FIELD_AMOUNT=float
//	TAG_SOURCE=$.metadata.src
//
// Mappings are compiled once at startup. Compilation failures are startup errors;
// nothing in this package runs per request except Path.Select.
package mapping

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Path is a compiled mapping. It can only be created through Compile.
type Path struct {
	name     string
	expr     string
	compiled jp.Expr
	hint     TypeHint
}

// Compile parses a JSONPath expression and binds it to a destination name and type hint
func Compile(name, expr string, hint TypeHint) (*Path, error) {
	compiled, err := jp.ParseString(expr)
	if err != nil {
		return nil, &PathSyntaxError{Name: name, Expression: expr, Err: err}
	}

	return &Path{
		name:     name,
		expr:     expr,
		compiled: compiled,
		hint:     hint,
	}, nil
}

// Name returns the destination name of the mapping
func (p *Path) Name() string { return p.name }

// Expression returns the original JSONPath text
func (p *Path) Expression() string { return p.expr }

// Hint returns the expected type of the mapped value
func (p *Path) Hint() TypeHint { return p.hint }

// Select returns every value in doc matched by the compiled expression.
// doc is a decoded JSON tree (map[string]interface{}, []interface{} and scalars).
func (p *Path) Select(doc interface{}) (matches []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches = nil
			err = fmt.Errorf("evaluating %s: %v", p.expr, r)
		}
	}()

	return p.compiled.Get(doc), nil
}

func (p *Path) String() string {
	return fmt.Sprintf("%s -> %s (%s)", p.name, p.expr, p.hint)
}

// PathSyntaxError is returned when a mapping expression is not valid JSONPath
type PathSyntaxError struct {
	Name       string
	Expression string
	Err        error
}

func (e *PathSyntaxError) Error() string {
	return fmt.Sprintf("failed to parse JSON path for %s (%q): %v", e.Name, e.Expression, e.Err)
}

func (e *PathSyntaxError) Unwrap() error {
	return e.Err
}
