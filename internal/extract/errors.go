package extract

import "fmt"

// SelectorError is returned when a mapping cannot be evaluated against a document,
// either because the evaluator failed or because the path matched more than one value.
type SelectorError struct {
	Path    string // JSONPath expression
	Count   int    // Number of matches, 0 when the evaluator itself failed
	Details string
	Err     error
}

func (e *SelectorError) Error() string {
	return "selector error: " + e.Details
}

func (e *SelectorError) Unwrap() error {
	return e.Err
}

func newAmbiguousSelection(path string, count int) *SelectorError {
	return &SelectorError{
		Path:    path,
		Count:   count,
		Details: fmt.Sprintf("selector found more than one value: %d", count),
	}
}

// PayloadParseError is returned when a payload cannot be decoded or a matched
// value does not fit the expected type.
type PayloadParseError struct {
	Path    string // Empty for payload decoding failures
	Details string
	Err     error
}

func (e *PayloadParseError) Error() string {
	return "payload parse error: " + e.Details
}

func (e *PayloadParseError) Unwrap() error {
	return e.Err
}
