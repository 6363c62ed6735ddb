// Package extract evaluates compiled mapping sets against JSON documents and
// assembles the resulting typed values into write records.
package extract

import (
	"errors"
	"time"

	"github.com/basekick-labs/arcsink/internal/mapping"
	"github.com/basekick-labs/arcsink/pkg/models"
)

// Source is an incoming event as seen by the builder
type Source interface {
	// Time returns the event time, or the zero time when the event carries none
	Time() time.Time
	// Payload returns the decoded document that field mappings are evaluated against
	Payload() (interface{}, error)
	// Document returns the decoded envelope that tag mappings are evaluated against
	Document() (interface{}, error)
}

// Accumulate evaluates every mapping in set against doc and calls put for each
// mapping that matched exactly once and coerced successfully. It returns the
// number of values passed to put and stops at the first error.
func Accumulate(set *mapping.Set, doc interface{}, put func(name string, v models.Value)) (int, error) {
	num := 0

	for _, p := range set.Paths() {
		matches, err := p.Select(doc)
		if err != nil {
			return num, &SelectorError{Path: p.Expression(), Details: err.Error(), Err: err}
		}

		switch len(matches) {
		case 0:
			// No value, don't add
			continue
		case 1:
			v, err := Coerce(matches[0], p)
			if err != nil {
				return num, err
			}
			put(p.Name(), v)
			num++
		default:
			return num, newAmbiguousSelection(p.Expression(), len(matches))
		}
	}

	return num, nil
}

// AddFields evaluates field mappings into the record payload
func AddFields(rec *models.WriteRecord, set *mapping.Set, doc interface{}) (int, error) {
	return Accumulate(set, doc, rec.AddField)
}

// AddTags evaluates tag mappings into the record metadata
func AddTags(rec *models.WriteRecord, set *mapping.Set, doc interface{}) (int, error) {
	return Accumulate(set, doc, rec.AddTag)
}

// Builder turns events into write records using shared, read-only mapping sets.
// A Builder is safe for concurrent use.
type Builder struct {
	measurement string
	fields      *mapping.Set
	tags        *mapping.Set
	now         func() time.Time
}

// NewBuilder creates a builder writing into the given measurement
func NewBuilder(measurement string, fields, tags *mapping.Set) *Builder {
	return &Builder{
		measurement: measurement,
		fields:      fields,
		tags:        tags,
		now:         time.Now,
	}
}

// Measurement returns the configured measurement name
func (b *Builder) Measurement() string { return b.measurement }

// Fields returns the field mapping set
func (b *Builder) Fields() *mapping.Set { return b.fields }

// Tags returns the tag mapping set
func (b *Builder) Tags() *mapping.Set { return b.tags }

// Build assembles a write record for src.
//
// It returns (nil, nil) when no field mapping produced a value: there is nothing
// to write and tag mappings are not evaluated. On error no record is returned.
func (b *Builder) Build(src Source) (*models.WriteRecord, error) {
	ts := src.Time()
	if ts.IsZero() {
		ts = b.now()
	}
	rec := models.NewWriteRecord(b.measurement, ts)

	payload, err := src.Payload()
	if err != nil {
		return nil, asPayloadError(err)
	}

	num, err := AddFields(rec, b.fields, payload)
	if err != nil {
		return nil, err
	}
	if num == 0 {
		return nil, nil
	}

	envelope, err := src.Document()
	if err != nil {
		return nil, asPayloadError(err)
	}

	if _, err := AddTags(rec, b.tags, envelope); err != nil {
		return nil, err
	}

	return rec, nil
}

func asPayloadError(err error) error {
	var parseErr *PayloadParseError
	if errors.As(err, &parseErr) {
		return err
	}
	return &PayloadParseError{Details: err.Error(), Err: err}
}
