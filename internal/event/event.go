// Package event parses CloudEvents 1.0 envelopes in structured and binary mode
// and exposes the two documents mappings are evaluated against: the payload and
// the JSON serialization of the whole envelope.
package event

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrInvalidEvent is returned when a required attribute is missing or malformed
	ErrInvalidEvent = errors.New("invalid cloud event")

	// ErrBatchUnsupported is returned for batched CloudEvents requests
	ErrBatchUnsupported = errors.New("batched cloud events are not supported")
)

const (
	ContentTypeStructured = "application/cloudevents+json"
	ContentTypeBatch      = "application/cloudevents-batch+json"
	SpecVersion           = "1.0"
)

// DataKind describes how the event data was carried
type DataKind int

const (
	DataNone   DataKind = iota
	DataJSON            // Structured JSON value
	DataString          // Text carried as a JSON string
	DataBinary          // Raw bytes (data_base64 or a binary-mode body)
)

// Event is a CloudEvents 1.0 envelope
type Event struct {
	ID              string
	Source          string
	SpecVersion     string
	Type            string
	Subject         string
	DataContentType string
	DataSchema      string
	Extensions      map[string]interface{}

	time time.Time
	kind DataKind
	data []byte // Raw JSON for DataJSON, text for DataString, bytes for DataBinary
}

// Time returns the event time, or the zero time when the event has none
func (e *Event) Time() time.Time { return e.time }

// DataKind returns how the event data was carried
func (e *Event) DataKind() DataKind { return e.kind }

// SetJSONData sets a JSON payload
func (e *Event) SetJSONData(raw []byte) {
	e.kind = DataJSON
	e.data = raw
}

// SetStringData sets a text payload
func (e *Event) SetStringData(s string) {
	e.kind = DataString
	e.data = []byte(s)
}

// SetBinaryData sets a binary payload
func (e *Event) SetBinaryData(b []byte) {
	e.kind = DataBinary
	e.data = b
}

// Validate checks the required context attributes
func (e *Event) Validate() error {
	if e.SpecVersion != SpecVersion {
		return fmt.Errorf("%w: unsupported specversion %q", ErrInvalidEvent, e.SpecVersion)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Source == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidEvent)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return nil
}

// Payload decodes the event data into a JSON tree.
// Binary MessagePack data is decoded with MessagePack, everything else as JSON.
func (e *Event) Payload() (interface{}, error) {
	switch e.kind {
	case DataJSON, DataString:
		return decodeJSON(e.data)
	case DataBinary:
		if IsMsgPack(e.DataContentType) {
			return decodeMsgPack(e.data)
		}
		return decodeJSON(e.data)
	default:
		return nil, errors.New("Unknown event payload")
	}
}

// Document returns the structured JSON serialization of the envelope, decoded
// back into a JSON tree.
func (e *Event) Document() (interface{}, error) {
	raw, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}

// MarshalJSON encodes the event in the CloudEvents JSON format
func (e *Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Extensions)+10)
	for k, v := range e.Extensions {
		out[k] = v
	}

	out["specversion"] = e.SpecVersion
	out["id"] = e.ID
	out["source"] = e.Source
	out["type"] = e.Type
	if e.Subject != "" {
		out["subject"] = e.Subject
	}
	if e.DataContentType != "" {
		out["datacontenttype"] = e.DataContentType
	}
	if e.DataSchema != "" {
		out["dataschema"] = e.DataSchema
	}
	if !e.time.IsZero() {
		out["time"] = e.time.Format(time.RFC3339Nano)
	}

	switch e.kind {
	case DataJSON:
		out["data"] = json.RawMessage(e.data)
	case DataString:
		out["data"] = string(e.data)
	case DataBinary:
		out["data_base64"] = base64.StdEncoding.EncodeToString(e.data)
	}

	return json.Marshal(out)
}

// IsJSON reports whether a content type carries JSON.
// An empty content type is treated as JSON, as the CloudEvents JSON format does.
func IsJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "" || mt == "application/json" || mt == "text/json" ||
		strings.HasSuffix(mt, "/json") || strings.HasSuffix(mt, "+json")
}

// IsMsgPack reports whether a content type carries MessagePack
func IsMsgPack(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "application/msgpack" || mt == "application/x-msgpack" || mt == "application/vnd.msgpack"
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// decodeJSON parses one JSON value into the tree shape the JSONPath evaluator
// works on. Numbers come back as int64 or float64 so filter comparisons see
// native numerics; integers and decimals too large for either stay json.Number.
func decodeJSON(data []byte) (interface{}, error) {
	return oj.Parse(data, ojg.NumConvNone)
}

func decodeMsgPack(data []byte) (interface{}, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal msgpack: %w", err)
	}
	return v, nil
}
