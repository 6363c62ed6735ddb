package event

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ParseStructured parses an event in the CloudEvents JSON format
func ParseStructured(body []byte) (*Event, error) {
	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(body, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	e := &Event{}
	var data, dataBase64 json.RawMessage

	for key, raw := range attrs {
		var err error
		switch key {
		case "specversion":
			e.SpecVersion, err = stringAttr(key, raw)
		case "id":
			e.ID, err = stringAttr(key, raw)
		case "source":
			e.Source, err = stringAttr(key, raw)
		case "type":
			e.Type, err = stringAttr(key, raw)
		case "subject":
			e.Subject, err = stringAttr(key, raw)
		case "datacontenttype":
			e.DataContentType, err = stringAttr(key, raw)
		case "dataschema":
			e.DataSchema, err = stringAttr(key, raw)
		case "time":
			var s string
			if s, err = stringAttr(key, raw); err == nil {
				e.time, err = parseTime(s)
			}
		case "data":
			data = raw
		case "data_base64":
			dataBase64 = raw
		default:
			var v interface{}
			if v, err = decodeJSON(raw); err == nil {
				if e.Extensions == nil {
					e.Extensions = make(map[string]interface{})
				}
				e.Extensions[key] = v
			}
		}
		if err != nil {
			return nil, err
		}
	}

	switch {
	case data != nil && dataBase64 != nil:
		return nil, fmt.Errorf("%w: both data and data_base64 present", ErrInvalidEvent)
	case dataBase64 != nil:
		encoded, err := stringAttr("data_base64", dataBase64)
		if err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: data_base64: %v", ErrInvalidEvent, err)
		}
		e.SetBinaryData(decoded)
	case data != nil && !bytes.Equal(bytes.TrimSpace(data), []byte("null")):
		setStructuredData(e, data)
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// setStructuredData stores the data member. JSON content types keep the value
// as-is; otherwise a JSON string is carried as text.
func setStructuredData(e *Event, raw json.RawMessage) {
	if !IsJSON(e.DataContentType) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			e.SetStringData(s)
			return
		}
	}
	e.SetJSONData(raw)
}

// FromBinary builds an event from an HTTP binary-mode message.
// headers must be keyed by lower-case header name.
func FromBinary(headers map[string]string, body []byte) (*Event, error) {
	e := &Event{}

	for key, value := range headers {
		if !strings.HasPrefix(key, "ce-") {
			continue
		}
		name := strings.TrimPrefix(key, "ce-")
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}

		switch name {
		case "specversion":
			e.SpecVersion = value
		case "id":
			e.ID = value
		case "source":
			e.Source = value
		case "type":
			e.Type = value
		case "subject":
			e.Subject = value
		case "dataschema":
			e.DataSchema = value
		case "time":
			t, err := parseTime(value)
			if err != nil {
				return nil, err
			}
			e.time = t
		default:
			if e.Extensions == nil {
				e.Extensions = make(map[string]interface{})
			}
			e.Extensions[name] = value
		}
	}

	e.DataContentType = headers["content-type"]

	if len(body) > 0 {
		switch {
		case IsJSON(e.DataContentType):
			e.SetJSONData(body)
		case strings.HasPrefix(mediaType(e.DataContentType), "text/"):
			e.SetStringData(string(body))
		default:
			e.SetBinaryData(body)
		}
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// FromHTTP parses an HTTP request in structured or binary mode based on its content type.
// headers must be keyed by lower-case header name.
func FromHTTP(headers map[string]string, body []byte) (*Event, error) {
	mt := mediaType(headers["content-type"])

	switch {
	case mt == ContentTypeBatch:
		return nil, ErrBatchUnsupported
	case strings.HasPrefix(mt, "application/cloudevents"):
		return ParseStructured(body)
	case headers["ce-specversion"] != "":
		return FromBinary(headers, body)
	default:
		return nil, fmt.Errorf("%w: missing ce-specversion header", ErrInvalidEvent)
	}
}

func stringAttr(key string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: attribute %s must be a string", ErrInvalidEvent, key)
	}
	return s, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time: %v", ErrInvalidEvent, err)
	}
	return t, nil
}
