package config

import (
	"strings"
)

// Environment prefixes for mapping entries
const (
	FieldPrefix     = "FIELD_"
	FieldTypePrefix = "TYPE_FIELD_"
	TagPrefix       = "TAG_"
)

// Mappings holds the raw mapping entries. Keys are lower-cased destination
// names; values are JSONPath expressions (Fields, Tags) or type keywords
// (FieldTypes).
type Mappings struct {
	Fields     map[string]string
	FieldTypes map[string]string
	Tags       map[string]string
}

// ParseMappings extracts mapping entries from KEY=VALUE strings, as returned
// by os.Environ. When two entries fold to the same name the later one wins.
//
//	FIELD_temp=$.data.temperature
//	TYPE_FIELD_temp=float
//	TAG_source=$.source
func ParseMappings(environ []string) Mappings {
	m := Mappings{
		Fields:     make(map[string]string),
		FieldTypes: make(map[string]string),
		Tags:       make(map[string]string),
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(key, FieldTypePrefix):
			if name := strings.TrimPrefix(key, FieldTypePrefix); name != "" {
				m.FieldTypes[strings.ToLower(name)] = value
			}
		case strings.HasPrefix(key, FieldPrefix):
			if name := strings.TrimPrefix(key, FieldPrefix); name != "" {
				m.Fields[strings.ToLower(name)] = value
			}
		case strings.HasPrefix(key, TagPrefix):
			if name := strings.TrimPrefix(key, TagPrefix); name != "" {
				m.Tags[strings.ToLower(name)] = value
			}
		}
	}

	return m
}

// Merge copies every entry of other into m, replacing entries with the same name
func (m *Mappings) Merge(other Mappings) {
	m.Fields = merge(m.Fields, other.Fields)
	m.FieldTypes = merge(m.FieldTypes, other.FieldTypes)
	m.Tags = merge(m.Tags, other.Tags)
}

// Empty reports whether no field mapping is configured
func (m Mappings) Empty() bool {
	return len(m.Fields) == 0
}

func merge(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
