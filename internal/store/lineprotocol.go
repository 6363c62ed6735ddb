// Package store writes assembled records to a time-series endpoint.
//
// Two backends are supported: the InfluxDB 1.x write API (line protocol) and
// Arc's native MessagePack endpoint.
//
// Line Protocol Format:
//
//	measurement[,tag_key=tag_value...] field_key=field_value[,field_key=field_value...] timestamp
package store

import (
	"sort"
	"strconv"
	"strings"

	"github.com/basekick-labs/arcsink/pkg/models"
)

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
	keyEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
	stringEscaper      = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// EncodeLine encodes a record as a single line protocol line (without trailing newline).
// Tag and field keys are sorted so equal records always encode to equal bytes.
// Tags whose text is empty are omitted, as line protocol has no empty tag values.
func EncodeLine(rec *models.WriteRecord) []byte {
	var b strings.Builder

	b.WriteString(measurementEscaper.Replace(rec.Measurement))

	for _, key := range sortedKeys(rec.Tags) {
		value := models.FormatValue(rec.Tags[key])
		if value == "" {
			continue
		}
		b.WriteByte(',')
		b.WriteString(keyEscaper.Replace(key))
		b.WriteByte('=')
		b.WriteString(keyEscaper.Replace(value))
	}

	b.WriteByte(' ')
	for i, key := range sortedKeys(rec.Fields) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(keyEscaper.Replace(key))
		b.WriteByte('=')
		b.WriteString(formatField(rec.Fields[key]))
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(rec.Time.UnixNano(), 10))

	return []byte(b.String())
}

// formatField renders a field value with its line protocol type indicator:
// 'i' for integers, 'u' for unsigned integers, quotes for strings
func formatField(v models.Value) string {
	switch x := v.(type) {
	case models.Bool:
		return strconv.FormatBool(bool(x))
	case models.Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case models.Int:
		return strconv.FormatInt(int64(x), 10) + "i"
	case models.Uint:
		return strconv.FormatUint(uint64(x), 10) + "u"
	case models.Text:
		return `"` + stringEscaper.Replace(string(x)) + `"`
	default:
		return `""`
	}
}

func sortedKeys(m map[string]models.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
