package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestBuffer_Recent(t *testing.T) {
	b := NewBuffer(3)
	b.Add(Entry{Level: "info", Message: "one"})
	b.Add(Entry{Level: "error", Message: "two"})
	b.Add(Entry{Level: "debug", Message: "three"})
	b.Add(Entry{Level: "warn", Message: "four"})

	assert.Equal(t, 3, b.Count())

	recent := b.Recent(0, "")
	require.Len(t, recent, 3)
	assert.Equal(t, "four", recent[0].Message)
	assert.Equal(t, "two", recent[2].Message)

	warn := b.Recent(10, "warn")
	require.Len(t, warn, 2)
	assert.Equal(t, "four", warn[0].Message)
	assert.Equal(t, "two", warn[1].Message)

	assert.Len(t, b.Recent(1, ""), 1)
}

func TestBufferWriter(t *testing.T) {
	var out bytes.Buffer
	buf := NewBuffer(10)
	l := zerolog.New(NewBufferWriter(buf, &out)).With().Timestamp().Logger()

	l.Warn().Str("component", "pipeline").Str("event_id", "evt-1").Msg("Store write failed")

	assert.Contains(t, out.String(), "Store write failed")
	entries := buf.Recent(0, "")
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "pipeline", entries[0].Component)
	assert.Equal(t, "evt-1", entries[0].EventID)
	assert.False(t, entries[0].Time.IsZero())
}

func TestBufferWriter_IgnoresNonJSON(t *testing.T) {
	buf := NewBuffer(10)
	w := NewBufferWriter(buf, nil)

	n, err := w.Write([]byte("plain text\n"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, 0, buf.Count())
}
