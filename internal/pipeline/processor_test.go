package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/event"
	"github.com/basekick-labs/arcsink/internal/extract"
	"github.com/basekick-labs/arcsink/internal/mapping"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu      sync.Mutex
	records []*models.WriteRecord
	err     error
}

func (w *recordingWriter) Write(_ context.Context, rec *models.WriteRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, rec)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func newProcessor(t *testing.T, w *recordingWriter) *Processor {
	t.Helper()
	fields, err := mapping.NewFieldSet(
		map[string]string{"temp": "$.temp", "count": "$.count"},
		map[string]string{"count": "int"},
	)
	require.NoError(t, err)
	tags, err := mapping.NewTagSet(map[string]string{"source": "$.source"})
	require.NoError(t, err)

	p := NewProcessor(extract.NewBuilder("readings", fields, tags), w, zerolog.Nop())
	p.metrics = metrics.New()
	return p
}

func newEvent(t *testing.T, data string) *event.Event {
	t.Helper()
	ev, err := event.ParseStructured([]byte(fmt.Sprintf(
		`{"specversion":"1.0","id":"evt-1","source":"/plant/a","type":"reading","time":"2024-05-01T00:00:00Z","data":%s}`,
		data)))
	require.NoError(t, err)
	return ev
}

func TestProcess_Written(t *testing.T) {
	w := &recordingWriter{}
	p := newProcessor(t, w)

	outcome, err := p.Process(context.Background(), newEvent(t, `{"temp": 21.5, "count": 4}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, outcome)

	require.Len(t, w.records, 1)
	rec := w.records[0]
	assert.Equal(t, "readings", rec.Measurement)
	assert.Equal(t, models.Float(21.5), rec.Fields["temp"])
	assert.Equal(t, models.Int(4), rec.Fields["count"])
	assert.Equal(t, models.Text("/plant/a"), rec.Tags["source"])
}

func TestProcess_Skipped(t *testing.T) {
	w := &recordingWriter{}
	p := newProcessor(t, w)

	outcome, err := p.Process(context.Background(), newEvent(t, `{"other": 1}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, w.records)
}

func TestProcess_BuildError(t *testing.T) {
	w := &recordingWriter{}
	p := newProcessor(t, w)

	_, err := p.Process(context.Background(), newEvent(t, `{"temp": 1, "count": 1.5}`))

	var payloadErr *extract.PayloadParseError
	require.ErrorAs(t, err, &payloadErr)
	assert.Empty(t, w.records)
}

func TestProcess_StoreError(t *testing.T) {
	w := &recordingWriter{err: errors.New("store returned status 500: boom")}
	p := newProcessor(t, w)

	_, err := p.Process(context.Background(), newEvent(t, `{"temp": 1}`))
	assert.EqualError(t, err, "store returned status 500: boom")
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&extract.SelectorError{Details: "x"}, metrics.ReasonSelector},
		{&extract.PayloadParseError{Details: "x"}, metrics.ReasonPayload},
		{fmt.Errorf("%w: no id", event.ErrInvalidEvent), metrics.ReasonEnvelope},
		{event.ErrBatchUnsupported, metrics.ReasonEnvelope},
		{circuitbreaker.ErrCircuitOpen, metrics.ReasonBreaker},
		{errors.New("connection refused"), metrics.ReasonStore},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "written", OutcomeWritten.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "unknown", Outcome(7).String())
}
