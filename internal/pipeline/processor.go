// Package pipeline runs events through the record builder and into the store.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/event"
	"github.com/basekick-labs/arcsink/internal/extract"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/internal/store"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/rs/zerolog"
)

// Outcome is the result of processing one event
type Outcome int

const (
	// OutcomeWritten means a record was written to the store
	OutcomeWritten Outcome = iota
	// OutcomeSkipped means no field mapping matched, so nothing was written
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Processor builds and writes one record per event. It is shared by every
// transport and safe for concurrent use.
type Processor struct {
	builder *extract.Builder
	writer  store.Writer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewProcessor creates a processor
func NewProcessor(builder *extract.Builder, writer store.Writer, logger zerolog.Logger) *Processor {
	return &Processor{
		builder: builder,
		writer:  writer,
		metrics: metrics.Get(),
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// Builder returns the record builder
func (p *Processor) Builder() *extract.Builder { return p.builder }

// Process builds the record for ev and writes it. Nothing is retried: a
// failed write is returned to the caller as-is.
func (p *Processor) Process(ctx context.Context, ev *event.Event) (Outcome, error) {
	rec, err := p.builder.Build(ev)
	if err != nil {
		p.metrics.IncEventsFailed(Reason(err))
		p.logger.Debug().Err(err).Str("event_id", ev.ID).Msg("Failed to build record")
		return 0, err
	}

	if rec == nil {
		p.metrics.IncEventsSkipped()
		p.logger.Debug().Str("event_id", ev.ID).Msg("No fields extracted, nothing to write")
		return OutcomeSkipped, nil
	}

	p.metrics.AddFieldsExtracted(len(rec.Fields))
	p.metrics.AddTagsExtracted(len(rec.Tags))

	if err := p.write(ctx, rec); err != nil {
		p.metrics.IncEventsFailed(Reason(err))
		p.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Store write failed")
		return 0, err
	}

	p.metrics.IncEventsWritten()
	p.logger.Debug().
		Str("event_id", ev.ID).
		Int("fields", len(rec.Fields)).
		Int("tags", len(rec.Tags)).
		Msg("Record written")

	return OutcomeWritten, nil
}

func (p *Processor) write(ctx context.Context, rec *models.WriteRecord) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordStoreWrite(time.Since(start))
	}()
	return p.writer.Write(ctx, rec)
}

// Reason classifies an error for the failure counters
func Reason(err error) string {
	var selectorErr *extract.SelectorError
	var payloadErr *extract.PayloadParseError

	switch {
	case errors.As(err, &selectorErr):
		return metrics.ReasonSelector
	case errors.As(err, &payloadErr):
		return metrics.ReasonPayload
	case errors.Is(err, event.ErrInvalidEvent), errors.Is(err, event.ErrBatchUnsupported):
		return metrics.ReasonEnvelope
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return metrics.ReasonBreaker
	default:
		return metrics.ReasonStore
	}
}
