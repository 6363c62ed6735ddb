package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/event"
	"github.com/basekick-labs/arcsink/internal/extract"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/internal/pipeline"
	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// errPayloadTooLarge is returned when a decompressed body exceeds the payload limit
var errPayloadTooLarge = errors.New("decompressed payload exceeds size limit")

// Pool for gzip readers; a klauspost gzip.Reader can be reused via Reset()
var gzipReaderPool sync.Pool

// EventHandler receives CloudEvents over HTTP in binary or structured mode
type EventHandler struct {
	processor      *pipeline.Processor
	maxPayloadSize int
	logger         zerolog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(processor *pipeline.Processor, maxPayloadSize int, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		processor:      processor,
		maxPayloadSize: maxPayloadSize,
		logger:         logger.With().Str("component", "event-handler").Logger(),
	}
}

// Handle processes one event.
//
//	202 record written
//	204 no field mapping matched
//	400 invalid event, selector or payload error
//	413 body too large
//	500 store failure
//	503 store circuit open
func (h *EventHandler) Handle(c *fiber.Ctx) error {
	m := metrics.Get()
	m.IncEventsReceived(metrics.TransportHTTP)

	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[strings.ToLower(string(key))] = string(value)
	})

	// Raw body: gzip is handled here with the size limit applied after decompression
	body := c.Request().Body()
	if strings.EqualFold(headers["content-encoding"], "gzip") {
		decompressed, err := h.decompress(body)
		if errors.Is(err, errPayloadTooLarge) {
			m.IncEventsFailed(metrics.ReasonEnvelope)
			return c.Status(fiber.StatusRequestEntityTooLarge).SendString(err.Error())
		}
		if err != nil {
			m.IncEventsFailed(metrics.ReasonEnvelope)
			return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("invalid gzip body: %v", err))
		}
		body = decompressed
	}

	ev, err := event.FromHTTP(headers, body)
	if err != nil {
		m.IncEventsFailed(metrics.ReasonEnvelope)
		h.logger.Debug().Err(err).Msg("Rejected event")
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}

	outcome, err := h.processor.Process(c.UserContext(), ev)
	if err != nil {
		return c.Status(statusFor(err)).SendString(err.Error())
	}

	if outcome == pipeline.OutcomeSkipped {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// statusFor maps a processing error to its response status
func statusFor(err error) int {
	var selectorErr *extract.SelectorError
	var payloadErr *extract.PayloadParseError

	switch {
	case errors.As(err, &selectorErr), errors.As(err, &payloadErr):
		return fiber.StatusBadRequest
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// decompress inflates a gzip body, failing once it grows past the payload limit
func (h *EventHandler) decompress(data []byte) ([]byte, error) {
	var reader *gzip.Reader
	var err error
	if pooled := gzipReaderPool.Get(); pooled != nil {
		reader = pooled.(*gzip.Reader)
		err = reader.Reset(bytes.NewReader(data))
	} else {
		reader, err = gzip.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		if reader != nil {
			gzipReaderPool.Put(reader)
		}
		return nil, err
	}
	defer gzipReaderPool.Put(reader)

	limit := int64(h.maxPayloadSize)
	if limit <= 0 {
		limit = int64(fiber.DefaultBodyLimit)
	}

	out, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, errPayloadTooLarge
	}
	return out, nil
}
