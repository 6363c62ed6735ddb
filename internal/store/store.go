package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/config"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/rs/zerolog"
)

// Backend names accepted by New
const (
	BackendInflux = "influx"
	BackendArc    = "arc"
)

// Writer persists a single record
type Writer interface {
	Write(ctx context.Context, rec *models.WriteRecord) error
	Close() error
}

// New creates the writer for the configured backend, guarded by a circuit
// breaker when one is configured.
func New(cfg *config.StoreConfig, logger zerolog.Logger) (Writer, *circuitbreaker.CircuitBreaker, error) {
	if cfg.URI == "" {
		return nil, nil, fmt.Errorf("store uri is required")
	}

	client := &http.Client{Timeout: cfg.Timeout}

	var w Writer
	switch strings.ToLower(cfg.Backend) {
	case "", BackendInflux:
		w = NewLineProtocolWriter(cfg, client, logger)
	case BackendArc:
		w = NewMsgPackWriter(cfg, client, logger)
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}

	if cfg.BreakerMaxFailures <= 0 {
		return w, nil, nil
	}

	breaker := circuitbreaker.New(&circuitbreaker.Config{
		Name:             "store",
		MaxFailures:      cfg.BreakerMaxFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		HalfOpenMaxCalls: 1,
		OnStateChange: func(_ string, _, to circuitbreaker.State) {
			metrics.Get().SetBreakerState(int(to))
		},
	}, logger)

	return Guard(w, breaker), breaker, nil
}

// responseError describes a non-2xx answer from the store
type responseError struct {
	status int
	body   string
}

func (e *responseError) Error() string {
	body := strings.TrimSpace(e.body)
	if body == "" {
		return fmt.Sprintf("store returned status %d", e.status)
	}
	return fmt.Sprintf("store returned status %d: %s", e.status, body)
}
