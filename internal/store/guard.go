package store

import (
	"context"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/pkg/models"
)

type guardedWriter struct {
	next    Writer
	breaker *circuitbreaker.CircuitBreaker
}

// Guard wraps w so writes fail fast with circuitbreaker.ErrCircuitOpen while
// the breaker is open. Failed writes are never retried.
func Guard(w Writer, breaker *circuitbreaker.CircuitBreaker) Writer {
	if breaker == nil {
		return w
	}
	return &guardedWriter{next: w, breaker: breaker}
}

func (g *guardedWriter) Write(ctx context.Context, rec *models.WriteRecord) error {
	return g.breaker.Execute(func() error {
		return g.next.Write(ctx, rec)
	})
}

func (g *guardedWriter) Close() error {
	return g.next.Close()
}
