package shutdown

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Closer is a component that releases its resources on shutdown
type Closer interface {
	Close() error
}

// Func is a cleanup step that honours the shutdown deadline
type Func func(ctx context.Context) error

// Priorities for arcsink components. Lower runs first.
const (
	PriorityHTTPServer = 10 // Stop accepting events
	PriorityMQTT       = 20 // Unsubscribe and disconnect
	PriorityStore      = 90 // Release store connections last
)

// Coordinator runs registered cleanup steps once, in priority order,
// within a single timeout
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	steps []step

	once sync.Once
	err  error
	done chan struct{}
}

type step struct {
	name     string
	priority int
	run      Func
}

// New creates a new shutdown coordinator
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		logger:  logger.With().Str("component", "shutdown").Logger(),
		done:    make(chan struct{}),
	}
}

// Register adds a component whose Close runs at the given priority
func (c *Coordinator) Register(name string, component Closer, priority int) {
	c.RegisterHook(name, func(context.Context) error {
		return component.Close()
	}, priority)
}

// RegisterHook adds a cleanup function at the given priority
func (c *Coordinator) RegisterHook(name string, fn Func, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.steps = append(c.steps, step{name: name, priority: priority, run: fn})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown step")
}

// Done is closed once Shutdown has finished
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown runs every registered step. Steps with equal priority keep their
// registration order. A failing step does not stop the ones after it; once
// the timeout passes the remaining steps are skipped. Later calls return
// the first call's result.
func (c *Coordinator) Shutdown() error {
	c.once.Do(func() {
		defer close(c.done)

		c.mu.Lock()
		steps := make([]step, len(c.steps))
		copy(steps, c.steps)
		c.mu.Unlock()

		sort.SliceStable(steps, func(i, j int) bool {
			return steps[i].priority < steps[j].priority
		})

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("steps", len(steps)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()
		var errs []error

		for i, s := range steps {
			if ctx.Err() != nil {
				c.logger.Warn().
					Str("step", s.name).
					Int("skipped", len(steps)-i).
					Msg("Shutdown timeout reached, skipping remaining steps")
				errs = append(errs, ctx.Err())
				break
			}

			if err := s.run(ctx); err != nil {
				c.logger.Error().Err(err).Str("step", s.name).Msg("Shutdown step failed")
				errs = append(errs, err)
				continue
			}
			c.logger.Debug().Str("step", s.name).Msg("Shutdown step complete")
		}

		c.err = errors.Join(errs...)
		c.logger.Info().
			Dur("duration", time.Since(start)).
			Msg("Graceful shutdown complete")
	})

	return c.err
}
