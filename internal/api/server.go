package api

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/logger"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/internal/pipeline"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Server represents the HTTP event receiver
type Server struct {
	app     *fiber.App
	logger  zerolog.Logger
	config  *ServerConfig
	events  *EventHandler
	breaker *circuitbreaker.CircuitBreaker
	ready   atomic.Bool
}

// ServerConfig holds server configuration
type ServerConfig struct {
	BindAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxPayloadSize  int
	TLSCertFile     string // TLS is enabled when both files are set
	TLSKeyFile      string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		BindAddr:        "127.0.0.1:8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxPayloadSize:  65536,
	}
}

// NewServer creates a new HTTP server with Fiber
func NewServer(config *ServerConfig, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	app := fiber.New(fiber.Config{
		AppName:               "arcsink",
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		BodyLimit:             config.MaxPayloadSize,
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
	})

	// Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request logging middleware
	app.Use(requestLogger(logger))

	return &Server{
		app:    app,
		logger: logger.With().Str("component", "api-server").Logger(),
		config: config,
	}
}

// RegisterRoutes registers the event receiver and the operational endpoints.
// breaker may be nil when the store runs without one.
func (s *Server) RegisterRoutes(processor *pipeline.Processor, breaker *circuitbreaker.CircuitBreaker) {
	s.events = NewEventHandler(processor, s.config.MaxPayloadSize, s.logger)
	s.breaker = breaker

	// CloudEvents receiver
	s.app.Post("/", s.events.Handle)

	// Health check
	s.app.Get("/health", s.healthHandler)

	// Readiness check (for Kubernetes)
	s.app.Get("/ready", s.readyHandler)

	// Metrics endpoint (Prometheus format)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Get().Handler()))

	// Application logs endpoint
	s.app.Get("/api/v1/logs", s.logsHandler)
}

// RegisterMQTT exposes the subscriber's stats and health under /api/v1/mqtt
func (s *Server) RegisterMQTT(source MQTTSource) {
	NewMQTTHandler(source, s.logger).RegisterRoutes(s.app)
}

// healthHandler returns server health status
func (s *Server) healthHandler(c *fiber.Ctx) error {
	uptime := metrics.Get().Uptime()
	return c.JSON(fiber.Map{
		"status":     "ok",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     uptime.String(),
		"uptime_sec": uptime.Seconds(),
	})
}

// readyHandler reports ready once the server listens and the store circuit is not open
func (s *Server) readyHandler(c *fiber.Ctx) error {
	if !s.ready.Load() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "starting",
		})
	}

	state := circuitbreaker.StateClosed
	if s.breaker != nil {
		state = s.breaker.State()
	}
	if state == circuitbreaker.StateOpen {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "store unavailable",
			"store":  state.String(),
		})
	}

	return c.JSON(fiber.Map{
		"status":     "ready",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"store":      state.String(),
		"uptime_sec": metrics.Get().Uptime().Seconds(),
	})
}

// logsHandler returns recent application logs
func (s *Server) logsHandler(c *fiber.Ctx) error {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= logger.DefaultBufferSize {
			limit = parsed
		}
	}

	level := c.Query("level") // e.g., "error", "warn", "info", "debug"
	entries := logger.GetBuffer().Recent(limit, level)

	return c.JSON(fiber.Map{
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"count":        len(entries),
		"limit":        limit,
		"level_filter": level,
		"logs":         entries,
	})
}

// Run listens on the configured address and blocks until the server stops
func (s *Server) Run() error {
	s.logger.Info().
		Str("addr", s.config.BindAddr).
		Bool("tls", s.tlsEnabled()).
		Msg("Starting arcsink HTTP server")

	s.ready.Store(true)
	defer s.ready.Store(false)

	if s.tlsEnabled() {
		return s.app.ListenTLS(s.config.BindAddr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	return s.app.Listen(s.config.BindAddr)
}

func (s *Server) tlsEnabled() bool {
	return s.config.TLSCertFile != "" && s.config.TLSKeyFile != ""
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server gracefully...")
	s.ready.Store(false)

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// GetApp returns the underlying Fiber app
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// customErrorHandler handles Fiber errors
func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("Request error")

		return c.Status(code).SendString(err.Error())
	}
}

// requestLogger logs errors only and collects metrics
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}
		metrics.Get().RecordHTTPRequest(status, duration)

		if status >= 400 {
			logEvent := logger.Warn()
			if status >= 500 {
				logEvent = logger.Error()
			}

			logEvent.
				Str("method", c.Method()).
				Str("path", c.Path()).
				Int("status", status).
				Dur("duration_ms", duration).
				Str("ip", c.IP()).
				Msg("HTTP request error")
		}

		return err
	}
}
