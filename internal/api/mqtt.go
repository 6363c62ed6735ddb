package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/basekick-labs/arcsink/internal/mqtt"
)

// MQTTSource is the subscriber view the MQTT endpoints report on
type MQTTSource interface {
	GetStats() *mqtt.Stats
	IsConnected() bool
}

// MQTTHandler handles MQTT stats and health endpoints
type MQTTHandler struct {
	source MQTTSource
	logger zerolog.Logger
}

// NewMQTTHandler creates a new MQTT handler
func NewMQTTHandler(source MQTTSource, logger zerolog.Logger) *MQTTHandler {
	return &MQTTHandler{
		source: source,
		logger: logger.With().Str("component", "mqtt-api").Logger(),
	}
}

// RegisterRoutes registers the MQTT stats/health API routes
func (h *MQTTHandler) RegisterRoutes(app *fiber.App) {
	mqttGroup := app.Group("/api/v1/mqtt")

	mqttGroup.Get("/stats", h.handleStats)
	mqttGroup.Get("/health", h.handleHealth)
}

func (h *MQTTHandler) handleStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"stats":   h.source.GetStats(),
	})
}

// handleHealth reports healthy while connected, degraded while the client
// reconnects and unhealthy once the subscriber has stopped
func (h *MQTTHandler) handleHealth(c *fiber.Ctx) error {
	stats := h.source.GetStats()

	status := "healthy"
	code := fiber.StatusOK
	switch {
	case stats.Status != "running":
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	case !h.source.IsConnected():
		status = "degraded"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"healthy":    status == "healthy",
		"broker":     stats.Broker,
		"reconnects": stats.Reconnects,
	})
}
