package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/mqtt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeWriter{}, nil)

	status, body := send(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestReady(t *testing.T) {
	breaker := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "store",
		MaxFailures: 1,
		OpenTimeout: time.Hour,
	}, zerolog.Nop())
	s := newTestServer(t, &fakeWriter{}, breaker)

	status, _ := send(t, s, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status, "not listening yet")

	s.ready.Store(true)
	status, _ = send(t, s, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, status)

	breaker.Execute(func() error { return errors.New("down") })
	status, body := send(t, s, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "open")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeWriter{}, nil)

	send(t, s, binaryRequest(`{"temp": 1}`))
	status, body := send(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "arcsink_events_received_total")
	assert.Contains(t, body, `arcsink_http_requests_total{status="202"}`)
}

func TestLogsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeWriter{}, nil)

	status, body := send(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/logs?limit=5&level=error", nil))
	assert.Equal(t, http.StatusOK, status)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, float64(5), resp["limit"])
	assert.Equal(t, "error", resp["level_filter"])
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &fakeWriter{}, nil)

	status, _ := send(t, s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

type stubMQTT struct {
	stats     mqtt.Stats
	connected bool
}

func (s *stubMQTT) GetStats() *mqtt.Stats { return &s.stats }
func (s *stubMQTT) IsConnected() bool     { return s.connected }

func TestMQTTEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		connected  bool
		wantCode   int
		wantHealth string
	}{
		{name: "connected", status: "running", connected: true, wantCode: http.StatusOK, wantHealth: "healthy"},
		{name: "reconnecting", status: "running", connected: false, wantCode: http.StatusOK, wantHealth: "degraded"},
		{name: "stopped", status: "stopped", wantCode: http.StatusServiceUnavailable, wantHealth: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeWriter{}, nil)
			s.RegisterMQTT(&stubMQTT{
				stats:     mqtt.Stats{Broker: "tcp://broker:1883", Status: tt.status, MessagesReceived: 4},
				connected: tt.connected,
			})

			code, body := send(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/mqtt/health", nil))
			assert.Equal(t, tt.wantCode, code)

			var health map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(body), &health))
			assert.Equal(t, tt.wantHealth, health["status"])

			code, body = send(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/mqtt/stats", nil))
			assert.Equal(t, http.StatusOK, code)
			assert.Contains(t, body, `"messages_received":4`)
		})
	}
}
