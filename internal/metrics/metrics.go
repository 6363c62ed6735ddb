package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Transport labels for received events
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Failure reasons for failed events
const (
	ReasonEnvelope = "envelope"
	ReasonSelector = "selector"
	ReasonPayload  = "payload"
	ReasonStore    = "store"
	ReasonBreaker  = "breaker_open"
)

// Metrics holds all arcsink metrics for Prometheus export
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	eventsWritten   prometheus.Counter
	eventsSkipped   prometheus.Counter
	eventsFailed    *prometheus.CounterVec
	fieldsExtracted prometheus.Counter
	tagsExtracted   prometheus.Counter

	storeWriteDuration prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpLatency  prometheus.Histogram

	mqttConnected prometheus.Gauge
	breakerState  prometheus.Gauge

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Info().Msg("Metrics collector initialized")
	return m
}

// New creates a metrics set on its own registry. Most callers want Get.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),
		registry:  reg,
		logger:    zerolog.Nop(),

		eventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcsink_events_received_total",
			Help: "Total number of events received",
		}, []string{"transport"}),
		eventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "arcsink_events_written_total",
			Help: "Total number of events written to the store",
		}),
		eventsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "arcsink_events_skipped_total",
			Help: "Total number of events that produced no fields",
		}),
		eventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcsink_events_failed_total",
			Help: "Total number of events that failed, by reason",
		}, []string{"reason"}),
		fieldsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "arcsink_fields_extracted_total",
			Help: "Total number of field values extracted",
		}),
		tagsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "arcsink_tags_extracted_total",
			Help: "Total number of tag values extracted",
		}),
		storeWriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcsink_store_write_duration_seconds",
			Help:    "Duration of store writes in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcsink_http_requests_total",
			Help: "Total number of HTTP requests, by status code",
		}, []string{"status"}),
		httpLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcsink_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		mqttConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "arcsink_mqtt_connected",
			Help: "1 when the MQTT subscriber is connected",
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "arcsink_store_breaker_state",
			Help: "Store circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler serving the metrics in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Event Metrics
func (m *Metrics) IncEventsReceived(transport string) { m.eventsReceived.WithLabelValues(transport).Inc() }
func (m *Metrics) IncEventsWritten()                  { m.eventsWritten.Inc() }
func (m *Metrics) IncEventsSkipped()                  { m.eventsSkipped.Inc() }
func (m *Metrics) IncEventsFailed(reason string)      { m.eventsFailed.WithLabelValues(reason).Inc() }
func (m *Metrics) AddFieldsExtracted(count int)       { m.fieldsExtracted.Add(float64(count)) }
func (m *Metrics) AddTagsExtracted(count int)         { m.tagsExtracted.Add(float64(count)) }

// RecordStoreWrite records the duration of one store write
func (m *Metrics) RecordStoreWrite(d time.Duration) {
	m.storeWriteDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records one HTTP request with its status code
func (m *Metrics) RecordHTTPRequest(status int, d time.Duration) {
	m.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.httpLatency.Observe(d.Seconds())
}

// MQTT Metrics
func (m *Metrics) SetMQTTConnected(connected bool) {
	if connected {
		m.mqttConnected.Set(1)
		return
	}
	m.mqttConnected.Set(0)
}

// SetBreakerState records the store circuit breaker state
func (m *Metrics) SetBreakerState(state int) { m.breakerState.Set(float64(state)) }

// Uptime returns the time since the metrics were created
func (m *Metrics) Uptime() time.Duration { return time.Since(m.startTime) }
