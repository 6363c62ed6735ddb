package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/basekick-labs/arcsink/internal/config"
	"github.com/basekick-labs/arcsink/internal/event"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/internal/pipeline"
)

// ErrPayloadTooLarge is returned for messages above the configured payload limit
var ErrPayloadTooLarge = errors.New("mqtt message exceeds size limit")

// Subscriber receives structured-mode CloudEvents from an MQTT broker and
// hands each one to the processor. Messages are never retried; a failed
// message is logged and counted.
type Subscriber struct {
	config    *config.MQTTConfig
	clientID  string
	client    pahomqtt.Client
	processor *pipeline.Processor
	logger    zerolog.Logger

	// Messages larger than this are dropped before parsing; 0 disables the check
	maxPayloadSize int64

	// Runtime state
	mu             sync.RWMutex
	running        bool
	connectedSince time.Time
	lastMessageAt  time.Time

	// Statistics
	messagesReceived atomic.Int64
	messagesWritten  atomic.Int64
	messagesSkipped  atomic.Int64
	messagesFailed   atomic.Int64
	bytesReceived    atomic.Int64
	reconnects       atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a new MQTT subscriber. maxPayloadSize caps the size of
// a single message, the same limit the HTTP receiver applies to request bodies.
func NewSubscriber(cfg *config.MQTTConfig, processor *pipeline.Processor, maxPayloadSize int64, logger zerolog.Logger) *Subscriber {
	id := clientID(cfg)
	return &Subscriber{
		config:         cfg,
		clientID:       id,
		processor:      processor,
		logger:         logger.With().Str("component", "mqtt").Str("client_id", id).Logger(),
		maxPayloadSize: maxPayloadSize,
		ctx:            context.Background(),
		cancel:         func() {},
	}
}

// Start connects to the broker. Topics are subscribed from the connect
// handler so they are restored after every automatic reconnect. Cancelling
// ctx aborts in-flight writes.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("subscriber already running")
	}
	s.mu.Unlock()

	opts, err := s.buildClientOptions()
	if err != nil {
		return fmt.Errorf("failed to build client options: %w", err)
	}

	client := pahomqtt.NewClient(opts)

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.client = client
	s.mu.Unlock()

	s.logger.Info().Str("broker", s.config.Broker).Strs("topics", s.config.Topics).Msg("Connecting to MQTT broker")

	token := client.Connect()
	if !token.WaitTimeout(s.config.ConnectTimeout) {
		s.cancel()
		return fmt.Errorf("connection timeout after %s", s.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		s.cancel()
		return fmt.Errorf("connection failed: %w", err)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Msg("Connected to MQTT broker")
	return nil
}

// Stop unsubscribes and disconnects from the broker
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.mu.RLock()
	cancel := s.cancel
	client := s.client
	s.mu.RUnlock()
	cancel()

	if client != nil && client.IsConnected() {
		if token := client.Unsubscribe(s.config.Topics...); !token.WaitTimeout(time.Second) {
			s.logger.Warn().Msg("Timed out unsubscribing from topics")
		}
		client.Disconnect(1000)
	}

	metrics.Get().SetMQTTConnected(false)
	s.logger.Info().Msg("Disconnected from MQTT broker")
	return nil
}

// IsRunning returns whether the subscriber is running
func (s *Subscriber) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IsConnected reports whether the client currently holds a broker connection
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsConnectionOpen()
}

// GetStats returns current statistics
func (s *Subscriber) GetStats() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "stopped"
	if s.running {
		status = "running"
	}

	return &Stats{
		Broker:           s.config.Broker,
		ClientID:         s.clientID,
		Status:           status,
		MessagesReceived: s.messagesReceived.Load(),
		MessagesWritten:  s.messagesWritten.Load(),
		MessagesSkipped:  s.messagesSkipped.Load(),
		MessagesFailed:   s.messagesFailed.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		Reconnects:       s.reconnects.Load(),
		LastMessageAt:    s.lastMessageAt,
		ConnectedSince:   s.connectedSince,
	}
}

func (s *Subscriber) buildClientOptions() (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.clientID)

	opts.SetKeepAlive(s.config.KeepAlive)
	opts.SetConnectTimeout(s.config.ConnectTimeout)

	opts.SetAutoReconnect(true)
	if s.config.ReconnectMax > 0 {
		opts.SetMaxReconnectInterval(s.config.ReconnectMax)
	}

	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
	}
	if s.config.Password != "" {
		opts.SetPassword(s.config.Password)
	}

	if usesTLS(s.config) {
		tlsConfig, err := buildTLSConfig(s.config)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	opts.SetReconnectingHandler(s.onReconnecting)

	opts.SetCleanSession(s.config.CleanSession)

	return opts, nil
}

func (s *Subscriber) onConnect(client pahomqtt.Client) {
	s.logger.Info().Msg("MQTT connection established, subscribing to topics")

	for _, topic := range s.config.Topics {
		token := client.Subscribe(topic, byte(s.config.QoS), s.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to topic")
			continue
		}
		s.logger.Info().Str("topic", topic).Int("qos", s.config.QoS).Msg("Subscribed to topic")
	}

	s.mu.Lock()
	s.connectedSince = time.Now()
	s.mu.Unlock()

	metrics.Get().SetMQTTConnected(true)
}

func (s *Subscriber) onConnectionLost(_ pahomqtt.Client, err error) {
	s.logger.Warn().Err(err).Msg("MQTT connection lost")
	metrics.Get().SetMQTTConnected(false)
}

func (s *Subscriber) onReconnecting(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
	s.reconnects.Add(1)
	s.logger.Info().Int64("reconnect_count", s.reconnects.Load()).Msg("Attempting to reconnect to MQTT broker")
}

func (s *Subscriber) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	if err := s.handleMessage(msg.Topic(), msg.Payload()); err != nil {
		s.logger.Error().
			Err(err).
			Str("topic", msg.Topic()).
			Int("payload_size", len(msg.Payload())).
			Msg("Failed to process MQTT message")
	}
}

// handleMessage parses one structured CloudEvent and processes it
func (s *Subscriber) handleMessage(topic string, payload []byte) error {
	m := metrics.Get()
	m.IncEventsReceived(metrics.TransportMQTT)

	s.messagesReceived.Add(1)
	s.bytesReceived.Add(int64(len(payload)))

	s.mu.Lock()
	s.lastMessageAt = time.Now()
	ctx := s.ctx
	s.mu.Unlock()

	if s.maxPayloadSize > 0 && int64(len(payload)) > s.maxPayloadSize {
		s.messagesFailed.Add(1)
		m.IncEventsFailed(metrics.ReasonEnvelope)
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(payload), s.maxPayloadSize)
	}

	ev, err := event.ParseStructured(payload)
	if err != nil {
		s.messagesFailed.Add(1)
		m.IncEventsFailed(metrics.ReasonEnvelope)
		return err
	}
	outcome, err := s.processor.Process(ctx, ev)
	if err != nil {
		s.messagesFailed.Add(1)
		return err
	}

	s.logger.Trace().Str("topic", topic).Str("event_id", ev.ID).Str("outcome", outcome.String()).Msg("Message processed")

	switch outcome {
	case pipeline.OutcomeWritten:
		s.messagesWritten.Add(1)
	case pipeline.OutcomeSkipped:
		s.messagesSkipped.Add(1)
	}
	return nil
}
