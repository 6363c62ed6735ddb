package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/basekick-labs/arcsink/internal/config"
	"github.com/google/uuid"
)

// Stats is a point-in-time view of a subscriber's counters
type Stats struct {
	Broker           string    `json:"broker"`
	ClientID         string    `json:"client_id"`
	Status           string    `json:"status"`
	MessagesReceived int64     `json:"messages_received"`
	MessagesWritten  int64     `json:"messages_written"`
	MessagesSkipped  int64     `json:"messages_skipped"`
	MessagesFailed   int64     `json:"messages_failed"`
	BytesReceived    int64     `json:"bytes_received"`
	Reconnects       int64     `json:"reconnects"`
	LastMessageAt    time.Time `json:"last_message_at,omitempty"`
	ConnectedSince   time.Time `json:"connected_since,omitempty"`
}

var validSchemes = []string{"tcp://", "ssl://", "ws://", "wss://", "mqtt://", "mqtts://"}

// ValidateConfig checks the subscriber settings before any connection attempt
func ValidateConfig(cfg *config.MQTTConfig) error {
	if cfg == nil {
		return errors.New("mqtt config is required")
	}
	if cfg.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if err := validateBrokerURL(cfg.Broker); err != nil {
		return fmt.Errorf("invalid mqtt.broker: %w", err)
	}
	if len(cfg.Topics) == 0 {
		return errors.New("mqtt.topics must name at least one topic")
	}
	for _, topic := range cfg.Topics {
		if strings.TrimSpace(topic) == "" {
			return errors.New("mqtt.topics contains an empty topic")
		}
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.QoS)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("mqtt.tls_cert_file and mqtt.tls_key_file must be set together")
	}
	return nil
}

func validateBrokerURL(brokerURL string) error {
	hasValidScheme := false
	for _, scheme := range validSchemes {
		if strings.HasPrefix(brokerURL, scheme) {
			hasValidScheme = true
			break
		}
	}
	if !hasValidScheme {
		return fmt.Errorf("must start with one of: %v", validSchemes)
	}

	parsed, err := url.Parse(brokerURL)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// clientID returns the configured id or a generated arcsink-<uuid>
func clientID(cfg *config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "arcsink-" + uuid.NewString()
}

// usesTLS reports whether the broker scheme or the file settings ask for TLS
func usesTLS(cfg *config.MQTTConfig) bool {
	for _, scheme := range []string{"ssl://", "wss://", "mqtts://"} {
		if strings.HasPrefix(cfg.Broker, scheme) {
			return true
		}
	}
	return cfg.TLSCAFile != "" || cfg.TLSCertFile != "" || cfg.TLSInsecureSkipVerify
}

func buildTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
	}

	if cfg.TLSCAFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
