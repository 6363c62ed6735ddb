package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for arcsink
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Log      LogConfig
	MQTT     MQTTConfig
	Mappings Mappings
}

type ServerConfig struct {
	BindAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxPayloadSize int64 // Maximum request body size in bytes
	// TLS Configuration
	TLSEnabled  bool   // Enable HTTPS/TLS
	TLSCertFile string // Path to TLS certificate file (PEM format)
	TLSKeyFile  string // Path to TLS private key file (PEM format)
}

type StoreConfig struct {
	Backend  string // "influx" (line protocol) or "arc" (MessagePack)
	URI      string
	Database string
	Username string
	Password string
	Table    string // Measurement every record is written to
	Token    string // Bearer token for the arc backend
	Gzip     bool
	Timeout  time.Duration

	// Circuit breaker; zero BreakerMaxFailures disables it
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// MQTTConfig configures the optional MQTT subscriber. Each message on a
// subscribed topic is a CloudEvent in structured mode.
type MQTTConfig struct {
	Enabled        bool
	Broker         string
	Topics         []string
	QoS            int
	ClientID       string // Generated when empty
	Username       string
	Password       string
	CleanSession   bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectMax   time.Duration

	TLSCAFile             string
	TLSCertFile           string
	TLSKeyFile            string
	TLSInsecureSkipVerify bool
}

// legacyEnv lists the environment names kept for existing deployments, per key.
// The nested name (e.g. STORE_URI) is bound as well and takes precedence.
var legacyEnv = map[string]string{
	"server.bind_addr":        "BIND_ADDR",
	"server.max_payload_size": "MAX_JSON_PAYLOAD_SIZE",
	"store.uri":               "INFLUXDB_URI",
	"store.database":          "INFLUXDB_DATABASE",
	"store.username":          "INFLUXDB_USERNAME",
	"store.password":          "INFLUXDB_PASSWORD",
	"store.table":             "INFLUXDB_TABLE",
}

// Load loads configuration from the environment and an optional arcsink.toml
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// the working directory and /etc/arcsink/.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		nested := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, nested, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	// Config file (optional)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("arcsink")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/arcsink/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	maxPayloadSize, err := ParseSize(v.GetString("server.max_payload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.max_payload_size: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			BindAddr:       v.GetString("server.bind_addr"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			MaxPayloadSize: maxPayloadSize,
			TLSEnabled:     v.GetBool("server.tls_enabled"),
			TLSCertFile:    v.GetString("server.tls_cert_file"),
			TLSKeyFile:     v.GetString("server.tls_key_file"),
		},
		Store: StoreConfig{
			Backend:            strings.ToLower(v.GetString("store.backend")),
			URI:                v.GetString("store.uri"),
			Database:           v.GetString("store.database"),
			Username:           v.GetString("store.username"),
			Password:           v.GetString("store.password"),
			Table:              v.GetString("store.table"),
			Token:              v.GetString("store.token"),
			Gzip:               v.GetBool("store.gzip"),
			Timeout:            v.GetDuration("store.timeout"),
			BreakerMaxFailures: v.GetInt("store.breaker_max_failures"),
			BreakerOpenTimeout: v.GetDuration("store.breaker_open_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		MQTT: MQTTConfig{
			Enabled:        v.GetBool("mqtt.enabled"),
			Broker:         v.GetString("mqtt.broker"),
			Topics:         splitList(v.GetStringSlice("mqtt.topics")),
			QoS:            v.GetInt("mqtt.qos"),
			ClientID:       v.GetString("mqtt.client_id"),
			Username:       v.GetString("mqtt.username"),
			Password:       v.GetString("mqtt.password"),
			CleanSession:   v.GetBool("mqtt.clean_session"),
			KeepAlive:      v.GetDuration("mqtt.keep_alive"),
			ConnectTimeout: v.GetDuration("mqtt.connect_timeout"),
			ReconnectMax:   v.GetDuration("mqtt.reconnect_max"),

			TLSCAFile:             v.GetString("mqtt.tls_ca_file"),
			TLSCertFile:           v.GetString("mqtt.tls_cert_file"),
			TLSKeyFile:            v.GetString("mqtt.tls_key_file"),
			TLSInsecureSkipVerify: v.GetBool("mqtt.tls_insecure_skip_verify"),
		},
	}

	// File tables first, then the environment, so environment entries win
	cfg.Mappings = Mappings{
		Fields:     lowerKeys(v.GetStringMapString("fields")),
		FieldTypes: lowerKeys(v.GetStringMapString("field_types")),
		Tags:       lowerKeys(v.GetStringMapString("tags")),
	}
	cfg.Mappings.Merge(ParseMappings(os.Environ()))

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_addr", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_payload_size", "65536")
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Store defaults
	v.SetDefault("store.backend", "influx")
	v.SetDefault("store.uri", "")
	v.SetDefault("store.database", "")
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.table", "")
	v.SetDefault("store.token", "")
	v.SetDefault("store.gzip", false)
	v.SetDefault("store.timeout", "10s")
	v.SetDefault("store.breaker_max_failures", 0)
	v.SetDefault("store.breaker_open_timeout", "30s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topics", []string{})
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.clean_session", true)
	v.SetDefault("mqtt.keep_alive", "60s")
	v.SetDefault("mqtt.connect_timeout", "30s")
	v.SetDefault("mqtt.reconnect_max", "60s")
	v.SetDefault("mqtt.tls_ca_file", "")
	v.SetDefault("mqtt.tls_cert_file", "")
	v.SetDefault("mqtt.tls_key_file", "")
	v.SetDefault("mqtt.tls_insecure_skip_verify", false)
}

// Validate checks the settings the service cannot start without
func (cfg *Config) Validate() error {
	switch cfg.Store.Backend {
	case "", "influx", "arc":
	default:
		return fmt.Errorf("unknown store.backend: %s (use influx or arc)", cfg.Store.Backend)
	}
	if cfg.Store.URI == "" {
		return fmt.Errorf("store.uri is required (INFLUXDB_URI)")
	}
	if cfg.Store.Database == "" {
		return fmt.Errorf("store.database is required (INFLUXDB_DATABASE)")
	}
	if cfg.Store.Table == "" {
		return fmt.Errorf("store.table is required (INFLUXDB_TABLE)")
	}
	if cfg.Server.MaxPayloadSize <= 0 {
		return fmt.Errorf("server.max_payload_size must be positive")
	}
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if len(cfg.MQTT.Topics) == 0 {
			return fmt.Errorf("mqtt.topics is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	return cfg.Server.ValidateTLS()
}

// ValidateTLS validates TLS configuration when TLS is enabled.
// Returns nil if TLS is disabled or if configuration is valid.
func (cfg *ServerConfig) ValidateTLS() error {
	if !cfg.TLSEnabled {
		return nil
	}

	if cfg.TLSCertFile == "" {
		return fmt.Errorf("TLS enabled but server.tls_cert_file not specified")
	}
	if cfg.TLSKeyFile == "" {
		return fmt.Errorf("TLS enabled but server.tls_key_file not specified")
	}

	if err := checkFile("certificate", cfg.TLSCertFile); err != nil {
		return err
	}
	return checkFile("key", cfg.TLSKeyFile)
}

func checkFile(kind, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("TLS %s file not found: %s", kind, path)
		}
		return fmt.Errorf("cannot access TLS %s file %s: %w", kind, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("TLS %s path is a directory, not a file: %s", kind, path)
	}
	return nil
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "64KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive) and plain byte counts.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1MB', '64KB', '65536')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1MB', '64KB', '65536')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}

// splitList accepts both a list and a single comma-separated string
// (environment variables arrive as the latter)
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
