package store

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/basekick-labs/arcsink/internal/config"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Row is the row format accepted by Arc's MessagePack endpoint
type Row struct {
	Measurement string                 `msgpack:"m"`
	Time        int64                  `msgpack:"t"` // microseconds
	Fields      map[string]interface{} `msgpack:"fields"`
	Tags        map[string]string      `msgpack:"tags,omitempty"`
}

// NewRow converts a record to an Arc row. Tag values are sent as text.
func NewRow(rec *models.WriteRecord) *Row {
	row := &Row{
		Measurement: rec.Measurement,
		Time:        rec.Time.UnixMicro(),
		Fields:      make(map[string]interface{}, len(rec.Fields)),
	}
	for name, v := range rec.Fields {
		row.Fields[name] = models.Native(v)
	}
	if len(rec.Tags) > 0 {
		row.Tags = make(map[string]string, len(rec.Tags))
		for name, v := range rec.Tags {
			row.Tags[name] = models.FormatValue(v)
		}
	}
	return row
}

// MsgPackWriter writes records to Arc's native /api/v1/write/msgpack endpoint
type MsgPackWriter struct {
	endpoint string
	database string
	token    string
	client   *http.Client
	logger   zerolog.Logger
}

// NewMsgPackWriter creates a writer for Arc's MessagePack endpoint
func NewMsgPackWriter(cfg *config.StoreConfig, client *http.Client, logger zerolog.Logger) *MsgPackWriter {
	return &MsgPackWriter{
		endpoint: strings.TrimRight(cfg.URI, "/") + "/api/v1/write/msgpack",
		database: cfg.Database,
		token:    cfg.Token,
		client:   client,
		logger:   logger.With().Str("component", "store-arc").Logger(),
	}
}

// Write sends one record as a single MessagePack row
func (w *MsgPackWriter) Write(ctx context.Context, rec *models.WriteRecord) error {
	data, err := msgpack.Marshal(NewRow(rec))
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/msgpack")
	if w.database != "" {
		req.Header.Set("x-arc-database", w.database)
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	if err := do(w.client, req); err != nil {
		return err
	}

	w.logger.Debug().
		Str("measurement", rec.Measurement).
		Int("bytes", len(data)).
		Msg("Wrote row")
	return nil
}

// Close releases idle connections
func (w *MsgPackWriter) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
