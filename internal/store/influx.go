package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/basekick-labs/arcsink/internal/config"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 4096

// LineProtocolWriter writes records through the InfluxDB 1.x write API.
// Arc serves the same endpoint, so either can sit behind it.
type LineProtocolWriter struct {
	endpoint string
	username string
	password string
	gzip     bool
	client   *http.Client
	logger   zerolog.Logger
}

// NewLineProtocolWriter creates a writer for {uri}/write?db={database}&precision=ns
func NewLineProtocolWriter(cfg *config.StoreConfig, client *http.Client, logger zerolog.Logger) *LineProtocolWriter {
	q := url.Values{}
	q.Set("db", cfg.Database)
	q.Set("precision", "ns")

	return &LineProtocolWriter{
		endpoint: strings.TrimRight(cfg.URI, "/") + "/write?" + q.Encode(),
		username: cfg.Username,
		password: cfg.Password,
		gzip:     cfg.Gzip,
		client:   client,
		logger:   logger.With().Str("component", "store-influx").Logger(),
	}
}

// Write sends one record as a single line
func (w *LineProtocolWriter) Write(ctx context.Context, rec *models.WriteRecord) error {
	line := EncodeLine(rec)

	body := line
	if w.gzip {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(line); err != nil {
			return fmt.Errorf("failed to compress line: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to compress line: %w", err)
		}
		body = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create write request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if w.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if w.username != "" || w.password != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	if err := do(w.client, req); err != nil {
		return err
	}

	w.logger.Debug().
		Str("measurement", rec.Measurement).
		Int("bytes", len(body)).
		Msg("Wrote line")
	return nil
}

// Close releases idle connections
func (w *LineProtocolWriter) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// do sends req and turns a non-2xx answer into an error carrying the response body
func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("write request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &responseError{status: resp.StatusCode, body: string(msg)}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
