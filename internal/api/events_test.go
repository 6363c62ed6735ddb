package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/extract"
	"github.com/basekick-labs/arcsink/internal/mapping"
	"github.com/basekick-labs/arcsink/internal/pipeline"
	"github.com/basekick-labs/arcsink/pkg/models"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	records []*models.WriteRecord
	err     error
}

func (w *fakeWriter) Write(_ context.Context, rec *models.WriteRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, rec)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestServer(t *testing.T, w *fakeWriter, breaker *circuitbreaker.CircuitBreaker) *Server {
	t.Helper()

	fields, err := mapping.NewFieldSet(map[string]string{
		"temp":  "$.temp",
		"items": "$.items[*]",
	}, nil)
	require.NoError(t, err)
	tags, err := mapping.NewTagSet(map[string]string{"src": "$.source"})
	require.NoError(t, err)

	processor := pipeline.NewProcessor(extract.NewBuilder("readings", fields, tags), w, zerolog.Nop())

	cfg := DefaultServerConfig()
	cfg.MaxPayloadSize = 1024
	s := NewServer(cfg, zerolog.Nop())
	s.RegisterRoutes(processor, breaker)
	return s
}

func binaryRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("ce-specversion", "1.0")
	req.Header.Set("ce-id", "evt-1")
	req.Header.Set("ce-source", "/plant/a")
	req.Header.Set("ce-type", "reading")
	req.Header.Set("ce-time", "2024-05-01T00:00:00Z")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func send(t *testing.T, s *Server, req *http.Request) (int, string) {
	t.Helper()
	resp, err := s.GetApp().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHandle_BinaryWritten(t *testing.T) {
	w := &fakeWriter{}
	s := newTestServer(t, w, nil)

	status, _ := send(t, s, binaryRequest(`{"temp": 20.5}`))
	assert.Equal(t, http.StatusAccepted, status)

	require.Len(t, w.records, 1)
	rec := w.records[0]
	assert.Equal(t, models.Float(20.5), rec.Fields["temp"])
	assert.Equal(t, models.Text("/plant/a"), rec.Tags["src"])
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), rec.Time.UTC())
}

func TestHandle_Structured(t *testing.T) {
	w := &fakeWriter{}
	s := newTestServer(t, w, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"specversion":"1.0","id":"1","source":"/s","type":"t","data":{"temp":3}}`))
	req.Header.Set("Content-Type", "application/cloudevents+json")

	status, _ := send(t, s, req)
	assert.Equal(t, http.StatusAccepted, status)
	require.Len(t, w.records, 1)
	assert.Equal(t, models.Float(3), w.records[0].Fields["temp"])
}

func TestHandle_NothingToWrite(t *testing.T) {
	w := &fakeWriter{}
	s := newTestServer(t, w, nil)

	status, _ := send(t, s, binaryRequest(`{"other": 1}`))
	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, w.records)
}

func TestHandle_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		req      func() *http.Request
		contains string
	}{
		{
			name:     "multiple matches",
			req:      func() *http.Request { return binaryRequest(`{"items": [1, 2]}`) },
			contains: "selector found more than one value: 2",
		},
		{
			name:     "container value",
			req:      func() *http.Request { return binaryRequest(`{"temp": {"c": 1}}`) },
			contains: "Invalid value type selected",
		},
		{
			name: "missing ce headers",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			contains: "invalid cloud event",
		},
		{
			name: "batch",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[]`))
				req.Header.Set("Content-Type", "application/cloudevents-batch+json")
				return req
			},
			contains: "batch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			s := newTestServer(t, w, nil)

			status, body := send(t, s, tt.req())
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, body, tt.contains)
			assert.Empty(t, w.records)
		})
	}
}

func TestHandle_StoreFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("store returned status 500: disk full")}
	s := newTestServer(t, w, nil)

	status, body := send(t, s, binaryRequest(`{"temp": 1}`))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "store returned status 500: disk full", body)
}

func TestHandle_CircuitOpen(t *testing.T) {
	w := &fakeWriter{err: circuitbreaker.ErrCircuitOpen}
	s := newTestServer(t, w, nil)

	status, _ := send(t, s, binaryRequest(`{"temp": 1}`))
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHandle_Gzip(t *testing.T) {
	w := &fakeWriter{}
	s := newTestServer(t, w, nil)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(`{"temp": 7}`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := binaryRequest("")
	req.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
	req.ContentLength = int64(buf.Len())
	req.Header.Set("Content-Encoding", "gzip")

	status, _ := send(t, s, req)
	assert.Equal(t, http.StatusAccepted, status)
	require.Len(t, w.records, 1)
	assert.Equal(t, models.Float(7), w.records[0].Fields["temp"])
}

func TestHandle_GzipTooLarge(t *testing.T) {
	w := &fakeWriter{}
	s := newTestServer(t, w, nil)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(`{"temp": "` + strings.Repeat("x", 4096) + `"}`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := binaryRequest("")
	req.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
	req.ContentLength = int64(buf.Len())
	req.Header.Set("Content-Encoding", "gzip")

	status, _ := send(t, s, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Empty(t, w.records)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&extract.SelectorError{}))
	assert.Equal(t, http.StatusBadRequest, statusFor(&extract.PayloadParseError{}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(circuitbreaker.ErrCircuitOpen))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
