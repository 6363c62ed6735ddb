package logger

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the number of entries kept by the global buffer
const DefaultBufferSize = 1000

// Entry is a single captured log line
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
}

// Buffer is a ring buffer of recent log entries, served by GET /api/v1/logs
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	writePos int
	count    int
}

var (
	globalBuffer *Buffer
	bufferOnce   sync.Once
)

// GetBuffer returns the global log buffer
func GetBuffer() *Buffer {
	bufferOnce.Do(func() {
		globalBuffer = NewBuffer(DefaultBufferSize)
	})
	return globalBuffer
}

// NewBuffer creates a buffer holding at most size entries
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Add appends an entry, overwriting the oldest once full
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.writePos] = entry
	b.writePos = (b.writePos + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Recent returns up to limit entries, newest first, at or above minLevel.
// An empty minLevel matches every entry.
func (b *Buffer) Recent(limit int, minLevel string) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > b.count {
		limit = b.count
	}

	size := len(b.entries)
	result := make([]Entry, 0, limit)
	for i := 0; i < b.count && len(result) < limit; i++ {
		entry := b.entries[(b.writePos-1-i+size)%size]
		if minLevel != "" && !atLeast(entry.Level, minLevel) {
			continue
		}
		result = append(result, entry)
	}
	return result
}

// Count returns the number of entries held
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
	"fatal": 4,
	"panic": 5,
}

func atLeast(level, min string) bool {
	l, ok1 := levelRank[strings.ToLower(level)]
	m, ok2 := levelRank[strings.ToLower(min)]
	if !ok1 || !ok2 {
		return strings.EqualFold(level, min)
	}
	return l >= m
}

// BufferWriter forwards log output and captures each JSON line into a Buffer.
// zerolog always hands it JSON; the console formatting happens downstream.
type BufferWriter struct {
	buffer *Buffer
	next   io.Writer
}

// NewBufferWriter creates a writer capturing into buffer and forwarding to next
func NewBufferWriter(buffer *Buffer, next io.Writer) *BufferWriter {
	return &BufferWriter{buffer: buffer, next: next}
}

// Write implements io.Writer
func (w *BufferWriter) Write(p []byte) (n int, err error) {
	if w.next != nil {
		n, err = w.next.Write(p)
	} else {
		n = len(p)
	}

	var line struct {
		Time      string `json:"time"`
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		Error     string `json:"error"`
		EventID   string `json:"event_id"`
	}
	if json.Unmarshal(p, &line) != nil {
		return n, err
	}

	entry := Entry{
		Time:      time.Now(),
		Level:     line.Level,
		Component: line.Component,
		Message:   line.Message,
		Error:     line.Error,
		EventID:   line.EventID,
	}
	if t, perr := time.Parse(time.RFC3339, line.Time); perr == nil {
		entry.Time = t
	}
	w.buffer.Add(entry)

	return n, err
}
