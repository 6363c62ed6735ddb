package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloser struct {
	name  string
	err   error
	delay time.Duration
	order *[]string
	mu    *sync.Mutex
}

func (m *mockCloser) Close() error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	*m.order = append(*m.order, m.name)
	m.mu.Unlock()
	return m.err
}

func TestShutdown_PriorityOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	c := New(5*time.Second, zerolog.Nop())

	c.Register("store", &mockCloser{name: "store", order: &order, mu: &mu}, PriorityStore)
	c.RegisterHook("http", func(context.Context) error {
		mu.Lock()
		order = append(order, "http")
		mu.Unlock()
		return nil
	}, PriorityHTTPServer)
	c.Register("mqtt", &mockCloser{name: "mqtt", order: &order, mu: &mu}, PriorityMQTT)
	c.Register("store-2", &mockCloser{name: "store-2", order: &order, mu: &mu}, PriorityStore)

	require.NoError(t, c.Shutdown())
	assert.Equal(t, []string{"http", "mqtt", "store", "store-2"}, order)
}

func TestShutdown_ContinuesAfterError(t *testing.T) {
	var order []string
	var mu sync.Mutex
	c := New(5*time.Second, zerolog.Nop())

	boom := errors.New("boom")
	c.Register("first", &mockCloser{name: "first", err: boom, order: &order, mu: &mu}, 1)
	c.Register("second", &mockCloser{name: "second", order: &order, mu: &mu}, 2)

	err := c.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestShutdown_Once(t *testing.T) {
	calls := 0
	c := New(time.Second, zerolog.Nop())
	c.RegisterHook("count", func(context.Context) error {
		calls++
		return errors.New("failed")
	}, 1)

	first := c.Shutdown()
	second := c.Shutdown()

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
}

func TestShutdown_Timeout(t *testing.T) {
	var order []string
	var mu sync.Mutex
	c := New(20*time.Millisecond, zerolog.Nop())

	c.Register("slow", &mockCloser{name: "slow", delay: 50 * time.Millisecond, order: &order, mu: &mu}, 1)
	c.Register("skipped", &mockCloser{name: "skipped", order: &order, mu: &mu}, 2)

	err := c.Shutdown()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"slow"}, order)
}

func TestShutdown_HookSeesDeadline(t *testing.T) {
	c := New(time.Second, zerolog.Nop())

	var hasDeadline bool
	c.RegisterHook("check", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}, 1)

	require.NoError(t, c.Shutdown())
	assert.True(t, hasDeadline)
}

func TestShutdown_Concurrent(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	c := New(time.Second, zerolog.Nop())
	c.RegisterHook("count", func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Shutdown()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}
