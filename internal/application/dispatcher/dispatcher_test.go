package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sust-cse/approval-engine/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func newEvent(typ event.Type) *event.Event {
	return event.NewEvent(typ, "inst-1", "APPLICATION", nil)
}

func TestDispatch(t *testing.T) {
	t.Run("runs handlers in registration order", func(t *testing.T) {
		d := NewDispatcher()
		var order []string

		d.Subscribe(event.TypeStageDecided, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "first")
			return nil
		})
		d.Subscribe(event.TypeStageDecided, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "second")
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeStageDecided)))
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("stops at first error", func(t *testing.T) {
		d := NewDispatcher()
		boom := errors.New("boom")
		called := false

		d.Subscribe(event.TypeInstanceApproved, "failing", func(ctx context.Context, evt *event.Event) error {
			return boom
		})
		d.Subscribe(event.TypeInstanceApproved, "after", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), newEvent(event.TypeInstanceApproved))
		assert.ErrorIs(t, err, boom)
		assert.False(t, called)
	})

	t.Run("recovers from panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		d.Subscribe(event.TypeInstanceRejected, "panicky", func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		assert.Error(t, d.Dispatch(context.Background(), newEvent(event.TypeInstanceRejected)))
		assert.Positive(t, logger.ErrorCount())
	})

	t.Run("rejects after close", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.Close())
		assert.ErrorIs(t, d.Dispatch(context.Background(), newEvent(event.TypeStageDecided)), ErrClosed)
		assert.Error(t, d.Close())
	})
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var seen []event.Type

	d.SubscribeAll("relay", func(ctx context.Context, evt *event.Event) error {
		seen = append(seen, evt.Type)
		return nil
	})

	for _, typ := range event.AllTypes() {
		require.NoError(t, d.Dispatch(context.Background(), newEvent(typ)))
	}
	assert.Equal(t, event.AllTypes(), seen)
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	called1, called2 := false, false

	d.Subscribe(event.TypeCheckAttached, "h1", func(ctx context.Context, evt *event.Event) error {
		called1 = true
		return nil
	})
	d.Subscribe(event.TypeCheckAttached, "h2", func(ctx context.Context, evt *event.Event) error {
		called2 = true
		return nil
	})

	d.Unsubscribe(event.TypeCheckAttached, "h1")
	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeCheckAttached)))

	assert.False(t, called1)
	assert.True(t, called2)

	handlers := d.ListHandlers(event.TypeCheckAttached)
	require.Len(t, handlers, 1)
	assert.Equal(t, "h2", handlers[0].Name)
	assert.Nil(t, handlers[0].Handler)
}

func TestDispatchAsync(t *testing.T) {
	t.Run("survives cancelled request context", func(t *testing.T) {
		d := NewDispatcher()
		var ctxErrs atomic.Int32
		var calls atomic.Int32

		d.Subscribe(event.TypeInstanceSubmitted, "h", func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			if ctx.Err() != nil {
				ctxErrs.Add(1)
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d.DispatchAsync(ctx, newEvent(event.TypeInstanceSubmitted))

		require.NoError(t, d.Close())
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, int32(0), ctxErrs.Load())
	})

	t.Run("logs handler errors without blocking others", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeStageDecided, "failing", func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeStageDecided, "ok", func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), newEvent(event.TypeStageDecided))
		require.NoError(t, d.Close())

		assert.Equal(t, int32(1), called.Load())
		assert.Positive(t, logger.ErrorCount())
	})

	t.Run("drops events after close", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		require.NoError(t, d.Close())

		d.DispatchAsync(context.Background(), newEvent(event.TypeStageDecided))
		assert.Equal(t, 1, logger.ErrorCount())
	})
}
