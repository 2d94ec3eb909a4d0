package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	delay  time.Duration
	err    error
}

func (r *recorder) Handle(ctx context.Context, event Event) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return r.err
}

func (r *recorder) ids() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EvaluationID)
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeAndHasSubscribers(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	assert.False(t, eb.HasSubscribers(EventStateChanged))

	eb.Subscribe(EventStateChanged, &recorder{})
	eb.Subscribe(EventStateChanged, &recorder{})

	assert.True(t, eb.HasSubscribers(EventStateChanged))
	assert.False(t, eb.HasSubscribers(EventEvaluationCompleted))
}

func TestPublishDeliversInOrderToEveryHandler(t *testing.T) {
	eb := NewEventBus()
	first, second := &recorder{}, &recorder{}
	eb.Subscribe(EventStateChanged, first)
	eb.Subscribe(EventStateChanged, second)

	for _, node := range []string{"start", "triage", "legitimate", "end"} {
		require.NoError(t, eb.Publish(context.Background(), Event{Type: EventStateChanged, EvaluationID: 42, Node: node}))
	}
	eb.Stop()

	for _, r := range []*recorder{first, second} {
		require.Len(t, r.events, 4)
		var nodes []string
		for _, e := range r.events {
			nodes = append(nodes, e.Node)
		}
		assert.Equal(t, []string{"start", "triage", "legitimate", "end"}, nodes)
	}
}

func TestPublishErrors(t *testing.T) {
	t.Run("no handler", func(t *testing.T) {
		eb := NewEventBus()
		defer eb.Stop()
		err := eb.Publish(context.Background(), Event{Type: "unknown_event"})
		assert.ErrorIs(t, err, ErrNoHandler)
	})

	t.Run("bus closed", func(t *testing.T) {
		eb := NewEventBus()
		eb.Subscribe(EventEvaluationCompleted, &recorder{})
		eb.Stop()
		err := eb.Publish(context.Background(), Event{Type: EventEvaluationCompleted})
		assert.ErrorIs(t, err, ErrBusClosed)
	})

	t.Run("context cancelled", func(t *testing.T) {
		eb := NewEventBus()
		defer eb.Stop()
		eb.Subscribe(EventEvaluationCompleted, &recorder{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := eb.Publish(ctx, Event{Type: EventEvaluationCompleted})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPublishWaitsWhenBufferFull(t *testing.T) {
	eb := NewEventBus(WithBufferSize(1))
	slow := &recorder{delay: time.Millisecond}
	eb.Subscribe(EventEvaluationCompleted, slow)

	const n = 50
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, eb.Publish(context.Background(), Event{Type: EventEvaluationCompleted, EvaluationID: i}))
	}
	eb.Stop()

	assert.Len(t, slow.ids(), n)
}

func TestPublishFullBufferHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	eb := NewEventBus(WithBufferSize(1))
	eb.Subscribe(EventEvaluationCompleted, EventHandlerFunc(func(ctx context.Context, event Event) error {
		<-release
		return nil
	}))
	defer func() {
		close(release)
		eb.Stop()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// One event is held by the blocked handler, one fills the buffer.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = eb.Publish(ctx, Event{Type: EventEvaluationCompleted})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithBufferSizeIgnoresInvalid(t *testing.T) {
	eb := NewEventBus(WithBufferSize(0))
	defer eb.Stop()
	assert.Equal(t, DefaultBufferSize, cap(eb.eventCh))

	sized := NewEventBus(WithBufferSize(8))
	defer sized.Stop()
	assert.Equal(t, 8, cap(sized.eventCh))
}

func TestHandlerErrorsReachErrorHandler(t *testing.T) {
	var mu sync.Mutex
	var reported []string
	eb := NewEventBus(WithErrorHandler(func(event Event, err error) {
		mu.Lock()
		reported = append(reported, event.Type+": "+err.Error())
		mu.Unlock()
	}))

	eb.Subscribe(EventEvaluationRejected, &recorder{err: errors.New("sink down")})
	eb.Subscribe(EventEvaluationRejected, EventHandlerFunc(func(ctx context.Context, event Event) error {
		panic("boom")
	}))

	require.NoError(t, eb.Publish(context.Background(), Event{Type: EventEvaluationRejected, EvaluationID: 7}))
	eb.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		"evaluation_rejected: sink down",
		"evaluation_rejected: handler panic: boom",
	}, reported)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	eb := NewEventBus(WithLogger(logger))
	eb.Subscribe(EventEvaluationCompleted, &recorder{err: errors.New("metrics unavailable")})
	require.NoError(t, eb.Publish(context.Background(), Event{Type: EventEvaluationCompleted, EvaluationID: 9}))
	eb.Stop()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "event handler failed", entry["msg"])
	assert.Equal(t, EventEvaluationCompleted, entry["event"])
	assert.Equal(t, float64(9), entry["evaluation_id"])
	assert.Equal(t, "metrics unavailable", entry["error"])
}

func TestStopDeliversQueued(t *testing.T) {
	eb := NewEventBus()
	r := &recorder{delay: time.Millisecond}
	eb.Subscribe(EventEvaluationCompleted, r)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, eb.Publish(context.Background(), Event{Type: EventEvaluationCompleted, EvaluationID: i}))
	}
	eb.Stop()

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, r.ids())
}

func TestConcurrentPublishAndStop(t *testing.T) {
	eb := NewEventBus(WithBufferSize(16))
	var delivered atomic.Int64
	eb.Subscribe(EventStateChanged, EventHandlerFunc(func(ctx context.Context, event Event) error {
		delivered.Add(1)
		return nil
	}))

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := eb.Publish(context.Background(), Event{Type: EventStateChanged, EvaluationID: id})
				switch {
				case err == nil:
					accepted.Add(1)
				case !errors.Is(err, ErrBusClosed):
					t.Errorf("unexpected publish error: %v", err)
				}
			}
		}(uint64(i))
	}

	eventually(t, func() bool { return delivered.Load() > 0 })
	eb.Stop()
	wg.Wait()

	// Every accepted event is delivered, even those queued during Stop.
	assert.Equal(t, accepted.Load(), delivered.Load())
}
