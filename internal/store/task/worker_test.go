package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/stretchr/testify/require"
)

// countingHandler records every Task it was asked to handle and can be
// told to fail a fixed number of times before succeeding.
type countingHandler struct {
	kind      Kind
	mu        sync.Mutex
	handled   []Task
	failTimes int32
}

func (h *countingHandler) Kind() Kind { return h.kind }

func (h *countingHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	h.mu.Lock()
	h.handled = append(h.handled, t)
	h.mu.Unlock()

	if atomic.AddInt32(&h.failTimes, -1) >= 0 {
		return nil, assertError{}
	}
	return nil, nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

type assertError struct{}

func (assertError) Error() string { return "synthetic handler failure" }

func TestWorkerCompletesDueTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	q := NewQueue(store)
	handler := &countingHandler{kind: KindBlobPurge}

	require.NoError(t, q.Enqueue(ctx, KindBlobPurge, 1, 10, time.Now(), nil, nil))

	w := NewWorker(q, handler, WorkerConfig{ID: "w1", PollInterval: 20 * time.Millisecond})
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		due, err := q.Due(ctx, time.Now(), 0)
		return err == nil && len(due) == 0 && handler.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerReleasesLeaseOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	q := NewQueue(store)
	handler := &countingHandler{kind: KindBlobPurge, failTimes: 1}

	require.NoError(t, q.Enqueue(ctx, KindBlobPurge, 1, 10, time.Now(), nil, nil))

	w := NewWorker(q, handler, WorkerConfig{ID: "w1", PollInterval: 20 * time.Millisecond, LeaseDuration: time.Millisecond})
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		due, err := q.Due(ctx, time.Now(), 0)
		return err == nil && len(due) == 0 && handler.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestWorkersIgnoreOtherKinds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	q := NewQueue(store)
	handler := &countingHandler{kind: KindBlobPurge}

	require.NoError(t, q.Enqueue(ctx, KindAlarmDelivery, 1, 10, time.Now(), nil, nil))

	w := NewWorker(q, handler, WorkerConfig{ID: "w1", PollInterval: 20 * time.Millisecond})
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, handler.count())

	due, err := q.Due(ctx, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestTwoWorkersContendForOneTaskOnlyOneWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	q := NewQueue(store)
	h1 := &countingHandler{kind: KindBlobPurge}
	h2 := &countingHandler{kind: KindBlobPurge}

	require.NoError(t, q.Enqueue(ctx, KindBlobPurge, 1, 10, time.Now(), nil, nil))

	w1 := NewWorker(q, h1, WorkerConfig{ID: "w1", PollInterval: 5 * time.Millisecond})
	w2 := NewWorker(q, h2, WorkerConfig{ID: "w2", PollInterval: 5 * time.Millisecond})
	go w1.Run(ctx)
	go w2.Run(ctx)

	require.Eventually(t, func() bool {
		due, err := q.Due(ctx, time.Now(), 0)
		return err == nil && len(due) == 0
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 1, h1.count()+h2.count())
}
