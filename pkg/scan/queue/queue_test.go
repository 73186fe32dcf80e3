package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects handled tasks in order.
type recorder struct {
	mu    sync.Mutex
	tasks []Task
	done  chan struct{}
	want  int
}

func newRecorder(want int) *recorder {
	return &recorder{done: make(chan struct{}), want: want}
}

func (r *recorder) handle(ctx context.Context, task Task) error {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	if len(r.tasks) == r.want {
		close(r.done)
	}
	r.mu.Unlock()
	return nil
}

func (r *recorder) wait(t *testing.T) []Task {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Task(nil), r.tasks...)
}

func TestFIFOWithinPriority(t *testing.T) {
	rec := newRecorder(3)
	q := NewQueue(rec.handle, nil)
	defer q.Stop()

	q.EnqueueBatch([]Task{
		{EngineID: "google_search", ScanPointID: 1, Priority: 1},
		{EngineID: "google_search", ScanPointID: 2, Priority: 1},
		{EngineID: "google_search", ScanPointID: 3, Priority: 1},
	})

	tasks := rec.wait(t)
	require.Len(t, tasks, 3)
	assert.Equal(t, uint(1), tasks[0].ScanPointID)
	assert.Equal(t, uint(2), tasks[1].ScanPointID)
	assert.Equal(t, uint(3), tasks[2].ScanPointID)
}

func TestHigherPriorityJumpsQueue(t *testing.T) {
	rec := newRecorder(3)

	// Pause the engine until all three tasks are enqueued, so ordering is
	// decided by the queue rather than by enqueue timing.
	var mu sync.Mutex
	paused := true
	q := NewQueue(rec.handle, func(engineID string) string {
		mu.Lock()
		defer mu.Unlock()
		if paused {
			return "engine_paused"
		}
		return ""
	})
	defer q.Stop()

	q.EnqueueBatch([]Task{
		{EngineID: "bing_search", ScanPointID: 1, Priority: 1},
		{EngineID: "bing_search", ScanPointID: 2, Priority: 1},
		{EngineID: "bing_search", ScanPointID: 3, Priority: 5},
	})

	mu.Lock()
	paused = false
	mu.Unlock()
	q.EnsureProcessing("bing_search")

	tasks := rec.wait(t)
	require.Len(t, tasks, 3)
	assert.Equal(t, uint(3), tasks[0].ScanPointID)
	assert.Equal(t, uint(1), tasks[1].ScanPointID)
	assert.Equal(t, uint(2), tasks[2].ScanPointID)
}

func TestEnginesDrainIndependently(t *testing.T) {
	rec := newRecorder(4)
	// duckduckgo stays paused; bing drains.
	q := NewQueue(rec.handle, func(engineID string) string {
		if engineID == "duckduckgo" {
			return "engine_paused"
		}
		return ""
	})
	defer q.Stop()

	q.EnqueueBatch([]Task{
		{EngineID: "duckduckgo", ScanPointID: 10},
		{EngineID: "bing_search", ScanPointID: 1},
		{EngineID: "bing_search", ScanPointID: 2},
		{EngineID: "bing_search", ScanPointID: 3},
		{EngineID: "bing_search", ScanPointID: 4},
	})

	tasks := rec.wait(t)
	require.Len(t, tasks, 4)
	for _, task := range tasks {
		assert.Equal(t, "bing_search", task.EngineID)
	}
	assert.Equal(t, 1, q.QueueDepth("duckduckgo"))
	require.Eventually(t, func() bool {
		return q.HasRetryTimer("duckduckgo")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPausedEngineSchedulesRetry(t *testing.T) {
	rec := newRecorder(1)
	var mu sync.Mutex
	paused := true
	q := NewQueue(rec.handle, func(engineID string) string {
		mu.Lock()
		defer mu.Unlock()
		if paused {
			return "daily_group_cap"
		}
		return ""
	})
	q.retryInterval = 20 * time.Millisecond
	defer q.Stop()

	q.Enqueue(Task{EngineID: "google_search", ScanPointID: 1})

	require.Eventually(t, func() bool {
		return q.HasRetryTimer("google_search")
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	paused = false
	mu.Unlock()

	tasks := rec.wait(t)
	assert.Equal(t, uint(1), tasks[0].ScanPointID)
	assert.Equal(t, 0, q.QueueDepth("google_search"))
}

func TestHandlerErrorsAreSwallowed(t *testing.T) {
	rec := newRecorder(2)
	q := NewQueue(func(ctx context.Context, task Task) error {
		rec.handle(ctx, task)
		return assert.AnError
	}, nil)
	defer q.Stop()

	q.EnqueueBatch([]Task{
		{EngineID: "bing_search", ScanPointID: 1},
		{EngineID: "bing_search", ScanPointID: 2},
	})

	tasks := rec.wait(t)
	assert.Len(t, tasks, 2)
}

func TestStopDropsPendingWork(t *testing.T) {
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	q := NewQueue(func(ctx context.Context, task Task) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, nil)

	q.EnqueueBatch([]Task{
		{EngineID: "bing_search", ScanPointID: 1},
		{EngineID: "bing_search", ScanPointID: 2},
	})

	<-started
	close(release)
	q.Stop()

	// Stop clears backlogs, and nothing new is accepted afterwards.
	q.Enqueue(Task{EngineID: "bing_search", ScanPointID: 3})
	assert.Zero(t, q.TotalDepth())
	assert.Empty(t, q.ProcessingEngines())
	assert.True(t, q.IsIdle("bing_search"))
}

func TestDepthAccounting(t *testing.T) {
	q := NewQueue(func(ctx context.Context, task Task) error { return nil }, func(string) string {
		return "engine_paused"
	})
	defer q.Stop()

	q.EnqueueBatch([]Task{
		{EngineID: "a", ScanPointID: 1},
		{EngineID: "a", ScanPointID: 2},
		{EngineID: "b", ScanPointID: 3},
	})

	require.Eventually(t, func() bool {
		return q.HasRetryTimer("a") && q.HasRetryTimer("b")
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, q.QueueDepth("a"))
	assert.Equal(t, 1, q.QueueDepth("b"))
	assert.Equal(t, 3, q.TotalDepth())
}
