// Package queue schedules scan point work per engine. Each engine gets its
// own FIFO-within-priority queue and a single worker, so one engine's block
// or throttle never stalls the others.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Task is one unit of scan work: a single query at a single grid point.
// The grid cell and location context travel with the task so the handler
// never has to refetch the point row.
type Task struct {
	ScanID      uint
	ScanPointID uint
	EngineID    string
	Query       string
	Priority    int

	GridRow int
	GridCol int
	Lat     float64
	Lng     float64
	City    string
	State   string

	enqueuedAt time.Time
	sequence   uint64
}

// Handler executes one task. Errors are logged and swallowed; the handler
// owns its own persistence of failure state.
type Handler func(ctx context.Context, task Task) error

// PauseChecker reports whether an engine must pause and why. An empty
// reason means the engine may proceed.
type PauseChecker func(engineID string) (reason string)

// Queue is the per-engine scan work scheduler.
type Queue struct {
	handler Handler
	pause   PauseChecker

	mu          sync.Mutex
	pending     map[string][]Task
	processing  map[string]bool
	retryTimers map[string]*time.Timer
	sequence    uint64
	stopped     bool

	retryInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue builds a queue. The pause checker consolidates engine health and
// shared reputation-group caps; it may be nil, in which case nothing pauses.
func NewQueue(handler Handler, pause PauseChecker) *Queue {
	retryInterval := viper.GetDuration("queue.retry_interval")
	if retryInterval == 0 {
		retryInterval = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler:       handler,
		pause:         pause,
		pending:       make(map[string][]Task),
		processing:    make(map[string]bool),
		retryTimers:   make(map[string]*time.Timer),
		retryInterval: retryInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Enqueue adds one task and makes sure its engine worker is running.
func (q *Queue) Enqueue(task Task) {
	q.EnqueueBatch([]Task{task})
}

// EnqueueBatch adds tasks in order. Within the same priority, tasks keep
// their arrival order.
func (q *Queue) EnqueueBatch(tasks []Task) {
	if len(tasks) == 0 {
		return
	}
	engines := make(map[string]bool)

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	now := time.Now()
	for _, task := range tasks {
		task.enqueuedAt = now
		q.sequence++
		task.sequence = q.sequence
		q.pending[task.EngineID] = append(q.pending[task.EngineID], task)
		engines[task.EngineID] = true
	}
	for engineID := range engines {
		q.sortLocked(engineID)
	}
	q.mu.Unlock()

	for engineID := range engines {
		q.EnsureProcessing(engineID)
	}
}

// sortLocked orders an engine's backlog by priority descending, then by
// arrival.
func (q *Queue) sortLocked(engineID string) {
	backlog := q.pending[engineID]
	sort.SliceStable(backlog, func(i, j int) bool {
		if backlog[i].Priority != backlog[j].Priority {
			return backlog[i].Priority > backlog[j].Priority
		}
		return backlog[i].sequence < backlog[j].sequence
	})
}

// EnsureProcessing starts the engine's worker if it is not already running
// and work exists.
func (q *Queue) EnsureProcessing(engineID string) {
	q.mu.Lock()
	if q.stopped || q.processing[engineID] || len(q.pending[engineID]) == 0 {
		q.mu.Unlock()
		return
	}
	q.processing[engineID] = true
	// A pending retry timer is superseded by the worker starting now.
	if timer, ok := q.retryTimers[engineID]; ok {
		timer.Stop()
		delete(q.retryTimers, engineID)
	}
	q.mu.Unlock()

	q.wg.Add(1)
	go q.work(engineID)
}

// work drains one engine's backlog until it is empty, the engine pauses, or
// the queue stops.
func (q *Queue) work(engineID string) {
	defer q.wg.Done()

	for {
		if q.ctx.Err() != nil {
			q.finishWorker(engineID)
			return
		}

		if q.pause != nil {
			if reason := q.pause(engineID); reason != "" {
				log.Debug().
					Str("engine", engineID).
					Str("reason", reason).
					Msg("Engine paused, scheduling retry")
				q.scheduleRetry(engineID)
				return
			}
		}

		task, ok := q.popTask(engineID)
		if !ok {
			q.finishWorker(engineID)
			return
		}

		if err := q.handler(q.ctx, task); err != nil {
			log.Error().Err(err).
				Str("engine", engineID).
				Uint("scan_id", task.ScanID).
				Uint("scan_point_id", task.ScanPointID).
				Msg("Scan task failed")
		}
	}
}

func (q *Queue) popTask(engineID string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	backlog := q.pending[engineID]
	if len(backlog) == 0 {
		return Task{}, false
	}
	task := backlog[0]
	q.pending[engineID] = backlog[1:]
	return task, true
}

func (q *Queue) finishWorker(engineID string) {
	q.mu.Lock()
	delete(q.processing, engineID)
	more := len(q.pending[engineID]) > 0 && !q.stopped && q.ctx.Err() == nil
	q.mu.Unlock()
	// A task enqueued between the final pop and now restarts the worker.
	if more {
		q.EnsureProcessing(engineID)
	}
}

// scheduleRetry marks the worker stopped and arms a one-shot timer that
// retries the engine after the configured interval.
func (q *Queue) scheduleRetry(engineID string) {
	q.mu.Lock()
	delete(q.processing, engineID)
	if q.stopped {
		q.mu.Unlock()
		return
	}
	if _, exists := q.retryTimers[engineID]; exists {
		q.mu.Unlock()
		return
	}
	q.retryTimers[engineID] = time.AfterFunc(q.retryInterval, func() {
		q.mu.Lock()
		delete(q.retryTimers, engineID)
		q.mu.Unlock()
		q.EnsureProcessing(engineID)
	})
	q.mu.Unlock()
}

// QueueDepth returns the pending task count for one engine.
func (q *Queue) QueueDepth(engineID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[engineID])
}

// TotalDepth returns the pending task count across all engines.
func (q *Queue) TotalDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, backlog := range q.pending {
		total += len(backlog)
	}
	return total
}

// ProcessingEngines returns the engines with an active worker, sorted.
func (q *Queue) ProcessingEngines() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	engines := make([]string, 0, len(q.processing))
	for engineID := range q.processing {
		engines = append(engines, engineID)
	}
	sort.Strings(engines)
	return engines
}

// HasRetryTimer reports whether an engine is waiting on a paused retry.
func (q *Queue) HasRetryTimer(engineID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.retryTimers[engineID]
	return ok
}

// IsIdle reports that an engine has no backlog, no running worker and no
// armed retry timer. Monitors use this to detect scans whose work drained
// without every point finishing.
func (q *Queue) IsIdle(engineID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending[engineID]) > 0 {
		return false
	}
	if q.processing[engineID] {
		return false
	}
	_, retrying := q.retryTimers[engineID]
	return !retrying
}

// Stop cancels in-flight work, stops retry timers and waits for workers to
// exit. Pending tasks are dropped; orphan recovery picks them back up on
// the next start.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.pending = make(map[string][]Task)
	for engineID, timer := range q.retryTimers {
		timer.Stop()
		delete(q.retryTimers, engineID)
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
