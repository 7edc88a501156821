package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
)

// Task is one scenario's unit of work inside a batch
type Task struct {
	TaskID     string
	ScenarioID string
	Since      time.Time
	LogSince   time.Time
}

// Result is the outcome of one scenario task. Runs and UserActions are
// carried back so the aggregator can build batch-wide sessions and daily
// rollups without re-reading the store.
type Result struct {
	TaskID        string
	ScenarioID    string
	EventsTotal   int
	EventsNew     int
	RunsLoaded    int
	ChangesLoaded int
	Skipped       int
	Anomalies     int
	Runs          []*audit.Run
	UserActions   []*audit.Event
	Duration      time.Duration
	Err           error
}

// ProcessFunc does the actual per-scenario work
type ProcessFunc func(ctx context.Context, task Task) Result

// WorkerPool fans scenario tasks out over a fixed set of workers and
// funnels results back to a single consumer.
type WorkerPool struct {
	workers    int
	process    ProcessFunc
	taskChan   chan Task
	resultChan chan Result
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.Logger

	processedTasks int64
	failedTasks    int64
}

// PoolStatus is a point-in-time snapshot of the pool
type PoolStatus struct {
	ActiveWorkers  int
	QueuedTasks    int
	ProcessedTasks int64
	FailedTasks    int64
}

// NewWorkerPool creates a worker pool for scenario tasks
func NewWorkerPool(ctx context.Context, workers int, process ProcessFunc, logger *zap.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		workers:    workers,
		process:    process,
		taskChan:   make(chan Task, workers*2),
		resultChan: make(chan Result, workers*2),
		ctx:        poolCtx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start begins processing tasks. The result channel closes once every
// worker has drained, so consumers can range over Results.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	go func() {
		wp.wg.Wait()
		close(wp.resultChan)
	}()
}

// Submit queues a task, blocking until there is room. Returns false when
// the pool context was cancelled instead.
func (wp *WorkerPool) Submit(task Task) bool {
	select {
	case wp.taskChan <- task:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Close signals that no more tasks will be submitted. Workers exit after
// draining the queue.
func (wp *WorkerPool) Close() {
	close(wp.taskChan)
}

// Stop aborts the pool without draining the queue
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// Results returns the channel task results arrive on
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultChan
}

// Status returns the current status of the pool
func (wp *WorkerPool) Status() PoolStatus {
	return PoolStatus{
		ActiveWorkers:  wp.workers,
		QueuedTasks:    len(wp.taskChan),
		ProcessedTasks: atomic.LoadInt64(&wp.processedTasks),
		FailedTasks:    atomic.LoadInt64(&wp.failedTasks),
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	logger := wp.logger.With(zap.Int("worker_id", id))
	logger.Debug("worker started")

	for {
		select {
		case <-wp.ctx.Done():
			logger.Debug("worker stopping")
			return
		case task, ok := <-wp.taskChan:
			if !ok {
				logger.Debug("task channel closed, worker stopping")
				return
			}

			start := time.Now()
			result := wp.process(wp.ctx, task)
			result.TaskID = task.TaskID
			result.ScenarioID = task.ScenarioID
			result.Duration = time.Since(start)

			if result.Err == nil {
				atomic.AddInt64(&wp.processedTasks, 1)
			} else {
				atomic.AddInt64(&wp.failedTasks, 1)
				logger.Warn("scenario task failed",
					zap.String("scenario_id", task.ScenarioID),
					zap.Error(result.Err))
			}

			select {
			case wp.resultChan <- result:
			case <-wp.ctx.Done():
				return
			}
		}
	}
}
