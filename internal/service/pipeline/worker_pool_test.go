package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

func TestWorkerPool_ProcessesAllTasks(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	process := func(ctx context.Context, task Task) Result {
		mu.Lock()
		seen[task.ScenarioID] = true
		mu.Unlock()
		return Result{EventsTotal: 1}
	}

	pool := NewWorkerPool(context.Background(), 3, process, zaptest.NewLogger(t))
	pool.Start()

	go func() {
		defer pool.Close()
		for i := 0; i < 10; i++ {
			ok := pool.Submit(Task{TaskID: fmt.Sprintf("t%d", i), ScenarioID: fmt.Sprintf("scn-%03d", i)})
			if !ok {
				return
			}
		}
	}()

	results := 0
	for result := range pool.Results() {
		require.NoError(t, result.Err)
		assert.Equal(t, 1, result.EventsTotal)
		assert.NotEmpty(t, result.ScenarioID)
		results++
	}

	assert.Equal(t, 10, results)
	assert.Len(t, seen, 10)

	status := pool.Status()
	assert.Equal(t, int64(10), status.ProcessedTasks)
	assert.Equal(t, int64(0), status.FailedTasks)
	assert.Equal(t, 3, status.ActiveWorkers)
}

func TestWorkerPool_CountsFailures(t *testing.T) {
	process := func(ctx context.Context, task Task) Result {
		if task.ScenarioID == "scn-bad" {
			return Result{Err: errors.NewInternalError("extraction blew up")}
		}
		return Result{}
	}

	pool := NewWorkerPool(context.Background(), 2, process, zaptest.NewLogger(t))
	pool.Start()

	go func() {
		defer pool.Close()
		pool.Submit(Task{TaskID: "a", ScenarioID: "scn-ok"})
		pool.Submit(Task{TaskID: "b", ScenarioID: "scn-bad"})
	}()

	var failures int
	for result := range pool.Results() {
		if result.Err != nil {
			failures++
			assert.Equal(t, "scn-bad", result.ScenarioID)
		}
	}

	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(1), pool.Status().FailedTasks)
	assert.Equal(t, int64(1), pool.Status().ProcessedTasks)
}

func TestWorkerPool_SubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	blocker := make(chan struct{})
	process := func(ctx context.Context, task Task) Result {
		<-blocker
		return Result{}
	}

	// One worker, queue of two: fill it so Submit would block.
	pool := NewWorkerPool(ctx, 1, process, zaptest.NewLogger(t))
	pool.Start()
	defer pool.Stop()
	defer close(blocker)

	for i := 0; i < 3; i++ {
		pool.Submit(Task{TaskID: fmt.Sprintf("t%d", i)})
	}

	cancel()
	done := make(chan bool, 1)
	go func() {
		done <- pool.Submit(Task{TaskID: "late"})
	}()

	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not unblock after cancel")
	}
}

func TestWorkerPool_ResultsCloseAfterDrain(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, func(ctx context.Context, task Task) Result {
		return Result{}
	}, zaptest.NewLogger(t))
	pool.Start()
	pool.Close()

	// No tasks: the results channel must still close.
	select {
	case _, open := <-pool.Results():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("results channel never closed")
	}
}
