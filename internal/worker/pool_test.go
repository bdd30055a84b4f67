package worker_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/queue"
	"github.com/yoshihiko555/takt/internal/worker"
)

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	return queue.New(filepath.Join(t.TempDir(), "tasks.yaml"))
}

func TestPoolDrainsAllTasksThenExits(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 5; i++ {
		_, err := store.AddTask("task", queue.AddOptions{})
		require.NoError(t, err)
	}

	var ran int32
	var mu sync.Mutex
	var maxConcurrent, current int32

	run := func(ctx context.Context, task models.TaskRecord) {
		n := atomic.AddInt32(&current, 1)
		mu.Lock()
		if n > maxConcurrent {
			maxConcurrent = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		atomic.AddInt32(&ran, 1)
		store.CompleteTask(task.Name, queue.Result{})
	}

	p := worker.New(store, run, worker.Options{Concurrency: 2, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.EqualValues(t, 5, ran)
	assert.LessOrEqual(t, maxConcurrent, int32(2))

	all, err := store.List()
	require.NoError(t, err)
	for _, task := range all {
		assert.Equal(t, models.TaskCompleted, task.Status)
	}
}

func TestPoolExitsImmediatelyOnEmptyQueue(t *testing.T) {
	store := newStore(t)
	p := worker.New(store, func(ctx context.Context, task models.TaskRecord) {
		t.Fatal("run should never be called on an empty queue")
	}, worker.Options{Concurrency: 1, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

func TestPoolRecoversInterruptedRunningTasksBeforeDraining(t *testing.T) {
	store := newStore(t)
	task, err := store.AddTask("stuck task", queue.AddOptions{})
	require.NoError(t, err)
	_, err = store.ClaimNextTasks(1)
	require.NoError(t, err)

	all, err := store.List()
	require.NoError(t, err)
	require.Equal(t, models.TaskRunning, all[0].Status)

	var ranNames []string
	run := func(ctx context.Context, tk models.TaskRecord) {
		ranNames = append(ranNames, tk.Name)
		store.CompleteTask(tk.Name, queue.Result{})
	}

	p := worker.New(store, run, worker.Options{Concurrency: 1, PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Contains(t, ranNames, task.Name)
}

func TestPoolStopsClaimingWhenContextCanceled(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 3; i++ {
		_, err := store.AddTask("slow task", queue.AddOptions{})
		require.NoError(t, err)
	}

	started := make(chan struct{}, 3)
	block := make(chan struct{})
	run := func(ctx context.Context, task models.TaskRecord) {
		started <- struct{}{}
		<-block
		store.CompleteTask(task.Name, queue.Result{})
	}

	p := worker.New(store, run, worker.Options{Concurrency: 1, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	cancel()
	close(block)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not exit after context cancellation")
	}
}
