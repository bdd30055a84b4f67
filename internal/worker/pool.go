// Package worker implements the task-queue worker pool: a fixed
// concurrency of task runners draining internal/queue's Store until
// it is empty, all sharing one cancellation signal.
package worker

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/queue"
)

// TaskRunner executes one claimed task to completion, reporting its
// outcome back through the queue itself (CompleteTask/FailTask).
type TaskRunner func(ctx context.Context, task models.TaskRecord)

// Options configures one pool run.
type Options struct {
	// Concurrency bounds how many tasks run in parallel, clamped to [1,10].
	Concurrency int
	// PollInterval is how long the pool sleeps between claim attempts
	// when nothing is pending, clamped to [100ms, 5s].
	PollInterval time.Duration
}

func (o Options) normalized() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Concurrency > 10 {
		o.Concurrency = 10
	}
	if o.PollInterval < 100*time.Millisecond {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.PollInterval > 5*time.Second {
		o.PollInterval = 5 * time.Second
	}
	return o
}

// Pool drains a queue.Store with a fixed number of concurrent workers,
// installing its own SIGINT handling: the first interrupt cancels the
// run context gracefully; a second forces exit(130).
type Pool struct {
	store *queue.Store
	run   TaskRunner
	opts  Options
}

// New builds a Pool over store, calling run for every claimed task.
func New(store *queue.Store, run TaskRunner, opts Options) *Pool {
	return &Pool{store: store, run: run, opts: opts.normalized()}
}

// Run claims and runs tasks until the queue is observed empty with no
// workers in flight for a full poll cycle, or ctx is canceled.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
			select {
			case <-sigChan:
				os.Exit(130)
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()

	if _, err := p.store.RecoverInterruptedRunningTasks(); err != nil {
		return err
	}

	sem := semaphore.NewWeighted(int64(p.opts.Concurrency))
	var wg sync.WaitGroup
	var inFlight int32

	for {
		if ctx.Err() != nil {
			break
		}

		slots := p.opts.Concurrency - int(atomic.LoadInt32(&inFlight))

		var claimed []models.TaskRecord
		if slots > 0 {
			var err error
			claimed, err = p.store.ClaimNextTasks(slots)
			if err != nil {
				return err
			}
		}

		if len(claimed) == 0 {
			if atomic.LoadInt32(&inFlight) == 0 {
				break
			}
			select {
			case <-time.After(p.opts.PollInterval):
			case <-ctx.Done():
			}
			continue
		}

		for _, task := range claimed {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			atomic.AddInt32(&inFlight, 1)
			wg.Add(1)
			go func(t models.TaskRecord) {
				defer wg.Done()
				defer sem.Release(1)
				defer atomic.AddInt32(&inFlight, -1)
				p.run(ctx, t)
			}(task)
		}

		select {
		case <-time.After(p.opts.PollInterval):
		case <-ctx.Done():
		}
	}

	wg.Wait()
	return nil
}
