package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/rs/zerolog"
)

// ErrPoolStopped is returned for tasks submitted to, or left queued in, a stopped pool
var ErrPoolStopped = errors.New("worker pool is stopped")

var errTaskPanic = errors.New("task panicked")

// Task represents a unit of HA work
type Task struct {
	ID string

	// Timeout bounds Fn; zero means no deadline
	Timeout time.Duration

	Fn func(ctx context.Context) error

	// OnComplete receives the result of Fn before the future completes.
	// It is not called for tasks dropped by Stop.
	OnComplete func(err error)

	// Future is completed with the task result; Submit creates one when nil
	Future *Future
}

// Pool is a bounded set of workers with a bounded queue. When the queue is
// full the submitting goroutine runs the task itself.
type Pool struct {
	name       string
	maxWorkers int
	queueSize  int
	taskQueue  chan Task
	logger     zerolog.Logger

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	stopChan chan struct{}

	activeWorkers  int32
	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	callerRuns     uint64
}

// NewPool starts a pool with the given name and size
func NewPool(name string, size PoolSize) *Pool {
	if size.Workers <= 0 {
		size.Workers = 5
	}
	if size.QueueSize <= 0 {
		size.QueueSize = 50
	}

	p := &Pool{
		name:       name,
		maxWorkers: size.Workers,
		queueSize:  size.QueueSize,
		taskQueue:  make(chan Task, size.QueueSize),
		logger:     log.WithComponent("dispatch").With().Str("pool", name).Logger(),
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info().
		Int("max_workers", p.maxWorkers).
		Int("queue_size", p.queueSize).
		Msg("Worker pool started")

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.taskQueue:
			metrics.HAPoolQueueDepth.WithLabelValues(p.name).Set(float64(len(p.taskQueue)))
			p.execute(id, task)
		}
	}
}

// Submit queues a task. With a full queue the task runs synchronously before
// Submit returns. The returned future is never nil.
func (p *Pool) Submit(task Task) (*Future, error) {
	if task.Future == nil {
		task.Future = NewFuture()
	}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		task.Future.complete(ErrPoolStopped)
		return task.Future, fmt.Errorf("pool %s: %w", p.name, ErrPoolStopped)
	}

	select {
	case p.taskQueue <- task:
		atomic.AddUint64(&p.totalTasks, 1)
		metrics.HAPoolQueueDepth.WithLabelValues(p.name).Set(float64(len(p.taskQueue)))
		p.mu.RUnlock()
		return task.Future, nil
	default:
	}
	p.mu.RUnlock()

	atomic.AddUint64(&p.totalTasks, 1)
	atomic.AddUint64(&p.callerRuns, 1)
	metrics.HAPoolCallerRunsTotal.WithLabelValues(p.name).Inc()
	p.logger.Debug().Str("task_id", task.ID).Msg("Queue full, running task on submitter")

	p.execute(-1, task)
	return task.Future, nil
}

func (p *Pool) execute(workerID int, task Task) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)

	timer := metrics.NewTimer()
	err := p.run(task)
	timer.ObserveDurationVec(metrics.HATaskDuration, p.name)

	if err != nil {
		atomic.AddUint64(&p.failedTasks, 1)
		metrics.HATasksTotal.WithLabelValues(p.name, "failure").Inc()
		p.logger.Warn().
			Int("worker_id", workerID).
			Str("task_id", task.ID).
			Dur("duration", timer.Duration()).
			Err(err).
			Msg("Task failed")
	} else {
		atomic.AddUint64(&p.completedTasks, 1)
		metrics.HATasksTotal.WithLabelValues(p.name, "success").Inc()
		p.logger.Debug().
			Int("worker_id", workerID).
			Str("task_id", task.ID).
			Dur("duration", timer.Duration()).
			Msg("Task completed")
	}

	if task.OnComplete != nil {
		p.safeComplete(task, err)
	}
	task.Future.complete(err)
}

func (p *Pool) run(task Task) error {
	err := run(task)
	if errors.Is(err, errTaskPanic) {
		p.logger.Error().Str("task_id", task.ID).Err(err).Msg("Task panic recovered")
	}
	return err
}

// run executes Fn under the task deadline. A task that overruns its
// deadline is abandoned and reported as context.DeadlineExceeded.
func run(task Task) error {
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- safeExecute(ctx, task)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("task %s timed out after %v: %w", task.ID, task.Timeout, ctx.Err())
	}
}

func safeExecute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errTaskPanic, r)
		}
	}()
	return task.Fn(ctx)
}

func (p *Pool) safeComplete(task Task, result error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("task_id", task.ID).Interface("panic", r).Msg("Task completion panic recovered")
		}
	}()
	task.OnComplete(result)
}

// Stop rejects new tasks, waits for running tasks and completes the futures
// of tasks still queued with ErrPoolStopped
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.logger.Info().Msg("Stopping worker pool")

		p.mu.Lock()
		p.stopped = true
		close(p.stopChan)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
		}

	drain:
		for {
			select {
			case task := <-p.taskQueue:
				task.Future.complete(ErrPoolStopped)
			default:
				break drain
			}
		}
		metrics.HAPoolQueueDepth.WithLabelValues(p.name).Set(0)
	})
	return err
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Name:           p.name,
		MaxWorkers:     p.maxWorkers,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.taskQueue),
		TotalTasks:     atomic.LoadUint64(&p.totalTasks),
		CompletedTasks: atomic.LoadUint64(&p.completedTasks),
		FailedTasks:    atomic.LoadUint64(&p.failedTasks),
		CallerRuns:     atomic.LoadUint64(&p.callerRuns),
	}
}

// Stats represents pool statistics
type Stats struct {
	Name           string `json:"name"`
	MaxWorkers     int    `json:"maxWorkers"`
	ActiveWorkers  int    `json:"activeWorkers"`
	QueueSize      int    `json:"queueSize"`
	QueuedTasks    int    `json:"queuedTasks"`
	TotalTasks     uint64 `json:"totalTasks"`
	CompletedTasks uint64 `json:"completedTasks"`
	FailedTasks    uint64 `json:"failedTasks"`
	CallerRuns     uint64 `json:"callerRuns"`
}

// QueueUtilization returns the queue utilization as a percentage
func (s Stats) QueueUtilization() float64 {
	if s.QueueSize == 0 {
		return 0
	}
	return (float64(s.QueuedTasks) / float64(s.QueueSize)) * 100.0
}
