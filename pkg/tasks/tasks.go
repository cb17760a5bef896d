// Package tasks provides a best-effort background task runner. Submitted
// tasks are fire-and-forget: failures are logged, never retried, and never
// reported back to the submitter.
package tasks

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Task is one unit of background work.
type Task struct {
	Name string
	Key  string // tasks sharing a key run on the same worker, in order
	Run  func(ctx context.Context) error
}

// Submitter accepts best-effort tasks. The bool result only reports whether
// the task was accepted, not whether it ran.
type Submitter interface {
	Submit(task Task) bool
}

// Stats contains runtime counters for the runner.
type Stats struct {
	NumWorkers     int   `json:"num_workers"`
	QueueSize      int   `json:"queue_size"`
	TotalSubmitted int64 `json:"total_submitted"`
	TotalProcessed int64 `json:"total_processed"`
	TotalDropped   int64 `json:"total_dropped"`
	TotalErrors    int64 `json:"total_errors"`
}

// Runner executes tasks on a fixed pool of workers with bounded per-worker
// queues. A full queue drops the task rather than blocking the caller.
type Runner struct {
	numWorkers int
	queueSize  int
	queues     []chan Task
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalSubmitted int64
	totalProcessed int64
	totalDropped   int64
	totalErrors    int64
}

// NewRunner creates a runner with the given pool geometry.
func NewRunner(numWorkers, queueSize int) *Runner {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Runner{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		queues:     make([]chan Task, numWorkers),
	}
}

// Start launches the worker goroutines. ctx cancellation stops them after
// draining their queues.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.numWorkers; i++ {
		r.queues[i] = make(chan Task, r.queueSize)
		r.wg.Add(1)
		go r.run(ctx, i)
	}
	logrus.Infof("[TASKS] Started with %d workers, queue size: %d", r.numWorkers, r.queueSize)
}

// Submit enqueues a task on the worker owning its key. Returns false when
// the runner is stopped or the target queue is full.
func (r *Runner) Submit(task Task) bool {
	if atomic.LoadInt32(&r.stopped) == 1 {
		atomic.AddInt64(&r.totalDropped, 1)
		return false
	}
	atomic.AddInt64(&r.totalSubmitted, 1)

	shard := r.shardForKey(task.Key)
	accepted := func() (ok bool) {
		defer func() {
			if rec := recover(); rec != nil {
				ok = false
			}
		}()
		select {
		case r.queues[shard] <- task:
			return true
		default:
			return false
		}
	}()

	if !accepted {
		atomic.AddInt64(&r.totalDropped, 1)
		logrus.Warnf("[TASKS] Worker %d queue full (or stopped), dropping task %s", shard, task.Name)
	}
	return accepted
}

// Stop shuts the runner down gracefully, letting workers finish queued tasks.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		atomic.StoreInt32(&r.stopped, 1)
		for _, q := range r.queues {
			close(q)
		}
		r.wg.Wait()
		logrus.Info("[TASKS] All workers stopped")
	})
}

// GetStats returns a snapshot of the runner counters.
func (r *Runner) GetStats() Stats {
	return Stats{
		NumWorkers:     r.numWorkers,
		QueueSize:      r.queueSize,
		TotalSubmitted: atomic.LoadInt64(&r.totalSubmitted),
		TotalProcessed: atomic.LoadInt64(&r.totalProcessed),
		TotalDropped:   atomic.LoadInt64(&r.totalDropped),
		TotalErrors:    atomic.LoadInt64(&r.totalErrors),
	}
}

func (r *Runner) shardForKey(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(r.numWorkers))
}

func (r *Runner) run(ctx context.Context, id int) {
	defer r.wg.Done()
	for task := range r.queues[id] {
		r.execute(ctx, id, task)
	}
	logrus.Debugf("[TASKS] Worker %d shutting down", id)
}

func (r *Runner) execute(ctx context.Context, id int, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			atomic.AddInt64(&r.totalErrors, 1)
			logrus.Errorf("[TASKS] Worker %d panic in task %s: %v", id, task.Name, rec)
		}
		atomic.AddInt64(&r.totalProcessed, 1)
	}()

	if err := task.Run(ctx); err != nil {
		atomic.AddInt64(&r.totalErrors, 1)
		logrus.WithError(err).Errorf("[TASKS] Worker %d task %s failed", id, task.Name)
	}
}
