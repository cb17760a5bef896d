package tasks

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Inline runs every task synchronously on the submitting goroutine.
// Useful in tests and in code paths that must not outlive the request.
type Inline struct{}

func (Inline) Submit(task Task) bool {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("[TASKS] panic in inline task %s: %v", task.Name, rec)
		}
	}()
	if err := task.Run(context.Background()); err != nil {
		logrus.WithError(err).Errorf("[TASKS] inline task %s failed", task.Name)
	}
	return true
}

// Recorder captures submitted tasks without running them, so tests can
// assert that a piece of background work was requested.
type Recorder struct {
	Tasks []Task
}

func (r *Recorder) Submit(task Task) bool {
	r.Tasks = append(r.Tasks, task)
	return true
}

// Names returns the names of the recorded tasks in submission order.
func (r *Recorder) Names() []string {
	names := make([]string, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		names = append(names, t.Name)
	}
	return names
}
