package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesSubmittedTasks(t *testing.T) {
	r := NewRunner(2, 10)
	r.Start(context.Background())

	var mu sync.Mutex
	ran := 0
	done := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		ok := r.Submit(Task{Name: "t", Key: "k", Run: func(ctx context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			done <- struct{}{}
			return nil
		}})
		require.True(t, ok)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run in time")
		}
	}
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, ran)
	assert.Equal(t, int64(3), r.GetStats().TotalProcessed)
}

func TestRunnerRecoversFromPanicAndCountsErrors(t *testing.T) {
	r := NewRunner(1, 10)
	r.Start(context.Background())

	r.Submit(Task{Name: "boom", Run: func(ctx context.Context) error { panic("boom") }})
	r.Submit(Task{Name: "fail", Run: func(ctx context.Context) error { return errors.New("nope") }})
	r.Stop()

	stats := r.GetStats()
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.TotalErrors)
}

func TestRunnerRejectsAfterStop(t *testing.T) {
	r := NewRunner(1, 1)
	r.Start(context.Background())
	r.Stop()

	ok := r.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }})
	assert.False(t, ok)
	assert.Equal(t, int64(1), r.GetStats().TotalDropped)
}

func TestRecorderCapturesWithoutRunning(t *testing.T) {
	rec := &Recorder{}
	rec.Submit(Task{Name: "analysis:sentiment", Run: func(ctx context.Context) error {
		t.Fatal("recorder must not run tasks")
		return nil
	}})
	assert.Equal(t, []string{"analysis:sentiment"}, rec.Names())
}
