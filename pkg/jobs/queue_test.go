package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRoutesByType(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2, BufferSize: 4})
	done := make(chan string, 2)
	q.Register("sheet_sync", func(ctx context.Context, job Job) error {
		done <- "sync:" + job.ID
		return nil
	})
	q.Register("notify", func(ctx context.Context, job Job) error {
		done <- "notify:" + job.ID
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "sheet_sync"}))
	require.NoError(t, q.TryEnqueue(Job{ID: "2", Type: "notify"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-done:
			got[v] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.True(t, got["sync:1"])
	assert.True(t, got["notify:2"])
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	q := NewQueue("retry", QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	var calls int32
	succeeded := make(chan struct{})
	q.Register("flaky", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(succeeded)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "x", Type: "flaky"}))
	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRejectsUnknownTypeAndUnstarted(t *testing.T) {
	q := NewQueue("guard", QueueConfig{})
	q.Register("known", func(context.Context, Job) error { return nil })
	assert.Error(t, q.Enqueue(Job{Type: "known"}))

	q.Start(context.Background())
	defer q.Stop()
	assert.Error(t, q.Enqueue(Job{Type: "unknown"}))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	q := NewQueue("full", QueueConfig{Workers: 1, BufferSize: 1})
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q.Register("slow", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-block
		return nil
	})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	require.NoError(t, q.TryEnqueue(Job{ID: "a", Type: "slow"}))
	<-started
	require.NoError(t, q.TryEnqueue(Job{ID: "b", Type: "slow"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "c", Type: "slow"}), ErrQueueFull)
}
