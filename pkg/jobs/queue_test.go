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

func TestQueueProcessesRegisteredKinds(t *testing.T) {
	q := New("test", Options{Workers: 2})
	done := make(chan string, 1)
	q.Register("payroll", func(_ context.Context, job Job) error {
		done <- job.ID
		return nil
	})

	require.ErrorIs(t, q.Enqueue(Job{ID: "early", Kind: "payroll"}), ErrQueueClosed)

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Kind: "payroll"}))
	select {
	case id := <-done:
		assert.Equal(t, "job-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	assert.Error(t, q.Enqueue(Job{ID: "job-2", Kind: "unknown"}))
	assert.Eventually(t, func() bool { return q.Stats().Processed == 1 }, time.Second, 10*time.Millisecond)
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	q := New("retry", Options{MaxRetries: 3, Backoff: 5 * time.Millisecond})
	var calls atomic.Int32
	q.Register("flaky", func(context.Context, Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j", Kind: "flaky"}))
	assert.Eventually(t, func() bool { return q.Stats().Processed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 2, q.Stats().Retried)
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := New("fail", Options{MaxRetries: 1, Backoff: 5 * time.Millisecond})
	q.Register("boom", func(context.Context, Job) error { panic("boom") })
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j", Kind: "boom"}))
	assert.Eventually(t, func() bool { return q.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, q.Stats().Processed)
}
