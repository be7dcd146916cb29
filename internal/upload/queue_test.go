package upload

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(cfg QueueConfig) *Queue {
	return NewQueue(cfg, zap.NewNop())
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	t.Run("delivers in fifo order", func(t *testing.T) {
		q := newTestQueue(QueueConfig{})
		q.Enqueue(NewTask("u-1", "/data/a.log"))
		q.Enqueue(NewTask("u-2", "/data/b.log"))

		first := q.Dequeue()
		require.NotNil(t, first)
		assert.Equal(t, "u-1", first.UploadID)

		second := q.Dequeue()
		require.NotNil(t, second)
		assert.Equal(t, "u-2", second.UploadID)
	})

	t.Run("empty queue yields nil", func(t *testing.T) {
		q := newTestQueue(QueueConfig{})
		assert.Nil(t, q.Dequeue())
	})

	t.Run("assigns task id when missing", func(t *testing.T) {
		q := newTestQueue(QueueConfig{})
		id := q.Enqueue(&Task{UploadID: "u-1", FilePath: "/a"})
		assert.NotEmpty(t, id)
	})
}

func TestQueue_AckNack(t *testing.T) {
	t.Run("acked task is gone", func(t *testing.T) {
		q := newTestQueue(QueueConfig{})
		q.Enqueue(NewTask("u-1", "/a"))

		task := q.Dequeue()
		require.NoError(t, q.Ack(task.ReceiptHandle))
		assert.Nil(t, q.Dequeue())
		assert.Equal(t, 0, q.Stats().InFlight)
	})

	t.Run("nacked task is redelivered", func(t *testing.T) {
		q := newTestQueue(QueueConfig{MaxRetries: 5})
		q.Enqueue(NewTask("u-1", "/a"))

		task := q.Dequeue()
		require.NoError(t, q.Nack(task.ReceiptHandle))

		again := q.Dequeue()
		require.NotNil(t, again)
		assert.Equal(t, "u-1", again.UploadID)
		assert.Equal(t, 1, again.RetryCount)
	})

	t.Run("invalid receipt handle errors", func(t *testing.T) {
		q := newTestQueue(QueueConfig{})
		assert.Error(t, q.Ack("bogus"))
		assert.Error(t, q.Nack("bogus"))
	})

	t.Run("exhausted retries go to dead letter", func(t *testing.T) {
		q := newTestQueue(QueueConfig{MaxRetries: 2})
		q.Enqueue(NewTask("u-1", "/a"))

		for i := 0; i < 2; i++ {
			task := q.Dequeue()
			require.NotNil(t, task, "attempt %d", i)
			require.NoError(t, q.Nack(task.ReceiptHandle))
		}

		assert.Nil(t, q.Dequeue())
		assert.Equal(t, 1, q.Stats().DeadLetter)
	})
}

func TestQueue_VisibilityTimeout(t *testing.T) {
	q := newTestQueue(QueueConfig{MaxRetries: 5, VisibilityTimeout: 50 * time.Millisecond})
	q.Enqueue(NewTask("u-1", "/a"))

	task := q.Dequeue()
	require.NotNil(t, task)

	// not acked: the task comes back after the visibility timeout
	require.Eventually(t, func() bool {
		return q.Dequeue() != nil
	}, time.Second, 10*time.Millisecond)
}

func TestConsumer_Run(t *testing.T) {
	t.Run("successful task is acked once", func(t *testing.T) {
		q := newTestQueue(QueueConfig{})
		var handled atomic.Int64
		c := NewConsumer(q, func(ctx context.Context, uploadID, filePath string) error {
			handled.Add(1)
			return nil
		}, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		go c.Run(ctx)

		q.Enqueue(NewTask("u-1", "/a"))
		require.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 10*time.Millisecond)
		cancel()

		assert.Equal(t, 0, q.Stats().Ready)
		assert.Equal(t, 0, q.Stats().InFlight)
	})

	t.Run("failing task is retried until dead letter", func(t *testing.T) {
		q := newTestQueue(QueueConfig{MaxRetries: 3})
		var attempts atomic.Int64
		c := NewConsumer(q, func(ctx context.Context, uploadID, filePath string) error {
			attempts.Add(1)
			return errors.New("boom")
		}, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		go c.Run(ctx)

		q.Enqueue(NewTask("u-1", "/a"))
		require.Eventually(t, func() bool { return q.Stats().DeadLetter == 1 }, 2*time.Second, 10*time.Millisecond)
		cancel()

		assert.Equal(t, int64(3), attempts.Load())
	})
}
