// Package upload delivers uploaded-file tasks to the detection pipeline.
// It is an in-process stand-in for the external task-queue transport: a
// message carries an upload identifier and the path of the file to score.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task asks the worker to process one uploaded file.
type Task struct {
	ID            string
	UploadID      string
	FilePath      string
	RetryCount    int
	EnqueuedAt    time.Time
	ReceiptHandle string

	visibleAt time.Time
}

// NewTask creates a task for an uploaded file.
func NewTask(uploadID, filePath string) *Task {
	return &Task{
		ID:         uuid.New().String(),
		UploadID:   uploadID,
		FilePath:   filePath,
		EnqueuedAt: time.Now().UTC(),
	}
}

// QueueConfig configures the task queue.
type QueueConfig struct {
	MaxRetries        int
	VisibilityTimeout time.Duration
}

// ApplyDefaults fills in default values
func (c *QueueConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 5 * time.Minute
	}
}

// Queue is a bounded in-memory task queue with at-least-once delivery.
// A dequeued task stays invisible until acknowledged; unacknowledged
// tasks return to the queue after the visibility timeout and are dropped
// to the dead-letter list once retries are exhausted.
type Queue struct {
	config     QueueConfig
	logger     *zap.Logger
	mu         sync.Mutex
	tasks      []*Task
	inFlight   map[string]*Task // receiptHandle -> task
	deadLetter []*Task
}

// NewQueue creates a task queue.
func NewQueue(config QueueConfig, logger *zap.Logger) *Queue {
	config.ApplyDefaults()
	return &Queue{
		config:   config,
		logger:   logger,
		inFlight: make(map[string]*Task),
	}
}

// Enqueue adds a task.
func (q *Queue) Enqueue(task *Task) string {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.EnqueuedAt = time.Now().UTC()
	task.visibleAt = task.EnqueuedAt

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return task.ID
}

// Dequeue returns the next visible task, or nil when none is ready.
func (q *Queue) Dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, task := range q.tasks {
		if task.visibleAt.After(now) {
			continue
		}
		q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)

		task.ReceiptHandle = uuid.New().String()
		task.visibleAt = now.Add(q.config.VisibilityTimeout)
		q.inFlight[task.ReceiptHandle] = task

		go q.visibilityTimer(task.ReceiptHandle, q.config.VisibilityTimeout)
		return task
	}
	return nil
}

// visibilityTimer returns a task to the queue if not acknowledged in time.
func (q *Queue) visibilityTimer(receiptHandle string, timeout time.Duration) {
	time.Sleep(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.inFlight[receiptHandle]
	if !exists {
		return // already acknowledged or nacked
	}
	delete(q.inFlight, receiptHandle)
	q.requeueLocked(task)
}

// Ack removes a delivered task for good.
func (q *Queue) Ack(receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.inFlight[receiptHandle]; !exists {
		return errors.New("upload: invalid receipt handle")
	}
	delete(q.inFlight, receiptHandle)
	return nil
}

// Nack returns a delivered task to the queue immediately.
func (q *Queue) Nack(receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.inFlight[receiptHandle]
	if !exists {
		return errors.New("upload: invalid receipt handle")
	}
	delete(q.inFlight, receiptHandle)
	q.requeueLocked(task)
	return nil
}

func (q *Queue) requeueLocked(task *Task) {
	task.ReceiptHandle = ""
	task.RetryCount++
	task.visibleAt = time.Now()

	if task.RetryCount >= q.config.MaxRetries {
		q.logger.Warn("task exhausted retries, moving to dead letter",
			zap.String("upload_id", task.UploadID), zap.Int("retries", task.RetryCount))
		q.deadLetter = append(q.deadLetter, task)
		return
	}
	q.tasks = append(q.tasks, task)
}

// Stats describes queue depth.
type Stats struct {
	Ready      int
	InFlight   int
	DeadLetter int
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Ready:      len(q.tasks),
		InFlight:   len(q.inFlight),
		DeadLetter: len(q.deadLetter),
	}
}

// Handler processes one task; a non-nil error triggers redelivery.
type Handler func(ctx context.Context, uploadID, filePath string) error

// Consumer polls the queue and hands tasks to a handler.
type Consumer struct {
	queue   *Queue
	handler Handler
	logger  *zap.Logger
	poll    time.Duration
}

// NewConsumer creates a queue consumer.
func NewConsumer(queue *Queue, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{queue: queue, handler: handler, logger: logger, poll: 250 * time.Millisecond}
}

// Run consumes tasks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		task := c.queue.Dequeue()
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.poll):
			}
			continue
		}

		if err := c.handler(ctx, task.UploadID, task.FilePath); err != nil {
			c.logger.Error("task failed, returning to queue",
				zap.String("upload_id", task.UploadID), zap.Error(err))
			if nerr := c.queue.Nack(task.ReceiptHandle); nerr != nil {
				c.logger.Error("nack failed", zap.Error(nerr))
			}
			continue
		}

		if err := c.queue.Ack(task.ReceiptHandle); err != nil {
			c.logger.Error(fmt.Sprintf("ack failed for task %s", task.ID), zap.Error(err))
		}
	}
}
