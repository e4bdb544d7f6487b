package gojob

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const defaultMemoryQueueCapacity = 256

// DeadLetter is a message the queue gave up on.
type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
	At      time.Time
}

// MemoryQueue is an in-process go-job queue for single node deployments.
// Requeued deliveries come back after their nack delay. Nothing survives a
// restart; the webhook ledger is the durable record.
type MemoryQueue struct {
	messages chan *job.ExecutionMessage

	mu      sync.Mutex
	dead    []DeadLetter
	pending sync.WaitGroup
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryQueueCapacity
	}
	return &MemoryQueue{messages: make(chan *job.ExecutionMessage, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: memory queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a message is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is not configured")
	}
	select {
	case msg := <-q.messages:
		return &memoryDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports messages waiting to be dequeued, excluding delayed requeues.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.messages)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

// Wait blocks until delayed requeues have been handed back to the queue.
func (q *MemoryQueue) Wait() {
	if q != nil {
		q.pending.Wait()
	}
}

func (q *MemoryQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) {
	q.pending.Add(1)
	time.AfterFunc(max(delay, 0), func() {
		defer q.pending.Done()
		q.messages <- msg
	})
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, DeadLetter{Message: msg, Reason: reason, At: time.Now().UTC()})
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	return d.settle()
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := d.settle(); err != nil {
		return err
	}
	switch {
	case opts.DeadLetter:
		d.queue.deadLetter(d.msg, opts.Reason)
	case opts.Requeue:
		d.queue.requeue(d.msg, opts.Delay)
	}
	return nil
}

func (d *memoryDelivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.settled = true
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
