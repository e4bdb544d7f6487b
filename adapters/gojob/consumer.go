package gojob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/webhooks"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-job/queue/worker"
)

// Publisher is a webhooks.Handler that defers batch processing to the job
// queue. The webhook processor has already verified and claimed the delivery.
type Publisher struct {
	Enqueuer  core.JobEnqueuer
	ExtractID webhooks.DeliveryIDExtractor
}

func NewPublisher(enqueuer core.JobEnqueuer, extractID webhooks.DeliveryIDExtractor) *Publisher {
	if extractID == nil {
		extractID = webhooks.DefaultDeliveryIDExtractor
	}
	return &Publisher{Enqueuer: enqueuer, ExtractID: extractID}
}

func (p *Publisher) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Enqueuer == nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	inboxID, _ := req.Metadata[ParamInboxID].(string)
	if strings.TrimSpace(inboxID) == "" {
		return core.InboundResult{StatusCode: http.StatusBadRequest}, fmt.Errorf("gojob: inbox id is required")
	}
	deliveryID, err := p.ExtractID(req)
	if err != nil {
		return core.InboundResult{StatusCode: http.StatusBadRequest}, err
	}
	msg := BatchExecutionMessage(req, inboxID, deliveryID)
	if err := p.Enqueuer.Enqueue(ctx, msg); err != nil {
		return core.InboundResult{StatusCode: http.StatusServiceUnavailable}, fmt.Errorf("gojob: enqueue batch: %w", err)
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		Metadata:   map[string]any{"queued": true, "job_id": msg.JobID},
	}, nil
}

// Consumer drains batch jobs into a webhooks.Handler. Successful and
// permanently failing executions are acked or dead-lettered; persistence
// failures are nacked with backoff until the retry policy is exhausted.
type Consumer struct {
	Dequeuer core.JobDequeuer
	Handler  webhooks.Handler
	Policy   RetryPolicy
	Hook     core.JobWorkerHook
	Logger   core.Logger
	Now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewConsumer(dequeuer core.JobDequeuer, handler webhooks.Handler, policy RetryPolicy) *Consumer {
	return &Consumer{
		Dequeuer: dequeuer,
		Handler:  handler,
		Policy:   policy,
		Logger:   glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		attempts: map[string]int{},
	}
}

// Run consumes until ctx is cancelled or the dequeuer fails.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.ConsumeOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// ConsumeOnce handles a single delivery. Handler failures are settled on the
// delivery and never returned; only dequeue and settlement errors are.
func (c *Consumer) ConsumeOnce(ctx context.Context) error {
	if c == nil || c.Dequeuer == nil || c.Handler == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	key := attemptKey(msg)
	attempt := c.nextAttempt(key)
	startedAt := c.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	c.hook().OnStart(ctx, event)

	req, err := InboundRequestFromMessage(msg)
	if err == nil {
		var result core.InboundResult
		result, err = c.Handler.Handle(ctx, req)
		if err == nil && !result.Accepted {
			err = fmt.Errorf("gojob: batch rejected with status %d", result.StatusCode)
		}
	}
	event.Duration = c.now().Sub(startedAt)

	if err == nil {
		c.clearAttempts(key)
		c.hook().OnSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = err
	logger := c.logger().WithContext(ctx)
	if !core.IsPersistenceFailure(err) {
		c.clearAttempts(key)
		logger.Warn("dead-lettering batch job", "job_id", jobID(msg), "attempt", attempt, "error", err.Error())
		c.hook().OnFailure(ctx, event)
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	opts := c.Policy.NormalizeAttempt(core.JobNackOptions{
		Delay:   c.Policy.DelayFor(attempt),
		Requeue: true,
		Reason:  err.Error(),
	}, attempt)
	event.Delay = opts.Delay
	if opts.Requeue {
		logger.Info("retrying batch job", "job_id", jobID(msg), "attempt", attempt, "delay", opts.Delay.String())
		c.hook().OnRetry(ctx, event)
	} else {
		c.clearAttempts(key)
		logger.Error("batch job exhausted retries", "job_id", jobID(msg), "attempt", attempt, "error", err.Error())
		c.hook().OnFailure(ctx, event)
	}
	return delivery.Nack(ctx, opts)
}

func (c *Consumer) nextAttempt(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts == nil {
		c.attempts = map[string]int{}
	}
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) clearAttempts(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Consumer) logger() core.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return glog.Nop()
}

func (c *Consumer) hook() core.JobWorkerHook {
	if c.Hook != nil {
		return c.Hook
	}
	return nopHook{}
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return stringParam(msg.Parameters, ParamDeliveryID)
}

func jobID(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}

// LoggingHook reports batch job lifecycle events through a logger.
type LoggingHook struct {
	Logger core.Logger
}

func (h LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "debug", "batch job started", event)
}

func (h LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "info", "batch job succeeded", event)
}

func (h LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "error", "batch job failed", event)
}

func (h LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "warn", "batch job scheduled for retry", event)
}

func (h LoggingHook) log(ctx context.Context, level string, message string, event core.JobWorkerEvent) {
	if h.Logger == nil {
		return
	}
	logger := h.Logger.WithContext(ctx)
	args := []any{
		"job_id", jobID(event.Message),
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay.String())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	switch level {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

type nopHook struct{}

func (nopHook) OnStart(context.Context, core.JobWorkerEvent)   {}
func (nopHook) OnSuccess(context.Context, core.JobWorkerEvent) {}
func (nopHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (nopHook) OnRetry(context.Context, core.JobWorkerEvent)   {}

var (
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ core.JobWorkerHook = LoggingHook{}
	_ webhooks.Handler   = (*Publisher)(nil)
)
