package gojob

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := BatchExecutionMessage(core.InboundRequest{
		ProviderID: "baileys",
		Body:       []byte(`{"event":"messages.upsert"}`),
	}, " inbox_1 ", "digest-1")

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	if string(converted.DedupPolicy) != "drop" || converted.IdempotencyKey != "digest-1" {
		t.Fatalf("unexpected go-job message %#v", converted)
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != JobIDBaileysMessagesUpsert {
		t.Fatalf("expected job id %q, got %q", JobIDBaileysMessagesUpsert, roundTrip.JobID)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}

	req, err := InboundRequestFromMessage(roundTrip)
	if err != nil {
		t.Fatalf("inbound request: %v", err)
	}
	if req.ProviderID != "baileys" || req.Surface != "queue" {
		t.Fatalf("unexpected request %#v", req)
	}
	if req.Metadata[ParamInboxID] != "inbox_1" || req.Metadata[ParamDeliveryID] != "digest-1" {
		t.Fatalf("unexpected request metadata %#v", req.Metadata)
	}
	if string(req.Body) != `{"event":"messages.upsert"}` {
		t.Fatalf("unexpected body %q", req.Body)
	}
}

func TestInboundRequestFromMessage_RejectsIncompleteJobs(t *testing.T) {
	cases := map[string]*core.JobExecutionMessage{
		"nil":         nil,
		"unknown job": {JobID: "other", Parameters: map[string]any{ParamInboxID: "i", ParamBody: "{}"}},
		"no inbox":    {JobID: JobIDBaileysMessagesUpsert, Parameters: map[string]any{ParamBody: "{}"}},
		"no body":     {JobID: JobIDBaileysMessagesUpsert, Parameters: map[string]any{ParamInboxID: "i"}},
	}
	for name, msg := range cases {
		if _, err := InboundRequestFromMessage(msg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	msg := BatchExecutionMessage(core.InboundRequest{ProviderID: "baileys", Body: []byte("{}")}, "inbox_1", "d1")
	if err := NewEnqueuerAdapter(enqueuer).Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDBaileysMessagesUpsert {
		t.Fatalf("expected mapped go-job message")
	}
	if err := NewEnqueuerAdapter(enqueuer).Enqueue(ctx, nil); err == nil {
		t.Fatalf("expected nil message error")
	}

	raw := &stubQueueDelivery{msg: enqueuer.last}
	delivery, err := NewDequeuerAdapter(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}}).Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := delivery.Message(); got == nil || got.Parameters[ParamInboxID] != "inbox_1" {
		t.Fatalf("expected mapped core message, got %#v", got)
	}
	if err := delivery.Nack(ctx, core.JobNackOptions{Delay: time.Second, Requeue: true, Reason: "later"}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if !raw.nackOpts.Requeue || raw.nackOpts.Delay != time.Second || raw.nackOpts.Reason != "later" {
		t.Fatalf("unexpected nack options %#v", raw.nackOpts)
	}
}

func TestRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    2 * time.Second,
		MaxDelay:        5 * time.Second,
		DeadLetterOnMax: true,
	}
	if got := policy.DelayFor(1); got != 2*time.Second {
		t.Fatalf("expected initial delay, got %s", got)
	}
	if got := policy.DelayFor(2); got != 4*time.Second {
		t.Fatalf("expected doubled delay, got %s", got)
	}
	if got := policy.DelayFor(6); got != 5*time.Second {
		t.Fatalf("expected capped delay, got %s", got)
	}

	opts := policy.NormalizeAttempt(core.JobNackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " transient "}, 1)
	if opts.Delay != 5*time.Second || !opts.Requeue || opts.DeadLetter || opts.Reason != "transient" {
		t.Fatalf("unexpected first attempt options %#v", opts)
	}
	opts = policy.NormalizeAttempt(core.JobNackOptions{Delay: time.Second, Requeue: true}, 3)
	if opts.Requeue || !opts.DeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %#v", opts)
	}
	if opts := (RetryPolicy{}).NormalizeAttempt(core.JobNackOptions{}, 9); !opts.Requeue {
		t.Fatalf("expected unbounded policy to requeue, got %#v", opts)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	policy := RetryPolicyFromConfig(cfg)
	if policy.MaxAttempts != cfg.Webhooks.MaxAttempts || policy.InitialDelay != cfg.RetryInitial() || !policy.DeadLetterOnMax {
		t.Fatalf("unexpected policy %#v", policy)
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	startedAt := time.Now().UTC().Add(-time.Second)
	hook := &capturingHook{}
	adapter := NewWorkerHookAdapter(hook)

	adapter.OnRetry(context.Background(), worker.Event{
		Delivery: &stubQueueDelivery{msg: &job.ExecutionMessage{
			JobID:          JobIDBaileysMessagesUpsert,
			IdempotencyKey: "d1",
		}},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: startedAt,
		Duration:  250 * time.Millisecond,
	})
	last := hook.last(t, "retry")
	if last.Message == nil || last.Message.JobID != JobIDBaileysMessagesUpsert {
		t.Fatalf("expected message mapped from delivery, got %#v", last.Message)
	}
	if last.Attempt != 2 || last.Delay != 5*time.Second || last.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected event mapping %#v", last)
	}
	if !last.StartedAt.Equal(startedAt) || last.Err == nil || last.Err.Error() != "retry" {
		t.Fatalf("expected start time and error mapping, got %#v", last)
	}

	var nilAdapter *WorkerHookAdapter
	nilAdapter.OnStart(context.Background(), worker.Event{})
}

func TestPublisher_EnqueuesVerifiedBatch(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	publisher := NewPublisher(NewEnqueuerAdapter(enqueuer), nil)
	result, err := publisher.Handle(context.Background(), core.InboundRequest{
		ProviderID: "baileys",
		Body:       []byte(`{"event":"messages.upsert"}`),
		Metadata:   map[string]any{ParamInboxID: "inbox_1", ParamDeliveryID: "d1"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusAccepted || result.Metadata["queued"] != true {
		t.Fatalf("unexpected result %#v", result)
	}
	if enqueuer.last == nil || enqueuer.last.IdempotencyKey != "d1" {
		t.Fatalf("expected delivery id as idempotency key, got %#v", enqueuer.last)
	}

	result, err = publisher.Handle(context.Background(), core.InboundRequest{Body: []byte("{}")})
	if err == nil || result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected missing inbox rejection, got %#v %v", result, err)
	}

	enqueuer.err = errors.New("broker down")
	result, err = publisher.Handle(context.Background(), core.InboundRequest{
		Body:     []byte("{}"),
		Metadata: map[string]any{ParamInboxID: "inbox_1"},
	})
	if err == nil || result.Accepted || result.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected enqueue failure to be retryable, got %#v %v", result, err)
	}
}

func TestConsumer_AcksSuccessfulBatch(t *testing.T) {
	raw := queuedBatch("d1")
	handler := &stubHandler{}
	hook := &capturingHook{}
	consumer := NewConsumer(dequeuerOf(raw), handler, RetryPolicy{MaxAttempts: 3})
	consumer.Hook = hook

	if err := consumer.ConsumeOnce(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !raw.acked || raw.nacked {
		t.Fatalf("expected ack, got acked=%v nacked=%v", raw.acked, raw.nacked)
	}
	if handler.calls != 1 || handler.last.Metadata[ParamInboxID] != "inbox_1" {
		t.Fatalf("unexpected handler invocation %#v", handler.last)
	}
	if hook.last(t, "success").Attempt != 1 {
		t.Fatalf("expected first attempt")
	}
}

func TestConsumer_RequeuesPersistenceFailuresUntilExhausted(t *testing.T) {
	failure := goerrors.Wrap(errors.New("connection reset"), goerrors.CategoryOperation, "core: persist message failed").
		WithTextCode(core.InboxErrorPersistenceFailed)
	handler := &stubHandler{
		result: core.InboundResult{StatusCode: http.StatusInternalServerError},
		err:    errors.Join(failure),
	}
	first, second := queuedBatch("d1"), queuedBatch("d1")
	hook := &capturingHook{}
	consumer := NewConsumer(dequeuerOf(first, second), handler, RetryPolicy{
		MaxAttempts:     2,
		InitialDelay:    time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	})
	consumer.Hook = hook

	if err := consumer.ConsumeOnce(context.Background()); err != nil {
		t.Fatalf("consume first: %v", err)
	}
	if !first.nackOpts.Requeue || first.nackOpts.DeadLetter || first.nackOpts.Delay != time.Second {
		t.Fatalf("expected delayed requeue, got %#v", first.nackOpts)
	}
	if hook.last(t, "retry").Delay != time.Second {
		t.Fatalf("expected retry hook with delay")
	}

	if err := consumer.ConsumeOnce(context.Background()); err != nil {
		t.Fatalf("consume second: %v", err)
	}
	if second.nackOpts.Requeue || !second.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter after max attempts, got %#v", second.nackOpts)
	}
	if hook.last(t, "failure").Attempt != 2 {
		t.Fatalf("expected failure on second attempt")
	}
}

func TestConsumer_DeadLettersPermanentFailures(t *testing.T) {
	raw := queuedBatch("d1")
	handler := &stubHandler{
		result: core.InboundResult{StatusCode: http.StatusBadRequest},
		err:    errors.New("invalid payload"),
	}
	consumer := NewConsumer(dequeuerOf(raw), handler, RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second})
	if err := consumer.ConsumeOnce(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !raw.nackOpts.DeadLetter || raw.nackOpts.Requeue || raw.nackOpts.Reason != "invalid payload" {
		t.Fatalf("expected immediate dead letter, got %#v", raw.nackOpts)
	}

	unknown := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other"}}
	consumer.Dequeuer = dequeuerOf(unknown)
	if err := consumer.ConsumeOnce(context.Background()); err != nil {
		t.Fatalf("consume unknown: %v", err)
	}
	if !unknown.nackOpts.DeadLetter || handler.calls != 1 {
		t.Fatalf("expected unknown job dead-lettered without handling, got %#v", unknown.nackOpts)
	}
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := &stubHandler{onHandle: cancel}
	consumer := NewConsumer(dequeuerOf(queuedBatch("d1")), handler, RetryPolicy{})
	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handled batch, got %d", handler.calls)
	}
}

func queuedBatch(deliveryID string) *stubQueueDelivery {
	msg := BatchExecutionMessage(core.InboundRequest{ProviderID: "baileys", Body: []byte(`{"event":"messages.upsert"}`)}, "inbox_1", deliveryID)
	return &stubQueueDelivery{msg: ToExecutionMessage(msg)}
}

func dequeuerOf(deliveries ...*stubQueueDelivery) core.JobDequeuer {
	queued := make([]queue.Delivery, 0, len(deliveries))
	for _, delivery := range deliveries {
		queued = append(queued, delivery)
	}
	return NewDequeuerAdapter(&stubQueueDequeuer{deliveries: queued})
}

type stubHandler struct {
	result   core.InboundResult
	err      error
	calls    int
	last     core.InboundRequest
	onHandle func()
}

func (s *stubHandler) Handle(_ context.Context, req core.InboundRequest) (core.InboundResult, error) {
	s.calls++
	s.last = req
	if s.onHandle != nil {
		s.onHandle()
	}
	if s.err != nil {
		return s.result, s.err
	}
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK}, nil
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
	err  error
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if s.err != nil {
		return s.err
	}
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	deliveries []queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if len(s.deliveries) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return next, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	events map[string]core.JobWorkerEvent
}

func (h *capturingHook) record(kind string, event core.JobWorkerEvent) {
	if h.events == nil {
		h.events = map[string]core.JobWorkerEvent{}
	}
	h.events[kind] = event
}

func (h *capturingHook) last(t *testing.T, kind string) core.JobWorkerEvent {
	t.Helper()
	event, ok := h.events[kind]
	if !ok {
		t.Fatalf("expected %s hook event", kind)
	}
	return event
}

func (h *capturingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.record("start", event)
}

func (h *capturingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.record("success", event)
}

func (h *capturingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.record("failure", event)
}

func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.record("retry", event)
}
