package main

import (
	"context"
	"sync"

	"github.com/goliatone/go-inbox/adapters/gojob"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/providers/baileys"
	"github.com/goliatone/go-inbox/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

type queueOptions struct {
	Enabled  bool
	Workers  int
	Capacity int
}

// webhookPipeline is the webhook processor plus, when queueing is enabled,
// the workers that drain accepted batches.
type webhookPipeline struct {
	Processor *webhooks.Processor
	Queue     *gojob.MemoryQueue
	Consumer  *gojob.Consumer
	workers   int
}

func newWebhookPipeline(
	cfg core.Config,
	inboxes core.InboxStore,
	ledger webhooks.DeliveryLedger,
	events core.EventProcessor,
	provider glog.LoggerProvider,
	opts queueOptions,
) *webhookPipeline {
	logger := provider.GetLogger("webhooks")
	if !opts.Enabled {
		return &webhookPipeline{Processor: baileys.NewProcessor(cfg, inboxes, ledger, events, logger)}
	}

	q := gojob.NewMemoryQueue(opts.Capacity)
	processor := webhooks.NewProcessorFromConfig(
		cfg,
		baileys.TokenVerifier{Inboxes: inboxes},
		ledger,
		gojob.NewPublisher(gojob.NewEnqueuerAdapter(q), baileys.DeliveryID),
	)
	processor.ExtractID = baileys.DeliveryID
	processor.Logger = logger

	workerLogger := provider.GetLogger("worker")
	consumer := gojob.NewConsumer(
		gojob.NewDequeuerAdapter(q),
		baileys.NewIngestor(events, workerLogger),
		gojob.RetryPolicyFromConfig(cfg),
	)
	consumer.Logger = workerLogger
	consumer.Hook = gojob.LoggingHook{Logger: workerLogger}

	return &webhookPipeline{
		Processor: processor,
		Queue:     q,
		Consumer:  consumer,
		workers:   max(opts.Workers, 1),
	}
}

// Run drains the queue until ctx is done. It returns at once when queueing
// is disabled.
func (p *webhookPipeline) Run(ctx context.Context) error {
	if p == nil || p.Consumer == nil {
		return nil
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Consumer.Run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}
