package baileys

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

// Ingestor is the webhooks.Handler for Baileys deliveries. It normalizes a
// messages.upsert batch and hands the events to the processor in order.
type Ingestor struct {
	Events core.EventProcessor
	Logger core.Logger
}

func NewIngestor(events core.EventProcessor, logger core.Logger) *Ingestor {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Ingestor{Events: events, Logger: logger}
}

func (i *Ingestor) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if i == nil || i.Events == nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError},
			fmt.Errorf("providers/baileys: event processor is required")
	}
	inboxID := InboxIDFromRequest(req)
	if inboxID == "" {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusBadRequest},
			fmt.Errorf("providers/baileys: inbox id is required")
	}
	envelope, err := ParseBatch(req.Body)
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusBadRequest}, err
	}
	logger := i.logger().WithContext(ctx)
	if !envelope.Processable() {
		logger.Debug("baileys event ignored", "inbox_id", inboxID, "event", envelope.Event, "type", envelope.Data.Type)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"ignored": true, "event": envelope.Event},
		}, nil
	}

	events := make([]core.IncomingEvent, 0, len(envelope.Data.Messages))
	ignored := 0
	malformed := 0
	for index, entry := range envelope.Data.Messages {
		raw, decodeErr := DecodeMessage(entry)
		if decodeErr != nil {
			malformed++
			logger.Warn("skipping malformed baileys message",
				"inbox_id", inboxID,
				"index", index,
				"message_id", messageIDHint(entry),
				"error", decodeErr.Error(),
			)
			continue
		}
		event, normalizeErr := Normalize(raw)
		if normalizeErr == nil {
			events = append(events, event)
			continue
		}
		if errors.Is(normalizeErr, ErrIgnoredChat) {
			ignored++
			continue
		}
		malformed++
		logger.Warn("skipping malformed baileys message",
			"inbox_id", inboxID,
			"index", index,
			"message_id", raw.Key.ID,
			"error", normalizeErr.Error(),
		)
	}

	batch, err := i.Events.ProcessEvents(ctx, inboxID, events)
	metadata := map[string]any{
		"inbox_id":  inboxID,
		"processed": len(batch.Processed),
		"skipped":   len(batch.Skipped) + malformed,
		"ignored":   ignored,
		"failed":    batch.Failed,
	}
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError, Metadata: metadata}, err
	}
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: metadata}, nil
}

func (i *Ingestor) logger() core.Logger {
	if i == nil || i.Logger == nil {
		return glog.Nop()
	}
	return i.Logger
}

// DeliveryID derives the ledger key from the inbox and the raw body since
// Baileys sends no delivery header.
func DeliveryID(req core.InboundRequest) (string, error) {
	inboxID := InboxIDFromRequest(req)
	if inboxID == "" {
		return "", fmt.Errorf("providers/baileys: inbox id is required")
	}
	if len(req.Body) == 0 {
		return "", fmt.Errorf("providers/baileys: webhook body is required")
	}
	return webhooks.PayloadDigest([]byte(inboxID), req.Body), nil
}

// NewProcessor wires the verifier, ledger and ingestor into a webhook
// processor configured from cfg.
func NewProcessor(
	cfg core.Config,
	inboxes core.InboxStore,
	ledger webhooks.DeliveryLedger,
	events core.EventProcessor,
	logger core.Logger,
) *webhooks.Processor {
	processor := webhooks.NewProcessorFromConfig(cfg, TokenVerifier{Inboxes: inboxes}, ledger, NewIngestor(events, logger))
	processor.ExtractID = DeliveryID
	if logger != nil {
		processor.Logger = logger
	}
	return processor
}
