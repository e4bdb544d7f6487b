package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MessagePersister creates messages idempotently keyed by provider message id.
type MessagePersister struct {
	messages      MessageStore
	conversations ConversationStore
}

func NewMessagePersister(messages MessageStore, conversations ConversationStore) *MessagePersister {
	return &MessagePersister{messages: messages, conversations: conversations}
}

// Persist returns the stored message and whether this call created it.
func (p *MessagePersister) Persist(
	ctx context.Context,
	conversation Conversation,
	sender Contact,
	event IncomingEvent,
) (Message, bool, error) {
	if p == nil || p.messages == nil {
		return Message{}, false, ErrStoreRequired
	}
	sourceID := strings.TrimSpace(event.MessageID)
	if sourceID == "" {
		return Message{}, false, &MalformedEventError{Reason: "provider message id is required"}
	}

	existing, found, err := p.messages.FindMessageBySource(ctx, conversation.InboxID, sourceID)
	if err != nil {
		return Message{}, false, persistenceFailure(err, "message lookup")
	}
	if found {
		return existing, false, nil
	}

	message := Message{
		AccountID:         conversation.AccountID,
		InboxID:           conversation.InboxID,
		ConversationID:    conversation.ID,
		MessageType:       MessageTypeIncoming,
		SenderContactID:   sender.ID,
		Content:           event.Body,
		SourceID:          sourceID,
		ContentAttributes: copyAttributes(event.ContentAttributes),
		CreatedAt:         event.Timestamp.UTC(),
	}
	if event.FromMe {
		message.MessageType = MessageTypeOutgoing
		message.SenderContactID = ""
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	created, err := p.messages.CreateMessage(ctx, message)
	if err != nil {
		if !errors.Is(err, ErrUniqueViolation) {
			return Message{}, false, persistenceFailure(err, "message create")
		}
		winner, found, lookupErr := p.messages.FindMessageBySource(ctx, conversation.InboxID, sourceID)
		if lookupErr != nil {
			return Message{}, false, persistenceFailure(lookupErr, "message lookup")
		}
		if !found {
			return Message{}, false, persistenceFailure(err, "message create")
		}
		return winner, false, nil
	}

	if p.conversations != nil {
		if err := p.conversations.TouchConversation(ctx, conversation.ID, created.CreatedAt); err != nil {
			return created, true, persistenceFailure(err, "conversation touch")
		}
	}
	return created, true, nil
}

func copyAttributes(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
