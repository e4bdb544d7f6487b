package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (core.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]core.Message, error)
}

type InboxReader interface {
	GetInbox(ctx context.Context, id string) (core.Inbox, error)
}

type GetConversationQuery struct {
	reader ConversationReader
}

func NewGetConversationQuery(reader ConversationReader) *GetConversationQuery {
	return &GetConversationQuery{reader: reader}
}

func (q *GetConversationQuery) Query(ctx context.Context, msg GetConversationMessage) (core.Conversation, error) {
	if q == nil || q.reader == nil {
		return core.Conversation{}, queryDependencyError("query: conversation reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Conversation{}, err
	}
	return q.reader.GetConversation(ctx, strings.TrimSpace(msg.ConversationID))
}

// ListMessagesQuery returns a conversation's messages oldest first.
type ListMessagesQuery struct {
	reader ConversationReader
}

func NewListMessagesQuery(reader ConversationReader) *ListMessagesQuery {
	return &ListMessagesQuery{reader: reader}
}

func (q *ListMessagesQuery) Query(ctx context.Context, msg ListMessagesMessage) ([]core.Message, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: conversation reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	conversationID := strings.TrimSpace(msg.ConversationID)
	if _, err := q.reader.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	messages, err := q.reader.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msg.Limit > 0 && len(messages) > msg.Limit {
		messages = messages[len(messages)-msg.Limit:]
	}
	return messages, nil
}

type GetInboxQuery struct {
	reader InboxReader
}

func NewGetInboxQuery(reader InboxReader) *GetInboxQuery {
	return &GetInboxQuery{reader: reader}
}

// Query returns the inbox with its credentials cleared.
func (q *GetInboxQuery) Query(ctx context.Context, msg GetInboxMessage) (core.Inbox, error) {
	if q == nil || q.reader == nil {
		return core.Inbox{}, queryDependencyError("query: inbox reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Inbox{}, err
	}
	inbox, err := q.reader.GetInbox(ctx, strings.TrimSpace(msg.InboxID))
	if err != nil {
		return core.Inbox{}, err
	}
	inbox.APIKey = ""
	inbox.WebhookVerifyToken = ""
	return inbox, nil
}
