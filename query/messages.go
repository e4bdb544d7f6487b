package query

import "strings"

const (
	TypeGetConversation = "inbox.query.conversation.get"
	TypeListMessages    = "inbox.query.conversation.messages.list"
	TypeGetInbox        = "inbox.query.inbox.get"
)

type GetConversationMessage struct {
	ConversationID string
}

func (GetConversationMessage) Type() string { return TypeGetConversation }

func (m GetConversationMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return queryValidationError("conversation_id", "conversation id is required")
	}
	return nil
}

type ListMessagesMessage struct {
	ConversationID string
	// Limit keeps the most recent messages when positive.
	Limit int
}

func (ListMessagesMessage) Type() string { return TypeListMessages }

func (m ListMessagesMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return queryValidationError("conversation_id", "conversation id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	return nil
}

type GetInboxMessage struct {
	InboxID string
}

func (GetInboxMessage) Type() string { return TypeGetInbox }

func (m GetInboxMessage) Validate() error {
	if strings.TrimSpace(m.InboxID) == "" {
		return queryValidationError("inbox_id", "inbox id is required")
	}
	return nil
}
