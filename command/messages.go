package command

import (
	"strings"

	"github.com/goliatone/go-inbox/core"
)

const (
	TypeProcessBatch             = "inbox.command.batch.process"
	TypeChangeConversationStatus = "inbox.command.conversation.status.change"
	TypeResolveConversation      = "inbox.command.conversation.resolve"
)

type ProcessBatchMessage struct {
	InboxID string
	Events  []core.IncomingEvent
}

func (ProcessBatchMessage) Type() string { return TypeProcessBatch }

func (m ProcessBatchMessage) Validate() error {
	if strings.TrimSpace(m.InboxID) == "" {
		return commandValidationError("inbox_id", "inbox id is required")
	}
	return nil
}

// ChangeConversationStatusMessage carries the actor that performed the
// change so the activity message can be rendered for them.
type ChangeConversationStatusMessage struct {
	Change core.ConversationStatusChange
	Actor  core.Actor
}

func (ChangeConversationStatusMessage) Type() string { return TypeChangeConversationStatus }

func (m ChangeConversationStatusMessage) Validate() error {
	if strings.TrimSpace(m.Change.ConversationID) == "" {
		return commandValidationError("conversation_id", "conversation id is required")
	}
	if !m.Change.Status.Valid() {
		return commandValidationError("status", "status must be one of open, pending, snoozed, resolved")
	}
	return validateActor(m.Actor)
}

type ResolveConversationMessage struct {
	ConversationID string
	Reason         string
	Actor          core.Actor
}

func (ResolveConversationMessage) Type() string { return TypeResolveConversation }

func (m ResolveConversationMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return commandValidationError("conversation_id", "conversation id is required")
	}
	if strings.TrimSpace(m.Reason) == "" {
		return commandValidationError("reason", "reason is required")
	}
	return validateActor(m.Actor)
}

func validateActor(actor core.Actor) error {
	switch actor.Kind {
	case "", core.ActorKindHuman, core.ActorKindAutomated:
		return nil
	default:
		return commandValidationError("actor.kind", "actor kind must be human or automated")
	}
}
