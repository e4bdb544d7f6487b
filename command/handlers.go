package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

type InboxService interface {
	ProcessEvents(ctx context.Context, inboxID string, events []core.IncomingEvent) (core.BatchResult, error)
	ChangeConversationStatus(ctx context.Context, change core.ConversationStatusChange) (core.StatusChangeResult, error)
}

type ProcessBatchCommand struct {
	service InboxService
}

func NewProcessBatchCommand(service InboxService) *ProcessBatchCommand {
	return &ProcessBatchCommand{service: service}
}

func (c *ProcessBatchCommand) Execute(ctx context.Context, msg ProcessBatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbox service is required")
	}
	out, err := c.service.ProcessEvents(ctx, strings.TrimSpace(msg.InboxID), msg.Events)
	storeResult(ctx, out)
	return err
}

type ChangeConversationStatusCommand struct {
	service InboxService
}

func NewChangeConversationStatusCommand(service InboxService) *ChangeConversationStatusCommand {
	return &ChangeConversationStatusCommand{service: service}
}

func (c *ChangeConversationStatusCommand) Execute(ctx context.Context, msg ChangeConversationStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbox service is required")
	}
	out, err := c.service.ChangeConversationStatus(withActor(ctx, msg.Actor), msg.Change)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// ResolveConversationCommand resolves a conversation on behalf of an
// assistant or automation, recording the reason on the activity message.
type ResolveConversationCommand struct {
	service InboxService
}

func NewResolveConversationCommand(service InboxService) *ResolveConversationCommand {
	return &ResolveConversationCommand{service: service}
}

func (c *ResolveConversationCommand) Execute(ctx context.Context, msg ResolveConversationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbox service is required")
	}
	actor := msg.Actor
	if actor.Kind == "" {
		actor.Kind = core.ActorKindAutomated
	}
	out, err := c.service.ChangeConversationStatus(withActor(ctx, actor), core.ConversationStatusChange{
		ConversationID: strings.TrimSpace(msg.ConversationID),
		Status:         core.ConversationStatusResolved,
		Reason:         strings.TrimSpace(msg.Reason),
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func withActor(ctx context.Context, actor core.Actor) context.Context {
	if actor.IsZero() {
		return ctx
	}
	return core.WithActor(ctx, actor)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
