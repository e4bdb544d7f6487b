package core_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-inbox/core"
)

func openConversation(t *testing.T, f *fixture) core.Conversation {
	t.Helper()
	result, err := f.service.ProcessEvent(context.Background(), f.inbox.ID, phoneEvent("seed", testPhone))
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return result.Conversation
}

func TestChangeConversationStatus_AutomatedResolveRecordsReason(t *testing.T) {
	f := newFixture(t)
	conversation := openConversation(t, f)

	ctx := core.WithActor(context.Background(), core.Actor{Kind: core.ActorKindAutomated, ID: "asst_1", Name: "Captain"})
	result, err := f.service.ChangeConversationStatus(ctx, core.ConversationStatusChange{
		ConversationID: conversation.ID,
		Status:         core.ConversationStatusResolved,
		Reason:         "customer confirmed fix",
	})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if result.AlreadyInStatus || result.Previous != core.ConversationStatusOpen {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.Activity == nil {
		t.Fatalf("expected activity message")
	}
	want := "Captain resolved the conversation. Reason: customer confirmed fix"
	if result.Activity.Content != want {
		t.Fatalf("expected %q, got %q", want, result.Activity.Content)
	}
	if result.Activity.MessageType != core.MessageTypeActivity || result.Activity.SenderContactID != "" {
		t.Fatalf("unexpected activity shape: %#v", result.Activity)
	}

	if exec, ok := core.ExecutionFrom(ctx); ok && exec.Reason != "" {
		t.Fatalf("expected caller context to carry no reason, got %q", exec.Reason)
	}
}

func TestChangeConversationStatus_HumanActorUsesHumanWording(t *testing.T) {
	f := newFixture(t)
	conversation := openConversation(t, f)

	ctx := core.WithActor(context.Background(), core.Actor{Kind: core.ActorKindHuman, ID: "agent_7", Name: "Ana"})
	result, err := f.service.ChangeConversationStatus(ctx, core.ConversationStatusChange{
		ConversationID: conversation.ID,
		Status:         core.ConversationStatusPending,
	})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if result.Activity == nil || result.Activity.Content != "Conversation was marked as pending by Ana" {
		t.Fatalf("unexpected activity: %#v", result.Activity)
	}
}

func TestChangeConversationStatus_AlreadyInStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	conversation := openConversation(t, f)
	ctx := context.Background()

	before, err := f.service.ListMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	result, err := f.service.ChangeConversationStatus(ctx, core.ConversationStatusChange{
		ConversationID: conversation.ID,
		Status:         core.ConversationStatusOpen,
		Reason:         "ignored",
	})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if !result.AlreadyInStatus || result.Activity != nil {
		t.Fatalf("expected already-in-status without activity, got %#v", result)
	}
	after, err := f.service.ListMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected no activity message, got %d -> %d", len(before), len(after))
	}
}

func TestChangeConversationStatus_CustomStrategyOverride(t *testing.T) {
	f := newFixture(t, core.WithActivityStrategy(core.ActorKindAutomated, silentStrategy{}))
	conversation := openConversation(t, f)

	result, err := f.service.ChangeConversationStatus(context.Background(), core.ConversationStatusChange{
		ConversationID: conversation.ID,
		Status:         core.ConversationStatusSnoozed,
	})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if result.Activity != nil {
		t.Fatalf("expected no activity from silent strategy")
	}
	if result.Conversation.Status != core.ConversationStatusSnoozed {
		t.Fatalf("expected snoozed, got %s", result.Conversation.Status)
	}
}

func TestChangeConversationStatus_RejectsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	conversation := openConversation(t, f)
	if _, err := f.service.ChangeConversationStatus(context.Background(), core.ConversationStatusChange{
		ConversationID: conversation.ID,
		Status:         "archived",
	}); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

type silentStrategy struct{}

func (silentStrategy) StatusChangeContent(core.ConversationStatus, core.Actor, string) string {
	return ""
}
