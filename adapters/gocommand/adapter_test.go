package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	inboxcommand "github.com/goliatone/go-inbox/command"
	"github.com/goliatone/go-inbox/core"
	inboxquery "github.com/goliatone/go-inbox/query"
	memstore "github.com/goliatone/go-inbox/store/memory"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "inbox.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "inbox.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type queueMessage struct{}

func (queueMessage) Type() string { return "inbox.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegisterInbox_DispatchesCommandsAndQueries(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	inbox, err := store.PutInbox(ctx, core.Inbox{AccountID: "acct_1", Provider: core.ProviderBaileys})
	if err != nil {
		t.Fatalf("put inbox: %v", err)
	}
	service, err := core.NewService(core.DefaultConfig(), core.WithStores(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	adapter := NewRegistryAdapter(nil)
	subs, err := RegisterInbox(adapter, service)
	if err != nil {
		t.Fatalf("register inbox: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	batch, err := DispatchWithResult[inboxcommand.ProcessBatchMessage, core.BatchResult](ctx, inboxcommand.ProcessBatchMessage{
		InboxID: inbox.ID,
		Events: []core.IncomingEvent{{
			MessageID: "wa-1",
			Primary:   core.PhoneAddress("5511999990000"),
			Timestamp: time.Unix(1760000000, 0).UTC(),
			Body:      "hello",
		}},
	})
	if err != nil {
		t.Fatalf("dispatch batch: %v", err)
	}
	if len(batch.Processed) != 1 {
		t.Fatalf("expected one processed event, got %#v", batch)
	}
	conversationID := batch.Processed[0].Conversation.ID

	change, err := DispatchWithResult[inboxcommand.ResolveConversationMessage, core.StatusChangeResult](ctx, inboxcommand.ResolveConversationMessage{
		ConversationID: conversationID,
		Reason:         "answered",
		Actor:          core.Actor{Name: "Captain"},
	})
	if err != nil {
		t.Fatalf("dispatch resolve: %v", err)
	}
	if change.Previous != core.ConversationStatusOpen {
		t.Fatalf("expected previous status open, got %q", change.Previous)
	}

	conversation, err := Query[inboxquery.GetConversationMessage, core.Conversation](ctx, inboxquery.GetConversationMessage{ConversationID: conversationID})
	if err != nil {
		t.Fatalf("query conversation: %v", err)
	}
	if conversation.Status != core.ConversationStatusResolved {
		t.Fatalf("expected resolved conversation, got %q", conversation.Status)
	}
	messages, err := Query[inboxquery.ListMessagesMessage, []core.Message](ctx, inboxquery.ListMessagesMessage{ConversationID: conversationID})
	if err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(messages) != 2 || messages[1].MessageType != core.MessageTypeActivity {
		t.Fatalf("expected incoming plus activity message, got %#v", messages)
	}
}

func TestDispatch_RejectsInvalidMessagesBeforeHandlers(t *testing.T) {
	err := Dispatch(context.Background(), inboxcommand.ResolveConversationMessage{ConversationID: "c"})
	if err == nil {
		t.Fatalf("expected validation failure for missing reason")
	}
	if _, err := Query[inboxquery.GetInboxMessage, core.Inbox](context.Background(), inboxquery.GetInboxMessage{}); err == nil {
		t.Fatalf("expected validation failure for missing inbox id")
	}
}

func TestRegisterInbox_RequiresService(t *testing.T) {
	if _, err := RegisterInbox(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected missing service error")
	}
	var adapter *RegistryAdapter
	if err := adapter.Initialize(); err == nil {
		t.Fatalf("expected unconfigured registry error")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	cmd := gocmd.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })
	subscription, err := RegisterAndSubscribe(adapter, gocmd.Commander[queueMessage](cmd))
	if err != nil {
		t.Fatalf("register command: %v", err)
	}
	t.Cleanup(subscription.Unsubscribe)
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("inbox.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}
