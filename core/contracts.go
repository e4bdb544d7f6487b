package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type InboxStore interface {
	GetInbox(ctx context.Context, id string) (Inbox, error)
}

// IdentityStore persists contacts and their inbox bindings. Write methods
// must run in a single transaction and report uniqueness losses as
// *IdentityConflictError.
type IdentityStore interface {
	GetContact(ctx context.Context, id string) (Contact, error)
	GetContactInbox(ctx context.Context, id string) (ContactInbox, error)
	FindContactByField(ctx context.Context, accountID string, field ContactField, value string) (Contact, bool, error)
	FindContactInboxBySource(ctx context.Context, inboxID string, sourceID string) (ContactInbox, bool, error)
	FindContactInboxByContact(ctx context.Context, inboxID string, contactID string) (ContactInbox, bool, error)
	CreateContactInbox(ctx context.Context, in CreateContactInboxInput) (Contact, ContactInbox, error)
	UpdateIdentity(ctx context.Context, in IdentityUpdate) (Contact, ContactInbox, error)
	UpdateContactAvatar(ctx context.Context, contactID string, avatarURL string) error
}

// ConversationStore persists conversations. CreateConversation must report a
// second non-resolved conversation for the same binding as ErrUniqueViolation.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (Conversation, error)
	FindActiveConversation(ctx context.Context, contactInboxID string) (Conversation, bool, error)
	FindLatestConversation(ctx context.Context, contactInboxID string) (Conversation, bool, error)
	CreateConversation(ctx context.Context, conversation Conversation) (Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, from ConversationStatus, to ConversationStatus) (bool, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
}

// MessageStore persists messages. CreateMessage must report a duplicate
// (inbox, source id) pair as ErrUniqueViolation.
type MessageStore interface {
	FindMessageBySource(ctx context.Context, inboxID string, sourceID string) (Message, bool, error)
	CreateMessage(ctx context.Context, message Message) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

type StoreProvider interface {
	InboxStore() InboxStore
	IdentityStore() IdentityStore
	ConversationStore() ConversationStore
	MessageStore() MessageStore
}

// ProfileFetcher looks up provider profile data. Failures never block event
// processing.
type ProfileFetcher interface {
	FetchProfilePictureURL(ctx context.Context, inbox Inbox, address Address) (string, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type EventProcessor interface {
	ProcessEvents(ctx context.Context, inboxID string, events []IncomingEvent) (BatchResult, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// JobWorkerHook observes queued batch execution.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
