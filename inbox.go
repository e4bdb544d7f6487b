package inbox

import "github.com/goliatone/go-inbox/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Inbox = core.Inbox
type Contact = core.Contact
type ContactInbox = core.ContactInbox
type Conversation = core.Conversation
type Message = core.Message

type IncomingEvent = core.IncomingEvent
type EventResult = core.EventResult
type BatchResult = core.BatchResult
type Classification = core.Classification

type ConversationStatusChange = core.ConversationStatusChange
type StatusChangeResult = core.StatusChangeResult

type Actor = core.Actor
type ActivityContentStrategy = core.ActivityContentStrategy

type StoreProvider = core.StoreProvider
type ProfileFetcher = core.ProfileFetcher

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithStores            = core.WithStores
	WithInboxStore        = core.WithInboxStore
	WithIdentityStore     = core.WithIdentityStore
	WithConversationStore = core.WithConversationStore
	WithMessageStore      = core.WithMessageStore
	WithProfileFetcher    = core.WithProfileFetcher
	WithActivityStrategy  = core.WithActivityStrategy
	WithClock             = core.WithClock

	WithActor  = core.WithActor
	WithReason = core.WithReason
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
