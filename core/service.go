package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service drives inbound events through the reconciliation pipeline and
// exposes conversation status changes.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	inboxes         InboxStore
	identities      IdentityStore
	conversations   ConversationStore
	messages        MessageStore
	profiles        ProfileFetcher
	activity        map[ActorKind]ActivityContentStrategy
	resolver        *IdentifierResolver
	registrar       *ContactInboxRegistrar
	router          *ConversationRouter
	persister       *MessagePersister
	now             func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("inbox", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("inbox"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = inboxErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if len(builder.activity) == 0 {
		builder.activity = defaultActivityStrategies()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if sp := builder.storeProvider; sp != nil {
		if builder.inboxStore == nil {
			builder.inboxStore = sp.InboxStore()
		}
		if builder.identityStore == nil {
			builder.identityStore = sp.IdentityStore()
		}
		if builder.conversationStore == nil {
			builder.conversationStore = sp.ConversationStore()
		}
		if builder.messageStore == nil {
			builder.messageStore = sp.MessageStore()
		}
	}
	switch {
	case builder.inboxStore == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: inbox store is required"))
	case builder.identityStore == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: identity store is required"))
	case builder.conversationStore == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: conversation store is required"))
	case builder.messageStore == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: message store is required"))
	}

	resolver := NewIdentifierResolver(builder.identityStore)
	registrar := NewContactInboxRegistrar(builder.identityStore, resolver, logger)
	registrar.maxAttempts = finalConfig.registrationAttempts()

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		inboxes:         builder.inboxStore,
		identities:      builder.identityStore,
		conversations:   builder.conversationStore,
		messages:        builder.messageStore,
		profiles:        builder.profileFetcher,
		activity:        builder.activity,
		resolver:        resolver,
		registrar:       registrar,
		router:          NewConversationRouter(builder.conversationStore, builder.now),
		persister:       NewMessagePersister(builder.messageStore, builder.conversationStore),
		now:             builder.now,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) LoggerProvider() LoggerProvider {
	if s == nil {
		return nil
	}
	return s.loggerProvider
}

// MapError renders err with the configured error mapper.
func (s *Service) MapError(err error) *goerrors.Error {
	if s == nil || s.errorMapper == nil {
		return inboxErrorMapper(err)
	}
	return s.errorMapper(err)
}

// ProcessEvent reconciles one event and stores its message. Identity
// conflicts are absorbed; only malformed events and persistence failures
// surface as errors.
func (s *Service) ProcessEvent(ctx context.Context, inboxID string, event IncomingEvent) (result EventResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"inbox_id":   strings.TrimSpace(inboxID),
		"message_id": event.MessageID,
	}

	ctx, end := BeginEventScope(ctx, Execution{EventID: event.MessageID, InboxID: strings.TrimSpace(inboxID)})
	defer end()
	defer func() {
		if result.Outcome != "" {
			fields["outcome"] = string(result.Outcome)
		}
		fields["duplicate"] = result.Duplicate
		s.observeOperation(ctx, startedAt, "process_event", err, fields)
	}()

	if err := event.Validate(); err != nil {
		return EventResult{MessageID: event.MessageID}, err
	}
	inbox, err := s.inboxes.GetInbox(ctx, strings.TrimSpace(inboxID))
	if err != nil {
		return EventResult{MessageID: event.MessageID}, err
	}

	if existing, found, lookupErr := s.messages.FindMessageBySource(ctx, inbox.ID, event.MessageID); lookupErr != nil {
		return EventResult{MessageID: event.MessageID}, persistenceFailure(lookupErr, "message lookup")
	} else if found {
		return s.duplicateResult(ctx, existing)
	}

	classification, err := s.resolver.Classify(ctx, inbox, event)
	if err != nil {
		var malformed *MalformedEventError
		if errors.As(err, &malformed) {
			return EventResult{MessageID: event.MessageID}, err
		}
		return EventResult{MessageID: event.MessageID}, persistenceFailure(err, "classify")
	}
	registration, err := s.registrar.Apply(ctx, classification)
	if err != nil {
		return EventResult{MessageID: event.MessageID}, err
	}

	result = EventResult{
		MessageID:      event.MessageID,
		Outcome:        registration.Outcome,
		Downgraded:     registration.Downgraded,
		ContactCreated: registration.ContactCreated,
		Contact:        registration.Contact,
		ContactInbox:   registration.ContactInbox,
	}

	actor := SystemActor()
	if !event.FromMe {
		actor = Actor{Kind: ActorKindHuman, ID: registration.Contact.ID, Name: registration.Contact.Name}
	}
	ctx = WithActor(ctx, actor)

	if registration.ContactCreated {
		result.Contact = s.enrichProfile(ctx, inbox, registration.Contact, classification.Event)
	}

	route, err := s.router.Route(ctx, inbox, result.Contact, result.ContactInbox)
	if err != nil {
		return result, err
	}
	result.Conversation = route.Conversation
	result.ConversationCreated = route.Created
	result.ConversationOpened = route.Reopened
	if route.Reopened {
		if _, err := s.recordStatusActivity(ctx, route.Conversation, route.Conversation.Status); err != nil {
			return result, err
		}
	}

	message, created, err := s.persister.Persist(ctx, route.Conversation, result.Contact, classification.Event)
	if err != nil {
		return result, err
	}
	result.Message = message
	result.MessageCreated = created
	result.Duplicate = !created
	return result, nil
}

func (s *Service) duplicateResult(ctx context.Context, existing Message) (EventResult, error) {
	result := EventResult{
		MessageID: existing.SourceID,
		Outcome:   ClassificationNoop,
		Duplicate: true,
		Message:   existing,
	}
	conversation, err := s.conversations.GetConversation(ctx, existing.ConversationID)
	if err != nil {
		return result, persistenceFailure(err, "conversation lookup")
	}
	result.Conversation = conversation
	if existing.SenderContactID != "" {
		contact, err := s.identities.GetContact(ctx, existing.SenderContactID)
		if err != nil {
			return result, persistenceFailure(err, "contact lookup")
		}
		result.Contact = contact
	}
	return result, nil
}

// ProcessEvents processes a batch in order. Malformed events are skipped
// with a warning; other failures are collected so the remaining events still
// run, and the joined error marks the delivery as failed.
func (s *Service) ProcessEvents(ctx context.Context, inboxID string, events []IncomingEvent) (BatchResult, error) {
	batch := BatchResult{InboxID: strings.TrimSpace(inboxID)}
	var errs []error
	for index, event := range events {
		result, err := s.ProcessEvent(ctx, inboxID, event)
		if err == nil {
			batch.Processed = append(batch.Processed, result)
			continue
		}
		if errors.Is(err, ErrMalformedEvent) {
			batch.Skipped = append(batch.Skipped, SkippedEvent{Index: index, MessageID: event.MessageID, Reason: err.Error()})
			s.logWarn(ctx, "skipping malformed event", map[string]any{
				"inbox_id":   batch.InboxID,
				"message_id": event.MessageID,
				"index":      index,
				"error":      err.Error(),
			})
			continue
		}
		batch.Failed++
		errs = append(errs, err)
	}
	return batch, errors.Join(errs...)
}

func (s *Service) enrichProfile(ctx context.Context, inbox Inbox, contact Contact, event IncomingEvent) Contact {
	if s.profiles == nil || !s.config.Profile.Enabled || contact.AvatarURL != "" {
		return contact
	}
	address, ok := AddressFromContactValue(ContactFieldPhoneNumber, contact.PhoneNumber)
	if !ok {
		address = event.Primary
	}
	fields := map[string]any{
		"inbox_id":   inbox.ID,
		"contact_id": contact.ID,
		"address":    address.String(),
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.config.ProfileTimeout())
	defer cancel()
	avatarURL, err := s.profiles.FetchProfilePictureURL(lookupCtx, inbox, address)
	if err != nil {
		fields["error"] = err.Error()
		s.logDebug(ctx, "profile picture lookup failed", fields)
		return contact
	}
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return contact
	}
	if err := s.identities.UpdateContactAvatar(ctx, contact.ID, avatarURL); err != nil {
		fields["error"] = err.Error()
		s.logDebug(ctx, "profile picture update failed", fields)
		return contact
	}
	contact.AvatarURL = avatarURL
	return contact
}

// ChangeConversationStatus moves a conversation to a new status and records
// an activity message rendered for the actor in the execution context. A
// conversation already in the target status is left untouched.
func (s *Service) ChangeConversationStatus(
	ctx context.Context,
	change ConversationStatusChange,
) (result StatusChangeResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"conversation_id": change.ConversationID,
		"status":          string(change.Status),
	}
	defer func() {
		fields["already_in_status"] = result.AlreadyInStatus
		s.observeOperation(ctx, startedAt, "change_conversation_status", err, fields)
	}()

	if strings.TrimSpace(change.ConversationID) == "" {
		return StatusChangeResult{}, fmt.Errorf("core: conversation id is required")
	}
	if !change.Status.Valid() {
		return StatusChangeResult{}, fmt.Errorf("core: conversation status %q is invalid", change.Status)
	}

	conversation, err := s.conversations.GetConversation(ctx, strings.TrimSpace(change.ConversationID))
	if err != nil {
		return StatusChangeResult{}, err
	}
	if conversation.Status == change.Status {
		return StatusChangeResult{Conversation: conversation, Previous: conversation.Status, AlreadyInStatus: true}, nil
	}
	if change.Reason != "" {
		ctx = WithReason(ctx, change.Reason)
	}

	previous := conversation.Status
	changed, err := s.conversations.UpdateConversationStatus(ctx, conversation.ID, previous, change.Status)
	if err != nil {
		return StatusChangeResult{}, persistenceFailure(err, "conversation status update")
	}
	if !changed {
		current, getErr := s.conversations.GetConversation(ctx, conversation.ID)
		if getErr != nil {
			return StatusChangeResult{}, persistenceFailure(getErr, "conversation lookup")
		}
		if current.Status == change.Status {
			return StatusChangeResult{Conversation: current, Previous: current.Status, AlreadyInStatus: true}, nil
		}
		return StatusChangeResult{}, goerrors.New(
			fmt.Sprintf("core: conversation %s status changed concurrently", conversation.ID),
			goerrors.CategoryConflict,
		).WithTextCode(InboxErrorIdentityConflict)
	}

	conversation.Status = change.Status
	activity, err := s.recordStatusActivity(ctx, conversation, change.Status)
	if err != nil {
		return StatusChangeResult{}, err
	}
	return StatusChangeResult{Conversation: conversation, Previous: previous, Activity: activity}, nil
}

func (s *Service) recordStatusActivity(ctx context.Context, conversation Conversation, status ConversationStatus) (*Message, error) {
	exec, _ := ExecutionFrom(ctx)
	actor := exec.Actor
	if actor.IsZero() {
		actor = SystemActor()
	}
	strategy, ok := s.activity[actor.Kind]
	if !ok || strategy == nil {
		strategy = HumanActivity{}
	}
	content := strategy.StatusChangeContent(status, actor, exec.Reason)
	if content == "" {
		return nil, nil
	}

	attributes := map[string]any{
		"status":     string(status),
		"actor_kind": string(actor.Kind),
	}
	if actor.ID != "" {
		attributes["actor_id"] = actor.ID
	}
	if exec.Reason != "" {
		attributes["reason"] = exec.Reason
	}
	message, err := s.messages.CreateMessage(ctx, Message{
		AccountID:         conversation.AccountID,
		InboxID:           conversation.InboxID,
		ConversationID:    conversation.ID,
		MessageType:       MessageTypeActivity,
		Content:           content,
		ContentAttributes: attributes,
		CreatedAt:         s.now(),
	})
	if err != nil {
		return nil, persistenceFailure(err, "activity message create")
	}
	return &message, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (Conversation, error) {
	return s.conversations.GetConversation(ctx, strings.TrimSpace(id))
}

func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	return s.messages.ListMessages(ctx, strings.TrimSpace(conversationID))
}

func (s *Service) GetInbox(ctx context.Context, id string) (Inbox, error) {
	return s.inboxes.GetInbox(ctx, strings.TrimSpace(id))
}
