// Package memstore is an in-memory implementation of the core stores. It
// enforces the same uniqueness rules as the SQL schema and is used by tests
// and single-process deployments.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/google/uuid"
)

// WriteHook runs before an identity write acquires the store lock. Tests use
// it to interleave a competing writer between classification and apply.
type WriteHook func(ctx context.Context, op string)

const (
	OpCreateContactInbox = "create_contact_inbox"
	OpUpdateIdentity     = "update_identity"
)

type Store struct {
	mu sync.Mutex

	inboxes       map[string]core.Inbox
	contacts      map[string]core.Contact
	bindings      map[string]core.ContactInbox
	conversations map[string]core.Conversation
	messages      map[string]core.Message
	messageOrder  []string

	beforeWrite WriteHook
	now         func() time.Time
}

func New() *Store {
	return &Store{
		inboxes:       map[string]core.Inbox{},
		contacts:      map[string]core.Contact{},
		bindings:      map[string]core.ContactInbox{},
		conversations: map[string]core.Conversation{},
		messages:      map[string]core.Message{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *Store) SetWriteHook(hook WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeWrite = hook
}

func (s *Store) InboxStore() core.InboxStore               { return s }
func (s *Store) IdentityStore() core.IdentityStore         { return s }
func (s *Store) ConversationStore() core.ConversationStore { return s }
func (s *Store) MessageStore() core.MessageStore           { return s }

func (s *Store) PutInbox(_ context.Context, inbox core.Inbox) (core.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(inbox.ID) == "" {
		inbox.ID = uuid.NewString()
	}
	if strings.TrimSpace(inbox.AccountID) == "" {
		return core.Inbox{}, fmt.Errorf("memstore: inbox account id is required")
	}
	now := s.now()
	if inbox.CreatedAt.IsZero() {
		inbox.CreatedAt = now
	}
	inbox.UpdatedAt = now
	s.inboxes[inbox.ID] = inbox
	return inbox, nil
}

// PutContact inserts a contact directly, bypassing the pipeline. It still
// enforces account-level uniqueness.
func (s *Store) PutContact(_ context.Context, contact core.Contact) (core.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(contact.ID) == "" {
		contact.ID = uuid.NewString()
	}
	if err := s.checkContactUniqueLocked(contact); err != nil {
		return core.Contact{}, err
	}
	now := s.now()
	contact.CreatedAt, contact.UpdatedAt = now, now
	s.contacts[contact.ID] = contact
	return contact, nil
}

// PutContactInbox inserts a binding directly, bypassing the pipeline.
func (s *Store) PutContactInbox(_ context.Context, binding core.ContactInbox) (core.ContactInbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(binding.ID) == "" {
		binding.ID = uuid.NewString()
	}
	if err := s.checkBindingUniqueLocked(binding); err != nil {
		return core.ContactInbox{}, err
	}
	now := s.now()
	binding.CreatedAt, binding.UpdatedAt = now, now
	s.bindings[binding.ID] = binding
	return binding, nil
}

func (s *Store) GetInbox(_ context.Context, id string) (core.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox, ok := s.inboxes[strings.TrimSpace(id)]
	if !ok {
		return core.Inbox{}, fmt.Errorf("memstore: inbox %q: %w", id, core.ErrNotFound)
	}
	return inbox, nil
}

func (s *Store) GetContact(_ context.Context, id string) (core.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[strings.TrimSpace(id)]
	if !ok {
		return core.Contact{}, fmt.Errorf("memstore: contact %q: %w", id, core.ErrNotFound)
	}
	return contact, nil
}

func (s *Store) GetContactInbox(_ context.Context, id string) (core.ContactInbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	binding, ok := s.bindings[strings.TrimSpace(id)]
	if !ok {
		return core.ContactInbox{}, fmt.Errorf("memstore: contact inbox %q: %w", id, core.ErrNotFound)
	}
	return binding, nil
}

func (s *Store) FindContactByField(
	_ context.Context,
	accountID string,
	field core.ContactField,
	value string,
) (core.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.findContactLocked(accountID, field, value)
	return contact, ok, nil
}

func (s *Store) FindContactInboxBySource(_ context.Context, inboxID string, sourceID string) (core.ContactInbox, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	binding, ok := s.findBindingBySourceLocked(inboxID, sourceID)
	return binding, ok, nil
}

func (s *Store) FindContactInboxByContact(_ context.Context, inboxID string, contactID string) (core.ContactInbox, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, binding := range s.bindings {
		if binding.InboxID == inboxID && binding.ContactID == contactID {
			return binding, true, nil
		}
	}
	return core.ContactInbox{}, false, nil
}

func (s *Store) CreateContactInbox(ctx context.Context, in core.CreateContactInboxInput) (core.Contact, core.ContactInbox, error) {
	s.runHook(ctx, OpCreateContactInbox)
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(in.InboxID) == "" || strings.TrimSpace(in.SourceID) == "" {
		return core.Contact{}, core.ContactInbox{}, fmt.Errorf("memstore: inbox id and source id are required")
	}
	now := s.now()
	contact := in.Contact
	if strings.TrimSpace(contact.ID) == "" {
		contact.ID = uuid.NewString()
		contact.CreatedAt = now
	} else {
		stored, ok := s.contacts[contact.ID]
		if !ok {
			return core.Contact{}, core.ContactInbox{}, fmt.Errorf("memstore: contact %q: %w", contact.ID, core.ErrNotFound)
		}
		contact = stored
		for _, change := range in.Enrich {
			if contact.Field(change.Field) != change.From {
				return core.Contact{}, core.ContactInbox{}, &core.IdentityConflictError{Field: change.Field, Value: change.To}
			}
			contact.SetField(change.Field, change.To)
		}
	}
	contact.UpdatedAt = now
	if err := s.checkContactUniqueLocked(contact); err != nil {
		return core.Contact{}, core.ContactInbox{}, err
	}

	binding := core.ContactInbox{
		ID:        uuid.NewString(),
		ContactID: contact.ID,
		InboxID:   in.InboxID,
		SourceID:  in.SourceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.checkBindingUniqueLocked(binding); err != nil {
		return core.Contact{}, core.ContactInbox{}, err
	}

	s.contacts[contact.ID] = contact
	s.bindings[binding.ID] = binding
	return contact, binding, nil
}

func (s *Store) UpdateIdentity(ctx context.Context, in core.IdentityUpdate) (core.Contact, core.ContactInbox, error) {
	s.runHook(ctx, OpUpdateIdentity)
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, ok := s.contacts[in.ContactID]
	if !ok {
		return core.Contact{}, core.ContactInbox{}, fmt.Errorf("memstore: contact %q: %w", in.ContactID, core.ErrNotFound)
	}
	binding, ok := s.bindings[in.ContactInboxID]
	if !ok {
		return core.Contact{}, core.ContactInbox{}, fmt.Errorf("memstore: contact inbox %q: %w", in.ContactInboxID, core.ErrNotFound)
	}

	nextContact, nextBinding := contact, binding
	for _, change := range in.Changes {
		if change.Field == core.ContactFieldSourceID {
			if nextBinding.SourceID != change.From {
				return core.Contact{}, core.ContactInbox{}, &core.IdentityConflictError{Field: change.Field, Value: change.To}
			}
			nextBinding.SourceID = change.To
			continue
		}
		if nextContact.Field(change.Field) != change.From {
			return core.Contact{}, core.ContactInbox{}, &core.IdentityConflictError{Field: change.Field, Value: change.To}
		}
		nextContact.SetField(change.Field, change.To)
	}
	if err := s.checkContactUniqueLocked(nextContact); err != nil {
		return core.Contact{}, core.ContactInbox{}, err
	}
	if err := s.checkBindingUniqueLocked(nextBinding); err != nil {
		return core.Contact{}, core.ContactInbox{}, err
	}

	now := s.now()
	if nextContact != contact {
		nextContact.UpdatedAt = now
		s.contacts[nextContact.ID] = nextContact
	}
	if nextBinding != binding {
		nextBinding.UpdatedAt = now
		s.bindings[nextBinding.ID] = nextBinding
	}
	return s.contacts[nextContact.ID], s.bindings[nextBinding.ID], nil
}

func (s *Store) UpdateContactAvatar(_ context.Context, contactID string, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[contactID]
	if !ok {
		return fmt.Errorf("memstore: contact %q: %w", contactID, core.ErrNotFound)
	}
	contact.AvatarURL = avatarURL
	contact.UpdatedAt = s.now()
	s.contacts[contactID] = contact
	return nil
}

func (s *Store) GetConversation(_ context.Context, id string) (core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[strings.TrimSpace(id)]
	if !ok {
		return core.Conversation{}, fmt.Errorf("memstore: conversation %q: %w", id, core.ErrNotFound)
	}
	return conversation, nil
}

func (s *Store) FindActiveConversation(_ context.Context, contactInboxID string) (core.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.activeConversationLocked(contactInboxID)
	return conversation, ok, nil
}

func (s *Store) FindLatestConversation(_ context.Context, contactInboxID string) (core.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest core.Conversation
	found := false
	for _, conversation := range s.conversations {
		if conversation.ContactInboxID != contactInboxID {
			continue
		}
		if !found || conversation.CreatedAt.After(latest.CreatedAt) {
			latest = conversation
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) CreateConversation(_ context.Context, conversation core.Conversation) (core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversation.Status != core.ConversationStatusResolved {
		if _, exists := s.activeConversationLocked(conversation.ContactInboxID); exists {
			return core.Conversation{}, fmt.Errorf("memstore: active conversation exists: %w", core.ErrUniqueViolation)
		}
	}
	if strings.TrimSpace(conversation.ID) == "" {
		conversation.ID = uuid.NewString()
	}
	now := s.now()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	conversation.UpdatedAt = now
	s.conversations[conversation.ID] = conversation
	return conversation, nil
}

func (s *Store) UpdateConversationStatus(
	_ context.Context,
	id string,
	from core.ConversationStatus,
	to core.ConversationStatus,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return false, fmt.Errorf("memstore: conversation %q: %w", id, core.ErrNotFound)
	}
	if conversation.Status != from {
		return false, nil
	}
	if from == core.ConversationStatusResolved && to != core.ConversationStatusResolved {
		if _, exists := s.activeConversationLocked(conversation.ContactInboxID); exists {
			return false, fmt.Errorf("memstore: active conversation exists: %w", core.ErrUniqueViolation)
		}
	}
	conversation.Status = to
	conversation.UpdatedAt = s.now()
	s.conversations[id] = conversation
	return true, nil
}

func (s *Store) TouchConversation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("memstore: conversation %q: %w", id, core.ErrNotFound)
	}
	if at.After(conversation.LastActivityAt) {
		conversation.LastActivityAt = at
		s.conversations[id] = conversation
	}
	return nil
}

func (s *Store) FindMessageBySource(_ context.Context, inboxID string, sourceID string) (core.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.findMessageLocked(inboxID, sourceID)
	return message, ok, nil
}

func (s *Store) CreateMessage(_ context.Context, message core.Message) (core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.SourceID != "" {
		if _, exists := s.findMessageLocked(message.InboxID, message.SourceID); exists {
			return core.Message{}, fmt.Errorf("memstore: message %q exists: %w", message.SourceID, core.ErrUniqueViolation)
		}
	}
	if strings.TrimSpace(message.ID) == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}
	s.messages[message.ID] = message
	s.messageOrder = append(s.messageOrder, message.ID)
	return message, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, 0)
	for _, id := range s.messageOrder {
		if message := s.messages[id]; message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Counts reports row totals, used by tests to assert no writes happened.
func (s *Store) Counts() (contacts int, bindings int, conversations int, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts), len(s.bindings), len(s.conversations), len(s.messages)
}

func (s *Store) runHook(ctx context.Context, op string) {
	s.mu.Lock()
	hook := s.beforeWrite
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, op)
	}
}

func (s *Store) findContactLocked(accountID string, field core.ContactField, value string) (core.Contact, bool) {
	if strings.TrimSpace(value) == "" {
		return core.Contact{}, false
	}
	for _, contact := range s.contacts {
		if contact.AccountID == accountID && contact.Field(field) == value {
			return contact, true
		}
	}
	return core.Contact{}, false
}

func (s *Store) findBindingBySourceLocked(inboxID string, sourceID string) (core.ContactInbox, bool) {
	for _, binding := range s.bindings {
		if binding.InboxID == inboxID && binding.SourceID == sourceID {
			return binding, true
		}
	}
	return core.ContactInbox{}, false
}

func (s *Store) activeConversationLocked(contactInboxID string) (core.Conversation, bool) {
	for _, conversation := range s.conversations {
		if conversation.ContactInboxID == contactInboxID && conversation.Status != core.ConversationStatusResolved {
			return conversation, true
		}
	}
	return core.Conversation{}, false
}

func (s *Store) findMessageLocked(inboxID string, sourceID string) (core.Message, bool) {
	if sourceID == "" {
		return core.Message{}, false
	}
	for _, message := range s.messages {
		if message.InboxID == inboxID && message.SourceID == sourceID {
			return message, true
		}
	}
	return core.Message{}, false
}

func (s *Store) checkContactUniqueLocked(contact core.Contact) error {
	for _, field := range []core.ContactField{core.ContactFieldIdentifier, core.ContactFieldPhoneNumber} {
		if other, ok := s.findContactLocked(contact.AccountID, field, contact.Field(field)); ok && other.ID != contact.ID {
			return &core.IdentityConflictError{Field: field, Value: contact.Field(field), OwnerID: other.ID}
		}
	}
	return nil
}

func (s *Store) checkBindingUniqueLocked(binding core.ContactInbox) error {
	if other, ok := s.findBindingBySourceLocked(binding.InboxID, binding.SourceID); ok && other.ID != binding.ID {
		return &core.IdentityConflictError{Field: core.ContactFieldSourceID, Value: binding.SourceID, OwnerID: other.ID}
	}
	for _, other := range s.bindings {
		if other.InboxID == binding.InboxID && other.ContactID == binding.ContactID && other.ID != binding.ID {
			return &core.IdentityConflictError{Field: "contact_id", Value: binding.ContactID, OwnerID: other.ID}
		}
	}
	return nil
}

var (
	_ core.StoreProvider     = (*Store)(nil)
	_ core.InboxStore        = (*Store)(nil)
	_ core.IdentityStore     = (*Store)(nil)
	_ core.ConversationStore = (*Store)(nil)
	_ core.MessageStore      = (*Store)(nil)
)
