package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/uptrace/bun"
)

type inboxRecord struct {
	bun.BaseModel `bun:"table:inboxes,alias:ib"`

	ID                        string    `bun:"id,pk"`
	AccountID                 string    `bun:"account_id,notnull"`
	Name                      string    `bun:"name,notnull"`
	ChannelType               string    `bun:"channel_type,notnull"`
	Provider                  string    `bun:"provider,notnull"`
	WebhookVerifyToken        string    `bun:"webhook_verify_token,notnull"`
	ProviderURL               string    `bun:"provider_url,notnull"`
	APIKey                    string    `bun:"api_key,notnull"`
	PhoneNumber               string    `bun:"phone_number,notnull"`
	LockToSingleConversation  bool      `bun:"lock_to_single_conversation,notnull"`
	DefaultConversationStatus string    `bun:"default_conversation_status,notnull"`
	CreatedAt                 time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                 time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// contactRecord leaves phone_number and identifier NULL when empty so the
// account-level unique constraints ignore contacts without them.
type contactRecord struct {
	bun.BaseModel `bun:"table:contacts,alias:ct"`

	ID          string    `bun:"id,pk"`
	AccountID   string    `bun:"account_id,notnull"`
	Name        string    `bun:"name,notnull"`
	PhoneNumber string    `bun:"phone_number,nullzero"`
	Identifier  string    `bun:"identifier,nullzero"`
	AvatarURL   string    `bun:"avatar_url,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type contactInboxRecord struct {
	bun.BaseModel `bun:"table:contact_inboxes,alias:ci"`

	ID        string    `bun:"id,pk"`
	ContactID string    `bun:"contact_id,notnull"`
	InboxID   string    `bun:"inbox_id,notnull"`
	SourceID  string    `bun:"source_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type conversationRecord struct {
	bun.BaseModel `bun:"table:conversations,alias:cv"`

	ID               string     `bun:"id,pk"`
	AccountID        string     `bun:"account_id,notnull"`
	InboxID          string     `bun:"inbox_id,notnull"`
	ContactID        string     `bun:"contact_id,notnull"`
	ContactInboxID   string     `bun:"contact_inbox_id,notnull"`
	Status           string     `bun:"status,notnull"`
	ConversationType string     `bun:"conversation_type,notnull"`
	LastActivityAt   *time.Time `bun:"last_activity_at,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// messageRecord stores source_id as NULL for activity messages, which have
// no provider id and must not collide with each other.
type messageRecord struct {
	bun.BaseModel `bun:"table:messages,alias:msg"`

	ID                string         `bun:"id,pk"`
	AccountID         string         `bun:"account_id,notnull"`
	InboxID           string         `bun:"inbox_id,notnull"`
	ConversationID    string         `bun:"conversation_id,notnull"`
	SenderContactID   string         `bun:"sender_contact_id,nullzero"`
	MessageType       string         `bun:"message_type,notnull"`
	Content           string         `bun:"content,notnull"`
	SourceID          string         `bun:"source_id,nullzero"`
	ContentAttributes map[string]any `bun:"content_attributes,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID            string     `bun:"id,pk"`
	ProviderID    string     `bun:"provider_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	ClaimID       string     `bun:"claim_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastError     string     `bun:"last_error,notnull"`
	Payload       []byte     `bun:"payload"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newInboxRecord(inbox core.Inbox) *inboxRecord {
	status := inbox.DefaultConversationStatus
	if !status.Valid() {
		status = core.ConversationStatusOpen
	}
	return &inboxRecord{
		ID:                        strings.TrimSpace(inbox.ID),
		AccountID:                 strings.TrimSpace(inbox.AccountID),
		Name:                      inbox.Name,
		ChannelType:               inbox.ChannelType,
		Provider:                  inbox.Provider,
		WebhookVerifyToken:        inbox.WebhookVerifyToken,
		ProviderURL:               inbox.ProviderURL,
		APIKey:                    inbox.APIKey,
		PhoneNumber:               inbox.PhoneNumber,
		LockToSingleConversation:  inbox.LockToSingleConversation,
		DefaultConversationStatus: string(status),
		CreatedAt:                 inbox.CreatedAt,
		UpdatedAt:                 inbox.UpdatedAt,
	}
}

func (r *inboxRecord) toDomain() core.Inbox {
	if r == nil {
		return core.Inbox{}
	}
	return core.Inbox{
		ID:                        r.ID,
		AccountID:                 r.AccountID,
		Name:                      r.Name,
		ChannelType:               r.ChannelType,
		Provider:                  r.Provider,
		WebhookVerifyToken:        r.WebhookVerifyToken,
		ProviderURL:               r.ProviderURL,
		APIKey:                    r.APIKey,
		PhoneNumber:               r.PhoneNumber,
		LockToSingleConversation:  r.LockToSingleConversation,
		DefaultConversationStatus: core.ConversationStatus(r.DefaultConversationStatus),
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
}

func newContactRecord(contact core.Contact) *contactRecord {
	return &contactRecord{
		ID:          contact.ID,
		AccountID:   contact.AccountID,
		Name:        contact.Name,
		PhoneNumber: contact.PhoneNumber,
		Identifier:  contact.Identifier,
		AvatarURL:   contact.AvatarURL,
		CreatedAt:   contact.CreatedAt,
		UpdatedAt:   contact.UpdatedAt,
	}
}

func (r *contactRecord) toDomain() core.Contact {
	if r == nil {
		return core.Contact{}
	}
	return core.Contact{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Name:        r.Name,
		PhoneNumber: r.PhoneNumber,
		Identifier:  r.Identifier,
		AvatarURL:   r.AvatarURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r *contactRecord) field(field core.ContactField) string {
	switch field {
	case core.ContactFieldIdentifier:
		return r.Identifier
	case core.ContactFieldPhoneNumber:
		return r.PhoneNumber
	default:
		return ""
	}
}

func (r *contactRecord) setField(field core.ContactField, value string) {
	switch field {
	case core.ContactFieldIdentifier:
		r.Identifier = value
	case core.ContactFieldPhoneNumber:
		r.PhoneNumber = value
	}
}

func (r *contactInboxRecord) toDomain() core.ContactInbox {
	if r == nil {
		return core.ContactInbox{}
	}
	return core.ContactInbox{
		ID:        r.ID,
		ContactID: r.ContactID,
		InboxID:   r.InboxID,
		SourceID:  r.SourceID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newConversationRecord(conversation core.Conversation) *conversationRecord {
	record := &conversationRecord{
		ID:               conversation.ID,
		AccountID:        conversation.AccountID,
		InboxID:          conversation.InboxID,
		ContactID:        conversation.ContactID,
		ContactInboxID:   conversation.ContactInboxID,
		Status:           string(conversation.Status),
		ConversationType: conversation.ConversationType,
		CreatedAt:        conversation.CreatedAt,
		UpdatedAt:        conversation.UpdatedAt,
	}
	if record.ConversationType == "" {
		record.ConversationType = core.ConversationTypeIndividual
	}
	if !conversation.LastActivityAt.IsZero() {
		at := conversation.LastActivityAt.UTC()
		record.LastActivityAt = &at
	}
	return record
}

func (r *conversationRecord) toDomain() core.Conversation {
	if r == nil {
		return core.Conversation{}
	}
	conversation := core.Conversation{
		ID:               r.ID,
		AccountID:        r.AccountID,
		InboxID:          r.InboxID,
		ContactID:        r.ContactID,
		ContactInboxID:   r.ContactInboxID,
		Status:           core.ConversationStatus(r.Status),
		ConversationType: r.ConversationType,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.LastActivityAt != nil {
		conversation.LastActivityAt = r.LastActivityAt.UTC()
	}
	return conversation
}

func newMessageRecord(message core.Message) *messageRecord {
	attributes := copyAnyMap(message.ContentAttributes)
	if attributes == nil {
		attributes = map[string]any{}
	}
	return &messageRecord{
		ID:                message.ID,
		AccountID:         message.AccountID,
		InboxID:           message.InboxID,
		ConversationID:    message.ConversationID,
		SenderContactID:   message.SenderContactID,
		MessageType:       string(message.MessageType),
		Content:           message.Content,
		SourceID:          message.SourceID,
		ContentAttributes: attributes,
		CreatedAt:         message.CreatedAt,
	}
}

func (r *messageRecord) toDomain() core.Message {
	if r == nil {
		return core.Message{}
	}
	return core.Message{
		ID:                r.ID,
		AccountID:         r.AccountID,
		InboxID:           r.InboxID,
		ConversationID:    r.ConversationID,
		SenderContactID:   r.SenderContactID,
		MessageType:       core.MessageType(r.MessageType),
		Content:           r.Content,
		SourceID:          r.SourceID,
		ContentAttributes: copyAnyMap(r.ContentAttributes),
		CreatedAt:         r.CreatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
