package core

import (
	"strings"
	"time"
)

type ContactField string

const (
	ContactFieldIdentifier  ContactField = "identifier"
	ContactFieldPhoneNumber ContactField = "phone_number"
	ContactFieldSourceID    ContactField = "source_id"
)

type AddressingMode string

const (
	AddressingModeLID   AddressingMode = "lid"
	AddressingModePhone AddressingMode = "pn"
)

type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusPending  ConversationStatus = "pending"
	ConversationStatusSnoozed  ConversationStatus = "snoozed"
	ConversationStatusResolved ConversationStatus = "resolved"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusOpen, ConversationStatusPending, ConversationStatusSnoozed, ConversationStatusResolved:
		return true
	default:
		return false
	}
}

const ConversationTypeIndividual = "individual"

type MessageType string

const (
	MessageTypeIncoming MessageType = "incoming"
	MessageTypeOutgoing MessageType = "outgoing"
	MessageTypeActivity MessageType = "activity"
)

const (
	ChannelTypeWhatsApp = "whatsapp"
	ProviderBaileys     = "baileys"
)

// Inbox is a configured messaging channel within an account.
type Inbox struct {
	ID                        string
	AccountID                 string
	Name                      string
	ChannelType               string
	Provider                  string
	WebhookVerifyToken        string
	ProviderURL               string
	APIKey                    string
	PhoneNumber               string
	LockToSingleConversation  bool
	DefaultConversationStatus ConversationStatus
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (i Inbox) defaultStatus() ConversationStatus {
	if i.DefaultConversationStatus == ConversationStatusPending {
		return ConversationStatusPending
	}
	return ConversationStatusOpen
}

// Contact is the stable internal identity of an end user within an account.
// Empty strings represent absent values.
type Contact struct {
	ID          string
	AccountID   string
	Name        string
	PhoneNumber string
	Identifier  string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c Contact) Field(field ContactField) string {
	switch field {
	case ContactFieldIdentifier:
		return c.Identifier
	case ContactFieldPhoneNumber:
		return c.PhoneNumber
	default:
		return ""
	}
}

func (c *Contact) SetField(field ContactField, value string) {
	if c == nil {
		return
	}
	switch field {
	case ContactFieldIdentifier:
		c.Identifier = value
	case ContactFieldPhoneNumber:
		c.PhoneNumber = value
	}
}

// ContactInbox binds a contact to an inbox under one provider source id.
type ContactInbox struct {
	ID        string
	ContactID string
	InboxID   string
	SourceID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Conversation struct {
	ID               string
	AccountID        string
	InboxID          string
	ContactID        string
	ContactInboxID   string
	Status           ConversationStatus
	ConversationType string
	LastActivityAt   time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Message struct {
	ID                string
	AccountID         string
	InboxID           string
	ConversationID    string
	SenderContactID   string
	MessageType       MessageType
	Content           string
	SourceID          string
	ContentAttributes map[string]any
	CreatedAt         time.Time
}

// IncomingEvent is a normalized inbound message event. A zero Alternate
// address means the provider did not supply one.
type IncomingEvent struct {
	MessageID         string
	Primary           Address
	Alternate         Address
	AddressingMode    AddressingMode
	Timestamp         time.Time
	SenderName        string
	Body              string
	FromMe            bool
	ContentAttributes map[string]any
}

// Addresses returns the non-zero addresses, primary first.
func (e IncomingEvent) Addresses() []Address {
	out := make([]Address, 0, 2)
	if !e.Primary.IsZero() {
		out = append(out, e.Primary)
	}
	if !e.Alternate.IsZero() {
		out = append(out, e.Alternate)
	}
	return out
}

func (e IncomingEvent) Validate() error {
	if strings.TrimSpace(e.MessageID) == "" {
		return &MalformedEventError{MessageID: e.MessageID, Reason: "provider message id is required"}
	}
	if e.Primary.IsZero() && e.Alternate.IsZero() {
		return &MalformedEventError{MessageID: e.MessageID, Reason: "no usable address"}
	}
	if e.Timestamp.IsZero() {
		return &MalformedEventError{MessageID: e.MessageID, Reason: "timestamp is required"}
	}
	return nil
}

type ClassificationKind string

const (
	ClassificationNew      ClassificationKind = "NEW"
	ClassificationUpdate   ClassificationKind = "UPDATE"
	ClassificationConflict ClassificationKind = "CONFLICT"
	ClassificationNoop     ClassificationKind = "NOOP"
)

// FieldChange is a single identity write. From is the value observed at
// classification time and is re-checked before the write.
type FieldChange struct {
	Field ContactField
	From  string
	To    string
}

// Classification is the resolver verdict for one event against the state
// observed at resolution time.
//
// For NEW, Contact is either a fresh unsaved contact (empty ID) or an
// existing account contact that has no binding on the inbox yet, and
// Changes holds non-colliding enrichment for it. For UPDATE, CONFLICT and
// NOOP, Contact and ContactInbox are the persisted pair the event belongs to.
type Classification struct {
	Kind         ClassificationKind
	Inbox        Inbox
	Event        IncomingEvent
	Contact      Contact
	ContactInbox ContactInbox
	MatchedBy    Address
	SourceID     string
	Changes      []FieldChange
	Attempted    []FieldChange
	ConflictWith string
}

type CreateContactInboxInput struct {
	Contact  Contact
	InboxID  string
	SourceID string
	Enrich   []FieldChange
}

type IdentityUpdate struct {
	AccountID      string
	InboxID        string
	ContactID      string
	ContactInboxID string
	Changes        []FieldChange
}

type ConversationStatusChange struct {
	ConversationID string
	Status         ConversationStatus
	Reason         string
}

type StatusChangeResult struct {
	Conversation    Conversation
	Previous        ConversationStatus
	AlreadyInStatus bool
	Activity        *Message
}

type EventResult struct {
	MessageID           string
	Outcome             ClassificationKind
	Downgraded          bool
	Duplicate           bool
	ContactCreated      bool
	ConversationCreated bool
	ConversationOpened  bool
	MessageCreated      bool
	Contact             Contact
	ContactInbox        ContactInbox
	Conversation        Conversation
	Message             Message
}

type SkippedEvent struct {
	Index     int
	MessageID string
	Reason    string
}

type BatchResult struct {
	InboxID   string
	Processed []EventResult
	Skipped   []SkippedEvent
	Failed    int
}
