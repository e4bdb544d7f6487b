package core

import (
	"context"
	"fmt"
	"strings"
)

// IdentifierResolver classifies an event against existing contact and
// binding state. It never writes.
type IdentifierResolver struct {
	store IdentityStore
}

func NewIdentifierResolver(store IdentityStore) *IdentifierResolver {
	return &IdentifierResolver{store: store}
}

func (r *IdentifierResolver) Classify(ctx context.Context, inbox Inbox, event IncomingEvent) (Classification, error) {
	if r == nil || r.store == nil {
		return Classification{}, ErrStoreRequired
	}
	if strings.TrimSpace(inbox.ID) == "" {
		return Classification{}, fmt.Errorf("core: inbox id is required")
	}
	event = promotePrimary(event)
	if event.Primary.IsZero() {
		return Classification{}, &MalformedEventError{MessageID: event.MessageID, Reason: "no usable address"}
	}

	binding, matched, found, err := r.findBinding(ctx, inbox.ID, event)
	if err != nil {
		return Classification{}, err
	}
	if !found {
		return r.classifyUnbound(ctx, inbox, event)
	}

	contact, err := r.store.GetContact(ctx, binding.ContactID)
	if err != nil {
		return Classification{}, err
	}
	base := Classification{
		Inbox:        inbox,
		Event:        event,
		Contact:      contact,
		ContactInbox: binding,
		MatchedBy:    matched,
		SourceID:     binding.SourceID,
	}

	if event.Alternate.IsZero() {
		base.Kind = ClassificationNoop
		return base, nil
	}

	changes := desiredChanges(contact, binding, event)
	for _, change := range changes {
		owner, collides, err := r.collision(ctx, inbox, contact, binding, change)
		if err != nil {
			return Classification{}, err
		}
		if collides {
			base.Kind = ClassificationConflict
			base.Attempted = changes
			base.ConflictWith = owner
			return base, nil
		}
	}
	if len(changes) == 0 {
		base.Kind = ClassificationNoop
		return base, nil
	}
	base.Kind = ClassificationUpdate
	base.Changes = changes
	for _, change := range changes {
		if change.Field == ContactFieldSourceID {
			base.SourceID = change.To
		}
	}
	return base, nil
}

// findBinding looks up the primary address first so the primary binding wins
// when both addresses are bound to different contacts.
func (r *IdentifierResolver) findBinding(
	ctx context.Context,
	inboxID string,
	event IncomingEvent,
) (ContactInbox, Address, bool, error) {
	for _, address := range event.Addresses() {
		binding, found, err := r.store.FindContactInboxBySource(ctx, inboxID, address.SourceID())
		if err != nil {
			return ContactInbox{}, Address{}, false, err
		}
		if found {
			return binding, address, true, nil
		}
	}
	return ContactInbox{}, Address{}, false, nil
}

func (r *IdentifierResolver) classifyUnbound(ctx context.Context, inbox Inbox, event IncomingEvent) (Classification, error) {
	base := Classification{
		Kind:     ClassificationNew,
		Inbox:    inbox,
		Event:    event,
		SourceID: event.Primary.SourceID(),
	}

	var existing Contact
	var matched Address
	for _, address := range event.Addresses() {
		contact, found, err := r.store.FindContactByField(ctx, inbox.AccountID, address.ContactField(), address.ContactValue())
		if err != nil {
			return Classification{}, err
		}
		if found {
			existing = contact
			matched = address
			break
		}
	}

	if existing.ID == "" {
		base.Contact = freshContact(inbox, event)
		return base, nil
	}

	base.MatchedBy = matched
	binding, bound, err := r.store.FindContactInboxByContact(ctx, inbox.ID, existing.ID)
	if err != nil {
		return Classification{}, err
	}
	if bound {
		base.Contact = existing
		base.ContactInbox = binding
		base.SourceID = binding.SourceID
		// Without an alternate there is nothing to reconcile against the
		// contact's existing binding.
		if event.Alternate.IsZero() {
			base.Kind = ClassificationNoop
			return base, nil
		}
		base.Kind = ClassificationConflict
		base.ConflictWith = binding.ID
		base.Attempted = []FieldChange{{Field: ContactFieldSourceID, From: binding.SourceID, To: event.Primary.SourceID()}}
		return base, nil
	}

	base.Contact = existing
	for _, change := range enrichmentChanges(existing, event) {
		_, collides, err := r.collision(ctx, inbox, existing, ContactInbox{}, change)
		if err != nil {
			return Classification{}, err
		}
		if !collides {
			base.Changes = append(base.Changes, change)
		}
	}
	return base, nil
}

// collision reports the id of another contact or binding that already holds
// the value a change would write.
func (r *IdentifierResolver) collision(
	ctx context.Context,
	inbox Inbox,
	contact Contact,
	binding ContactInbox,
	change FieldChange,
) (string, bool, error) {
	if change.Field == ContactFieldSourceID {
		other, found, err := r.store.FindContactInboxBySource(ctx, inbox.ID, change.To)
		if err != nil {
			return "", false, err
		}
		if found && other.ID != binding.ID {
			return other.ID, true, nil
		}
		return "", false, nil
	}
	other, found, err := r.store.FindContactByField(ctx, inbox.AccountID, change.Field, change.To)
	if err != nil {
		return "", false, err
	}
	if found && other.ID != contact.ID {
		return other.ID, true, nil
	}
	return "", false, nil
}

func desiredChanges(contact Contact, binding ContactInbox, event IncomingEvent) []FieldChange {
	changes := make([]FieldChange, 0, 3)
	if source := event.Primary.SourceID(); source != "" && binding.SourceID != source {
		changes = append(changes, FieldChange{Field: ContactFieldSourceID, From: binding.SourceID, To: source})
	}
	return append(changes, enrichmentChanges(contact, event)...)
}

// enrichmentChanges fills empty identifying fields only. A field that already
// holds a different value is left alone.
func enrichmentChanges(contact Contact, event IncomingEvent) []FieldChange {
	var changes []FieldChange
	seen := map[ContactField]bool{}
	for _, address := range event.Addresses() {
		field := address.ContactField()
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		if contact.Field(field) != "" {
			continue
		}
		changes = append(changes, FieldChange{Field: field, To: address.ContactValue()})
	}
	return changes
}

func freshContact(inbox Inbox, event IncomingEvent) Contact {
	contact := Contact{AccountID: inbox.AccountID}
	for _, address := range event.Addresses() {
		if contact.Field(address.ContactField()) == "" {
			contact.SetField(address.ContactField(), address.ContactValue())
		}
	}
	contact.Name = strings.TrimSpace(event.SenderName)
	if contact.Name == "" {
		contact.Name = fallbackContactName(event)
	}
	return contact
}

func fallbackContactName(event IncomingEvent) string {
	for _, address := range event.Addresses() {
		if address.Kind == AddressKindPhone {
			return address.ContactValue()
		}
	}
	return event.Primary.SourceID()
}

// promotePrimary makes the alternate address primary when the provider sent
// only an alternate.
func promotePrimary(event IncomingEvent) IncomingEvent {
	if event.Primary.IsZero() && !event.Alternate.IsZero() {
		event.Primary, event.Alternate = event.Alternate, Address{}
	}
	if !event.Alternate.IsZero() && event.Alternate == event.Primary {
		event.Alternate = Address{}
	}
	return event
}
