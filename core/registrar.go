package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Registration is the persisted pair an event is attributed to after a
// classification was applied.
type Registration struct {
	Outcome        ClassificationKind
	Contact        Contact
	ContactInbox   ContactInbox
	ContactCreated bool
	// Downgraded is set when a concurrent claim forced the outcome to
	// differ from the input classification.
	Downgraded bool
}

// ContactInboxRegistrar applies a classification. It owns every identity
// write and absorbs uniqueness losses caused by concurrent deliveries.
type ContactInboxRegistrar struct {
	store       IdentityStore
	resolver    *IdentifierResolver
	logger      Logger
	maxAttempts int
}

func NewContactInboxRegistrar(store IdentityStore, resolver *IdentifierResolver, logger Logger) *ContactInboxRegistrar {
	if resolver == nil {
		resolver = NewIdentifierResolver(store)
	}
	return &ContactInboxRegistrar{
		store:       store,
		resolver:    resolver,
		logger:      glog.Ensure(logger),
		maxAttempts: 3,
	}
}

func (r *ContactInboxRegistrar) Apply(ctx context.Context, classification Classification) (Registration, error) {
	if r == nil || r.store == nil {
		return Registration{}, ErrStoreRequired
	}
	return r.apply(ctx, classification, 1)
}

func (r *ContactInboxRegistrar) apply(ctx context.Context, c Classification, attempt int) (Registration, error) {
	switch c.Kind {
	case ClassificationNoop:
		return Registration{Outcome: ClassificationNoop, Contact: c.Contact, ContactInbox: c.ContactInbox}, nil
	case ClassificationConflict:
		r.logConflict(ctx, c, nil)
		return Registration{Outcome: ClassificationConflict, Contact: c.Contact, ContactInbox: c.ContactInbox}, nil
	case ClassificationUpdate:
		return r.applyUpdate(ctx, c)
	case ClassificationNew:
		return r.applyNew(ctx, c, attempt)
	default:
		return Registration{}, fmt.Errorf("core: unknown classification %q", c.Kind)
	}
}

func (r *ContactInboxRegistrar) applyUpdate(ctx context.Context, c Classification) (Registration, error) {
	contact, binding, err := r.store.UpdateIdentity(ctx, IdentityUpdate{
		AccountID:      c.Inbox.AccountID,
		InboxID:        c.Inbox.ID,
		ContactID:      c.Contact.ID,
		ContactInboxID: c.ContactInbox.ID,
		Changes:        c.Changes,
	})
	if err == nil {
		return Registration{Outcome: ClassificationUpdate, Contact: contact, ContactInbox: binding}, nil
	}
	if !errors.Is(err, ErrIdentityConflict) {
		return Registration{}, persistenceFailure(err, "identity update")
	}

	r.logConflict(ctx, c, err)
	contact, err = r.store.GetContact(ctx, c.Contact.ID)
	if err != nil {
		return Registration{}, persistenceFailure(err, "contact reload")
	}
	binding, err = r.store.GetContactInbox(ctx, c.ContactInbox.ID)
	if err != nil {
		return Registration{}, persistenceFailure(err, "contact inbox reload")
	}
	return Registration{
		Outcome:      ClassificationConflict,
		Contact:      contact,
		ContactInbox: binding,
		Downgraded:   true,
	}, nil
}

func (r *ContactInboxRegistrar) applyNew(ctx context.Context, c Classification, attempt int) (Registration, error) {
	contact, binding, err := r.store.CreateContactInbox(ctx, CreateContactInboxInput{
		Contact:  c.Contact,
		InboxID:  c.Inbox.ID,
		SourceID: c.SourceID,
		Enrich:   c.Changes,
	})
	if err == nil {
		return Registration{
			Outcome:        ClassificationNew,
			Contact:        contact,
			ContactInbox:   binding,
			ContactCreated: strings.TrimSpace(c.Contact.ID) == "",
		}, nil
	}
	if !errors.Is(err, ErrIdentityConflict) {
		return Registration{}, persistenceFailure(err, "contact inbox create")
	}
	if attempt >= r.maxAttempts {
		return Registration{}, persistenceFailure(
			fmt.Errorf("core: contact registration did not settle after %d attempts: %w", attempt, err),
			"contact inbox create",
		)
	}

	r.logger.WithContext(ctx).Info("contact inbox creation raced, reclassifying",
		"inbox_id", c.Inbox.ID,
		"source_id", c.SourceID,
		"attempt", attempt,
		"error", err.Error(),
	)
	next, classifyErr := r.resolver.Classify(ctx, c.Inbox, c.Event)
	if classifyErr != nil {
		return Registration{}, persistenceFailure(classifyErr, "reclassify")
	}
	reg, applyErr := r.apply(ctx, next, attempt+1)
	if applyErr != nil {
		return Registration{}, applyErr
	}
	reg.Downgraded = true
	return reg, nil
}

func (r *ContactInboxRegistrar) logConflict(ctx context.Context, c Classification, cause error) {
	args := []any{
		"inbox_id", c.Inbox.ID,
		"message_id", c.Event.MessageID,
		"contact_id", c.Contact.ID,
		"contact_inbox_id", c.ContactInbox.ID,
		"conflict_with", c.ConflictWith,
		"attempted", describeChanges(c.Attempted),
	}
	if cause != nil {
		args = append(args, "attempted_changes", describeChanges(c.Changes), "error", cause.Error())
	}
	r.logger.WithContext(ctx).Info("identity conflict, event attributed to existing contact", args...)
}

func describeChanges(changes []FieldChange) string {
	if len(changes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(changes))
	for _, change := range changes {
		parts = append(parts, fmt.Sprintf("%s:%s->%s", change.Field, change.From, change.To))
	}
	return strings.Join(parts, ",")
}
