package core

import (
	"context"
	"errors"
	"time"
)

type Route struct {
	Conversation Conversation
	Created      bool
	// Reopened is set when a resolved conversation was reused and moved
	// back to the inbox default status.
	Reopened bool
	Previous ConversationStatus
}

// ConversationRouter finds or creates the conversation a binding's event
// belongs to.
type ConversationRouter struct {
	store ConversationStore
	now   func() time.Time
}

func NewConversationRouter(store ConversationStore, now func() time.Time) *ConversationRouter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ConversationRouter{store: store, now: now}
}

func (r *ConversationRouter) Route(ctx context.Context, inbox Inbox, contact Contact, binding ContactInbox) (Route, error) {
	if r == nil || r.store == nil {
		return Route{}, ErrStoreRequired
	}

	active, found, err := r.store.FindActiveConversation(ctx, binding.ID)
	if err != nil {
		return Route{}, persistenceFailure(err, "conversation lookup")
	}
	if found {
		return Route{Conversation: active}, nil
	}

	if inbox.LockToSingleConversation {
		route, reused, err := r.reopenLatest(ctx, inbox, binding)
		if err != nil || reused {
			return route, err
		}
	}

	now := r.now()
	created, err := r.store.CreateConversation(ctx, Conversation{
		AccountID:        inbox.AccountID,
		InboxID:          inbox.ID,
		ContactID:        contact.ID,
		ContactInboxID:   binding.ID,
		Status:           inbox.defaultStatus(),
		ConversationType: ConversationTypeIndividual,
		LastActivityAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err == nil {
		return Route{Conversation: created, Created: true}, nil
	}
	if !errors.Is(err, ErrUniqueViolation) {
		return Route{}, persistenceFailure(err, "conversation create")
	}

	winner, found, err := r.store.FindActiveConversation(ctx, binding.ID)
	if err != nil {
		return Route{}, persistenceFailure(err, "conversation lookup")
	}
	if !found {
		return Route{}, persistenceFailure(errors.New("core: conversation vanished after create race"), "conversation create")
	}
	return Route{Conversation: winner}, nil
}

func (r *ConversationRouter) reopenLatest(ctx context.Context, inbox Inbox, binding ContactInbox) (Route, bool, error) {
	latest, found, err := r.store.FindLatestConversation(ctx, binding.ID)
	if err != nil {
		return Route{}, false, persistenceFailure(err, "conversation lookup")
	}
	if !found {
		return Route{}, false, nil
	}
	target := inbox.defaultStatus()
	changed, err := r.store.UpdateConversationStatus(ctx, latest.ID, latest.Status, target)
	if err != nil {
		if errors.Is(err, ErrUniqueViolation) {
			return r.activeAfterRace(ctx, binding)
		}
		return Route{}, false, persistenceFailure(err, "conversation reopen")
	}
	if !changed {
		return r.activeAfterRace(ctx, binding)
	}
	previous := latest.Status
	latest.Status = target
	return Route{Conversation: latest, Reopened: true, Previous: previous}, true, nil
}

func (r *ConversationRouter) activeAfterRace(ctx context.Context, binding ContactInbox) (Route, bool, error) {
	active, found, err := r.store.FindActiveConversation(ctx, binding.ID)
	if err != nil {
		return Route{}, false, persistenceFailure(err, "conversation lookup")
	}
	if !found {
		return Route{}, false, nil
	}
	return Route{Conversation: active}, true, nil
}
