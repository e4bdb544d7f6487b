package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-inbox/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConversationStore relies on the partial unique index over
// contact_inbox_id for non-resolved rows to keep one active conversation
// per binding.
type ConversationStore struct {
	db   *bun.DB
	repo repository.Repository[*conversationRecord]
}

func NewConversationStore(db *bun.DB) (*ConversationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, conversationHandlers(), "conversation")
	if err != nil {
		return nil, err
	}
	return &ConversationStore{db: db, repo: repo}, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (core.Conversation, error) {
	if s == nil || s.repo == nil {
		return core.Conversation{}, errNotConfigured
	}
	record, ok, err := s.first(ctx, repository.SelectBy("id", "=", strings.TrimSpace(id)))
	if err != nil {
		return core.Conversation{}, err
	}
	if !ok {
		return core.Conversation{}, notFound("conversation", id)
	}
	return record.toDomain(), nil
}

func (s *ConversationStore) FindActiveConversation(ctx context.Context, contactInboxID string) (core.Conversation, bool, error) {
	if s == nil || s.repo == nil {
		return core.Conversation{}, false, errNotConfigured
	}
	record, ok, err := s.first(ctx,
		repository.SelectBy("contact_inbox_id", "=", strings.TrimSpace(contactInboxID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.status <> ?", string(core.ConversationStatusResolved))
		}),
	)
	if err != nil || !ok {
		return core.Conversation{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *ConversationStore) FindLatestConversation(ctx context.Context, contactInboxID string) (core.Conversation, bool, error) {
	if s == nil || s.repo == nil {
		return core.Conversation{}, false, errNotConfigured
	}
	record, ok, err := s.first(ctx,
		repository.SelectBy("contact_inbox_id", "=", strings.TrimSpace(contactInboxID)),
		repository.OrderBy("created_at DESC"),
	)
	if err != nil || !ok {
		return core.Conversation{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *ConversationStore) CreateConversation(ctx context.Context, conversation core.Conversation) (core.Conversation, error) {
	if s == nil || s.db == nil {
		return core.Conversation{}, errNotConfigured
	}
	if strings.TrimSpace(conversation.ContactInboxID) == "" {
		return core.Conversation{}, fmt.Errorf("sqlstore: contact inbox id is required")
	}
	now := time.Now().UTC()
	record := newConversationRecord(conversation)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Conversation{}, uniqueViolation(err)
		}
		return core.Conversation{}, err
	}
	return record.toDomain(), nil
}

// UpdateConversationStatus moves id from one status to another only if it
// still holds from. It reports false when another writer got there first.
func (s *ConversationStore) UpdateConversationStatus(
	ctx context.Context,
	id string,
	from core.ConversationStatus,
	to core.ConversationStatus,
) (bool, error) {
	if s == nil || s.db == nil {
		return false, errNotConfigured
	}
	result, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return false, uniqueViolation(err)
		}
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		if _, getErr := s.GetConversation(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}

func (s *ConversationStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	at = at.UTC()
	_, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("last_activity_at = ?", at).
		Where("id = ?", strings.TrimSpace(id)).
		Where("last_activity_at IS NULL OR last_activity_at < ?", at).
		Exec(ctx)
	return err
}

func (s *ConversationStore) first(ctx context.Context, criteria ...repository.SelectCriteria) (*conversationRecord, bool, error) {
	criteria = append(criteria, repository.SelectPaginate(1, 0))
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}
