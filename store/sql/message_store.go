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

type MessageStore struct {
	db   *bun.DB
	repo repository.Repository[*messageRecord]
}

func NewMessageStore(db *bun.DB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, messageHandlers(), "message")
	if err != nil {
		return nil, err
	}
	return &MessageStore{db: db, repo: repo}, nil
}

func (s *MessageStore) FindMessageBySource(ctx context.Context, inboxID string, sourceID string) (core.Message, bool, error) {
	if s == nil || s.repo == nil {
		return core.Message{}, false, errNotConfigured
	}
	if strings.TrimSpace(sourceID) == "" {
		return core.Message{}, false, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("inbox_id", "=", strings.TrimSpace(inboxID)),
		repository.SelectBy("source_id", "=", strings.TrimSpace(sourceID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Message{}, false, err
	}
	if len(records) == 0 {
		return core.Message{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *MessageStore) CreateMessage(ctx context.Context, message core.Message) (core.Message, error) {
	if s == nil || s.db == nil {
		return core.Message{}, errNotConfigured
	}
	record := newMessageRecord(message)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Message{}, uniqueViolation(err)
		}
		return core.Message{}, err
	}
	return record.toDomain(), nil
}

func (s *MessageStore) ListMessages(ctx context.Context, conversationID string) ([]core.Message, error) {
	if s == nil || s.repo == nil {
		return nil, errNotConfigured
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("conversation_id", "=", strings.TrimSpace(conversationID)),
		repository.OrderBy("created_at ASC"),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Message, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
