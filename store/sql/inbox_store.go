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

type InboxStore struct {
	db   *bun.DB
	repo repository.Repository[*inboxRecord]
}

func NewInboxStore(db *bun.DB) (*InboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, inboxHandlers(), "inbox")
	if err != nil {
		return nil, err
	}
	return &InboxStore{db: db, repo: repo}, nil
}

func (s *InboxStore) GetInbox(ctx context.Context, id string) (core.Inbox, error) {
	if s == nil || s.repo == nil {
		return core.Inbox{}, errNotConfigured
	}
	trimmed := strings.TrimSpace(id)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", trimmed),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Inbox{}, err
	}
	if len(records) == 0 {
		return core.Inbox{}, notFound("inbox", trimmed)
	}
	return records[0].toDomain(), nil
}

// PutInbox inserts inbox, or updates its settings when the id exists.
func (s *InboxStore) PutInbox(ctx context.Context, inbox core.Inbox) (core.Inbox, error) {
	if s == nil || s.repo == nil {
		return core.Inbox{}, errNotConfigured
	}
	if strings.TrimSpace(inbox.AccountID) == "" {
		return core.Inbox{}, fmt.Errorf("sqlstore: inbox account id is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(inbox.ID) != "" {
		current, err := s.GetInbox(ctx, inbox.ID)
		if err == nil {
			record := newInboxRecord(inbox)
			record.CreatedAt = current.CreatedAt
			record.UpdatedAt = now
			updated, updateErr := s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
			if updateErr != nil {
				return core.Inbox{}, updateErr
			}
			return updated.toDomain(), nil
		}
	} else {
		inbox.ID = uuid.NewString()
	}
	record := newInboxRecord(inbox)
	record.CreatedAt, record.UpdatedAt = now, now
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Inbox{}, err
	}
	return created.toDomain(), nil
}
