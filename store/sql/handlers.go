package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// recordHandlers builds repository handlers for records keyed by a string
// uuid primary key named id.
func recordHandlers[T any](
	newRecord func() *T,
	getID func(*T) string,
	setID func(*T, string),
) repository.ModelHandlers[*T] {
	return repository.ModelHandlers[*T]{
		NewRecord: newRecord,
		GetID: func(record *T) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(getID(record))
		},
		SetID: func(record *T, id uuid.UUID) {
			if record == nil {
				return
			}
			setID(record, id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *T) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(getID(record))
		},
	}
}

func inboxHandlers() repository.ModelHandlers[*inboxRecord] {
	return recordHandlers(
		func() *inboxRecord { return &inboxRecord{} },
		func(r *inboxRecord) string { return r.ID },
		func(r *inboxRecord, id string) { r.ID = id },
	)
}

func contactHandlers() repository.ModelHandlers[*contactRecord] {
	return recordHandlers(
		func() *contactRecord { return &contactRecord{} },
		func(r *contactRecord) string { return r.ID },
		func(r *contactRecord, id string) { r.ID = id },
	)
}

func contactInboxHandlers() repository.ModelHandlers[*contactInboxRecord] {
	return recordHandlers(
		func() *contactInboxRecord { return &contactInboxRecord{} },
		func(r *contactInboxRecord) string { return r.ID },
		func(r *contactInboxRecord, id string) { r.ID = id },
	)
}

func conversationHandlers() repository.ModelHandlers[*conversationRecord] {
	return recordHandlers(
		func() *conversationRecord { return &conversationRecord{} },
		func(r *conversationRecord) string { return r.ID },
		func(r *conversationRecord, id string) { r.ID = id },
	)
}

func messageHandlers() repository.ModelHandlers[*messageRecord] {
	return recordHandlers(
		func() *messageRecord { return &messageRecord{} },
		func(r *messageRecord) string { return r.ID },
		func(r *messageRecord, id string) { r.ID = id },
	)
}

func webhookDeliveryHandlers() repository.ModelHandlers[*webhookDeliveryRecord] {
	return recordHandlers(
		func() *webhookDeliveryRecord { return &webhookDeliveryRecord{} },
		func(r *webhookDeliveryRecord) string { return r.ID },
		func(r *webhookDeliveryRecord, id string) { r.ID = id },
	)
}

func newRepository[T any](db *bun.DB, handlers repository.ModelHandlers[*T], name string) (repository.Repository[*T], error) {
	repo := repository.NewRepository[*T](db, handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
