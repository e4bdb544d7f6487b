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

// IdentityStore persists contacts and contact inbox bindings. Each write
// runs in one transaction and guards every changed column with its expected
// previous value, so a concurrent writer surfaces as an identity conflict.
type IdentityStore struct {
	db       *bun.DB
	contacts repository.Repository[*contactRecord]
	bindings repository.Repository[*contactInboxRecord]
}

func NewIdentityStore(db *bun.DB) (*IdentityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	contacts, err := newRepository(db, contactHandlers(), "contact")
	if err != nil {
		return nil, err
	}
	bindings, err := newRepository(db, contactInboxHandlers(), "contact inbox")
	if err != nil {
		return nil, err
	}
	return &IdentityStore{db: db, contacts: contacts, bindings: bindings}, nil
}

func (s *IdentityStore) GetContact(ctx context.Context, id string) (core.Contact, error) {
	if s == nil || s.contacts == nil {
		return core.Contact{}, errNotConfigured
	}
	record, ok, err := s.firstContact(ctx, repository.SelectBy("id", "=", strings.TrimSpace(id)))
	if err != nil {
		return core.Contact{}, err
	}
	if !ok {
		return core.Contact{}, notFound("contact", id)
	}
	return record.toDomain(), nil
}

func (s *IdentityStore) GetContactInbox(ctx context.Context, id string) (core.ContactInbox, error) {
	if s == nil || s.bindings == nil {
		return core.ContactInbox{}, errNotConfigured
	}
	record, ok, err := s.firstBinding(ctx, repository.SelectBy("id", "=", strings.TrimSpace(id)))
	if err != nil {
		return core.ContactInbox{}, err
	}
	if !ok {
		return core.ContactInbox{}, notFound("contact inbox", id)
	}
	return record.toDomain(), nil
}

func (s *IdentityStore) FindContactByField(
	ctx context.Context,
	accountID string,
	field core.ContactField,
	value string,
) (core.Contact, bool, error) {
	if s == nil || s.contacts == nil {
		return core.Contact{}, false, errNotConfigured
	}
	column, err := contactColumn(field)
	if err != nil {
		return core.Contact{}, false, err
	}
	if strings.TrimSpace(value) == "" {
		return core.Contact{}, false, nil
	}
	record, ok, err := s.firstContact(ctx,
		repository.SelectBy("account_id", "=", strings.TrimSpace(accountID)),
		repository.SelectBy(column, "=", value),
	)
	if err != nil || !ok {
		return core.Contact{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *IdentityStore) FindContactInboxBySource(ctx context.Context, inboxID string, sourceID string) (core.ContactInbox, bool, error) {
	if s == nil || s.bindings == nil {
		return core.ContactInbox{}, false, errNotConfigured
	}
	record, ok, err := s.firstBinding(ctx,
		repository.SelectBy("inbox_id", "=", strings.TrimSpace(inboxID)),
		repository.SelectBy("source_id", "=", strings.TrimSpace(sourceID)),
	)
	if err != nil || !ok {
		return core.ContactInbox{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *IdentityStore) FindContactInboxByContact(ctx context.Context, inboxID string, contactID string) (core.ContactInbox, bool, error) {
	if s == nil || s.bindings == nil {
		return core.ContactInbox{}, false, errNotConfigured
	}
	record, ok, err := s.firstBinding(ctx,
		repository.SelectBy("inbox_id", "=", strings.TrimSpace(inboxID)),
		repository.SelectBy("contact_id", "=", strings.TrimSpace(contactID)),
	)
	if err != nil || !ok {
		return core.ContactInbox{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *IdentityStore) CreateContactInbox(ctx context.Context, in core.CreateContactInboxInput) (core.Contact, core.ContactInbox, error) {
	if s == nil || s.db == nil {
		return core.Contact{}, core.ContactInbox{}, errNotConfigured
	}
	inboxID := strings.TrimSpace(in.InboxID)
	sourceID := strings.TrimSpace(in.SourceID)
	if inboxID == "" || sourceID == "" {
		return core.Contact{}, core.ContactInbox{}, fmt.Errorf("sqlstore: inbox id and source id are required")
	}

	now := time.Now().UTC()
	var contact core.Contact
	var binding core.ContactInbox
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		contactRow := newContactRecord(in.Contact)
		if strings.TrimSpace(contactRow.ID) == "" {
			contactRow.ID = uuid.NewString()
			contactRow.CreatedAt, contactRow.UpdatedAt = now, now
			if _, err := tx.NewInsert().Model(contactRow).Exec(ctx); err != nil {
				return contactWriteError(err, in.Contact)
			}
		} else {
			stored, err := s.enrichContact(ctx, tx, contactRow.ID, in.Enrich, now)
			if err != nil {
				return err
			}
			contactRow = stored
		}

		bindingRow := &contactInboxRecord{
			ID:        uuid.NewString(),
			ContactID: contactRow.ID,
			InboxID:   inboxID,
			SourceID:  sourceID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.NewInsert().Model(bindingRow).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return identityConflict(err, sourceID)
			}
			return err
		}
		contact = contactRow.toDomain()
		binding = bindingRow.toDomain()
		return nil
	})
	if err != nil {
		return core.Contact{}, core.ContactInbox{}, err
	}
	return contact, binding, nil
}

func (s *IdentityStore) UpdateIdentity(ctx context.Context, in core.IdentityUpdate) (core.Contact, core.ContactInbox, error) {
	if s == nil || s.db == nil {
		return core.Contact{}, core.ContactInbox{}, errNotConfigured
	}
	contactChanges := make([]core.FieldChange, 0, len(in.Changes))
	var sourceChange *core.FieldChange
	for i := range in.Changes {
		if in.Changes[i].Field == core.ContactFieldSourceID {
			sourceChange = &in.Changes[i]
			continue
		}
		contactChanges = append(contactChanges, in.Changes[i])
	}

	now := time.Now().UTC()
	var contact core.Contact
	var binding core.ContactInbox
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		contactRow, err := s.enrichContact(ctx, tx, in.ContactID, contactChanges, now)
		if err != nil {
			return err
		}
		if sourceChange != nil {
			result, err := tx.NewUpdate().
				Model((*contactInboxRecord)(nil)).
				Set("source_id = ?", sourceChange.To).
				Set("updated_at = ?", now).
				Where("id = ?", in.ContactInboxID).
				Where("source_id = ?", sourceChange.From).
				Exec(ctx)
			if err != nil {
				if isUniqueViolation(err) {
					return identityConflict(err, sourceChange.To)
				}
				return err
			}
			if affected, _ := result.RowsAffected(); affected == 0 {
				return &core.IdentityConflictError{Field: core.ContactFieldSourceID, Value: sourceChange.To}
			}
		}
		bindingRow := &contactInboxRecord{}
		if err := tx.NewSelect().Model(bindingRow).Where("?TableAlias.id = ?", in.ContactInboxID).Limit(1).Scan(ctx); err != nil {
			if isNoRows(err) {
				return notFound("contact inbox", in.ContactInboxID)
			}
			return err
		}
		contact = contactRow.toDomain()
		binding = bindingRow.toDomain()
		return nil
	})
	if err != nil {
		return core.Contact{}, core.ContactInbox{}, err
	}
	return contact, binding, nil
}

func (s *IdentityStore) UpdateContactAvatar(ctx context.Context, contactID string, avatarURL string) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	result, err := s.db.NewUpdate().
		Model((*contactRecord)(nil)).
		Set("avatar_url = ?", avatarURL).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(contactID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return notFound("contact", contactID)
	}
	return nil
}

// enrichContact applies changes to contactID only where each column still
// holds its From value, then returns the stored row.
func (s *IdentityStore) enrichContact(
	ctx context.Context,
	tx bun.Tx,
	contactID string,
	changes []core.FieldChange,
	now time.Time,
) (*contactRecord, error) {
	if len(changes) > 0 {
		query := tx.NewUpdate().
			Model((*contactRecord)(nil)).
			Set("updated_at = ?", now).
			Where("id = ?", contactID)
		for _, change := range changes {
			column, err := contactColumn(change.Field)
			if err != nil {
				return nil, err
			}
			query = query.Set("? = ?", bun.Ident(column), nullableString(change.To))
			if change.From == "" {
				query = query.Where("? IS NULL", bun.Ident(column))
			} else {
				query = query.Where("? = ?", bun.Ident(column), change.From)
			}
		}
		result, err := query.Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, identityConflict(err, describeValues(changes))
			}
			return nil, err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return nil, &core.IdentityConflictError{Field: changes[0].Field, Value: changes[0].To}
		}
	}

	record := &contactRecord{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", contactID).Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, notFound("contact", contactID)
		}
		return nil, err
	}
	return record, nil
}

func (s *IdentityStore) firstContact(ctx context.Context, criteria ...repository.SelectCriteria) (*contactRecord, bool, error) {
	criteria = append(criteria, repository.SelectPaginate(1, 0))
	records, _, err := s.contacts.List(ctx, criteria...)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func (s *IdentityStore) firstBinding(ctx context.Context, criteria ...repository.SelectCriteria) (*contactInboxRecord, bool, error) {
	criteria = append(criteria, repository.SelectPaginate(1, 0))
	records, _, err := s.bindings.List(ctx, criteria...)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func contactWriteError(err error, contact core.Contact) error {
	if !isUniqueViolation(err) {
		return err
	}
	value := contact.Identifier
	if strings.Contains(strings.ToLower(err.Error()), "phone") {
		value = contact.PhoneNumber
	}
	return identityConflict(err, value)
}

func contactColumn(field core.ContactField) (string, error) {
	switch field {
	case core.ContactFieldIdentifier, core.ContactFieldPhoneNumber:
		return string(field), nil
	default:
		return "", fmt.Errorf("sqlstore: contact field %q is not writable", field)
	}
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func describeValues(changes []core.FieldChange) string {
	values := make([]string, 0, len(changes))
	for _, change := range changes {
		values = append(values, change.To)
	}
	return strings.Join(values, ",")
}
