package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

var errNotConfigured = errors.New("sqlstore: store is not configured")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func notFound(kind string, id string) error {
	return fmt.Errorf("sqlstore: %s %q: %w", kind, id, core.ErrNotFound)
}

// identityConflict turns a unique violation on contacts or contact_inboxes
// into the conflict the registrar absorbs. The field is read from the
// column list (sqlite) or the constraint name (postgres).
func identityConflict(err error, value string) error {
	message := strings.ToLower(err.Error())
	field := core.ContactField("contact_id")
	switch {
	case strings.Contains(message, "phone"):
		field = core.ContactFieldPhoneNumber
	case strings.Contains(message, "identifier"):
		field = core.ContactFieldIdentifier
	case strings.Contains(message, "source"):
		field = core.ContactFieldSourceID
	}
	return fmt.Errorf("sqlstore: %w: %v", &core.IdentityConflictError{Field: field, Value: value}, err)
}

func uniqueViolation(err error) error {
	return fmt.Errorf("sqlstore: %w: %v", core.ErrUniqueViolation, err)
}
