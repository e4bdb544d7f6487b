package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	InboxErrorBadInput          = "INBOX_BAD_INPUT"
	InboxErrorNotFound          = "INBOX_NOT_FOUND"
	InboxErrorMalformedEvent    = "INBOX_MALFORMED_EVENT"
	InboxErrorIdentityConflict  = "INBOX_IDENTITY_CONFLICT"
	InboxErrorUnauthorized      = "INBOX_UNAUTHORIZED"
	InboxErrorPersistenceFailed = "INBOX_PERSISTENCE_FAILED"
	InboxErrorInternal          = "INBOX_INTERNAL_ERROR"
)

var (
	ErrNotFound         = errors.New("core: record not found")
	ErrUniqueViolation  = errors.New("core: unique constraint violation")
	ErrIdentityConflict = errors.New("core: identity already claimed")
	ErrMalformedEvent   = errors.New("core: malformed event")
	ErrStoreRequired    = errors.New("core: store is required")
)

// IdentityConflictError reports that an identity value is held by another
// contact or binding. It is an expected outcome of concurrent delivery.
type IdentityConflictError struct {
	Field   ContactField
	Value   string
	OwnerID string
}

func (e *IdentityConflictError) Error() string {
	if e == nil {
		return ErrIdentityConflict.Error()
	}
	if e.OwnerID != "" {
		return fmt.Sprintf("core: %s %q already claimed by %s", e.Field, e.Value, e.OwnerID)
	}
	return fmt.Sprintf("core: %s %q already claimed", e.Field, e.Value)
}

func (e *IdentityConflictError) Unwrap() error {
	return ErrIdentityConflict
}

type MalformedEventError struct {
	MessageID string
	Reason    string
}

func (e *MalformedEventError) Error() string {
	if e == nil {
		return ErrMalformedEvent.Error()
	}
	if e.MessageID == "" {
		return "core: malformed event: " + e.Reason
	}
	return fmt.Sprintf("core: malformed event %q: %s", e.MessageID, e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return ErrMalformedEvent
}

// persistenceFailure wraps an unexpected storage error so callers can tell it
// apart from absorbed conflicts and report the delivery as failed.
func persistenceFailure(err error, operation string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "core: "+operation+" failed").
		WithCode(http.StatusInternalServerError).
		WithTextCode(InboxErrorPersistenceFailed).
		WithMetadata(map[string]any{"operation": operation})
}

// IsPersistenceFailure reports whether err should fail the whole delivery.
func IsPersistenceFailure(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == InboxErrorPersistenceFailed
	}
	return false
}

func inboxErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureInboxErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return newInboxError(err.Error(), goerrors.CategoryNotFound, InboxErrorNotFound)
	case errors.Is(err, ErrMalformedEvent):
		return newInboxError(err.Error(), goerrors.CategoryBadInput, InboxErrorMalformedEvent)
	case errors.Is(err, ErrIdentityConflict), errors.Is(err, ErrUniqueViolation):
		return newInboxError(err.Error(), goerrors.CategoryConflict, InboxErrorIdentityConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "verify token"), strings.Contains(msg, "unauthorized"):
		return newInboxError(err.Error(), goerrors.CategoryAuth, InboxErrorUnauthorized)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newInboxError(err.Error(), goerrors.CategoryBadInput, InboxErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureInboxErrorEnvelope(mapped)
}

// MapError converts any pipeline error into a rich error envelope.
func MapError(err error) *goerrors.Error {
	return inboxErrorMapper(err)
}

func newInboxError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureInboxErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureInboxErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = inboxHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultInboxTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultInboxTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return InboxErrorBadInput
	case goerrors.CategoryNotFound:
		return InboxErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return InboxErrorUnauthorized
	case goerrors.CategoryConflict:
		return InboxErrorIdentityConflict
	case goerrors.CategoryOperation:
		return InboxErrorPersistenceFailed
	default:
		return InboxErrorInternal
	}
}

func inboxHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
