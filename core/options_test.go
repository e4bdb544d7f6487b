package core

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestGoOptionsResolver_RuntimeOverridesLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-file",
		Database:    DatabaseConfig{Driver: "postgres", DSN: "postgres://localhost/inbox"},
		Webhooks:    WebhookConfig{MaxAttempts: 3},
	}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", resolved.ServiceName)
	}
	if resolved.Database.Driver != "postgres" || resolved.Database.DSN != "postgres://localhost/inbox" {
		t.Fatalf("expected loaded database config, got %#v", resolved.Database)
	}
	if resolved.Webhooks.MaxAttempts != 3 {
		t.Fatalf("expected loaded max attempts, got %d", resolved.Webhooks.MaxAttempts)
	}
	if resolved.Webhooks.ClaimLeaseSeconds != defaults.Webhooks.ClaimLeaseSeconds {
		t.Fatalf("expected default claim lease, got %d", resolved.Webhooks.ClaimLeaseSeconds)
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticConfigLoader{Values: map[string]any{
		"service_name": "inbox-test",
		"profile": map[string]any{
			"timeout_seconds": 2,
		},
	}})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "inbox-test" || cfg.Profile.TimeoutSeconds != 2 {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if cfg.RegistrationAttempts != 3 {
		t.Fatalf("expected default registration attempts, got %d", cfg.RegistrationAttempts)
	}
}

func TestConfigValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Driver = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid driver error")
	}
}

func TestInboxErrorMapper(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		status   int
	}{
		{"not found", errors.Join(errors.New("lookup"), ErrNotFound), InboxErrorNotFound, http.StatusNotFound},
		{"malformed", &MalformedEventError{MessageID: "m1", Reason: "bad"}, InboxErrorMalformedEvent, http.StatusBadRequest},
		{"conflict", &IdentityConflictError{Field: ContactFieldIdentifier, Value: "1@lid"}, InboxErrorIdentityConflict, http.StatusConflict},
		{"persistence", persistenceFailure(errors.New("disk full"), "message create"), InboxErrorPersistenceFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.textCode || mapped.Code != tc.status {
				t.Fatalf("expected %s/%d, got %s/%d", tc.textCode, tc.status, mapped.TextCode, mapped.Code)
			}
		})
	}
}

func TestPersistenceFailure_KeepsRichErrors(t *testing.T) {
	rich := goerrors.New("already mapped", goerrors.CategoryConflict)
	if got := persistenceFailure(rich, "x"); got != error(rich) {
		t.Fatalf("expected rich error passthrough")
	}
	wrapped := persistenceFailure(errors.New("boom"), "conversation create")
	if !IsPersistenceFailure(wrapped) {
		t.Fatalf("expected persistence failure classification")
	}
	if IsPersistenceFailure(ErrIdentityConflict) {
		t.Fatalf("identity conflicts are not persistence failures")
	}
}

func TestAddressForms(t *testing.T) {
	lid := LIDAddress("111")
	phone := PhoneAddress("+5511")
	if lid.ContactValue() != "111@lid" || lid.SourceID() != "111" || lid.ContactField() != ContactFieldIdentifier {
		t.Fatalf("unexpected lid forms: %#v", lid)
	}
	if phone.ContactValue() != "+5511" || phone.SourceID() != "5511" || phone.ContactField() != ContactFieldPhoneNumber {
		t.Fatalf("unexpected phone forms: %#v", phone)
	}
	parsed, ok := AddressFromContactValue(ContactFieldIdentifier, "111@lid")
	if !ok || parsed != lid {
		t.Fatalf("expected lid round trip, got %#v", parsed)
	}
	if !(Address{}).IsZero() {
		t.Fatalf("expected zero address")
	}
}
