package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/core"
	memstore "github.com/goliatone/go-inbox/store/memory"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	testAccountID = "acct_1"
	testPhone     = "5511999990000"
	testLID       = "123456789012345"
	testLID2      = "998877665544332"
)

type fixture struct {
	store   *memstore.Store
	inbox   core.Inbox
	service *core.Service
	logger  *recordingLogger
}

func newFixture(t *testing.T, opts ...core.Option) *fixture {
	t.Helper()
	store := memstore.New()
	inbox, err := store.PutInbox(context.Background(), core.Inbox{
		AccountID:          testAccountID,
		Name:               "Support",
		ChannelType:        core.ChannelTypeWhatsApp,
		Provider:           core.ProviderBaileys,
		WebhookVerifyToken: "secret",
	})
	if err != nil {
		t.Fatalf("put inbox: %v", err)
	}
	logger := &recordingLogger{}
	base := []core.Option{
		core.WithStores(store),
		core.WithLoggerProvider(stubLoggerProvider{logger: logger}),
		core.WithLogger(logger),
	}
	service, err := core.NewService(core.DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{store: store, inbox: inbox, service: service, logger: logger}
}

func (f *fixture) putContact(t *testing.T, contact core.Contact) core.Contact {
	t.Helper()
	contact.AccountID = testAccountID
	stored, err := f.store.PutContact(context.Background(), contact)
	if err != nil {
		t.Fatalf("put contact: %v", err)
	}
	return stored
}

func (f *fixture) bind(t *testing.T, contact core.Contact, sourceID string) core.ContactInbox {
	t.Helper()
	binding, err := f.store.PutContactInbox(context.Background(), core.ContactInbox{
		ContactID: contact.ID,
		InboxID:   f.inbox.ID,
		SourceID:  sourceID,
	})
	if err != nil {
		t.Fatalf("put contact inbox: %v", err)
	}
	return binding
}

func (f *fixture) contact(t *testing.T, id string) core.Contact {
	t.Helper()
	contact, err := f.store.GetContact(context.Background(), id)
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	return contact
}

func (f *fixture) binding(t *testing.T, id string) core.ContactInbox {
	t.Helper()
	binding, err := f.store.GetContactInbox(context.Background(), id)
	if err != nil {
		t.Fatalf("get contact inbox: %v", err)
	}
	return binding
}

func lidEvent(messageID string, lid string, phone string) core.IncomingEvent {
	event := core.IncomingEvent{
		MessageID:      messageID,
		Primary:        core.LIDAddress(lid),
		AddressingMode: core.AddressingModeLID,
		Timestamp:      time.Unix(1760000000, 0).UTC(),
		SenderName:     "Maria",
		Body:           "hello",
	}
	if phone != "" {
		event.Alternate = core.PhoneAddress(phone)
	}
	return event
}

func phoneEvent(messageID string, phone string) core.IncomingEvent {
	return core.IncomingEvent{
		MessageID:      messageID,
		Primary:        core.PhoneAddress(phone),
		AddressingMode: core.AddressingModePhone,
		Timestamp:      time.Unix(1760000000, 0).UTC(),
		SenderName:     "Maria",
		Body:           "hello",
	}
}

type stubLoggerProvider struct {
	logger core.Logger
}

func (s stubLoggerProvider) GetLogger(string) core.Logger {
	return s.logger
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level string, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: append([]any(nil), args...)})
}

func (l *recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *recordingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }

func (l *recordingLogger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *recordingLogger) has(level string, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.level == level && entry.msg == msg {
			return true
		}
	}
	return false
}

type stubProfileFetcher struct {
	url   string
	err   error
	calls int
}

func (s *stubProfileFetcher) FetchProfilePictureURL(ctx context.Context, _ core.Inbox, _ core.Address) (string, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("expected bounded lookup context")
	}
	return s.url, s.err
}
