package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-inbox/adapters/gocommand"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/providers/baileys"
	memstore "github.com/goliatone/go-inbox/store/memory"
	"github.com/goliatone/go-inbox/webhooks"
)

const testVerifyToken = "valid_token"

type apiFixture struct {
	store  *memstore.Store
	inbox  core.Inbox
	server *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := memstore.New()
	inbox, err := store.PutInbox(context.Background(), core.Inbox{
		AccountID:          "acct_1",
		Provider:           core.ProviderBaileys,
		ChannelType:        core.ChannelTypeWhatsApp,
		WebhookVerifyToken: testVerifyToken,
	})
	if err != nil {
		t.Fatalf("put inbox: %v", err)
	}
	service, err := core.NewService(core.DefaultConfig(), core.WithStores(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	subs, err := gocommand.RegisterInbox(gocommand.NewRegistryAdapter(nil), service)
	if err != nil {
		t.Fatalf("register inbox handlers: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)

	processor := baileys.NewProcessor(core.DefaultConfig(), store, webhooks.NewMemoryLedger(), service, nil)
	server := NewServer("", nil, NewWebhookHandler(processor, nil), NewConversationHandler())
	return &apiFixture{store: store, inbox: inbox, server: server}
}

func (f *apiFixture) do(t *testing.T, method string, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func upsertPayload(token string, messageID string, text string) string {
	body, _ := json.Marshal(map[string]any{
		"webhookVerifyToken": token,
		"event":              baileys.EventMessagesUpsert,
		"data": map[string]any{
			"type": baileys.UpsertTypeNotify,
			"messages": []any{map[string]any{
				"key": map[string]any{
					"id":             messageID,
					"remoteJid":      "12345678@lid",
					"remoteJidAlt":   "5511912345678@s.whatsapp.net",
					"addressingMode": "lid",
				},
				"pushName":         "John Doe",
				"messageTimestamp": 1760000000,
				"message":          map[string]any{"conversation": text},
			}},
		},
	})
	return string(body)
}

func TestServer_Healthz(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %#v", rec.Code, body)
	}
}

func TestWebhook_ProcessesAndDedupesDelivery(t *testing.T) {
	f := newAPIFixture(t)
	path := "/webhooks/baileys/" + f.inbox.ID
	payload := upsertPayload(testVerifyToken, "msg_1", "Hello")

	rec, body := f.do(t, http.MethodPost, path, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["processed"] != float64(1) || body["inbox_id"] != f.inbox.ID {
		t.Fatalf("unexpected metadata %#v", body)
	}

	rec, body = f.do(t, http.MethodPost, path, payload)
	if rec.Code != http.StatusOK || body["deduped"] != true {
		t.Fatalf("expected deduped redelivery, got %d %#v", rec.Code, body)
	}
	contacts, bindings, conversations, messages := f.store.Counts()
	if contacts != 1 || bindings != 1 || conversations != 1 || messages != 1 {
		t.Fatalf("unexpected counts %d %d %d %d", contacts, bindings, conversations, messages)
	}
}

func TestWebhook_RejectsBadTokenAndOversizedBody(t *testing.T) {
	f := newAPIFixture(t)
	path := "/webhooks/baileys/" + f.inbox.ID

	rec, body := f.do(t, http.MethodPost, path, upsertPayload("wrong", "msg_1", "Hello"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if _, ok := body["error"].(map[string]any); !ok {
		t.Fatalf("expected error envelope, got %#v", body)
	}

	rec, _ = f.do(t, http.MethodPost, path, strings.Repeat("x", int(webhookMaxBodyBytes)+1))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestConversations_StatusChangeAndReads(t *testing.T) {
	f := newAPIFixture(t)
	if rec, _ := f.do(t, http.MethodPost, "/webhooks/baileys/"+f.inbox.ID, upsertPayload(testVerifyToken, "msg_1", "Hello")); rec.Code != http.StatusOK {
		t.Fatalf("seed delivery failed: %d", rec.Code)
	}
	message, ok, err := f.store.FindMessageBySource(context.Background(), f.inbox.ID, "msg_1")
	if err != nil || !ok {
		t.Fatalf("expected seeded message, got %v %v", ok, err)
	}
	conversationPath := "/conversations/" + message.ConversationID

	rec, body := f.do(t, http.MethodPost, conversationPath+"/status",
		`{"status":"resolved","actor":{"kind":"human","id":"agent_1","name":"Ana"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["previous_status"] != "open" {
		t.Fatalf("unexpected status change %#v", body)
	}
	activity, _ := body["activity"].(map[string]any)
	if activity["content"] != "Conversation was marked resolved by Ana" {
		t.Fatalf("unexpected activity %#v", activity)
	}

	rec, body = f.do(t, http.MethodGet, conversationPath, "")
	if rec.Code != http.StatusOK || body["status"] != "resolved" {
		t.Fatalf("unexpected conversation %d %#v", rec.Code, body)
	}
	rec, body = f.do(t, http.MethodGet, conversationPath+"/messages?limit=1", "")
	items, _ := body["items"].([]any)
	if rec.Code != http.StatusOK || len(items) != 1 {
		t.Fatalf("expected one message, got %d %#v", rec.Code, body)
	}
	if items[0].(map[string]any)["message_type"] != "activity" {
		t.Fatalf("expected latest message to be the activity, got %#v", items[0])
	}
}

func TestConversations_RejectsInvalidStatus(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.do(t, http.MethodPost, "/conversations/conv_1/status", `{"status":"archived"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	envelope, _ := body["error"].(map[string]any)
	if envelope["code"] != core.InboxErrorBadInput {
		t.Fatalf("unexpected error envelope %#v", envelope)
	}

	rec, _ = f.do(t, http.MethodGet, "/conversations/conv_1/messages?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}
